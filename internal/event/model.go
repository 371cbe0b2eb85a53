package event

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Event types recorded by the collaboration services.
const (
	TypeSessionCreate  = "session_create"
	TypeSessionUpdate  = "session_update"
	TypeSessionEnd     = "session_end"
	TypeUserJoin       = "user_join"
	TypeUserLeave      = "user_leave"
	TypePresenceUpdate = "presence_update"
	TypeDocumentChange = "document_change"
	TypeVersionRestore = "version_restore"
	TypeCommentAdd     = "comment_add"
	TypeCommentReply   = "comment_reply"
	TypeCommentUpdate  = "comment_update"
	TypeCommentResolve = "comment_resolve"
	TypeCommentDelete  = "comment_delete"

	// TypeConflictDetected is reserved for the external merge layer; the
	// summarizer counts it but nothing in this core emits it.
	TypeConflictDetected = "conflict_detected"
)

// Payload is an opaque JSON blob stored with each event
type Payload map[string]any

func (p Payload) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	return string(b), err
}

func (p *Payload) Scan(value any) error {
	if value == nil {
		*p = Payload{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for event payload")
	}
	return json.Unmarshal(data, p)
}

// Event is one immutable record of a collaborative action. Rows are only
// ever inserted, or deleted in bulk by an admin.
type Event struct {
	ID         uint64  `json:"id"`
	SessionID  uint64  `json:"session_id" gorm:"index:idx_events_session_time,priority:1"`
	Type       string  `json:"type" gorm:"index"`
	Payload    Payload `json:"payload" gorm:"type:jsonb"`
	ActorID    uint64  `json:"actor_id" gorm:"index"`
	DocumentID *uint64 `json:"document_id,omitempty"`
	DocVersion *int    `json:"doc_version,omitempty"`
	Position   *string `json:"position,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_events_session_time,priority:2"`
}
