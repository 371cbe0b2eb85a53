package session

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// Session is one bounded collaboration context over a single resource.
// Rows are never hard-deleted; ending a session flips its status.
type Session struct {
	ID             uint64   `json:"id"`
	Token          string   `json:"token" gorm:"uniqueIndex"`
	ResourceID     uint64   `json:"resource_id"`
	ResourceType   string   `json:"resource_type"`
	Type           string   `json:"type"`
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	Status         string   `json:"status" gorm:"default:active"`
	Settings       Settings `json:"settings" gorm:"type:jsonb"`
	OrganizationID uint64   `json:"organization_id" gorm:"index"`
	CreatedByID    uint64   `json:"created_by_id"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Participants []Participant `json:"participants,omitempty"`
}

// Settings is an opaque per-session configuration blob
type Settings map[string]any

func (s Settings) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (s *Settings) Scan(value any) error {
	if value == nil {
		*s = Settings{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for session settings")
	}
	return json.Unmarshal(data, s)
}

// PermissionSet is a capability blob carried per participant. It lives as a
// native map in core logic and becomes JSON only at the storage boundary.
type PermissionSet map[string]bool

func (p PermissionSet) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	return string(b), err
}

func (p *PermissionSet) Scan(value any) error {
	if value == nil {
		*p = PermissionSet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for permission set")
	}
	return json.Unmarshal(data, p)
}

// Participant is a user's membership in a session. LeftAt is null while the
// user is active; rejoin clears it.
type Participant struct {
	ID          uint64        `json:"id"`
	SessionID   uint64        `json:"session_id" gorm:"uniqueIndex:idx_participants_session_user"`
	UserID      uint64        `json:"user_id" gorm:"uniqueIndex:idx_participants_session_user"`
	Role        string        `json:"role" gorm:"default:member"`
	Permissions PermissionSet `json:"permissions" gorm:"type:jsonb"`

	JoinedAt     time.Time  `json:"joined_at"`
	LeftAt       *time.Time `json:"left_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	EditCount    uint       `json:"edit_count"`
	CommentCount uint       `json:"comment_count"`
}

// IsActive reports whether the participant is currently in the session
func (p *Participant) IsActive() bool {
	return p.LeftAt == nil
}

// HasRole reports whether userID is an active participant holding one of the
// allowed roles. Every role-gated mutation in the engine goes through this
// single predicate.
func HasRole(participants []Participant, userID uint64, allowed ...string) bool {
	for _, p := range participants {
		if p.UserID != userID || !p.IsActive() {
			continue
		}
		for _, role := range allowed {
			if p.Role == role {
				return true
			}
		}
	}
	return false
}
