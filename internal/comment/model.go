package comment

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Tombstone replaces the content of a soft-deleted comment whose replies
// still need their thread root.
const Tombstone = "[comment deleted]"

// Position anchors a comment in the document
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Position) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func (p *Position) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		return nil
	default:
		return errors.New("unsupported type for comment position")
	}
	return json.Unmarshal(data, p)
}

// Reactions maps an emoji to the set of users who reacted with it. It is a
// native map everywhere in core logic; JSON only at the storage boundary.
type Reactions map[string][]uint64

// Add inserts userID under emoji, reporting whether membership changed
func (r Reactions) Add(emoji string, userID uint64) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return false
		}
	}
	r[emoji] = append(r[emoji], userID)
	return true
}

// Remove drops userID from emoji, pruning the emoji key once its set is empty
func (r Reactions) Remove(emoji string, userID uint64) bool {
	users, ok := r[emoji]
	if !ok {
		return false
	}
	for i, id := range users {
		if id == userID {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(r, emoji)
			} else {
				r[emoji] = users
			}
			return true
		}
	}
	return false
}

func (r Reactions) Value() (driver.Value, error) {
	if r == nil {
		return "{}", nil
	}
	b, err := json.Marshal(r)
	return string(b), err
}

func (r *Reactions) Scan(value any) error {
	if value == nil {
		*r = Reactions{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("unsupported type for reactions")
	}
	return json.Unmarshal(data, r)
}

// Comment is a thread root (ParentID null) or a reply under one. Replies are
// ordered by creation time ascending.
type Comment struct {
	ID         uint64    `json:"id"`
	DocumentID uint64    `json:"document_id" gorm:"index"`
	AuthorID   uint64    `json:"author_id"`
	Content    string    `json:"content"`
	Position   *Position `json:"position,omitempty" gorm:"type:jsonb"`
	ParentID   *uint64   `json:"parent_id,omitempty" gorm:"index"`
	Resolved   bool      `json:"resolved"`
	Reactions  Reactions `json:"reactions" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Replies []Comment `json:"replies,omitempty" gorm:"-"`
}

// IsRoot reports whether the comment starts a thread
func (c *Comment) IsRoot() bool {
	return c.ParentID == nil
}
