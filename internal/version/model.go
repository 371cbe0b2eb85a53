package version

import "time"

const (
	ChangeTypeEdit    = "edit"
	ChangeTypeBackup  = "backup"
	ChangeTypeRestore = "restore"
)

// Document owns a version history. It carries a live copy of the content and
// a pointer to the version that copy came from; both move together on every
// create and restore.
type Document struct {
	ID             uint64    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	CurrentVersion int       `json:"current_version"`
	OwnerID        uint64    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DocumentVersion is one immutable content snapshot. Version numbers are
// strictly increasing per document, starting at 1; a restore with backup
// skips by 2.
type DocumentVersion struct {
	ID           uint64    `json:"id"`
	DocumentID   uint64    `json:"document_id" gorm:"uniqueIndex:idx_document_version,priority:1"`
	Version      int       `json:"version" gorm:"uniqueIndex:idx_document_version,priority:2"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Content      string    `json:"content"`
	ChangeType   string    `json:"change_type" gorm:"default:edit"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	AuthorID     uint64    `json:"author_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// ContentChange is one caller-supplied change-list entry. Line counts on a
// version come straight from these tags, not from a content diff.
type ContentChange struct {
	Kind string `json:"kind" binding:"required,oneof=insert delete retain"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func countLines(changes []ContentChange) (added, removed int) {
	for _, change := range changes {
		switch change.Kind {
		case "insert":
			added++
		case "delete":
			removed++
		}
	}
	return added, removed
}
