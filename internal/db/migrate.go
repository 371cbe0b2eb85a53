package db

import (
	"collab-engine/internal/comment"
	"collab-engine/internal/event"
	"collab-engine/internal/session"
	"collab-engine/internal/version"
	"log"
)

// Migrate runs database migrations
func Migrate() {
	err := AppDb.AutoMigrate(
		&session.Session{},
		&session.Participant{},
		&event.Event{},
		&version.Document{},
		&version.DocumentVersion{},
		&comment.Comment{},
	)

	if err != nil {
		log.Fatal(err)
	}

	// Partial unique index so two concurrent creates for the same resource
	// collapse to one active session at the store, not in application code.
	err = AppDb.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active_per_resource
		ON sessions (organization_id, resource_id, resource_type)
		WHERE status = 'active'
	`).Error
	if err != nil {
		log.Fatal(err)
	}

	log.Println("Database schema migrated successfully")
}
