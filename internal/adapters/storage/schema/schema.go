// Package schema lists the tables the service owns and migrates them.
package schema

import (
	"gorm.io/gorm"

	"fellowship/internal/adapters/storage"
	"fellowship/internal/adapters/storage/announcement"
	"fellowship/internal/adapters/storage/audit"
	"fellowship/internal/adapters/storage/event"
	"fellowship/internal/adapters/storage/member"
	"fellowship/internal/adapters/storage/message"
	"fellowship/internal/adapters/storage/push"
)

// Records returns one zero row per table, referenced tables first.
func Records() []any {
	return []any{
		&member.Record{},
		&event.Record{},
		&event.RSVPRecord{},
		&announcement.Record{},
		&announcement.ViewRecord{},
		&message.Record{},
		&audit.Record{},
		&push.Record{},
	}
}

// Tables returns the table names created by Migrate.
func Tables() []string {
	return []string{
		"members",
		"events",
		"event_rsvps",
		"announcements",
		"member_announcement_views",
		"messages",
		"audit_logs",
		"push_subscriptions",
	}
}

// Migrate creates or updates every table.
// PRE: db is connected
// POST: every table in Tables exists with its indexes; safe to call repeatedly
func Migrate(db *gorm.DB) error {
	return storage.Migrate(db, Records()...)
}
