// krabbel/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- The moderation queue filters on status before sorting
CREATE INDEX IF NOT EXISTS idx_posts_status_time ON posts(status, timestamp DESC);
		`,
	},
	{
		Version: 2,
		Query:   `ALTER TABLE admins ADD COLUMN last_login INTEGER NOT NULL DEFAULT 0;`,
	},
}
