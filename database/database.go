// krabbel/database/database.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"krabbel/config"
	"krabbel/models"
	"krabbel/utils"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseService is the SQLite implementation of models.Backend.
type DatabaseService struct {
	DB     *sql.DB
	logger *slog.Logger

	// SessionTTL bounds how long a login stays valid.
	SessionTTL time.Duration
	// BackupDir receives VACUUM INTO snapshots.
	BackupDir string
	// Storage, when set, receives a copy of every backup.
	Storage models.StorageService
	// Keep is how many backups survive pruning, locally and in Storage. 0 keeps all.
	Keep int
}

const backupPrefix = "krabbel_backup"

var _ models.Backend = (*DatabaseService)(nil)
var _ models.Backupper = (*DatabaseService)(nil)

// InitDB connects to the database and brings the schema up to date.
func InitDB(dataSourceName string, logger *slog.Logger) (*DatabaseService, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	logger.Info("Database initialized.")

	return &DatabaseService{
		DB:         db,
		logger:     logger,
		SessionTTL: 720 * time.Hour,
	}, nil
}

func (ds *DatabaseService) Close() error {
	return ds.DB.Close()
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version <= latestVersion {
			continue
		}
		logger.Info("Applying migration", "version", m.Version)
		tx, err := db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(m.Query); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.Now().UTC()); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
		}
		logger.Info("Successfully applied migration", "version", m.Version)
	}
	return nil
}

// --- Posts ---

// ListPosts returns every post, newest first. Read errors are logged and
// produce an empty list.
func (ds *DatabaseService) ListPosts(ctx context.Context) []models.Post {
	rows, err := ds.DB.QueryContext(ctx, `
		SELECT id, type, author, content, image, timestamp, status, ip
		FROM posts ORDER BY timestamp DESC, id DESC`)
	if err != nil {
		ds.logger.Error("Failed to list posts", "error", err)
		return []models.Post{}
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		var (
			p  models.Post
			id int64
			ms int64
		)
		if err := rows.Scan(&id, &p.Type, &p.Author, &p.Content, &p.Image, &ms, &p.Status, &p.IP); err != nil {
			ds.logger.Error("Failed to scan post row", "error", err)
			return []models.Post{}
		}
		p.ID = strconv.FormatInt(id, 10)
		p.Timestamp = utils.FromMillis(ms)
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		ds.logger.Error("Error iterating post rows", "error", err)
		return []models.Post{}
	}
	return posts
}

// CreatePost assigns id and timestamp and persists the payload. An empty
// payload status falls back to the type's initial status.
func (ds *DatabaseService) CreatePost(ctx context.Context, payload models.NewPostPayload) (models.Post, error) {
	status := payload.Status
	if status == "" {
		status = models.InitialStatus(payload.Type)
	}
	post := models.Post{
		Type:      payload.Type,
		Author:    payload.Author,
		Content:   payload.Content,
		Image:     payload.Image,
		Status:    status,
		IP:        utils.AuditIP(payload.Origin, config.UnknownIP),
		Timestamp: utils.FromMillis(utils.NowMillis()),
	}

	res, err := ds.DB.ExecContext(ctx,
		"INSERT INTO posts (type, author, content, image, timestamp, status, ip) VALUES (?, ?, ?, ?, ?, ?, ?)",
		post.Type, post.Author, post.Content, post.Image, post.Timestamp.UnixMilli(), post.Status, post.IP)
	if err != nil {
		return models.Post{}, fmt.Errorf("inserting post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Post{}, err
	}
	post.ID = strconv.FormatInt(id, 10)
	return post, nil
}

// UpdateStatus sets a moderation decision on a post.
func (ds *DatabaseService) UpdateStatus(ctx context.Context, id string, status models.PostStatus) error {
	if !models.ValidDecision(status) {
		return models.ErrInvalidStatus
	}
	postID, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := ds.DB.ExecContext(ctx, "UPDATE posts SET status = ? WHERE id = ?", status, postID)
	if err != nil {
		return fmt.Errorf("updating post status: %w", err)
	}
	return requireOneRow(res)
}

func (ds *DatabaseService) DeletePost(ctx context.Context, id string) error {
	postID, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := ds.DB.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", postID)
	if err != nil {
		return fmt.Errorf("deleting post: %w", err)
	}
	return requireOneRow(res)
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", models.ErrPostNotFound, id)
	}
	return n, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrPostNotFound
	}
	return nil
}

// --- Admin accounts & sessions ---

// SeedAdmin creates or updates the admin account. passwordHash must be a bcrypt hash.
func (ds *DatabaseService) SeedAdmin(ctx context.Context, email, passwordHash, displayName string) error {
	_, err := ds.DB.ExecContext(ctx, `
		INSERT INTO admins (email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET password_hash = excluded.password_hash, display_name = excluded.display_name`,
		email, passwordHash, displayName, utils.NowMillis())
	if err != nil {
		return fmt.Errorf("seeding admin account: %w", err)
	}
	return nil
}

func (ds *DatabaseService) Login(ctx context.Context, email, password string) (string, bool) {
	logger := ds.logger.With("op", "Login")

	var (
		adminID int64
		hash    string
	)
	err := ds.DB.QueryRowContext(ctx, "SELECT id, password_hash FROM admins WHERE email = ?", email).Scan(&adminID, &hash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.Error("Failed to look up admin", "error", err)
		}
		return "", false
	}
	if !utils.CheckPassword(hash, password) {
		return "", false
	}

	now := utils.NowMillis()
	token := utils.NewToken()
	tx, err := ds.DB.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("Failed to begin session transaction", "error", err)
		return "", false
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now); err != nil {
		logger.Error("Failed to purge expired sessions", "error", err)
		return "", false
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO sessions (token, admin_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		token, adminID, now, now+ds.SessionTTL.Milliseconds()); err != nil {
		logger.Error("Failed to create session", "error", err)
		return "", false
	}
	if _, err := tx.ExecContext(ctx, "UPDATE admins SET last_login = ? WHERE id = ?", now, adminID); err != nil {
		logger.Error("Failed to record last login", "error", err)
		return "", false
	}
	if err := tx.Commit(); err != nil {
		logger.Error("Failed to commit session", "error", err)
		return "", false
	}
	return token, true
}

func (ds *DatabaseService) CheckSession(ctx context.Context, token string) bool {
	var n int
	err := ds.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE token = ? AND expires_at > ?", token, utils.NowMillis()).Scan(&n)
	if err != nil {
		ds.logger.Error("Failed to check session", "error", err)
		return false
	}
	return n > 0
}

func (ds *DatabaseService) Logout(ctx context.Context, token string) {
	if _, err := ds.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		ds.logger.Error("Failed to delete session", "error", err)
	}
}

// --- Ticker ---

// Ticker returns the newest ticker text, or the default when none was saved.
func (ds *DatabaseService) Ticker(ctx context.Context) string {
	var text string
	err := ds.DB.QueryRowContext(ctx, "SELECT text FROM ticker_history ORDER BY id DESC LIMIT 1").Scan(&text)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			ds.logger.Error("Failed to read ticker", "error", err)
		}
		return config.DefaultTicker
	}
	return text
}

func (ds *DatabaseService) UpdateTicker(ctx context.Context, text string) error {
	_, err := ds.DB.ExecContext(ctx, "INSERT INTO ticker_history (text, created_at) VALUES (?, ?)", text, utils.NowMillis())
	if err != nil {
		return fmt.Errorf("saving ticker: %w", err)
	}
	return nil
}

// --- Moderation log ---

// RecordAction records an admin's action.
func (ds *DatabaseService) RecordAction(ctx context.Context, modHash, action, targetID, details string) error {
	_, err := ds.DB.ExecContext(ctx,
		"INSERT INTO mod_actions (timestamp, moderator_hash, action, target_id, details) VALUES (?, ?, ?, ?, ?)",
		utils.NowMillis(), modHash, action, targetID, details)
	return err
}

func (ds *DatabaseService) RecentActions(ctx context.Context, limit int) ([]models.ModAction, error) {
	rows, err := ds.DB.QueryContext(ctx, `
		SELECT id, timestamp, moderator_hash, action, target_id, details
		FROM mod_actions ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.ModAction
	for rows.Next() {
		var (
			a  models.ModAction
			ms int64
		)
		if err := rows.Scan(&a.ID, &ms, &a.ModeratorHash, &a.Action, &a.TargetID, &a.Details); err != nil {
			return nil, err
		}
		a.Timestamp = utils.FromMillis(ms)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// --- Backups ---

// BackupDatabase performs an online backup using VACUUM INTO and, when
// storage is configured, uploads the file. It returns the local path or the
// uploaded URL.
func (ds *DatabaseService) BackupDatabase(ctx context.Context) (string, error) {
	if ds.BackupDir == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := os.MkdirAll(ds.BackupDir, 0755); err != nil {
		return "", fmt.Errorf("could not create backup directory %s: %w", ds.BackupDir, err)
	}

	backupPath := filepath.Join(ds.BackupDir, utils.BackupFileName(backupPrefix, utils.Now()))
	ds.logger.Info("Starting database backup", "destination", backupPath)

	if _, err := ds.DB.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		if removeErr := os.Remove(backupPath); removeErr != nil && !os.IsNotExist(removeErr) {
			ds.logger.Error("Failed to remove incomplete backup file", "path", backupPath, "error", removeErr)
		}
		return "", fmt.Errorf("VACUUM INTO command failed: %w", err)
	}

	ds.prune(ctx, &utils.LocalStorage{Dir: ds.BackupDir})
	if ds.Storage == nil {
		return backupPath, nil
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return "", fmt.Errorf("reading backup for upload: %w", err)
	}
	url, err := ds.Storage.SaveFile(ctx, filepath.Base(backupPath), data, "application/vnd.sqlite3")
	if err != nil {
		return "", fmt.Errorf("uploading backup: %w", err)
	}
	ds.logger.Info("Backup uploaded", "url", url)
	ds.prune(ctx, ds.Storage)
	return url, nil
}

// prune applies the retention policy. Failures are logged; the backup
// itself already succeeded.
func (ds *DatabaseService) prune(ctx context.Context, store utils.BackupStore) {
	removed, err := utils.PruneBackups(ctx, store, backupPrefix+"-", ds.Keep)
	if err != nil {
		ds.logger.Warn("Failed to prune old backups", "error", err)
		return
	}
	if len(removed) > 0 {
		ds.logger.Info("Pruned old backups", "removed", removed)
	}
}
