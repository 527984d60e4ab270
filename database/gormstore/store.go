// Package gormstore implements models.Backend on top of GORM, for
// deployments that run against Postgres.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"krabbel/config"
	"krabbel/models"
	"krabbel/utils"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type postRecord struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Type      string `gorm:"type:varchar(16);not null"`
	Author    string `gorm:"type:varchar(64);not null"`
	Content   string `gorm:"type:text;not null"`
	Image     string `gorm:"type:text;not null;default:''"`
	Timestamp int64  `gorm:"not null;index:idx_posts_timestamp"`
	Status    string `gorm:"type:varchar(16);not null;index:idx_posts_status"`
	IP        string `gorm:"type:varchar(64);not null;default:''"`
}

func (postRecord) TableName() string { return "posts" }

func (p *postRecord) BeforeCreate(_ *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p postRecord) toModel() models.Post {
	return models.Post{
		ID:        p.ID,
		Type:      models.PostType(p.Type),
		Author:    p.Author,
		Content:   p.Content,
		Image:     p.Image,
		Timestamp: utils.FromMillis(p.Timestamp),
		Status:    models.PostStatus(p.Status),
		IP:        p.IP,
	}
}

type adminRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string `gorm:"type:varchar(255);not null"`
	DisplayName  string `gorm:"type:varchar(64)"`
	LastLogin    int64
	CreatedAt    time.Time
}

func (adminRecord) TableName() string { return "admins" }

type sessionRecord struct {
	Token     string `gorm:"primaryKey;type:varchar(36)"`
	AdminID   uint   `gorm:"index;not null"`
	CreatedAt int64  `gorm:"autoCreateTime:false"`
	ExpiresAt int64  `gorm:"index;not null"`
}

func (sessionRecord) TableName() string { return "sessions" }

type tickerRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Text      string `gorm:"type:text;not null"`
	CreatedAt int64  `gorm:"autoCreateTime:false"`
}

func (tickerRecord) TableName() string { return "ticker_history" }

type modActionRecord struct {
	ID            int64  `gorm:"primaryKey"`
	Timestamp     int64  `gorm:"not null;index"`
	ModeratorHash string `gorm:"type:varchar(64);not null"`
	Action        string `gorm:"type:varchar(32);not null"`
	TargetID      string `gorm:"type:varchar(36)"`
	Details       string `gorm:"type:text"`
}

func (modActionRecord) TableName() string { return "mod_actions" }

// Store is the GORM implementation of models.Backend.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	SessionTTL time.Duration
	// Storage receives JSON exports from BackupDatabase.
	Storage models.StorageService
	// Keep is how many exports survive pruning. 0 keeps all.
	Keep int
}

const exportPrefix = "krabbel_export"

var _ models.Backend = (*Store)(nil)
var _ models.Backupper = (*Store)(nil)

// NewPostgres connects to Postgres and migrates the schema.
func NewPostgres(dsn string, log *slog.Logger) (*Store, error) {
	return Open(postgres.Open(dsn), log)
}

// Open connects through any GORM dialector and migrates the schema.
func Open(dialector gorm.Dialector, log *slog.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&postRecord{}, &adminRecord{}, &sessionRecord{}, &tickerRecord{}, &modActionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db, logger: log.With("store", "gorm"), SessionTTL: 720 * time.Hour}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// === Posts ===

func (s *Store) ListPosts(ctx context.Context) []models.Post {
	var records []postRecord
	if err := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Find(&records).Error; err != nil {
		s.logger.Error("Failed to list posts", "error", err)
		return []models.Post{}
	}
	posts := make([]models.Post, 0, len(records))
	for _, r := range records {
		posts = append(posts, r.toModel())
	}
	return posts
}

func (s *Store) CreatePost(ctx context.Context, payload models.NewPostPayload) (models.Post, error) {
	status := payload.Status
	if status == "" {
		status = models.InitialStatus(payload.Type)
	}
	record := postRecord{
		Type:      string(payload.Type),
		Author:    payload.Author,
		Content:   payload.Content,
		Image:     payload.Image,
		Timestamp: utils.NowMillis(),
		Status:    string(status),
		IP:        utils.AuditIP(payload.Origin, config.UnknownIP),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return models.Post{}, fmt.Errorf("inserting post: %w", err)
	}
	return record.toModel(), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status models.PostStatus) error {
	if !models.ValidDecision(status) {
		return models.ErrInvalidStatus
	}
	res := s.db.WithContext(ctx).Model(&postRecord{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("updating post status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrPostNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&postRecord{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrPostNotFound
	}
	return nil
}

// === Admin accounts & sessions ===

// SeedAdmin creates or updates the admin account. passwordHash must be a bcrypt hash.
func (s *Store) SeedAdmin(ctx context.Context, email, passwordHash, displayName string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin adminRecord
		err := tx.Where("email = ?", email).First(&admin).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&adminRecord{Email: email, PasswordHash: passwordHash, DisplayName: displayName}).Error
		}
		if err != nil {
			return err
		}
		admin.PasswordHash = passwordHash
		admin.DisplayName = displayName
		return tx.Save(&admin).Error
	})
}

func (s *Store) Login(ctx context.Context, email, password string) (string, bool) {
	var admin adminRecord
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&admin).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("Failed to look up admin", "error", err)
		}
		return "", false
	}
	if !utils.CheckPassword(admin.PasswordHash, password) {
		return "", false
	}

	now := utils.NowMillis()
	session := sessionRecord{
		Token:     utils.NewToken(),
		AdminID:   admin.ID,
		CreatedAt: now,
		ExpiresAt: now + s.SessionTTL.Milliseconds(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&session).Error; err != nil {
			return err
		}
		return tx.Model(&adminRecord{}).Where("id = ?", admin.ID).Update("last_login", now).Error
	})
	if err != nil {
		s.logger.Error("Failed to create session", "error", err)
		return "", false
	}
	return session.Token, true
}

func (s *Store) CheckSession(ctx context.Context, token string) bool {
	var n int64
	err := s.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("token = ? AND expires_at > ?", token, utils.NowMillis()).
		Count(&n).Error
	if err != nil {
		s.logger.Error("Failed to check session", "error", err)
		return false
	}
	return n > 0
}

func (s *Store) Logout(ctx context.Context, token string) {
	if err := s.db.WithContext(ctx).Delete(&sessionRecord{}, "token = ?", token).Error; err != nil {
		s.logger.Error("Failed to delete session", "error", err)
	}
}

// === Ticker ===

func (s *Store) Ticker(ctx context.Context) string {
	var rec tickerRecord
	err := s.db.WithContext(ctx).Order("id DESC").First(&rec).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("Failed to read ticker", "error", err)
		}
		return config.DefaultTicker
	}
	return rec.Text
}

func (s *Store) UpdateTicker(ctx context.Context, text string) error {
	if err := s.db.WithContext(ctx).Create(&tickerRecord{Text: text, CreatedAt: utils.NowMillis()}).Error; err != nil {
		return fmt.Errorf("saving ticker: %w", err)
	}
	return nil
}

// === Moderation log ===

func (s *Store) RecordAction(ctx context.Context, modHash, action, targetID, details string) error {
	return s.db.WithContext(ctx).Create(&modActionRecord{
		Timestamp:     utils.NowMillis(),
		ModeratorHash: modHash,
		Action:        action,
		TargetID:      targetID,
		Details:       details,
	}).Error
}

func (s *Store) RecentActions(ctx context.Context, limit int) ([]models.ModAction, error) {
	var records []modActionRecord
	if err := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	actions := make([]models.ModAction, 0, len(records))
	for _, r := range records {
		actions = append(actions, models.ModAction{
			ID:            r.ID,
			Timestamp:     utils.FromMillis(r.Timestamp),
			ModeratorHash: r.ModeratorHash,
			Action:        r.Action,
			TargetID:      r.TargetID,
			Details:       r.Details,
		})
	}
	return actions, nil
}

// === Backups ===

type exportFile struct {
	ExportedAt time.Time          `json:"exported_at"`
	Ticker     string             `json:"ticker"`
	Posts      []models.Post      `json:"posts"`
	Actions    []models.ModAction `json:"actions"`
}

// BackupDatabase writes a JSON export of posts, ticker and moderation log
// to Storage.
func (s *Store) BackupDatabase(ctx context.Context) (string, error) {
	if s.Storage == nil {
		return "", fmt.Errorf("backup storage is not configured")
	}

	var records []postRecord
	if err := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Find(&records).Error; err != nil {
		return "", fmt.Errorf("reading posts for export: %w", err)
	}
	export := exportFile{
		ExportedAt: utils.Now().UTC(),
		Ticker:     s.Ticker(ctx),
		Posts:      make([]models.Post, 0, len(records)),
	}
	for _, r := range records {
		export.Posts = append(export.Posts, r.toModel())
	}
	actions, err := s.RecentActions(ctx, 1000)
	if err != nil {
		return "", fmt.Errorf("reading moderation log for export: %w", err)
	}
	export.Actions = actions

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", err
	}
	name := strings.TrimSuffix(utils.BackupFileName(exportPrefix, export.ExportedAt), ".db") + ".json"
	location, err := s.Storage.SaveFile(ctx, name, data, "application/json")
	if err != nil {
		return "", fmt.Errorf("saving export: %w", err)
	}
	s.logger.Info("Export written", "location", location, "posts", len(export.Posts))

	if removed, err := utils.PruneBackups(ctx, s.Storage, exportPrefix+"-", s.Keep); err != nil {
		s.logger.Warn("Failed to prune old exports", "error", err)
	} else if len(removed) > 0 {
		s.logger.Info("Pruned old exports", "removed", removed)
	}
	return location, nil
}
