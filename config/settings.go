package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"krabbel/utils"

	"github.com/BurntSushi/toml"
)

// Settings holds the runtime configuration of the server.
type Settings struct {
	Port     string `toml:"port"`
	LogLevel string `toml:"log_level"`
	Backend  string `toml:"backend"` // "sqlite" (default) or "postgres"

	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	BackupDir   string `toml:"backup_dir"`

	AdminEmail        string `toml:"admin_email"`
	AdminPassword     string `toml:"admin_password"`
	AdminPasswordHash string `toml:"admin_password_hash"`
	AdminAuthor       string `toml:"admin_author"`
	SessionTTLRaw     string `toml:"session_ttl"`

	BackupEveryRaw string `toml:"backup_every"`
	BackupKeep     int    `toml:"backup_keep"` // 0 keeps every backup

	S3 S3Settings `toml:"s3"`

	// Parsed from the *Raw fields by Load.
	SessionTTL  time.Duration `toml:"-"`
	BackupEvery time.Duration `toml:"-"`
}

// S3Settings configures the object storage used for backups.
type S3Settings struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	PublicURL string `toml:"public_url"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() *Settings {
	return &Settings{
		Port:             "8080",
		LogLevel:         "info",
		Backend:          "sqlite",
		SQLitePath:       "./krabbel.db?_journal_mode=WAL&_foreign_keys=on",
		BackupDir:        "./backups",
		AdminAuthor:      DefaultAdminAuthor,
		BackupKeep:       DefaultBackupKeep,
		SessionTTLRaw:    DefaultSessionTTL,
		BackupEveryRaw:   DefaultBackupEvery,
		S3:               S3Settings{Region: "us-east-1", UseSSL: true},
	}
}

// Decode overlays TOML from r onto s.
func (s *Settings) Decode(r io.Reader) error {
	if _, err := toml.NewDecoder(r).Decode(s); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Load builds the settings from defaults, the optional KRABBEL_CONFIG file and
// KRABBEL_* environment variables, in that order.
func Load(logger *slog.Logger) (*Settings, error) {
	s := Defaults()

	if path := utils.GetEnv("KRABBEL_CONFIG", ""); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if err := s.Decode(f); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	s.Port = utils.GetEnv("KRABBEL_PORT", s.Port)
	s.LogLevel = utils.GetEnv("KRABBEL_LOG_LEVEL", s.LogLevel)
	s.Backend = utils.GetEnv("KRABBEL_BACKEND", s.Backend)
	s.SQLitePath = utils.GetEnv("KRABBEL_DB_PATH", s.SQLitePath)
	s.PostgresDSN = utils.GetEnv("DATABASE_URL", s.PostgresDSN)
	s.BackupDir = utils.GetEnv("KRABBEL_BACKUP_DIR", s.BackupDir)
	s.AdminEmail = utils.GetEnv("KRABBEL_ADMIN_EMAIL", s.AdminEmail)
	s.AdminPassword = utils.GetEnv("KRABBEL_ADMIN_PASSWORD", s.AdminPassword)
	s.AdminPasswordHash = utils.GetEnv("KRABBEL_ADMIN_PASSWORD_HASH", s.AdminPasswordHash)
	s.AdminAuthor = utils.GetEnv("KRABBEL_ADMIN_AUTHOR", s.AdminAuthor)
	s.SessionTTLRaw = utils.GetEnv("KRABBEL_SESSION_TTL", s.SessionTTLRaw)
	s.BackupEveryRaw = utils.GetEnv("KRABBEL_BACKUP_EVERY", s.BackupEveryRaw)

	if raw := utils.GetEnv("KRABBEL_BACKUP_KEEP", ""); raw != "" {
		keep, err := strconv.Atoi(raw)
		if err != nil || keep < 0 {
			logger.Warn("Invalid KRABBEL_BACKUP_KEEP integer, using default", "value", raw, "default", s.BackupKeep)
		} else {
			s.BackupKeep = keep
		}
	}

	s.S3.Enabled = utils.GetEnv("KRABBEL_S3_ENABLED", strconv.FormatBool(s.S3.Enabled)) == "true"
	s.S3.Endpoint = utils.GetEnv("KRABBEL_S3_ENDPOINT", s.S3.Endpoint)
	s.S3.AccessKey = utils.GetEnv("KRABBEL_S3_ACCESS_KEY", s.S3.AccessKey)
	s.S3.SecretKey = utils.GetEnv("KRABBEL_S3_SECRET_KEY", s.S3.SecretKey)
	s.S3.Bucket = utils.GetEnv("KRABBEL_S3_BUCKET", s.S3.Bucket)
	s.S3.Region = utils.GetEnv("KRABBEL_S3_REGION", s.S3.Region)
	s.S3.PublicURL = utils.GetEnv("KRABBEL_S3_PUBLIC_URL", s.S3.PublicURL)
	s.S3.UseSSL = utils.GetEnv("KRABBEL_S3_USE_SSL", strconv.FormatBool(s.S3.UseSSL)) == "true"

	s.SessionTTL = parseDuration(logger, "session_ttl", s.SessionTTLRaw, DefaultSessionTTL)
	s.BackupEvery = parseDuration(logger, "backup_every", s.BackupEveryRaw, DefaultBackupEvery)

	if s.Backend != "sqlite" && s.Backend != "postgres" {
		return nil, fmt.Errorf("unknown backend %q (want sqlite or postgres)", s.Backend)
	}
	if s.Backend == "postgres" && s.PostgresDSN == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set for the postgres backend")
	}
	if s.AdminAuthor = strings.TrimSpace(s.AdminAuthor); s.AdminAuthor == "" {
		s.AdminAuthor = DefaultAdminAuthor
	}
	if n := utf8.RuneCountInString(s.AdminAuthor); n > MaxAuthorLen {
		return nil, fmt.Errorf("admin_author is %d characters, at most %d allowed", n, MaxAuthorLen)
	}
	return s, nil
}

// Level maps the configured log level onto slog.
func (s *Settings) Level() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func parseDuration(logger *slog.Logger, name, raw, fallback string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("Invalid duration, using default", "setting", name, "value", raw, "default", fallback)
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
