// krabbel/config/config.go
package config

import "time"

const (
	AppVersion = "1.4.0"
	SiteTitle  = "Niesl.nl"

	// Form & Post Limits
	MaxAuthorLen       = 30
	MaxContentLen      = 500
	MaxAdminContentLen = 8000
	MaxTickerLen       = 300

	DefaultAdminAuthor = "Niesl (Admin)"
	DefaultTicker      = "+++ Welkom op de site! +++ Laat een berichtje achter! +++ Hyves is back baby! +++"

	// Sessions
	SessionCookieName  = "krabbel_session"
	DefaultSessionTTL  = "720h"
	FlashCookieName    = "krabbel_flash"
	RecentActionsLimit = 20

	// Forms
	FormTokenTTL = 2 * time.Hour

	// Backups
	DefaultBackupEvery = "1m"
	DefaultBackupKeep  = 10

	UnknownIP = "unknown"

	// Images
	RandomImageURL = "https://picsum.photos/seed/%d/300/200"
	AvatarURL      = "https://api.dicebear.com/7.x/fun-emoji/svg?seed=%s"
)
