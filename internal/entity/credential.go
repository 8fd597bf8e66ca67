package entity

// Credential binds an external identity (a wallet address, an email, a
// Discord account) to a local user. A given (service, service user id)
// pair belongs to at most one user, enforced by the composite unique
// index.
type Credential struct {
	Base

	UserID string `gorm:"index"`
	User   User   `gorm:"foreignKey:UserID"`

	Service       string `gorm:"uniqueIndex:idx_credentials_service_id"`
	ServiceUserID string `gorm:"uniqueIndex:idx_credentials_service_id"`

	Verified bool
}

const (
	WalletService  = "wallet"
	EmailService   = "email"
	DiscordService = "discord"
	GoogleService  = "google"
)
