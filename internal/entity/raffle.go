package entity

// RaffleEntry is one account's ticket for one draw window. The composite
// unique index is the source of truth for the one-entry-per-window rule:
// concurrent inserts race on it and the loser gets a duplicate key error.
type RaffleEntry struct {
	Base

	AccountRef string `gorm:"uniqueIndex:idx_raffle_entries_account_window"`
	WindowDate string `gorm:"uniqueIndex:idx_raffle_entries_account_window"`

	// RawRef keeps the identifier the caller presented before it was
	// resolved to an account. Old rows were keyed by it, so lookups
	// still match against it.
	RawRef string `gorm:"index"`
}

type RaffleWinner struct {
	Base

	WindowDate string `gorm:"unique"`
	AccountRef string

	UserID string `gorm:"index"`
	User   User   `gorm:"foreignKey:UserID"`

	PrizeID     string
	PrizeName   string
	PrizeSponsor string

	// Shipping details are snapshotted at draw time so a later profile
	// edit does not change where an already-won prize goes.
	ShippingName    string
	ShippingAddress string
	Shipped         bool
}
