package entity

import "database/sql"

type User struct {
	Base

	Name          string `gorm:"unique"`
	Email         sql.NullString
	WalletAddress sql.NullString `gorm:"unique"`

	// AccountRef is the identifier of the points account on the external
	// ledger. It is empty until the user is onboarded there.
	AccountRef sql.NullString `gorm:"index"`

	Role string `gorm:"default:USER"`

	AutoEntry       bool
	ShippingName    string
	ShippingAddress string
}

const (
	SuperAdminRole = "SUPER_ADMIN"
	AdminRole      = "ADMIN"
	UserRole       = "USER"
)

var GlobalAdminRoles = []string{SuperAdminRole, AdminRole}
