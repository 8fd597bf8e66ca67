package model

type User struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Email           string       `json:"email,omitempty"`
	WalletAddress   string       `json:"wallet_address,omitempty"`
	AccountRef      string       `json:"account_ref,omitempty"`
	Role            string       `json:"role"`
	AutoEntry       bool         `json:"auto_entry"`
	ShippingName    string       `json:"shipping_name,omitempty"`
	ShippingAddress string       `json:"shipping_address,omitempty"`
	Credentials     []Credential `json:"credentials,omitempty"`
}

type Credential struct {
	Service       string `json:"service"`
	ServiceUserID string `json:"service_user_id"`
	Verified      bool   `json:"verified"`
}

type GetMeRequest struct{}

type GetMeResponse User

type UpdateUserRequest struct {
	Name            string `json:"name"`
	ShippingName    string `json:"shipping_name"`
	ShippingAddress string `json:"shipping_address"`
}

type UpdateUserResponse struct{}
