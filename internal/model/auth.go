package model

// Access Token and Refresh Token
type AccessToken struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type RefreshToken struct {
	Family  string
	Counter uint64
}

// OAuth2 id-token verification (token obtained by the frontend)
type OAuth2VerifyRequest struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

type OAuth2VerifyResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type OAuth2LinkRequest struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

type OAuth2LinkResponse struct{}

// Wallet login (nonce in session, signature verified server side)
type WalletLoginRequest struct {
	Address string `json:"address"`
}

type WalletLoginResponse struct {
	Address string `json:"address"`
	Nonce   string `json:"nonce"`
}

type WalletVerifyRequest struct {
	Signature string `json:"signature"`
}

type WalletVerifyResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type WalletLinkRequest struct {
	Signature string `json:"signature"`
}

type WalletLinkResponse struct{}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
