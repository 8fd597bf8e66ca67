package model

type EnterRaffleRequest struct {
	// Identifier is a wallet address or a ledger account reference. When
	// empty, the caller's own linked account is used.
	Identifier string `json:"identifier"`
}

type EnterRaffleResponse struct {
	WindowDate string `json:"window_date"`
	NewBalance int64  `json:"new_balance"`
}

type GetRaffleStatusRequest struct {
	Identifier string `json:"identifier"`
}

type GetRaffleStatusResponse struct {
	WindowDate        string `json:"window_date"`
	WindowEntryCount  int64  `json:"window_entry_count"`
	HasEntered        bool   `json:"has_entered"`
	MsUntilNextWindow int64  `json:"ms_until_next_window"`
}

type TriggerDrawRequest struct {
	// WindowDate defaults to the current window when empty.
	WindowDate string `json:"window_date"`
}

type TriggerDrawResponse struct {
	Winner RaffleWinner `json:"winner"`
}

type RaffleWinner struct {
	WindowDate      string `json:"window_date"`
	AccountRef      string `json:"account_ref"`
	PrizeID         string `json:"prize_id"`
	PrizeName       string `json:"prize_name"`
	PrizeSponsor    string `json:"prize_sponsor"`
	ShippingName    string `json:"shipping_name,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty"`
	Shipped         bool   `json:"shipped"`
}

type GetWinnersRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type GetWinnersResponse struct {
	Winners []RaffleWinner `json:"winners"`
}

type SetAutoEntryRequest struct {
	Enabled bool `json:"enabled"`
}

type SetAutoEntryResponse struct{}

const (
	AutoEntrySucceeded = "succeeded"
	AutoEntryFailed    = "failed"
	AutoEntrySkipped   = "skipped"
)

type AutoEntryResult struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
}

type AutoEntryReport struct {
	WindowDate string            `json:"window_date"`
	Processed  int               `json:"processed"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Results    []AutoEntryResult `json:"results"`
}

type MarkShippedRequest struct {
	WindowDate string `json:"window_date"`
}

type MarkShippedResponse struct{}
