package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Configs struct {
	Env string

	Database  DatabaseConfigs
	ApiServer ServerConfigs
	Auth      AuthConfigs
	Session   SessionConfigs
	Redis     RedisConfigs
	Kafka     KafkaConfigs
	Ledger    LedgerConfigs
	Raffle    RaffleConfigs
	Admin     AdminConfigs
	Notify    NotifyConfigs
}

type DatabaseConfigs struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

func (d *DatabaseConfigs) ConnectionString() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		d.User,
		d.Password,
		d.Host,
		d.Port,
		d.Database,
	)
}

type ServerConfigs struct {
	Host      string
	Port      string
	AllowCORS []string
}

type AuthConfigs struct {
	TokenSecret  string
	AccessToken  TokenConfigs
	RefreshToken TokenConfigs

	Google  OAuth2Config
	Discord OAuth2Config
}

type OAuth2Config struct {
	Name      string
	Issuer    string
	ClientID  string
	VerifyURL string
	IDField   string
}

type TokenConfigs struct {
	Name       string
	Expiration time.Duration
}

type SessionConfigs struct {
	Secret string
	Name   string
}

type RedisConfigs struct {
	Addr string
}

type KafkaConfigs struct {
	Addr  string
	Topic string
}

// LedgerConfigs points at the external account-balance service. Every call to
// it is bounded by CallTimeout; the entry flow treats a timeout as a failed
// charge and rolls back.
type LedgerConfigs struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
}

type RaffleConfigs struct {
	EntryCost   int64
	PrizeFile   string
	WebhookOnly bool
}

// AdminConfigs carries the allow-list of principals (emails or wallet
// addresses) permitted to call admin endpoints. It is resolved once at
// startup and injected; domain logic never hardcodes identities.
type AdminConfigs struct {
	Principals []string
}

type NotifyConfigs struct {
	DiscordWebhookURL string
}

// Prize is one slot of the raffle prize catalog.
type Prize struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Sponsor string `toml:"sponsor"`
}

type prizeFile struct {
	Prizes []Prize `toml:"prizes"`
}

// LoadPrizes reads the prize catalog from a TOML file. The draw engine picks
// uniformly from this list, independently of the winner pick.
func LoadPrizes(path string) ([]Prize, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f prizeFile
	if err := toml.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	if len(f.Prizes) == 0 {
		return nil, fmt.Errorf("prize catalog %s is empty", path)
	}

	return f.Prizes, nil
}
