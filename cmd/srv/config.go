package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gritlabs/backend/config"
	"github.com/gritlabs/backend/pkg/xcontext"
	"github.com/joho/godotenv"
)

func (s *srv) loadConfig() {
	// A missing .env is fine, configuration falls back to the process
	// environment.
	godotenv.Load()

	s.configs = config.Configs{
		Env: getEnv("ENV", "local"),
		Database: config.DatabaseConfigs{
			Host:     getEnv("MYSQL_HOST", "localhost"),
			Port:     getEnv("MYSQL_PORT", "3306"),
			Database: getEnv("MYSQL_DATABASE", "gritportal"),
			User:     getEnv("MYSQL_USER", "gritportal"),
			Password: getEnv("MYSQL_PASSWORD", "gritportal"),
		},
		ApiServer: config.ServerConfigs{
			Host:      getEnv("API_HOST", "localhost"),
			Port:      getEnv("API_PORT", "8080"),
			AllowCORS: getEnvAsList("API_ALLOW_CORS", []string{"http://localhost:3000"}),
		},
		Auth: config.AuthConfigs{
			TokenSecret: getEnv("TOKEN_SECRET", "token_secret"),
			AccessToken: config.TokenConfigs{
				Name:       "access_token",
				Expiration: getEnvAsDuration("ACCESS_TOKEN_DURATION", time.Hour),
			},
			RefreshToken: config.TokenConfigs{
				Name:       "refresh_token",
				Expiration: getEnvAsDuration("REFRESH_TOKEN_DURATION", 24*time.Hour),
			},
			Google: config.OAuth2Config{
				Name:      "google",
				Issuer:    "https://accounts.google.com",
				ClientID:  getEnv("GOOGLE_CLIENT_ID", ""),
				VerifyURL: "https://www.googleapis.com/oauth2/v1/userinfo?access_token=",
				IDField:   "email",
			},
			Discord: config.OAuth2Config{
				Name:      "discord",
				ClientID:  getEnv("DISCORD_CLIENT_ID", ""),
				VerifyURL: "https://discord.com/api/users/@me",
				IDField:   "id",
			},
		},
		Session: config.SessionConfigs{
			Secret: getEnv("SESSION_SECRET", "session_secret"),
			Name:   "portal_session",
		},
		Redis: config.RedisConfigs{
			Addr: getEnv("REDIS_ADDRESS", "localhost:6379"),
		},
		Kafka: config.KafkaConfigs{
			Addr:  getEnv("KAFKA_ADDRESS", "localhost:9092"),
			Topic: getEnv("KAFKA_TOPIC", "portal-events"),
		},
		Ledger: config.LedgerConfigs{
			BaseURL:     getEnv("LEDGER_BASE_URL", "http://localhost:9000"),
			APIKey:      getEnv("LEDGER_API_KEY", ""),
			CallTimeout: getEnvAsDuration("LEDGER_CALL_TIMEOUT", 5*time.Second),
		},
		Raffle: config.RaffleConfigs{
			EntryCost: getEnvAsInt64("RAFFLE_ENTRY_COST", 10),
			PrizeFile: getEnv("RAFFLE_PRIZE_FILE", "./config/prizes.toml"),
		},
		Admin: config.AdminConfigs{
			Principals: getEnvAsList("ADMIN_PRINCIPALS", nil),
		},
		Notify: config.NotifyConfigs{
			DiscordWebhookURL: getEnv("DISCORD_WEBHOOK_URL", ""),
		},
	}

	s.ctx = xcontext.WithConfigs(s.ctx, s.configs)
}

func getEnv(key, def string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return def
}

func getEnvAsInt64(key string, def int64) int64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		panic(err)
	}

	return n
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		panic(err)
	}

	return d
}

func getEnvAsList(key string, def []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}

	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}

	return list
}
