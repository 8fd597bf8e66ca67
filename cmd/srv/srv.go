package main

import (
	"context"
	"net/http"

	"github.com/gritlabs/backend/config"
	"github.com/gritlabs/backend/internal/client"
	"github.com/gritlabs/backend/internal/common"
	"github.com/gritlabs/backend/internal/domain"
	"github.com/gritlabs/backend/internal/repository"
	"github.com/gritlabs/backend/migration"
	"github.com/gritlabs/backend/pkg/authenticator"
	"github.com/gritlabs/backend/pkg/kafka"
	"github.com/gritlabs/backend/pkg/logger"
	"github.com/gritlabs/backend/pkg/pubsub"
	"github.com/gritlabs/backend/pkg/router"
	"github.com/gritlabs/backend/pkg/xcontext"
	"github.com/gritlabs/backend/pkg/xredis"

	"github.com/urfave/cli/v2"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type srv struct {
	app *cli.App
	ctx context.Context

	configs config.Configs
	logger  logger.Logger
	prizes  []config.Prize

	userRepo         repository.UserRepository
	credentialRepo   repository.CredentialRepository
	raffleRepo       repository.RaffleRepository
	refreshTokenRepo repository.RefreshTokenRepository
	outboxRepo       repository.OutboxRepository

	ledger          client.Ledger
	notifier        client.Notifier
	accountResolver *common.AccountResolver
	redisClient     xredis.Client
	publisher       pubsub.Publisher
	oauth2Services  []authenticator.IOAuth2Service

	authDomain    domain.AuthDomain
	accountDomain domain.AccountDomain
	raffleDomain  domain.RaffleDomain

	router *router.Router
	server *http.Server
}

func (s *srv) loadLogger() {
	level := logger.INFO
	if s.configs.Env == "local" {
		level = logger.DEBUG
	}

	s.logger = logger.NewLogger(level)
	s.ctx = xcontext.WithLogger(s.ctx, s.logger)
}

func (s *srv) newDatabase() *gorm.DB {
	db, err := gorm.Open(mysql.Open(s.configs.Database.ConnectionString()), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	return db
}

func (s *srv) migrateDB() {
	if err := migration.Migrate(s.ctx); err != nil {
		panic(err)
	}
}

func (s *srv) loadRedisClient() {
	var err error
	s.redisClient, err = xredis.NewClient(s.ctx)
	if err != nil {
		panic(err)
	}
}

func (s *srv) loadPublisher() {
	var err error
	s.publisher, err = kafka.NewPublisher("grit-portal", []string{s.configs.Kafka.Addr})
	if err != nil {
		panic(err)
	}
}

func (s *srv) loadRepos() {
	s.userRepo = repository.NewUserRepository()
	s.credentialRepo = repository.NewCredentialRepository()
	s.raffleRepo = repository.NewRaffleRepository()
	s.refreshTokenRepo = repository.NewRefreshTokenRepository()
	s.outboxRepo = repository.NewOutboxRepository()
}

func (s *srv) loadClients() {
	s.ledger = client.NewLedger(s.configs.Ledger)
	s.notifier = client.NewDiscordNotifier(s.configs.Notify)
	s.accountResolver = common.NewAccountResolver(s.ledger)

	googleService, err := authenticator.NewOAuth2Service(s.ctx, s.configs.Auth.Google)
	if err != nil {
		panic(err)
	}

	discordService, err := authenticator.NewOAuth2Service(s.ctx, s.configs.Auth.Discord)
	if err != nil {
		panic(err)
	}

	s.oauth2Services = []authenticator.IOAuth2Service{googleService, discordService}
}

func (s *srv) loadPrizes() {
	var err error
	s.prizes, err = config.LoadPrizes(s.configs.Raffle.PrizeFile)
	if err != nil {
		panic(err)
	}
}

func (s *srv) loadDomains() {
	s.authDomain = domain.NewAuthDomain(
		s.userRepo, s.credentialRepo, s.refreshTokenRepo, s.outboxRepo,
		s.ledger, s.oauth2Services)
	s.accountDomain = domain.NewAccountDomain(
		s.userRepo, s.credentialRepo, s.raffleRepo, s.refreshTokenRepo,
		s.outboxRepo, s.ledger)
	s.raffleDomain = domain.NewRaffleDomain(
		s.raffleRepo, s.userRepo, s.outboxRepo, s.ledger,
		s.accountResolver, s.notifier, s.redisClient, s.prizes, nil)
}
