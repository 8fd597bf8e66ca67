package main

import (
	"github.com/gritlabs/backend/internal/domain/cron"
	"github.com/gritlabs/backend/pkg/xcontext"

	"github.com/urfave/cli/v2"
)

func (s *srv) startCron(*cli.Context) error {
	s.loadConfig()
	s.loadLogger()
	s.ctx = xcontext.WithDB(s.ctx, s.newDatabase())
	s.migrateDB()
	s.loadRedisClient()
	s.loadPublisher()
	s.loadRepos()
	s.loadClients()
	s.loadPrizes()
	s.loadDomains()

	cronJobManager := cron.NewCronJobManager()
	cronJobManager.Register(cron.NewDrawCronJob(s.raffleDomain))
	cronJobManager.Register(cron.NewAutoEntryCronJob(s.raffleDomain))
	cronJobManager.Register(cron.NewOutboxSenderCronJob(s.outboxRepo, s.publisher))
	cronJobManager.Start(s.ctx)

	return nil
}
