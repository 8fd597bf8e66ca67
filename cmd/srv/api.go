package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gritlabs/backend/internal/middleware"
	"github.com/gritlabs/backend/pkg/router"
	"github.com/gritlabs/backend/pkg/xcontext"

	"github.com/urfave/cli/v2"
)

func (s *srv) startApi(*cli.Context) error {
	s.loadConfig()
	s.loadLogger()
	s.ctx = xcontext.WithDB(s.ctx, s.newDatabase())
	s.migrateDB()
	s.loadRedisClient()
	s.loadRepos()
	s.loadClients()
	s.loadPrizes()
	s.loadDomains()
	s.loadRouter()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", s.configs.ApiServer.Port),
		Handler: s.router.Handler(),
	}

	log.Printf("Starting server on port: %s\n", s.configs.ApiServer.Port)
	if err := s.server.ListenAndServe(); err != nil {
		panic(err)
	}
	log.Printf("server stop")
	return nil
}

func (s *srv) loadRouter() {
	s.router = router.New(xcontext.DB(s.ctx), s.configs, s.logger)
	s.router.AddCloser(middleware.Logger())
	s.router.Before(middleware.WithAuthentication())

	// Auth API
	router.POST(s.router, "/oauth2Verify", s.authDomain.OAuth2Verify)
	router.GET(s.router, "/walletLogin", s.authDomain.WalletLogin)
	router.POST(s.router, "/walletVerify", s.authDomain.WalletVerify)
	router.POST(s.router, "/refresh", s.authDomain.Refresh)

	// Public raffle API
	router.GET(s.router, "/getRaffleStatus", s.raffleDomain.Status)
	router.GET(s.router, "/getWinners", s.raffleDomain.GetWinners)

	// These following APIs need authentication.
	authRouter := s.router.Branch()
	authRouter.Before(middleware.Authenticate())
	{
		// Link account API
		router.POST(authRouter, "/linkOAuth2", s.authDomain.OAuth2Link)
		router.POST(authRouter, "/linkWallet", s.authDomain.WalletLink)
		router.POST(authRouter, "/linkCredential", s.accountDomain.LinkCredential)

		// User API
		router.GET(authRouter, "/getMe", s.accountDomain.GetMe)
		router.POST(authRouter, "/updateUser", s.accountDomain.Update)

		// Raffle API
		router.POST(authRouter, "/enterRaffle", s.raffleDomain.Enter)
		router.POST(authRouter, "/setAutoEntry", s.raffleDomain.SetAutoEntry)
	}

	// Admin API
	adminRouter := authRouter.Branch()
	onlyAdmin := middleware.NewOnlyAdmin(s.configs.Admin.Principals, s.userRepo)
	adminRouter.Before(onlyAdmin.Middleware())
	{
		router.POST(adminRouter, "/triggerDraw", s.raffleDomain.TriggerDraw)
		router.POST(adminRouter, "/markShipped", s.raffleDomain.MarkShipped)
		router.GET(adminRouter, "/findDuplicates", s.accountDomain.FindDuplicates)
		router.POST(adminRouter, "/mergeUsers", s.accountDomain.Merge)
		router.POST(adminRouter, "/mergeAll", s.accountDomain.MergeAll)
	}
}
