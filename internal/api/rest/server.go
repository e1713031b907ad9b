// Package rest provides functionality for initializing a server.
package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/danilovkiri/dk-go-settler/internal/api/rest/handlers"
	"github.com/danilovkiri/dk-go-settler/internal/api/rest/middleware"
	"github.com/danilovkiri/dk-go-settler/internal/config"
	"github.com/danilovkiri/dk-go-settler/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-settler/internal/provider"
	"github.com/danilovkiri/dk-go-settler/internal/provider/paynova"
	"github.com/danilovkiri/dk-go-settler/internal/provider/swiftpay"
	"github.com/danilovkiri/dk-go-settler/internal/service/broker/v1/broker"
	"github.com/danilovkiri/dk-go-settler/internal/service/dispatcher/v1/dispatcher"
	"github.com/danilovkiri/dk-go-settler/internal/service/notifier/v1/notifier"
	"github.com/danilovkiri/dk-go-settler/internal/service/policy/v1/policy"
	"github.com/danilovkiri/dk-go-settler/internal/service/reconciler/v1/reconciler"
	"github.com/danilovkiri/dk-go-settler/internal/service/secretary/v1/secretary"
	"github.com/danilovkiri/dk-go-settler/internal/service/settlement/v1/settlement"
	"github.com/danilovkiri/dk-go-settler/internal/storage/v1/inpsql"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

// InitServer returns a http.Server object ready to be listening and serving.
func InitServer(ctx context.Context, cfg *config.Config, log *zerolog.Logger, wg *sync.WaitGroup) (server *http.Server, err error) {
	// initialize secretary
	secretaryService, err := secretary.NewSecretaryService(cfg.SecretConfig)
	if err != nil {
		return nil, err
	}

	// initialize token handler
	tokenHandler, err := middleware.NewTokenHandler(secretaryService, cfg.SecretConfig)
	if err != nil {
		return nil, err
	}

	// initialize storage
	storage, err := inpsql.InitStorage(ctx, cfg.StorageConfig, log, wg)
	if err != nil {
		return nil, err
	}

	// initialize policy engine client
	policyClient := policy.InitClient(cfg.ServerConfig, log)

	// initialize notification sink
	notifierService := notifier.InitNotifier(cfg.NotifierConfig, log)

	// initialize provider adapters, primary first
	providers := []provider.PayoutProvider{
		swiftpay.New(cfg.ProviderConfig.Primary(), log),
		paynova.New(cfg.ProviderConfig.Secondary(), log),
	}

	// initialize dispatcher and its queue broker
	dispatcherService, err := dispatcher.InitDispatcher(storage, providers, notifierService, cfg.ProviderConfig.DispatchTimeout, log)
	if err != nil {
		return nil, err
	}
	queue := make(chan modelqueue.DispatchQueueEntry, cfg.QueueConfig.QueueSize)
	brokerService := broker.InitBroker(ctx, queue, log, wg, dispatcherService, cfg.QueueConfig.WorkerNumber)
	brokerService.ListenAndProcess()

	// initialize main service
	mainService, err := settlement.InitService(storage, policyClient, secretaryService, notifierService, queue, log)
	if err != nil {
		return nil, err
	}

	// initialize reconciliation listener
	reconcilerService, err := reconciler.InitReconciler(storage, providers, notifierService, log)
	if err != nil {
		return nil, err
	}

	// initialize handlers
	urlHandler, err := handlers.InitHandlers(mainService, reconcilerService, cfg.ServerConfig, log)
	if err != nil {
		return nil, err
	}

	// initialize server and set routing
	r := chi.NewRouter()
	memberGroup := r.Group(nil)
	memberGroup.Use(tokenHandler.TokenHandle)
	memberGroup.Post("/api/member/withdrawals", urlHandler.HandleNewWithdrawal())
	memberGroup.Get("/api/member/withdrawals", urlHandler.HandleGetWithdrawals())
	memberGroup.Post("/api/member/withdrawals/{withdrawalID}/cancel", urlHandler.HandleCancelWithdrawal())
	memberGroup.Get("/api/member/balance", urlHandler.HandleGetBalance())
	memberGroup.Get("/api/member/ledger", urlHandler.HandleGetLedger())
	adminGroup := r.Group(nil)
	adminGroup.Use(tokenHandler.AdminHandle)
	adminGroup.Get("/api/admin/withdrawals/pending", urlHandler.HandleGetPendingWithdrawals())
	adminGroup.Post("/api/admin/withdrawals/{withdrawalID}", urlHandler.HandleAdminAction())
	callbackGroup := r.Group(nil) // authenticated by signature, not by token
	callbackGroup.Post("/api/callbacks/{provider}", urlHandler.HandleProviderCallback())

	srv := &http.Server{
		Addr:         cfg.ServerConfig.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, nil
}
