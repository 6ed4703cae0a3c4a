package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/sugunalabs/callserver/internal/adapters/http"
	"github.com/sugunalabs/callserver/internal/billing"
	"github.com/sugunalabs/callserver/internal/config"
	"github.com/sugunalabs/callserver/internal/directory"
	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/fieldcipher"
	"github.com/sugunalabs/callserver/internal/match"
	"github.com/sugunalabs/callserver/internal/media"
	"github.com/sugunalabs/callserver/internal/signal"
	"github.com/sugunalabs/callserver/internal/tenant"
	"github.com/sugunalabs/callserver/internal/wake"
)

func buildTenants(cfg *config.Config) (*tenant.Registry, error) {
	tenants := tenant.NewRegistry()
	for _, tc := range cfg.Tenants {
		cipher, err := fieldcipher.NewFromHex(tc.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("tenant %s: encryption key: %w", tc.AppID, err)
		}

		var store directory.Store
		if cfg.RedisAddr != "" {
			store = directory.NewRedisStore(directory.NewRedisClient(cfg.RedisAddr, tc.RedisDB), cipher)
		} else {
			// Dev mode: everything in process, nothing survives a restart.
			store = directory.NewMemoryStore()
			log.Warn().Str("module", "main").Str("app_id", tc.AppID).Msg("no redis configured, using in-memory directory")
		}

		var roomAdmin media.RoomAdmin = media.Nop{}
		if tc.MediaURL != "" {
			roomAdmin = media.NewClient(tc.MediaURL, tc.MediaKey, tc.MediaSecret, cfg.WebhookTimeout)
		}

		tenants.Add(&tenant.Context{
			AppID:      domain.AppID(tc.AppID),
			Name:       tc.Name,
			SigningKey: []byte(tc.SigningSecret),
			Cipher:     cipher,
			Store:      store,
			WebhookURL: tc.WebhookURL,
			WakeURL:    tc.WakeURL,
			ServerURL:  tc.ServerURL,
			Media:      roomAdmin,
		})
		log.Info().Str("module", "main").Str("app_id", tc.AppID).Str("name", tc.Name).Msg("tenant registered")
	}
	return tenants, nil
}

func main() {
	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	tenants, err := buildTenants(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build tenants")
	}
	if tenants.Len() == 0 {
		log.Warn().Str("module", "main").Msg("no tenants configured, every request will be refused")
	}

	coord := signal.NewCoordinator(signal.Deps{
		Tenants:      tenants,
		Match:        match.NewEngine(),
		Wake:         wake.NewGateway(cfg.WebhookTimeout),
		Limiter:      signal.NewAttemptLimiter(cfg.CallAttemptLimit, cfg.CallAttemptWindow),
		RoomTokenTTL: cfg.RoomTokenTTL,
		RingTimeout:  cfg.RingTimeout,
	})
	// The monitor's end-of-call callback needs the coordinator, so the
	// monitor is attached after construction.
	coord.Billing = billing.NewMonitor(billing.Options{
		Interval:       cfg.BillingInterval,
		WebhookTimeout: cfg.WebhookTimeout,
		FailOpen:       cfg.BillingFailOpen,
		OnEnded:        coord.OnBillingEnded,
	})

	r := router.SetupRouter(ctx, cfg, tenants, signal.NewController(coord))
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("call server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
