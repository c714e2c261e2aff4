package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/pii"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/service"
	"github.com/BrandonDHaskell/summer-academy/internal/academy/store/memory"
	"github.com/BrandonDHaskell/summer-academy/internal/config"
	"github.com/BrandonDHaskell/summer-academy/internal/httpapi"
	"github.com/BrandonDHaskell/summer-academy/internal/logging"
	"github.com/BrandonDHaskell/summer-academy/internal/meta"
	"github.com/BrandonDHaskell/summer-academy/internal/paystack"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "academy-server",
		Short:         "Summer Academy conversion and payment server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			loadEnvFiles(v.GetString(config.KeyEnvFile))
			v.AutomaticEnv()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.Load(v))
		},
	}

	config.Defaults(v)
	cmd.Flags().String("addr", ":8080", "HTTP listen address")
	cmd.Flags().String("env-file", "", "additional .env file to load")
	if err := v.BindPFlag(config.KeyHTTPAddr, cmd.Flags().Lookup("addr")); err != nil {
		panic(fmt.Sprintf("bind addr flag: %v", err))
	}
	if err := v.BindPFlag(config.KeyEnvFile, cmd.Flags().Lookup("env-file")); err != nil {
		panic(fmt.Sprintf("bind env-file flag: %v", err))
	}
	return cmd
}

// loadEnvFiles loads .env, .env.local and extra, in that order. Variables
// already set in the environment win.
func loadEnvFiles(extra string) {
	for _, f := range []string{".env", ".env.local", extra} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	logger := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
		Fields: map[string]string{"service": "academy-server", "env": cfg.Env},
	})
	logging.SetDefault(logger)

	vendorHTTP := &http.Client{Timeout: cfg.VendorTimeout}

	stores, err := openStores(ctx, cfg, vendorHTTP, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	// Services
	hasher := pii.Hasher{CountryCode: cfg.PhoneCountryCode}
	relay := service.NewRelay(meta.New(meta.Config{
		PixelID:     cfg.MetaPixelID,
		AccessToken: cfg.MetaAccessToken,
		APIVersion:  cfg.MetaAPIVersion,
		HTTPClient:  vendorHTTP,
	}), service.RelayConfig{TestEventCode: cfg.MetaTestEventCode})
	audit := service.NewAuditLogger(stores.audit, service.AuditConfig{IncludeRawPII: cfg.AuditIncludeRawPII})
	tracker := service.NewTracker(relay, audit)
	leads := service.NewLeadService(stores.leads)

	var gateway service.Gateway
	if cfg.PaystackSecretKey != "" {
		gateway = paystack.New(cfg.PaystackSecretKey, paystack.WithHTTPClient(vendorHTTP))
	} else {
		logger.Warn().Msg("PAYSTACK_SECRET_KEY not set; payment verification will fail")
	}

	correlations := memory.NewCorrelationStore(cfg.CorrelationTTL)
	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Correlations: correlations,
		Leads:        leads,
		Verifier:     service.NewPaymentVerifier(gateway, memory.NewProcessedPayments(), cfg.PaystackWebhookSecret),
		Tracker:      tracker,
		Hasher:       hasher,
	})

	// Background pruning
	pruners := []*service.Pruner{
		service.NewPruner("correlations", correlations, service.PrunerConfig{
			Retention: cfg.CorrelationTTL,
			Interval:  cfg.CorrelationTTL,
		}, logger),
	}
	if stores.auditPrunable != nil {
		pruners = append(pruners, service.NewPruner("audit", stores.auditPrunable, service.PrunerConfig{
			Retention: time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour,
		}, logger))
	}
	for _, p := range pruners {
		p.Start(ctx)
	}
	defer func() {
		for _, p := range pruners {
			p.Stop()
		}
	}()

	// HTTP
	var site http.Handler
	if cfg.SiteDir != "" {
		site = http.FileServer(http.Dir(cfg.SiteDir))
	}
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.HTTPAddr,
		Relay:          relay,
		Audit:          audit,
		Leads:          leads,
		Checkout:       checkout,
		Contact:        service.NewContactService(tracker, hasher),
		Site:           site,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		RewriteHost:    cfg.RewriteHost,
		RewriteTarget:  cfg.RewriteTarget,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("lead_backend", cfg.LeadBackend).
			Msg("listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
