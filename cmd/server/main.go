// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Command server runs the loginless WebAuthn authentication service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/loginless/loginless/internal/config"
	"github.com/loginless/loginless/internal/storage/sqlite"
	"github.com/loginless/loginless/pkg/user"
	"github.com/loginless/loginless/pkg/webauthn"
	webauthnhttp "github.com/loginless/loginless/pkg/webauthn/http"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "loginless-server",
	Short: "Passwordless WebAuthn authentication service",
	Long: `loginless-server is a relying-party authentication service.
Users register and log in with FIDO2/WebAuthn credentials; there are
no passwords anywhere in the system.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "",
		"config file (yaml); LOGINLESS_ env vars override")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := cfg.Logger()

	var (
		users user.Store
		creds webauthn.CredentialStore
	)
	switch cfg.Storage.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		users = db.Users()
		creds = db.Credentials()
		logger.Info("using sqlite storage", "path", cfg.Storage.Path)
	default:
		users = user.NewMemoryStore()
		creds = webauthn.NewMemoryCredentialStore()
		logger.Warn("using in-memory storage, data is lost on restart")
	}

	tokens, err := webauthn.NewRememberedIdentity(
		[]byte(cfg.Session.Secret),
		webauthn.WithTTL(cfg.Session.RememberFor),
	)
	if err != nil {
		return err
	}

	challenges := webauthn.NewMemoryChallengeStoreWithTTL(cfg.Session.ChallengeTTL)
	challenges.StartCleanup(ctx, cfg.Session.ChallengeTTL)

	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:          &cfg.WebAuthn,
		UserStore:       users,
		ChallengeStore:  challenges,
		CredentialStore: creds,
		TokenIssuer:     tokens,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	handler := webauthnhttp.NewHandler(svc, users, user.NewResolver(users, tokens)).
		WithLogger(logger).
		WithCookieTTL(cfg.Session.RememberFor)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Route("/auth", func(r chi.Router) {
		webauthnhttp.MountChi(r, handler)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"address", cfg.Server.Address,
			"rp_id", cfg.WebAuthn.RPID)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
