// Command server runs the newsletter backend: the HTTP API plus, unless
// disabled, the background delivery worker in the same process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	httpapi "github.com/tbourn/go-newsletter-backend/internal/http"
	"github.com/tbourn/go-newsletter-backend/internal/observability"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
	"github.com/tbourn/go-newsletter-backend/internal/worker"

	_ "github.com/tbourn/go-newsletter-backend/docs"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// logSender stands in for the email API when EMAIL_BASE_URL is unset so the
// service still boots in development. Every "send" is just a log line.
type logSender struct{ lg zerolog.Logger }

func (s logSender) Send(_ context.Context, to domain.SubscriberEmail, subject, _, _ string) error {
	s.lg.Info().Str("to", to.String()).Str("subject", subject).Msg("email delivery disabled, dropping message")
	return nil
}

// @title        Newsletter Backend API
// @version      1.0
// @description  Idempotent newsletter publishing with reliable background delivery.
// @BasePath     /api/v1
func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenDatabase(cfg.DatabaseURL, cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	var sender services.ConfirmationSender
	if cfg.Email.BaseURL == "" {
		log.Warn().Msg("EMAIL_BASE_URL unset; outgoing email is logged, not sent")
		sender = logSender{lg: log.Logger}
	} else {
		from, err := domain.ParseSubscriberEmail(cfg.Email.Sender)
		if err != nil {
			log.Fatal().Err(err).Msg("EMAIL_SENDER is not a valid address")
		}
		client, err := email.NewClient(cfg.Email.BaseURL, from, cfg.Email.AuthToken, cfg.Email.Timeout)
		if err != nil {
			log.Fatal().Err(err).Msg("email client setup")
		}
		sender = client
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, sender, cfg)

	workerDone := make(chan struct{})
	if cfg.Worker.Enabled {
		w := &worker.Worker{
			DB:           db,
			Sender:       sender,
			Log:          log.Logger,
			IdleSleep:    cfg.Worker.IdleSleep,
			FailureSleep: cfg.Worker.FailureSleep,
			LeaseTTL:     cfg.Worker.LeaseTTL,
		}
		go func() {
			defer close(workerDone)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("delivery worker stopped")
			}
		}()
	} else {
		close(workerDone)
		log.Warn().Msg("delivery worker disabled; queued issues will not be sent by this process")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	select {
	case <-workerDone:
	case <-sctx.Done():
		log.Warn().Msg("worker did not stop before deadline")
	}

	log.Info().Msg("bye")
}
