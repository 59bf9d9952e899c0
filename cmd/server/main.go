package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v84"

	"github.com/semanticallynull/bikeshare-fleet/api"
	"github.com/semanticallynull/bikeshare-fleet/bike"
	"github.com/semanticallynull/bikeshare-fleet/customer"
	"github.com/semanticallynull/bikeshare-fleet/internal/auth0"
	"github.com/semanticallynull/bikeshare-fleet/internal/config"
	"github.com/semanticallynull/bikeshare-fleet/internal/middleware"
	"github.com/semanticallynull/bikeshare-fleet/internal/notify"
	"github.com/semanticallynull/bikeshare-fleet/internal/o11y"
	"github.com/semanticallynull/bikeshare-fleet/internal/payment"
	"github.com/semanticallynull/bikeshare-fleet/rental"
	"github.com/semanticallynull/bikeshare-fleet/ride"
	"github.com/semanticallynull/bikeshare-fleet/station"
)

var cli = struct {
	// DatabaseURL is optional; without it the fleet is seeded from the
	// config file and nothing is persisted.
	DatabaseURL string `name:"database-url" env:"DATABASE_URL"`
	Port        int    `name:"port" env:"PORT" default:"8080"`
	Config      string `name:"config" env:"CONFIG_FILE" type:"path" help:"YAML or JSON tariff and fleet file."`

	Auth0Domain string `name:"auth0-domain" env:"AUTH0_DOMAIN"`
	Audience    string `name:"audience" env:"AUDIENCE"`

	MetricsUsername string `name:"metrics-username" env:"METRICS_USERNAME"`
	MetricsPassword string `name:"metrics-password" env:"METRICS_PASSWORD"`

	StripeKey string `name:"stripe-key" env:"STRIPE_SECRET_KEY"`
	NATSURL   string `name:"nats-url" env:"NATS_URL"`

	OTLPEndpoint string `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error"`
}{}

func main() {
	if err := run(); err != nil {
		log.Fatalf("unexpected error: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	kong.Parse(&cli)

	obs, cleanup, err := o11y.Setup(ctx, o11y.Config{
		ServiceName:  "bikeshare-fleet",
		LogLevel:     cli.LogLevel,
		OTLPEndpoint: cli.OTLPEndpoint,
	})
	defer cleanup()
	if err != nil {
		return err
	}
	logger := obs.Logger

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	tariff, err := cfg.ToTariff()
	if err != nil {
		return err
	}

	var (
		fleet   *rental.Fleet
		journal rental.Journal
	)
	if cli.DatabaseURL != "" {
		db, err := sqlx.ConnectContext(ctx, "pgx", cli.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		br := bike.NewRepository(db)
		sr := station.NewRepository(db)
		cr := customer.NewRepository(db)
		fleet, err = rental.LoadFleet(ctx, sr, br, cr, cfg.Policy(), logger)
		if err != nil {
			return err
		}
		journal = rental.NewSQLJournal(ride.NewRepository(db), br, cr)
	} else {
		logger.Warn("no database configured, serving the seeded fleet in memory")
		fleet, err = rental.SeedFleet(cfg)
		if err != nil {
			return err
		}
	}

	var authorizer payment.Authorizer = payment.Approve
	if cli.StripeKey != "" {
		stripe.Key = cli.StripeKey
		authorizer = payment.NewBreaker(
			payment.NewStripeAuthorizer(payment.StripeAPI{}, fleet.StripeCustomer, cfg.Currency),
			payment.BreakerSettings{
				Timeout:          cfg.Payment.BreakerTimeout,
				FailureThreshold: cfg.Payment.BreakerFailures,
			},
			logger,
		)
	}

	bus := notify.NewBus(logger, notify.LogSink{Logger: logger})
	defer bus.Close()
	natsURL := cli.NATSURL
	if natsURL == "" {
		natsURL = cfg.Notify.NATSURL
	}
	if natsURL != "" {
		nc, err := notify.DialNATS(natsURL, "bikeshare-fleet")
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		defer nc.Close()
		bus.Attach(notify.NewNATSSink(nc, cfg.Notify.SubjectPrefix))
		logger.Info("publishing ride events", slog.String("servers", nc.ConnectedUrlRedacted()))
	}

	metrics, err := rental.NewMetrics(obs.Registry)
	if err != nil {
		return err
	}

	opts := []rental.Option{
		rental.WithTariff(tariff),
		rental.WithLogger(logger),
		rental.WithAuthorizer(authorizer),
		rental.WithNotifier(bus),
		rental.WithMetrics(metrics),
		rental.WithTracerProvider(obs.Tracer),
	}
	if journal != nil {
		opts = append(opts, rental.WithJournal(journal))
	}
	svc := rental.New(fleet, opts...)

	auth, err := middleware.Auth(cli.Auth0Domain, cli.Audience)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	a := api.New(svc, api.Config{
		Logger:          logger,
		Registry:        obs.Registry,
		TracerProvider:  obs.Tracer,
		Auth:            auth,
		Profiles:        auth0.NewHTTPClient(cli.Auth0Domain),
		MetricsUsername: cli.MetricsUsername,
		MetricsPassword: cli.MetricsPassword,
	})

	serv := http.Server{
		Addr:              fmt.Sprintf(":%d", cli.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", slog.Int("port", cli.Port), slog.Int("stations", len(fleet.Stations())), slog.Int("bikes", len(fleet.Bikes())))
		if err := serv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = serv.Shutdown(ctx)
	if err != nil {
		return err
	}
	return nil
}
