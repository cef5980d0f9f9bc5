package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/config"
	"github.com/example/ride-client/internal/ingest"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/payments"
	"github.com/example/ride-client/internal/realtime"
	"github.com/example/ride-client/internal/ridestate"
	"github.com/example/ride-client/internal/routing"
	"github.com/example/ride-client/internal/session"
	"github.com/example/ride-client/internal/storage"
)

var errSignedOut = errors.New("not signed in; run `ridectl login` first")

// app wires the collaborators shared by every command.
type app struct {
	cfg      config.ClientConfig
	logger   *slog.Logger
	stdout   io.Writer
	api      *api.Client
	router   *session.Router
	notices  *notify.Recorder
	notifier notify.Notifier
	holder   *session.Holder

	cookieFile string
	redis      *storage.RedisSlot
	closers    []func() error
}

func newApp(cfg config.ClientConfig, logger *slog.Logger, stdout io.Writer) (*app, error) {
	client, err := api.New(cfg.APIBaseURL, cfg.RequestTimeout, logger)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:        cfg,
		logger:     logger,
		stdout:     stdout,
		api:        client,
		router:     session.NewRouter(session.ViewLogin, logger),
		notices:    notify.NewRecorder(0),
		cookieFile: filepath.Join(filepath.Dir(cfg.StateFile), "cookies.json"),
	}
	a.notifier = notify.Multi{notify.Log{Logger: logger}, a.notices}
	a.holder = session.NewHolder(client, a.router, a.notifier, logger)
	if err := loadCookies(client.Jar(), cfg.APIBaseURL, a.cookieFile); err != nil {
		logger.Warn("load session cookies failed", "error", err)
	}
	if cfg.RedisAddr != "" {
		a.redis = storage.NewRedisSlot(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisSlotKey)
		a.closers = append(a.closers, a.redis.Close)
	}
	return a, nil
}

func (a *app) close() {
	a.router.Stop()
	if err := saveCookies(a.api.Jar(), a.cfg.APIBaseURL, a.cookieFile); err != nil {
		a.logger.Warn("save session cookies failed", "error", err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Debug("close failed", "error", err)
		}
	}
}

// signedIn loads the actor from the saved session cookie.
func (a *app) signedIn(ctx context.Context) (*models.Actor, error) {
	if actor := a.holder.Actor(); actor != nil {
		return actor, nil
	}
	actor := a.holder.FetchProfile(ctx)
	if actor == nil {
		return nil, errSignedOut
	}
	a.router.Navigate(session.Target{View: session.HomeFor(actor.Role)})
	return actor, nil
}

// slot is Redis keyed by actor when configured, else the state file.
func (a *app) slot(actor *models.Actor) storage.Slot {
	if a.redis != nil {
		return a.redis.Scoped(actor.ID)
	}
	return storage.NewFileSlot(a.cfg.StateFile)
}

// journal publishes transitions to Kafka and writes them to Postgres, each
// when configured.
func (a *app) journal(ctx context.Context) storage.Journal {
	var mj storage.MultiJournal
	if len(a.cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		a.closers = append(a.closers, kp.Close)
		mj = append(mj, kp)
	}
	if a.cfg.PGDSN != "" {
		if pj, err := a.postgres(ctx); err != nil {
			a.logger.Warn("postgres journal unavailable", "error", err)
		} else {
			mj = append(mj, pj)
		}
	}
	if len(mj) == 0 {
		return storage.NewMemoryJournal()
	}
	return mj
}

// postgres opens the transition journal database and ensures its schema.
func (a *app) postgres(ctx context.Context) (*storage.PostgresJournal, error) {
	if a.cfg.PGDSN == "" {
		return nil, errors.New("PG_DSN is not set")
	}
	pj, err := storage.NewPostgresJournal(a.cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if err := pj.EnsureSchema(ctx); err != nil {
		_ = pj.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	a.closers = append(a.closers, pj.Close)
	return pj, nil
}

// serveMetrics exposes /metrics on MetricsAddr, when set, until ctx ends.
func (a *app) serveMetrics(ctx context.Context) {
	if a.cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	hs := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = hs.Close()
	}()
	go func() {
		a.logger.Info("metrics listening", "addr", a.cfg.MetricsAddr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", "error", err)
		}
	}()
}

func (a *app) deps(ctx context.Context) (ridestate.Deps, error) {
	actor, err := a.signedIn(ctx)
	if err != nil {
		return ridestate.Deps{}, err
	}
	return ridestate.Deps{
		API:       a.api,
		Session:   a.holder,
		Slot:      a.slot(actor),
		Journal:   a.journal(ctx),
		Navigator: a.router,
		Notifier:  a.notifier,
		Logger:    a.logger,
	}, nil
}

func (a *app) tracker(ctx context.Context) (*ridestate.Tracker, ridestate.Deps, error) {
	deps, err := a.deps(ctx)
	if err != nil {
		return nil, deps, err
	}
	t := ridestate.NewTracker(deps, ridestate.Options{PollInterval: a.cfg.PollInterval, NavigateDelay: a.cfg.NavigateDelay})
	return t, deps, nil
}

// channel dials the real-time channel, starts its receive loop and
// registers the actor.
func (a *app) channel(ctx context.Context, actor *models.Actor) (*realtime.Channel, error) {
	ch, err := realtime.Dial(ctx, realtime.DialConfig{
		SocketURL: a.cfg.SocketURL,
		EventsURL: a.cfg.EventsURL,
		HTTP:      a.api.HTTP,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, ch.Close)
	go func() {
		if err := ch.Run(ctx); err != nil {
			a.logger.Warn("real-time channel stopped", "error", err)
		}
	}()
	if err := ch.Register(ctx, *actor); err != nil {
		return nil, fmt.Errorf("register socket: %w", err)
	}
	return ch, nil
}

// checkout picks Razorpay when its key is set, then Stripe.
func (a *app) checkout(l payments.Launcher) ridestate.Checkout {
	switch {
	case a.cfg.RazorpayKey != "":
		return &payments.RazorpayCheckout{Key: a.cfg.RazorpayKey, Name: a.cfg.CheckoutName, Launcher: l}
	case a.cfg.StripeKey != "":
		return &payments.StripeCheckout{Client: payments.NewStripeClient(a.cfg.StripeKey), Launcher: l}
	}
	return nil
}

func (a *app) routing() (routing.Provider, error) {
	return routing.New(routing.Config{
		Provider:    a.cfg.RoutingProvider,
		ORSBaseURL:  a.cfg.ORSBaseURL,
		ORSKey:      a.cfg.ORSKey,
		OSRMBaseURL: a.cfg.OSRMBaseURL,
		GoogleKey:   a.cfg.GoogleMapsKey,
		CacheTTL:    a.cfg.RouteCacheTTL,
		Timeout:     a.cfg.RequestTimeout,
	})
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.stdout, format, args...)
}
