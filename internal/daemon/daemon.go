package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eduverse-ninja/dojo/internal/api"
	"github.com/eduverse-ninja/dojo/internal/app/engagement"
	"github.com/eduverse-ninja/dojo/internal/infra/observability"
	"github.com/eduverse-ninja/dojo/internal/infra/sqlite"
	"github.com/eduverse-ninja/dojo/internal/logger"
)

// shutdownGrace bounds how long in-flight requests may finish on stop.
const shutdownGrace = 10 * time.Second

// Daemon owns the store, the engagement service and the HTTP server.
type Daemon struct {
	Config  Config
	DB      *sqlite.DB
	Service *engagement.Service
	Hub     *api.EventHub
	Tracer  *observability.Tracer

	log zerolog.Logger
}

// New opens the store and builds the service. The caller must Close it.
func New(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ec, err := cfg.Engagement()
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	d := &Daemon{
		Config: cfg,
		DB:     db,
		Hub:    api.NewEventHub(),
		Tracer: observability.NewTracer(cfg.Tracing),
		log:    logger.Component("daemon"),
	}

	ttl, _ := cfg.SessionTTL()
	svc, err := engagement.NewService(db, ec,
		engagement.WithNotifier(d.Hub),
		engagement.WithTracer(d.Tracer),
		engagement.WithSessionTTL(ttl),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	d.Service = svc
	db.SetDefaultNextLevelXP(svc.Rewards().Curve().Threshold(2))
	return d, nil
}

// Close releases the store.
func (d *Daemon) Close() error {
	return d.DB.Close()
}

// Handler builds the HTTP handler for the configured API.
func (d *Daemon) Handler() http.Handler {
	timeout, _ := d.Config.RequestTimeout()
	srv := api.NewServer(d.Service, d.DB, d.Hub, api.Options{
		CORSOrigins:    d.Config.API.CORSOrigins,
		RequestTimeout: timeout,
		Metrics:        d.Config.API.Metrics,
		ScoreRateLimit: d.Config.API.ScoreRateLimit,
		ScoreBurst:     d.Config.API.ScoreBurst,
		PageSize:       d.Config.Leaderboard.PageSize,
		MaxLimit:       d.Config.Leaderboard.MaxLimit,
		Tracer:         d.Tracer,
	})
	return srv.Handler()
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests.
func (d *Daemon) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.Config.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.Config.Addr(), err)
	}
	return d.serve(ctx, ln)
}

func (d *Daemon) serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.log.Info().
			Str("addr", ln.Addr().String()).
			Str("db", d.DB.Path()).
			Int("games", len(d.Config.Games)).
			Int("badges", len(d.Config.Badges)).
			Msg("dojo listening")
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	d.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		// SSE streams outlive the grace period; cut them.
		httpSrv.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
