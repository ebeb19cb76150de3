// Package app wires the live ride view: it owns every component, defines
// startup and teardown, and fans applied changes out to viewers, the journal
// and the change feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/ridewatch/internal/backend"
	"github.com/example/ridewatch/internal/config"
	"github.com/example/ridewatch/internal/dispatch"
	"github.com/example/ridewatch/internal/driverdesk"
	httpapi "github.com/example/ridewatch/internal/http"
	"github.com/example/ridewatch/internal/ingest"
	"github.com/example/ridewatch/internal/models"
	"github.com/example/ridewatch/internal/observability"
	"github.com/example/ridewatch/internal/prefs"
	"github.com/example/ridewatch/internal/push"
	"github.com/example/ridewatch/internal/reconciler"
	"github.com/example/ridewatch/internal/snapshot"
	"github.com/example/ridewatch/internal/storage"
)

const feedBuffer = 256

// Exporter publishes ride change events.
type Exporter interface {
	Publish(ctx context.Context, events ...ingest.Event) error
	Close() error
}

// Parts are the external collaborators. Journal, Exporter and DriverChannel
// are optional.
type Parts struct {
	Source        snapshot.Source
	Commands      driverdesk.Commands
	RideChannel   push.Channel
	DriverChannel push.Channel
	Prefs         prefs.Store
	Journal       storage.Journal
	Exporter      Exporter
	// Closers run on Close after the parts above.
	Closers []func() error
}

type App struct {
	cfg    config.Config
	logger *slog.Logger

	Rides    *reconciler.Reconciler
	Loader   *snapshot.Loader
	Listener *push.Listener
	Desk     *driverdesk.Desk
	Prefs    prefs.Store
	Viewers  *dispatch.WSRegistry
	Handler  *httpapi.Server

	journal  storage.Journal
	exporter Exporter
	closers  []func() error
	now      func() time.Time

	feed   chan reconciler.Change
	resync chan struct{}
	// per sink, the payload last accepted per ride. Only touched by the feed
	// goroutine.
	journaled delivered
	exported  delivered

	mu   sync.Mutex
	tab  prefs.Tab
	live bool
}

func New(cfg config.Config, p Parts, logger *slog.Logger) *App {
	a := &App{
		cfg:      cfg,
		logger:   logger,
		Rides:    reconciler.New(),
		Prefs:    p.Prefs,
		Viewers:  dispatch.NewWSRegistry(logger.With("component", "viewers")),
		journal:  p.Journal,
		exporter: p.Exporter,
		closers:  p.Closers,
		now:      time.Now,
		feed:     make(chan reconciler.Change, feedBuffer),
		resync:   make(chan struct{}, 1),
		tab:      prefs.DefaultTab,

		journaled: make(delivered),
		exported:  make(delivered),
	}
	if a.Prefs == nil {
		a.Prefs = prefs.NewMemoryStore()
	}
	a.Loader = snapshot.New(p.Source, a.Rides, cfg.SnapshotLimit, cfg.PollInterval, logger.With("component", "snapshot"))
	a.Listener = push.NewListener(p.RideChannel, a.Rides, logger.With("component", "push"))
	if p.DriverChannel != nil && p.Commands != nil {
		a.Desk = driverdesk.New(p.DriverChannel, p.Commands, cfg.DriverID, logger.With("component", "driverdesk"))
	}
	a.Viewers.Hello = a.helloFrame
	a.Rides.Observe(a.onChange)
	a.Handler = httpapi.NewServer(httpapi.Deps{
		Rides:     a.Rides,
		Snapshots: a.Loader,
		Live:      a.Listener,
		Desk:      a.Desk,
		Prefs:     a.Prefs,
		Viewers:   a.Viewers,
		OnTab:     a.setTab,
		Logger:    logger.With("component", "http"),
	})
	return a
}

// onChange runs under the reconciler's apply lock: it must not block.
func (a *App) onChange(ch reconciler.Change) {
	observability.ChangesTotal.WithLabelValues(string(ch.Kind)).Inc()
	stats := a.Rides.Stats()
	observability.CollectionSize.Set(float64(stats.Total))
	observability.ActiveRides.Set(float64(stats.Active))

	select {
	case a.feed <- ch:
	default:
		observability.FeedDropped.Inc()
		select {
		case a.resync <- struct{}{}:
		default:
		}
	}
}

// Tab is the current tab selection: restored at startup, then whatever the
// API last stored.
func (a *App) Tab() prefs.Tab {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tab
}

// setTab records a tab selection stored through the API and tells viewers.
func (a *App) setTab(tab prefs.Tab) {
	a.mu.Lock()
	a.tab = tab
	a.mu.Unlock()
	a.Viewers.Broadcast(dispatch.Frame{Type: "tab", Data: tab})
}

func (a *App) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Run starts every component and blocks until ctx is cancelled or the view
// server fails. Components are stopped before it returns.
func (a *App) Run(ctx context.Context) error {
	if tab, err := a.Prefs.ActiveTab(ctx); err != nil {
		a.logger.Warn("restore tab preference", "error", err)
	} else {
		a.mu.Lock()
		a.tab = tab
		a.mu.Unlock()
		a.logger.Info("tab restored", "tab", tab)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Loader.Run(gctx) })
	g.Go(func() error { return a.runFeed(gctx) })

	a.Listener.Activate(gctx, a.onLiveReady, a.onLiveFailure)
	if a.Desk != nil {
		a.Desk.Activate(gctx, nil, func(err error) {
			a.logger.Warn("driver channel unavailable", "driver_id", a.Desk.DriverID(), "error", err)
		})
	}

	var srv *http.Server
	if a.cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr:         a.cfg.HTTPAddr,
			Handler:      a.Handler,
			ReadTimeout:  a.cfg.ReadTimeout,
			WriteTimeout: a.cfg.WriteTimeout,
			IdleTimeout:  a.cfg.IdleTimeout,
		}
		g.Go(func() error {
			a.logger.Info("view server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("view server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Listener.Deactivate()
		if a.Desk != nil {
			a.Desk.Deactivate()
		}
		a.Viewers.CloseAll()
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("view server shutdown", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}

func (a *App) onLiveReady() {
	a.setLive(true, nil)
	a.logger.Info("live updates established")
}

func (a *App) onLiveFailure(err error) {
	a.setLive(false, err)
}

func (a *App) setLive(live bool, err error) {
	a.mu.Lock()
	a.live = live
	a.mu.Unlock()
	data := map[string]any{"connected": live}
	if err != nil {
		data["error"] = err.Error()
	}
	a.Viewers.Broadcast(dispatch.Frame{Type: "live", Data: data})
}

type helloData struct {
	Rides  []models.RideRecord `json:"rides"`
	Stats  reconciler.Stats    `json:"stats"`
	Status snapshot.Status     `json:"status"`
	Live   bool                `json:"live"`
	Tab    prefs.Tab           `json:"tab"`
}

// helloFrame is the baseline a new viewer starts from. Its Seq is the last
// change the rides reflect.
func (a *App) helloFrame() dispatch.Frame {
	rides, seq := a.Rides.View()
	return a.snapshotFrame(rides, seq)
}

func (a *App) snapshotFrame(rides []models.RideRecord, seq uint64) dispatch.Frame {
	return dispatch.Frame{Type: "snapshot", Seq: seq, Data: helloData{
		Rides:  rides,
		Stats:  reconciler.StatsOf(rides),
		Status: a.Loader.Status(),
		Live:   a.Listener.Connected(),
		Tab:    a.Tab(),
	}}
}

// Close releases the journal, the exporter and any extra closers. Call it
// after Run returned.
func (a *App) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.exporter != nil {
		errs = append(errs, a.exporter.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// FromConfig builds the production parts: the backend client, two STOMP
// channels, and the optional Redis, Postgres and Kafka sinks. Optional
// sinks that cannot be reached are logged and skipped.
func FromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	client, err := backend.New(cfg.BackendURL, cfg.RequestTimeout, logger.With("component", "backend"))
	if err != nil {
		return nil, err
	}
	stompOpts := func(name string) push.StompOptions {
		return push.StompOptions{
			Name:              name,
			URL:               cfg.WSURL,
			ReconnectDelay:    cfg.ReconnectDelay,
			HeartbeatInterval: cfg.HeartbeatInterval,
			DialTimeout:       cfg.DialTimeout,
		}
	}
	p := Parts{
		Source:        client,
		Commands:      client,
		RideChannel:   push.NewStompChannel(stompOpts("rides"), logger),
		DriverChannel: push.NewStompChannel(stompOpts("driver"), logger),
		Prefs:         prefs.NewMemoryStore(),
	}

	if cfg.RedisAddr != "" {
		rc, err := prefs.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis unavailable, tab preference kept in memory", "error", err)
		} else {
			p.Prefs = prefs.NewRedisStore(rc, "ridewatch:")
			p.Closers = append(p.Closers, rc.Close)
		}
	}

	if cfg.PGDSN != "" {
		j, err := storage.NewPostgresJournal(ctx, cfg.PGDSN)
		if err != nil {
			logger.Warn("postgres unavailable, ride journal disabled", "error", err)
		} else {
			if cfg.RunMigrations {
				applied, err := j.Migrate(ctx)
				if err != nil {
					_ = j.Close()
					return nil, err
				}
				logger.Info("migrations applied", "files", applied)
			}
			p.Journal = j
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		p.Exporter = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("change feed enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	return New(cfg, p, logger), nil
}
