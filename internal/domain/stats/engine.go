// Package stats derives the dashboard figures for the current clinic day
// and keeps them current as appointments, patients and doctors change.
//
// Every change re-pulls today's rows and recomputes from scratch. Figures
// can lag a write by one notification round-trip.
package stats

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicops/clinic/internal/domain/settings"
	"github.com/clinicops/clinic/internal/platform/changefeed"
	"github.com/clinicops/clinic/internal/platform/livequery"
)

// Sink receives every computed snapshot.
type Sink interface {
	Store(ctx context.Context, s Snapshot) error
}

// Config wires an Engine. Sink is optional.
type Config struct {
	Feed     livequery.Subscriber
	Repo     Repository
	Settings settings.Reader
	Sink     Sink
	Location *time.Location
	Now      func() time.Time
}

type Engine struct {
	q        *livequery.Query[Snapshot]
	repo     Repository
	settings settings.Reader
	sink     Sink
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

func NewEngine(cfg Config, logger zerolog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		repo:     cfg.Repo,
		settings: cfg.Settings,
		sink:     cfg.Sink,
		loc:      cfg.Location,
		now:      cfg.Now,
		logger:   logger.With().Str("component", "stats").Logger(),
	}
	e.q = livequery.New(cfg.Feed, e.Pull, livequery.Options{
		Name: "stats",
		Watch: []livequery.Watch{
			{Table: changefeed.Appointments},
			{Table: changefeed.Patients},
			{Table: changefeed.Doctors},
			{Table: changefeed.CenterSettings},
		},
	}, logger)
	if e.sink != nil {
		e.q.OnChange(e.store)
	}
	return e
}

// Today is the clinic day in the configured timezone.
func (e *Engine) Today() string {
	return e.now().In(e.loc).Format("2006-01-02")
}

// Pull reads the inputs concurrently and computes a fresh snapshot without
// touching the engine's state.
func (e *Engine) Pull(ctx context.Context) (Snapshot, error) {
	date := e.Today()
	var (
		rows     []Row
		patients int
		cs       *settings.CenterSettings
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = e.repo.RowsOn(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		patients, err = e.repo.PatientCount(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		cs, err = e.settings.Get(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	s := Compute(rows, patients, cs)
	s.Date = date
	s.ComputedAt = e.now()
	return s, nil
}

func (e *Engine) store(s Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.sink.Store(ctx, s); err != nil {
		e.logger.Warn().Err(err).Str("date", s.Date).Msg("stats sink failed")
	}
}

func (e *Engine) Mount(ctx context.Context) error { return e.q.Mount(ctx) }

func (e *Engine) Unmount() { e.q.Unmount() }

func (e *Engine) Refresh(ctx context.Context) error { return e.q.Refresh(ctx) }

// Current returns the last computed snapshot, if any.
func (e *Engine) Current() (Snapshot, bool) {
	return e.q.Value()
}

// OnChange registers fn to receive every new snapshot.
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.q.OnChange(fn)
}

// Run mounts the engine and recomputes at every local midnight. It
// returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Mount(ctx); err != nil {
		if !e.q.Mounted() {
			return err
		}
		// Subscribed but the first pull failed; the next change retries.
		e.logger.Warn().Err(err).Msg("initial load failed")
	}
	defer e.Unmount()
	for {
		now := e.now().In(e.loc)
		y, m, d := now.Date()
		t := time.NewTimer(time.Date(y, m, d+1, 0, 0, 0, 0, e.loc).Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if err := e.Refresh(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("day rollover refresh failed")
		}
	}
}
