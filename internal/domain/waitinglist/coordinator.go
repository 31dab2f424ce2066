// Package waitinglist keeps today's checked-in appointments in arrival
// order and lets staff call the next patient in.
//
// Manual reordering is display-only. There is no stored order column, so
// every refresh from the change feed rebuilds the list in check-in order
// and drops any reorder made since the last refresh.
package waitinglist

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinic/internal/domain/appointment"
	"github.com/clinicops/clinic/internal/platform/apperr"
	"github.com/clinicops/clinic/internal/platform/auth"
	"github.com/clinicops/clinic/internal/platform/changefeed"
	"github.com/clinicops/clinic/internal/platform/livequery"
)

// Transitioner moves an appointment through its lifecycle.
type Transitioner interface {
	Transition(ctx context.Context, p auth.Principal, id uuid.UUID, target appointment.Status, opts appointment.TransitionOptions) (*appointment.Appointment, error)
}

// Config wires a Coordinator.
type Config struct {
	Feed         livequery.Subscriber
	Repo         Repository
	Appointments Transitioner
	Evaluator    auth.Evaluator
	Location     *time.Location
	Now          func() time.Time
}

type Coordinator struct {
	q      *livequery.Query[[]Entry]
	repo   Repository
	appts  Transitioner
	ev     auth.Evaluator
	loc    *time.Location
	now    func() time.Time
	logger zerolog.Logger

	promoteMu sync.Mutex
	notifyMu  sync.Mutex

	mu        sync.Mutex
	loaded    bool
	display   []Entry
	listeners []func([]Entry)
}

func New(cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Coordinator{
		repo:   cfg.Repo,
		appts:  cfg.Appointments,
		ev:     cfg.Evaluator,
		loc:    cfg.Location,
		now:    cfg.Now,
		logger: logger.With().Str("component", "waitinglist").Logger(),
	}
	c.q = livequery.New(cfg.Feed, c.fetch, livequery.Options{
		Name: "waiting_list",
		Watch: []livequery.Watch{
			{Table: changefeed.Appointments},
			{Table: changefeed.Patients},
			{Table: changefeed.Doctors},
		},
	}, logger)
	c.q.OnChange(c.replace)
	return c
}

// Today is the clinic day the list currently covers.
func (c *Coordinator) Today() string {
	return c.now().In(c.loc).Format("2006-01-02")
}

func (c *Coordinator) fetch(ctx context.Context) ([]Entry, error) {
	entries, err := c.repo.ListWaiting(ctx, c.Today())
	if err != nil {
		return nil, err
	}
	sortEntries(entries)
	return entries, nil
}

// Mount subscribes to the feed and loads the current list.
func (c *Coordinator) Mount(ctx context.Context) error {
	return c.q.Mount(ctx)
}

func (c *Coordinator) Unmount() {
	c.q.Unmount()
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

// Refresh re-pulls the list, discarding any display override.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.q.Refresh(ctx)
}

// Run mounts the coordinator and re-pulls at every local midnight so the
// list follows the clinic day. It returns when ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Mount(ctx); err != nil {
		if !c.q.Mounted() {
			return err
		}
		// Subscribed but the first pull failed; the next change retries.
		c.logger.Warn().Err(err).Msg("initial load failed")
	}
	defer c.Unmount()
	for {
		t := time.NewTimer(untilMidnight(c.now().In(c.loc)))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error().Err(err).Msg("day rollover refresh failed")
		}
	}
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location()).Sub(now)
}

// OnChange registers fn to receive the display order after every change.
// fn must not call back into the coordinator's mutating methods.
func (c *Coordinator) OnChange(fn func([]Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Entries returns the current display order.
func (c *Coordinator) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.display)
}

// replace installs a fresh authoritative list.
func (c *Coordinator) replace(entries []Entry) {
	c.update(func() bool {
		c.display = clone(entries)
		c.loaded = true
		return true
	})
}

// update applies fn under the lock and, if it reports a change, hands the
// new order to the listeners.
func (c *Coordinator) update(fn func() bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return
	}
	snapshot := clone(c.display)
	listeners := append(([]func([]Entry))(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

// PromoteNext completes the appointment at the head of the displayed list
// and returns it.
func (c *Coordinator) PromoteNext(ctx context.Context, p auth.Principal) (*Entry, error) {
	if err := auth.Authorize(c.ev, p, auth.ManageWaitingList); err != nil {
		return nil, err
	}
	c.promoteMu.Lock()
	defer c.promoteMu.Unlock()

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return nil, ErrNotMounted
	}
	if len(c.display) == 0 {
		c.mu.Unlock()
		return nil, ErrEmpty
	}
	head := c.display[0]
	c.mu.Unlock()

	if _, err := c.appts.Transition(ctx, p, head.AppointmentID, appointment.StatusCompleted, appointment.TransitionOptions{}); err != nil {
		if apperr.Is(err, apperr.InvalidTransition) || apperr.Is(err, apperr.NotFound) {
			// The list is behind the store; re-pull.
			c.q.Invalidate()
		}
		return nil, err
	}

	// The feed will confirm; drop the row now so the next caller sees the
	// new head.
	c.update(func() bool {
		i := indexOf(c.display, head.AppointmentID)
		if i < 0 {
			return false
		}
		c.display = append(c.display[:i:i], c.display[i+1:]...)
		return true
	})
	// Pulls that started before the completion committed would bring the
	// head back.
	c.q.Supersede()
	c.logger.Info().
		Str("appointment_id", head.AppointmentID.String()).
		Str("actor", p.UserID).
		Msg("waiting list promoted")
	return &head, nil
}

// RequestReorder moves an entry one position. The move lasts until the
// next refresh. Moving the first entry up or the last one down is a no-op.
func (c *Coordinator) RequestReorder(p auth.Principal, id uuid.UUID, dir Direction) error {
	if err := auth.Authorize(c.ev, p, auth.ManageWaitingList); err != nil {
		return err
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}
	var err error
	c.update(func() bool {
		i := indexOf(c.display, id)
		if i < 0 {
			err = ErrNotOnList
			return false
		}
		j := i - 1
		if dir == Down {
			j = i + 1
		}
		if j < 0 || j >= len(c.display) {
			return false
		}
		c.display[i], c.display[j] = c.display[j], c.display[i]
		return true
	})
	return err
}

func indexOf(entries []Entry, id uuid.UUID) int {
	for i, e := range entries {
		if e.AppointmentID == id {
			return i
		}
	}
	return -1
}

func clone(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
