// Package scheduler periodically classifies due session windows for every
// participant with pending pair events.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pairnet/internal/domain"
	"pairnet/internal/observability"
	"pairnet/internal/pairing"
)

// ErrSweepInProgress is returned by Sweep while another sweep is running.
var ErrSweepInProgress = errors.New("classification sweep already running")

// Classifier is what the runner needs from the network.
type Classifier interface {
	ParticipantsWithPending(ctx context.Context) ([]domain.ParticipantID, error)
	ClassifyDueWindows(ctx context.Context, participant domain.ParticipantID, now time.Time) (*pairing.DueResult, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Participants int
	Windows      int
	Pairs        int
	Failed       int
	Duration     time.Duration
}

// Runner drives classification on a fixed interval.
type Runner struct {
	classifier Classifier
	interval   time.Duration
	logger     zerolog.Logger
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	lastSweep time.Time
	sweeps    int
}

// Options for creating Runner.
type Options struct {
	Classifier Classifier
	Interval   time.Duration // defaults to one minute
	Logger     *zerolog.Logger
	Now        func() time.Time // defaults to time.Now
}

// New creates a new Runner.
func New(opts Options) *Runner {
	r := &Runner{
		classifier: opts.Classifier,
		interval:   opts.Interval,
		logger:     zerolog.Nop(),
		now:        opts.Now,
	}
	if opts.Logger != nil {
		r.logger = opts.Logger.With().Str("component", "scheduler").Logger()
	}
	if r.interval <= 0 {
		r.interval = time.Minute
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Dur("interval", r.interval).Msg("classification scheduler started")

	r.sweepLogged(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweepLogged(ctx)
		}
	}
}

func (r *Runner) sweepLogged(ctx context.Context) {
	res, err := r.Sweep(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		r.logger.Warn().Msg("sweep already running, skipping")
	case err != nil:
		r.logger.Error().Err(err).Msg("sweep failed")
	case res.Pairs > 0 || res.Failed > 0:
		r.logger.Info().
			Int("participants", res.Participants).
			Int("windows", res.Windows).
			Int("pairs", res.Pairs).
			Int("failed", res.Failed).
			Dur("duration", res.Duration).
			Msg("sweep completed")
	}
}

// Sweep runs ClassifyDueWindows for every participant with pending events.
// A failure for one participant is logged and counted; the sweep continues.
func (r *Runner) Sweep(ctx context.Context) (*SweepResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrSweepInProgress
	}
	r.running = true
	r.mu.Unlock()

	started := time.Now()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.lastSweep = r.now()
		r.sweeps++
		r.mu.Unlock()
	}()

	participants, err := r.classifier.ParticipantsWithPending(ctx)
	if err != nil {
		observability.RecordSweep("error", time.Since(started).Seconds(), 0)
		return nil, err
	}

	now := r.now()
	res := &SweepResult{Participants: len(participants)}
	for _, p := range participants {
		if err := ctx.Err(); err != nil {
			observability.RecordSweep("error", time.Since(started).Seconds(), 0)
			return res, err
		}

		due, err := r.classifier.ClassifyDueWindows(ctx, p, now)
		if err != nil {
			res.Failed++
			r.logger.Error().Err(err).Str("participant", p.String()).Msg("classify due windows")
			continue
		}
		res.Windows += len(due.Windows)
		res.Pairs += due.PairsMatched
	}

	res.Duration = time.Since(started)
	status := "ok"
	if res.Failed > 0 {
		status = "partial"
	}
	observability.RecordSweep(status, res.Duration.Seconds(), r.now().Unix())
	return res, nil
}

// Status reports whether a sweep is running, when the last one finished,
// and how many have run.
func (r *Runner) Status() (running bool, lastSweep time.Time, sweeps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.lastSweep, r.sweeps
}
