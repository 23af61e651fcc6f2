// Package pairing classifies leg events as matched ("green") or pending
// ("red") once session windows close.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pairnet/internal/domain"
	"pairnet/internal/idhash"
	"pairnet/internal/keylock"
	"pairnet/internal/observability"
	"pairnet/internal/session"
	"pairnet/internal/storage"
)

// DefaultMaxCatchUp bounds how far back ClassifyDueWindows replays windows.
// Events older than the bound are still matched, in the first replayed window.
const DefaultMaxCatchUp = 7 * 24 * time.Hour

// Tree is the part of the placement tree the classifier reads.
type Tree interface {
	Lookup(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error)
	Ancestors(ctx context.Context, participant domain.ParticipantID) ([]domain.Ancestor, error)
}

// WindowResult is the outcome of classifying one closed window.
type WindowResult struct {
	Participant domain.ParticipantID
	Window      session.Window
	Pairs       []domain.PairMatch
}

// DueResult is the outcome of ClassifyDueWindows.
type DueResult struct {
	Participant  domain.ParticipantID
	Windows      []WindowResult
	PairsMatched int
	Checkpoint   *domain.Checkpoint
}

// Classifier owns PairEvent classification. No other component marks events.
type Classifier struct {
	tree        Tree
	events      storage.PairEventStore
	checkpoints storage.CheckpointStore
	clock       *session.Clock
	locks       *keylock.Map[domain.ParticipantID]
	logger      zerolog.Logger
	now         func() time.Time
	maxCatchUp  time.Duration
}

// Options for creating Classifier.
type Options struct {
	Tree        Tree
	Events      storage.PairEventStore
	Checkpoints storage.CheckpointStore
	Clock       *session.Clock
	Logger      *zerolog.Logger  // defaults to a no-op logger
	Now         func() time.Time // defaults to time.Now
	MaxCatchUp  time.Duration    // defaults to DefaultMaxCatchUp
}

// New creates a new Classifier.
func New(opts Options) *Classifier {
	c := &Classifier{
		tree:        opts.Tree,
		events:      opts.Events,
		checkpoints: opts.Checkpoints,
		clock:       opts.Clock,
		locks:       keylock.New[domain.ParticipantID](),
		logger:      zerolog.Nop(),
		now:         opts.Now,
		maxCatchUp:  opts.MaxCatchUp,
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With().Str("component", "pairing").Logger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.maxCatchUp <= 0 {
		c.maxCatchUp = DefaultMaxCatchUp
	}
	return c
}

// RecordLegEvent adds a pending event on one of participant's legs. The event
// ID is derived from (participant, leg, tier, sourceRef), so submitting the
// same reference twice fails with ErrDuplicateEvent instead of double counting.
// An empty sourceRef gets a random one.
func (c *Classifier) RecordLegEvent(ctx context.Context, participant domain.ParticipantID, leg domain.Position, tier domain.PackageTier, sourceRef string, at time.Time) (*domain.PairEvent, error) {
	if !leg.IsValid() {
		return nil, ErrInvalidLeg
	}
	if tier == "" {
		return nil, ErrInvalidTier
	}

	node, err := c.lookup(ctx, participant)
	if err != nil {
		return nil, err
	}
	if node.Child(leg) == "" {
		return nil, fmt.Errorf("record %s event for %s: %w", leg, participant, ErrEmptyLeg)
	}

	if sourceRef == "" {
		sourceRef = uuid.NewString()
	}
	return c.insert(ctx, participant, leg, tier, sourceRef, at)
}

// RecordPurchase records one pending event for every ancestor of buyer, on the
// ancestor's leg that contains buyer. Ancestors that already hold an event for
// sourceRef are skipped, so a retried purchase is harmless.
func (c *Classifier) RecordPurchase(ctx context.Context, buyer domain.ParticipantID, tier domain.PackageTier, sourceRef string, at time.Time) ([]*domain.PairEvent, error) {
	if tier == "" {
		return nil, ErrInvalidTier
	}
	if sourceRef == "" {
		return nil, fmt.Errorf("record purchase for %s: %w", buyer, storage.ErrInvalidInput)
	}

	ancestors, err := c.tree.Ancestors(ctx, buyer)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, fmt.Errorf("record purchase for %s: %w", buyer, ErrParticipantNotFound)
		}
		return nil, fmt.Errorf("record purchase for %s: %w", buyer, err)
	}

	var recorded []*domain.PairEvent
	for _, a := range ancestors {
		e, err := c.insert(ctx, a.Participant, a.Leg, tier, sourceRef, at)
		if errors.Is(err, ErrDuplicateEvent) {
			continue
		}
		if err != nil {
			return recorded, err
		}
		recorded = append(recorded, e)
	}

	c.logger.Debug().
		Str("buyer", buyer.String()).
		Str("tier", tier.String()).
		Int("events", len(recorded)).
		Msg("purchase propagated")
	return recorded, nil
}

func (c *Classifier) insert(ctx context.Context, participant domain.ParticipantID, leg domain.Position, tier domain.PackageTier, sourceRef string, at time.Time) (*domain.PairEvent, error) {
	e := &domain.PairEvent{
		EventID:     idhash.ComputeLegEventID(participant, leg, tier, sourceRef),
		Participant: participant,
		Leg:         leg,
		Tier:        tier,
		SourceRef:   sourceRef,
		CreatedAt:   at.UnixMilli(),
	}
	if err := c.events.Insert(ctx, e); err != nil {
		return nil, fmt.Errorf("record %s event for %s: %w", leg, participant, err)
	}
	observability.RecordPairEvent(leg.String())
	return e, nil
}

// Classify evaluates the most recent window that closed at or before asOf.
func (c *Classifier) Classify(ctx context.Context, participant domain.ParticipantID, asOf time.Time) (*WindowResult, error) {
	return c.ClassifyWindow(ctx, participant, c.clock.LastClosed(asOf), asOf)
}

// ClassifyWindow pairs every pending event created before w.End. It fails with
// ErrWindowNotClosed while asOf < w.End. Repeating it with no new events is a no-op.
func (c *Classifier) ClassifyWindow(ctx context.Context, participant domain.ParticipantID, w session.Window, asOf time.Time) (*WindowResult, error) {
	if asOf.Before(w.End) {
		return nil, fmt.Errorf("classify %s window %d: %w", participant, w.Index, ErrWindowNotClosed)
	}
	if _, err := c.lookup(ctx, participant); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(participant)
	defer unlock()

	return c.classifyLocked(ctx, participant, w)
}

func (c *Classifier) classifyLocked(ctx context.Context, participant domain.ParticipantID, w session.Window) (*WindowResult, error) {
	started := time.Now()

	pending, err := c.events.GetPending(ctx, participant, w.End.UnixMilli())
	if err != nil {
		observability.RecordClassification("error", time.Since(started).Seconds())
		return nil, fmt.Errorf("load pending events for %s: %w", participant, err)
	}

	pairs := Match(participant, pending, w)
	if len(pairs) > 0 {
		if err := c.events.MarkMatched(ctx, pairs); err != nil {
			observability.RecordClassification("error", time.Since(started).Seconds())
			return nil, fmt.Errorf("mark %d pairs for %s: %w", len(pairs), participant, err)
		}
		perTier := make(map[domain.PackageTier]int)
		for _, p := range pairs {
			perTier[p.Tier]++
		}
		for tier, n := range perTier {
			observability.RecordPairsMatched(tier.String(), n)
		}
	}
	observability.RecordClassification("ok", time.Since(started).Seconds())

	c.logger.Debug().
		Str("participant", participant.String()).
		Int("window", w.Index).
		Time("window_end", w.End).
		Int("pending", len(pending)).
		Int("pairs", len(pairs)).
		Msg("window classified")

	return &WindowResult{Participant: participant, Window: w, Pairs: pairs}, nil
}

// ClassifyDueWindows classifies, oldest first, every window that closed since
// the participant's checkpoint, then advances the checkpoint. Windows already
// processed are skipped, so late or repeated calls are safe.
func (c *Classifier) ClassifyDueWindows(ctx context.Context, participant domain.ParticipantID, now time.Time) (*DueResult, error) {
	if _, err := c.lookup(ctx, participant); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(participant)
	defer unlock()

	result := &DueResult{Participant: participant}

	var after time.Time
	cp, err := c.checkpoints.GetLastProcessed(ctx, participant)
	switch {
	case err == nil:
		after = time.UnixMilli(cp.WindowEnd)
		result.Checkpoint = cp
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load checkpoint for %s: %w", participant, err)
	}

	oldest, err := c.events.OldestPending(ctx, participant)
	if errors.Is(err, storage.ErrNotFound) {
		return result, c.advance(ctx, participant, c.clock.LastClosed(now), result)
	}
	if err != nil {
		return nil, fmt.Errorf("load oldest pending event for %s: %w", participant, err)
	}

	if created := time.UnixMilli(oldest.CreatedAt); created.After(after) {
		after = created
	}
	if floor := now.Add(-c.maxCatchUp); floor.After(after) {
		after = floor
	}

	for _, w := range c.clock.ClosedBetween(after, now) {
		wr, err := c.classifyLocked(ctx, participant, w)
		if err != nil {
			return result, err
		}
		result.Windows = append(result.Windows, *wr)
		result.PairsMatched += len(wr.Pairs)

		if err := c.advance(ctx, participant, w, result); err != nil {
			return result, err
		}
	}

	if result.PairsMatched > 0 {
		c.logger.Info().
			Str("participant", participant.String()).
			Int("windows", len(result.Windows)).
			Int("pairs", result.PairsMatched).
			Msg("due windows classified")
	}
	return result, nil
}

func (c *Classifier) advance(ctx context.Context, participant domain.ParticipantID, w session.Window, result *DueResult) error {
	if result.Checkpoint != nil && result.Checkpoint.WindowEnd >= w.End.UnixMilli() {
		return nil
	}
	cp := &domain.Checkpoint{
		Participant: participant,
		WindowIndex: w.Index,
		WindowEnd:   w.End.UnixMilli(),
		UpdatedAt:   c.now().UnixMilli(),
	}
	if err := c.checkpoints.SetLastProcessed(ctx, cp); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", participant, err)
	}
	result.Checkpoint = cp
	return nil
}

// PendingQueue returns pending events grouped by tier, oldest first within
// each tier: the order in which they will be matched.
func (c *Classifier) PendingQueue(ctx context.Context, participant domain.ParticipantID) ([]*domain.PairEvent, error) {
	events, err := c.eventsOf(ctx, participant)
	if err != nil {
		return nil, err
	}

	pending := make([]*domain.PairEvent, 0, len(events))
	for _, e := range events {
		if !e.Matched {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Tier != pending[j].Tier {
			return pending[i].Tier < pending[j].Tier
		}
		return pending[i].Before(pending[j])
	})
	return pending, nil
}

// Summary returns per-tier matched and pending counts.
func (c *Classifier) Summary(ctx context.Context, participant domain.ParticipantID) ([]domain.TierSummary, error) {
	events, err := c.eventsOf(ctx, participant)
	if err != nil {
		return nil, err
	}
	return Summarize(events), nil
}

// ParticipantsWithPending lists participants that still have pending events.
func (c *Classifier) ParticipantsWithPending(ctx context.Context) ([]domain.ParticipantID, error) {
	return c.events.ParticipantsWithPending(ctx)
}

// CountPairsBetween counts pairs whose window ended in [start, end]. A window
// closing exactly at midnight counts towards the day that midnight starts.
func (c *Classifier) CountPairsBetween(ctx context.Context, start, end time.Time) (int, error) {
	return c.events.CountPairsBetween(ctx, start.UnixMilli(), end.UnixMilli()+1)
}

func (c *Classifier) eventsOf(ctx context.Context, participant domain.ParticipantID) ([]*domain.PairEvent, error) {
	if _, err := c.lookup(ctx, participant); err != nil {
		return nil, err
	}
	events, err := c.events.GetByParticipant(ctx, participant)
	if err != nil {
		return nil, fmt.Errorf("load events for %s: %w", participant, err)
	}
	return events, nil
}

func (c *Classifier) lookup(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error) {
	node, err := c.tree.Lookup(ctx, participant)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, fmt.Errorf("participant %s: %w", participant, ErrParticipantNotFound)
		}
		return nil, fmt.Errorf("participant %s: %w", participant, err)
	}
	return node, nil
}
