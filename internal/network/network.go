// Package network is the entry point the outer layers call: placement,
// point-value bookkeeping, session status and pair classification behind
// one set of operations.
package network

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pairnet/internal/domain"
	"pairnet/internal/ledger"
	"pairnet/internal/pairing"
	"pairnet/internal/session"
	"pairnet/internal/storage"
	"pairnet/internal/tree"
)

// Stores groups the storage backends a Network runs on.
type Stores struct {
	Tree        storage.TreeStore
	Ledger      storage.LedgerStore
	Events      storage.PairEventStore
	Checkpoints storage.CheckpointStore
}

// Options for creating a Network.
type Options struct {
	Schedule   *session.Schedule // defaults to session.DefaultStarts in UTC
	Logger     *zerolog.Logger
	Now        func() time.Time // defaults to time.Now
	MaxCatchUp time.Duration    // defaults to pairing.DefaultMaxCatchUp
}

// Network wires the tree, ledger, session clock and pair classifier together.
type Network struct {
	tree       *tree.Service
	ledger     *ledger.Service
	clock      *session.Clock
	classifier *pairing.Classifier
	now        func() time.Time
}

// SessionStatus is what a status display needs about the session clock.
type SessionStatus struct {
	Now                 time.Time
	Active              bool
	Current             *session.Window // nil between the last and first window
	Next                session.Window
	LastClosed          session.Window
	ProcessedPairsToday int // pairs matched in windows that ended today
}

// New builds a Network on the given stores.
func New(stores Stores, opts Options) *Network {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	schedule := opts.Schedule
	if schedule == nil {
		schedule = session.MustSchedule(session.DefaultStarts, time.UTC)
	}

	treeSvc := tree.New(tree.Options{Store: stores.Tree, Now: now})
	clock := session.NewClock(schedule)

	return &Network{
		tree: treeSvc,
		ledger: ledger.New(ledger.Options{
			Store:     stores.Ledger,
			Directory: treeSvc,
			Now:       now,
		}),
		clock: clock,
		classifier: pairing.New(pairing.Options{
			Tree:        treeSvc,
			Events:      stores.Events,
			Checkpoints: stores.Checkpoints,
			Clock:       clock,
			Logger:      opts.Logger,
			Now:         now,
			MaxCatchUp:  opts.MaxCatchUp,
		}),
		now: now,
	}
}

// Clock returns the session clock.
func (n *Network) Clock() *session.Clock {
	return n.clock
}

// LookupNode returns participant's placement.
func (n *Network) LookupNode(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error) {
	return n.tree.Lookup(ctx, participant)
}

// PlaceRoot creates the first node of the tree.
func (n *Network) PlaceRoot(ctx context.Context, participant domain.ParticipantID) (*domain.TreeNode, error) {
	return n.tree.PlaceRoot(ctx, participant)
}

// PlaceNode places child in parent's empty slot.
func (n *Network) PlaceNode(ctx context.Context, parent, child domain.ParticipantID, pos domain.Position) (*domain.TreeNode, error) {
	return n.tree.Place(ctx, parent, child, pos)
}

// Downline lists participants below root, breadth first, up to maxDepth levels.
func (n *Network) Downline(ctx context.Context, root domain.ParticipantID, maxDepth int) ([]domain.DownlineEntry, error) {
	return n.tree.Downline(ctx, root, maxDepth)
}

// CreditPV appends a positive entry. amount must be positive.
func (n *Network) CreditPV(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, source domain.EntrySource, remark string) (*domain.LedgerEntry, error) {
	return n.ledger.Credit(ctx, participant, amount, source, remark)
}

// DebitPV appends a negative ADMIN_DEBIT entry. amount is the positive magnitude.
func (n *Network) DebitPV(ctx context.Context, participant domain.ParticipantID, amount decimal.Decimal, remark string) (*domain.LedgerEntry, error) {
	return n.ledger.Debit(ctx, participant, amount, remark)
}

// GetTotalAndHistory returns the participant's total and entries, newest first.
func (n *Network) GetTotalAndHistory(ctx context.Context, participant domain.ParticipantID) (*ledger.Statement, error) {
	return n.ledger.Statement(ctx, participant)
}

// GetCurrentSessionStatus reports the active window, the next one, and how
// many pairs were matched in windows that ended today up to now.
func (n *Network) GetCurrentSessionStatus(ctx context.Context, now time.Time) (*SessionStatus, error) {
	status := &SessionStatus{
		Now:        now,
		Next:       n.clock.Next(now),
		LastClosed: n.clock.LastClosed(now),
	}
	if w, err := n.clock.Current(now); err == nil {
		status.Active = true
		status.Current = &w
	}

	dayStart, _ := n.clock.DayBounds(now)
	count, err := n.classifier.CountPairsBetween(ctx, dayStart, now)
	if err != nil {
		return nil, fmt.Errorf("count processed pairs: %w", err)
	}
	status.ProcessedPairsToday = count
	return status, nil
}

// ClassifyDueWindows classifies every window that closed since the
// participant was last processed.
func (n *Network) ClassifyDueWindows(ctx context.Context, participant domain.ParticipantID, now time.Time) (*pairing.DueResult, error) {
	return n.classifier.ClassifyDueWindows(ctx, participant, now)
}

// Classify evaluates the most recent window closed at asOf.
func (n *Network) Classify(ctx context.Context, participant domain.ParticipantID, asOf time.Time) (*pairing.WindowResult, error) {
	return n.classifier.Classify(ctx, participant, asOf)
}

// RecordLegEvent adds a pending event on one of participant's legs.
func (n *Network) RecordLegEvent(ctx context.Context, participant domain.ParticipantID, leg domain.Position, tier domain.PackageTier, sourceRef string, at time.Time) (*domain.PairEvent, error) {
	return n.classifier.RecordLegEvent(ctx, participant, leg, tier, sourceRef, at)
}

// RecordPurchase adds one pending event to every ancestor of buyer.
func (n *Network) RecordPurchase(ctx context.Context, buyer domain.ParticipantID, tier domain.PackageTier, sourceRef string, at time.Time) ([]*domain.PairEvent, error) {
	return n.classifier.RecordPurchase(ctx, buyer, tier, sourceRef, at)
}

// PendingQueue returns participant's pending events in match order.
func (n *Network) PendingQueue(ctx context.Context, participant domain.ParticipantID) ([]*domain.PairEvent, error) {
	return n.classifier.PendingQueue(ctx, participant)
}

// Summary returns participant's per-tier matched and pending counts.
func (n *Network) Summary(ctx context.Context, participant domain.ParticipantID) ([]domain.TierSummary, error) {
	return n.classifier.Summary(ctx, participant)
}

// ParticipantsWithPending lists participants that still have pending events.
func (n *Network) ParticipantsWithPending(ctx context.Context) ([]domain.ParticipantID, error) {
	return n.classifier.ParticipantsWithPending(ctx)
}

// Now returns the network's current time.
func (n *Network) Now() time.Time {
	return n.now()
}
