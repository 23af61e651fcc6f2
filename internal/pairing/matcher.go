package pairing

import (
	"sort"

	"pairnet/internal/domain"
	"pairnet/internal/idhash"
	"pairnet/internal/session"
)

// Match pairs pending events of one participant for a closed window.
// Within each tier the i-th oldest left event pairs with the i-th oldest
// right event; surplus events on the longer leg stay pending. Events must
// all be pending; they need not be sorted. Pairs come back ordered by tier,
// then age.
func Match(participant domain.ParticipantID, events []*domain.PairEvent, w session.Window) []domain.PairMatch {
	type legs struct {
		left, right []*domain.PairEvent
	}
	byTier := make(map[domain.PackageTier]*legs)
	var tiers []domain.PackageTier

	sorted := make([]*domain.PairEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for _, e := range sorted {
		if e.Matched {
			continue
		}
		l, ok := byTier[e.Tier]
		if !ok {
			l = &legs{}
			byTier[e.Tier] = l
			tiers = append(tiers, e.Tier)
		}
		switch e.Leg {
		case domain.PositionLeft:
			l.left = append(l.left, e)
		case domain.PositionRight:
			l.right = append(l.right, e)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })

	var pairs []domain.PairMatch
	for _, tier := range tiers {
		l := byTier[tier]
		n := min(len(l.left), len(l.right))
		for i := 0; i < n; i++ {
			pairs = append(pairs, domain.PairMatch{
				PairID:       idhash.ComputePairID(participant, tier, l.left[i].EventID, l.right[i].EventID),
				Participant:  participant,
				Tier:         tier,
				LeftEventID:  l.left[i].EventID,
				RightEventID: l.right[i].EventID,
				WindowIndex:  w.Index,
				WindowEnd:    w.End.UnixMilli(),
			})
		}
	}
	return pairs
}

// Summarize counts matched and pending events per tier, ordered by tier.
func Summarize(events []*domain.PairEvent) []domain.TierSummary {
	byTier := make(map[domain.PackageTier]*domain.TierSummary)
	for _, e := range events {
		s, ok := byTier[e.Tier]
		if !ok {
			s = &domain.TierSummary{Tier: e.Tier}
			byTier[e.Tier] = s
		}
		if e.Matched {
			s.Matched++
			continue
		}
		s.Pending++
		if e.Leg == domain.PositionLeft {
			s.PendingLeft++
		} else {
			s.PendingRight++
		}
	}

	result := make([]domain.TierSummary, 0, len(byTier))
	for _, s := range byTier {
		s.Pairs = s.Matched / 2
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Tier < result[j].Tier })
	return result
}
