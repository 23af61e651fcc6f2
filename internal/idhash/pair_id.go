package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"pairnet/internal/domain"
)

// ComputePairID computes a deterministic pair_id.
// Formula: base58(SHA256(participant|tier|left_event_id|right_event_id))
func ComputePairID(
	participant domain.ParticipantID,
	tier domain.PackageTier,
	leftEventID string,
	rightEventID string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		participant,
		tier,
		leftEventID,
		rightEventID,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
