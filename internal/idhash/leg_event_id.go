package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"pairnet/internal/domain"
)

// ComputeLegEventID computes a deterministic event_id for a pair event.
// Formula: SHA256(participant|leg|tier|source_ref)
// Returns hex-encoded hash (64 characters).
func ComputeLegEventID(
	participant domain.ParticipantID,
	leg domain.Position,
	tier domain.PackageTier,
	sourceRef string,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		participant,
		leg,
		tier,
		sourceRef,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
