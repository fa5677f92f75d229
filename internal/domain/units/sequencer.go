package units

import (
	"context"
	"time"

	appctx "unitrack/internal/core/context"
	"unitrack/internal/core/numerator"
	"unitrack/pkg/logger"
)

// BatchAllocation is a newly assigned batch identifier.
type BatchAllocation struct {
	Prefix   string `json:"prefix"`
	BatchID  string `json:"batchId"`
	Sequence int    `json:"sequence"`
	// Degraded is set when the prefix collided with another product or the
	// sequence came from the clock instead of a scan.
	Degraded bool `json:"degraded,omitempty"`
}

// BatchSequencer assigns {prefix}-{seq} batch identifiers.
type BatchSequencer struct {
	prefixes *PrefixAllocator
	repo     BatchRepository
	clock    func() time.Time
}

// NewBatchSequencer creates a sequencer. A nil clock uses time.Now.
func NewBatchSequencer(prefixes *PrefixAllocator, repo BatchRepository, clock func() time.Time) *BatchSequencer {
	if clock == nil {
		clock = time.Now
	}
	return &BatchSequencer{prefixes: prefixes, repo: repo, clock: clock}
}

// GetNextBatchNumber returns the next batch id for the product: one past the
// highest numeric suffix among all batches with the same prefix, in any
// facility, so SKUs stay unique system-wide.
// If the scan fails the suffix is derived from the clock and a warning is
// logged; the result is then not guaranteed unique.
func (s *BatchSequencer) GetNextBatchNumber(ctx context.Context, productName, facilityID string) (BatchAllocation, error) {
	p, err := s.prefixes.Allocate(ctx, productName, facilityID)
	if err != nil {
		return BatchAllocation{}, err
	}

	ctx = appctx.WithFacility(ctx, facilityID)
	out := BatchAllocation{Prefix: p.Prefix, Degraded: p.Degraded}

	ids, err := s.repo.ListBatchIDs(ctx, p.Prefix)
	if err == nil {
		next, bad := numerator.NextSequence(p.Prefix, ids)
		if bad == 0 {
			out.Sequence = next
			out.BatchID = numerator.FormatBatchID(p.Prefix, next)
			return out, nil
		}
		logger.Warn(ctx, "unparseable batch ids in sequence scan",
			"prefix", p.Prefix, "bad", bad)
	} else {
		logger.Warn(ctx, "batch sequence scan failed",
			"prefix", p.Prefix, "error", err)
	}

	out.Sequence = numerator.FallbackSequence(s.clock())
	out.BatchID = numerator.FormatBatchID(p.Prefix, out.Sequence)
	out.Degraded = true
	logger.Warn(ctx, "using clock-derived batch sequence",
		"batch_id", out.BatchID)
	return out, nil
}
