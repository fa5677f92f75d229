package units

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"unitrack/internal/core/apperror"
	appctx "unitrack/internal/core/context"
	"unitrack/internal/core/numerator"
	"unitrack/pkg/logger"
)

// PrefixAllocation is the outcome of prefix allocation.
type PrefixAllocation struct {
	Prefix string
	// Reused is set when the product already had a prefix in the facility.
	Reused bool
	// Degraded is set when every candidate was taken and the base prefix
	// was returned even though another product uses it.
	Degraded bool
}

// PrefixAllocator derives a stable short prefix per product name per facility.
type PrefixAllocator struct {
	repo PrefixRepository
}

// NewPrefixAllocator creates an allocator over repo.
func NewPrefixAllocator(repo PrefixRepository) *PrefixAllocator {
	return &PrefixAllocator{repo: repo}
}

// GetOrCreatePrefix returns the prefix for productName in the facility.
func (a *PrefixAllocator) GetOrCreatePrefix(ctx context.Context, productName, facilityID string) (string, error) {
	alloc, err := a.Allocate(ctx, productName, facilityID)
	if err != nil {
		return "", err
	}
	return alloc.Prefix, nil
}

// Allocate reuses the prefix of an existing batch of the same product
// (case-insensitive name match) or generates a new one not used by any
// batch in the facility.
func (a *PrefixAllocator) Allocate(ctx context.Context, productName, facilityID string) (PrefixAllocation, error) {
	name := strings.TrimSpace(productName)
	if name == "" {
		return PrefixAllocation{}, apperror.NewValidation("product name is required")
	}
	if facilityID == "" {
		return PrefixAllocation{}, apperror.NewValidation("facility is required")
	}
	ctx = appctx.WithFacility(ctx, facilityID)

	normalized := NormalizeName(name)
	if normalized == "" {
		return PrefixAllocation{}, apperror.NewValidation("product name has no letters or digits").
			WithDetail("product_name", name)
	}

	batchID, err := a.repo.FindBatchIDByProductName(ctx, facilityID, name)
	if err != nil {
		return PrefixAllocation{}, err
	}
	if batchID != "" {
		if p := numerator.PrefixOf(batchID); p != "" {
			return PrefixAllocation{Prefix: p, Reused: true}, nil
		}
	}

	candidates := PrefixCandidates(normalized)
	for _, c := range candidates {
		taken, err := a.repo.PrefixInUse(ctx, facilityID, c)
		if err != nil {
			return PrefixAllocation{}, err
		}
		if !taken {
			return PrefixAllocation{Prefix: c}, nil
		}
	}

	base := candidates[0]
	logger.Warn(ctx, "prefix candidates exhausted, reusing colliding prefix",
		"product_name", name,
		"prefix", base,
		"tried", len(candidates),
	)
	return PrefixAllocation{Prefix: base, Degraded: true}, nil
}

// NormalizeName uppercases the name and strips everything but ASCII letters
// and digits.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PrefixCandidates lists prefixes to try in order for a normalized name.
// The first element is the base prefix.
func PrefixCandidates(normalized string) []string {
	if normalized == "" {
		return nil
	}

	base := normalized
	if len(base) > 3 {
		base = normalized[:3]
	}
	out := []string{base}
	seen := map[string]struct{}{base: {}}
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	if n := len(normalized); n > 3 {
		last := normalized[n-1:]
		add(normalized[:2] + last)
		add(normalized[:1] + normalized[n/2:n/2+1] + last)
	}

	stem := base
	if len(stem) > 2 {
		stem = stem[:2]
	}
	for d := 1; d <= 9; d++ {
		add(stem + strconv.Itoa(d))
	}
	return out
}
