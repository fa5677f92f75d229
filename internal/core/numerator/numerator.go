// Package numerator formats and parses batch identifiers and unit SKUs.
//
// Batch id:  PREFIX-SEQ        (e.g. GUN-001)
// Unit SKU:  PREFIX-SEQ-INDEX  (e.g. GUN-001-003)
package numerator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PadWidth is the minimum width of the sequence and unit index parts.
const PadWidth = 3

// Separator joins prefix, sequence and unit index.
const Separator = "-"

// FormatBatchID creates the batch identifier for a sequence number.
func FormatBatchID(prefix string, seq int) string {
	return fmt.Sprintf("%s%s%0*d", prefix, Separator, PadWidth, seq)
}

// FormatUnitSKU creates the SKU of the index-th unit (1-based) of a batch.
func FormatUnitSKU(batchID string, index int) string {
	return fmt.Sprintf("%s%s%0*d", batchID, Separator, PadWidth, index)
}

// PrefixOf returns everything before the first separator.
func PrefixOf(batchID string) string {
	prefix, _, _ := strings.Cut(batchID, Separator)
	return prefix
}

// BatchPattern returns the POSIX regular expression matching every batch id
// of a prefix. The prefix is quoted, so it is safe for user-derived input.
func BatchPattern(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix) + Separator + `[0-9]+$`
}

// ParseSequence extracts the numeric suffix of batchID for the given prefix.
// Returns -1 if batchID does not belong to prefix or is not numeric.
func ParseSequence(prefix, batchID string) int {
	rest, ok := strings.CutPrefix(batchID, prefix+Separator)
	if !ok || rest == "" {
		return -1
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return -1
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return -1
	}
	return n
}

// NextSequence returns max(parsed sequences)+1, or 1 when none parse.
// The second result is the number of ids that did not parse.
func NextSequence(prefix string, batchIDs []string) (int, int) {
	maxSeq, bad := 0, 0
	for _, b := range batchIDs {
		n := ParseSequence(prefix, b)
		if n < 0 {
			bad++
			continue
		}
		if n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq + 1, bad
}

// FallbackSequence derives a non-sequential suffix in 1..999 from the clock.
// Used only when the sequence scan cannot be performed.
func FallbackSequence(now time.Time) int {
	return int(now.UnixMilli()%999) + 1
}
