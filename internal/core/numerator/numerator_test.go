package numerator

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "WID-001", FormatBatchID("WID", 1))
	assert.Equal(t, "WID-042", FormatBatchID("WID", 42))
	assert.Equal(t, "WID-1000", FormatBatchID("WID", 1000))
	assert.Equal(t, "WID-001-003", FormatUnitSKU("WID-001", 3))
}

func TestPrefixOf(t *testing.T) {
	assert.Equal(t, "GUN", PrefixOf("GUN-001"))
	assert.Equal(t, "GUN", PrefixOf("GUN-001-002"))
	assert.Equal(t, "GUN", PrefixOf("GUN"))
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		batchID string
		want    int
	}{
		{"WID-001", 1},
		{"WID-010", 10},
		{"WID-1234", 1234},
		{"WIDE-001", -1},
		{"WID-", -1},
		{"WID-0a1", -1},
		{"WI-001", -1},
	}
	for _, tt := range tests {
		t.Run(tt.batchID, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSequence("WID", tt.batchID))
		})
	}
}

func TestNextSequence(t *testing.T) {
	next, bad := NextSequence("WID", nil)
	assert.Equal(t, 1, next)
	assert.Equal(t, 0, bad)

	next, bad = NextSequence("WID", []string{"WID-001", "WID-007", "WID-003", "WID-x"})
	assert.Equal(t, 8, next)
	assert.Equal(t, 1, bad)
}

func TestBatchPattern(t *testing.T) {
	re := regexp.MustCompile(BatchPattern("WI1"))
	assert.True(t, re.MatchString("WI1-001"))
	assert.False(t, re.MatchString("WI1-001-002"))
	assert.False(t, re.MatchString("XWI1-001"))
}

func TestFallbackSequence(t *testing.T) {
	for _, ms := range []int64{0, 998, 999, 1_700_000_000_123} {
		n := FallbackSequence(time.UnixMilli(ms))
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 999)
	}
	assert.Equal(t, 1, FallbackSequence(time.UnixMilli(999)))
	assert.Len(t, FormatBatchID("WID", FallbackSequence(time.Now())), 7)
}
