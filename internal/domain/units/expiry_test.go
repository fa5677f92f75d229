package units

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name   string
		expiry Expiry
		want   ExpiryStatus
	}{
		{"untracked", Expiry{}, ExpiryUntracked},
		{"tracked without date", Expiry{IsTracked: true}, ExpiryUntracked},
		{"one second ago", Expiry{IsTracked: true, Date: at(-time.Second), AlertWindowDays: 30}, ExpiryExpired},
		{"two days ago", Expiry{IsTracked: true, Date: at(-48 * time.Hour), AlertWindowDays: 30}, ExpiryExpired},
		{"exactly now", Expiry{IsTracked: true, Date: at(0), AlertWindowDays: 30}, ExpiryExpiring},
		{"window edge", Expiry{IsTracked: true, Date: at(30 * day), AlertWindowDays: 30}, ExpiryExpiring},
		{"one second past window", Expiry{IsTracked: true, Date: at(30*day + time.Second), AlertWindowDays: 30}, ExpiryFresh},
		{"31 days", Expiry{IsTracked: true, Date: at(31 * day), AlertWindowDays: 30}, ExpiryFresh},
		{"custom window", Expiry{IsTracked: true, Date: at(8 * day), AlertWindowDays: 7}, ExpiryFresh},
		{"zero window", Expiry{IsTracked: true, Date: at(10 * day)}, ExpiryFresh},
		{"zero window at expiry", Expiry{IsTracked: true, Date: at(0)}, ExpiryExpiring},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.expiry, now))
		})
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysUntil(now, now))
	assert.Equal(t, 1, DaysUntil(now.Add(time.Minute), now))
	assert.Equal(t, 1, DaysUntil(now.Add(day), now))
	assert.Equal(t, 2, DaysUntil(now.Add(day+time.Second), now))
	assert.Equal(t, -1, DaysUntil(now.Add(-day), now))
	assert.Equal(t, 0, DaysUntil(now.Add(-time.Hour), now))
}

func TestNewExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	e := NewExpiry(nil, nil, now)
	assert.False(t, e.IsTracked)
	assert.Equal(t, DefaultAlertWindowDays, e.AlertWindowDays)
	assert.Equal(t, ExpiryUntracked, e.Status)

	window := 3
	date := now.Add(5 * day).In(time.FixedZone("X", 3600))
	e = NewExpiry(&date, &window, now)
	assert.True(t, e.IsTracked)
	assert.Equal(t, time.UTC, e.Date.Location())
	assert.Equal(t, ExpiryFresh, e.Status)
}

func TestNewExpiry_ExplicitZeroWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	date := now.Add(10 * day)
	zero := 0

	e := NewExpiry(&date, &zero, now)
	assert.Equal(t, 0, e.AlertWindowDays)
	assert.Equal(t, ExpiryFresh, e.Status)

	e = NewExpiry(&date, nil, now)
	assert.Equal(t, DefaultAlertWindowDays, e.AlertWindowDays)
	assert.Equal(t, ExpiryExpiring, e.Status)
}

func TestUnit_RefreshExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	date := now.Add(10 * day)
	window := 5
	u := &Unit{Expiry: NewExpiry(&date, &window, now)}
	assert.Equal(t, ExpiryFresh, u.Expiry.Status)

	assert.False(t, u.RefreshExpiry(now.Add(day)))
	assert.True(t, u.RefreshExpiry(now.Add(6*day)))
	assert.Equal(t, ExpiryExpiring, u.Expiry.Status)
	assert.True(t, u.RefreshExpiry(now.Add(11*day)))
	assert.Equal(t, ExpiryExpired, u.Expiry.Status)
}
