package units

import (
	"math"
	"time"
)

// ExpiryStatus classifies a unit by its expiration date.
type ExpiryStatus string

const (
	ExpiryUntracked ExpiryStatus = "untracked"
	ExpiryFresh     ExpiryStatus = "fresh"
	ExpiryExpiring  ExpiryStatus = "expiring"
	ExpiryExpired   ExpiryStatus = "expired"
)

// DefaultAlertWindowDays is used when a creation request omits the alert
// window. An explicit zero is kept and is never widened to the default.
const DefaultAlertWindowDays = 30

const day = 24 * time.Hour

// DaysUntil returns ceil((date - now) / 1 day). Negative once the date is
// a full day or more in the past.
func DaysUntil(date, now time.Time) int {
	return int(math.Ceil(float64(date.Sub(now)) / float64(day)))
}

// Classify derives the expiry status of e at now.
//
// A date strictly before now is expired even when less than a day has
// passed. Otherwise the unit is expiring while DaysUntil is within the
// alert window, inclusive.
func Classify(e Expiry, now time.Time) ExpiryStatus {
	if !e.IsTracked || e.Date == nil {
		return ExpiryUntracked
	}
	if e.Date.Before(now) {
		return ExpiryExpired
	}
	if DaysUntil(*e.Date, now) <= max(e.AlertWindowDays, 0) {
		return ExpiryExpiring
	}
	return ExpiryFresh
}

// WindowEnd is the latest expiry date that still counts as expiring for a
// window of windowDays starting at now.
func WindowEnd(now time.Time, windowDays int) time.Time {
	return now.Add(time.Duration(windowDays) * day)
}

// NewExpiry builds an Expiry for a creation request and classifies it.
// A nil alertWindowDays uses DefaultAlertWindowDays.
func NewExpiry(date *time.Time, alertWindowDays *int, now time.Time) Expiry {
	e := Expiry{AlertWindowDays: DefaultAlertWindowDays}
	if alertWindowDays != nil {
		e.AlertWindowDays = *alertWindowDays
	}
	if date != nil {
		d := date.UTC()
		e.IsTracked = true
		e.Date = &d
	}
	e.Status = Classify(e, now)
	return e
}
