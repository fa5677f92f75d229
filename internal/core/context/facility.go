package context

import "context"

type facilityKey struct{}

// WithFacility records the facility a request or engine call operates on.
// ctx is returned unchanged when it already carries facilityID.
func WithFacility(ctx context.Context, facilityID string) context.Context {
	if facilityID == "" || GetFacilityID(ctx) == facilityID {
		return ctx
	}
	return context.WithValue(ctx, facilityKey{}, facilityID)
}

// GetFacilityID returns the facility from context or empty string.
func GetFacilityID(ctx context.Context) string {
	if v, ok := ctx.Value(facilityKey{}).(string); ok {
		return v
	}
	return ""
}
