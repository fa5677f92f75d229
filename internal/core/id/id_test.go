package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsTimeOrdered(t *testing.T) {
	a := New()
	b := New()

	assert.Equal(t, 7, int(a.Version()))
	assert.Less(t, a.String(), b.String())
}

func TestCreatedAt(t *testing.T) {
	before := time.Now().Add(-time.Second)
	v := New()

	ts := CreatedAt(v)
	assert.True(t, ts.After(before), "timestamp %s should be after %s", ts, before)
	assert.True(t, ts.Before(time.Now().Add(time.Second)))
}

func TestParse(t *testing.T) {
	v := New()
	parsed, err := Parse(v.String())
	require.NoError(t, err)
	assert.Equal(t, v, parsed)

	_, err = Parse("not-a-uuid")
	assert.Error(t, err)
	assert.True(t, IsNil(ID{}))
}
