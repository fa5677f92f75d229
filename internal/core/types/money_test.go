package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineTotal(t *testing.T) {
	assert.True(t, LineTotal(MustMoney("10.25"), 4).Equal(MustMoney("41")))
	assert.True(t, LineTotal(MustMoney("10.25"), 0).IsZero())
}

func TestMustMoney_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMoney("ten") })
}
