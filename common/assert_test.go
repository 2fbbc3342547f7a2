package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeAssert(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SafeMode = true
	assert.NotPanics(t, func() { SafeAssert(cfg, true, "holds") })
	assert.PanicsWithValue(t, "broken", func() { SafeAssert(cfg, false, "broken") })

	cfg.SafeMode = false
	assert.NotPanics(t, func() { SafeAssert(cfg, false, "unchecked") })
	assert.NotPanics(t, func() { SafeAssert(nil, false, "unchecked") })
}
