package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("DEV_PASSWORD", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.DevPassword)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PICKER_PAGE_SIZE", "")
	t.Setenv("PICKER_DEBOUNCE_MS", "")
	t.Setenv("GATEWAY_BASE_URL", "https://api.example.test/")

	cfg := Load()
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	assert.Equal(t, "https://api.example.test", cfg.GatewayBaseURL)
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("PICKER_PAGE_SIZE", "0")
	t.Setenv("SWIPE_REVEAL_THRESHOLD", "abc")

	cfg := Load()
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 80.0, cfg.RevealThreshold)
}
