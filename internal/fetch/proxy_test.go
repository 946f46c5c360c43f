package fetch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyRegistryLoad(t *testing.T) {
	registry := NewProxyRegistry(0)

	list := strings.NewReader(`# leading comment
10.0.0.1:8080

10.0.0.2:8080
  # indented comment
10.0.0.3:3128
`)

	count, err := registry.Load(list)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 3, registry.Size())
	assert.Equal(t, 3, registry.HealthyCount())
}

func TestProxyRegistryCooldown(t *testing.T) {
	registry := NewProxyRegistry(30 * time.Minute)
	registry.Add("10.0.0.1:8080")

	base := time.Now()
	registry.now = func() time.Time { return base }

	addr, ok := registry.Pick()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:8080", addr)

	registry.MarkBad("10.0.0.1:8080")

	// Still cooling down one minute after the failure.
	registry.now = func() time.Time { return base.Add(time.Minute) }
	_, ok = registry.Pick()
	assert.False(t, ok)
	assert.Equal(t, 0, registry.HealthyCount())

	// Eligible again once the cooldown has elapsed.
	registry.now = func() time.Time { return base.Add(31 * time.Minute) }
	addr, ok = registry.Pick()
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:8080", addr)
}

func TestProxyRegistryPrefersWorkingProxies(t *testing.T) {
	registry := NewProxyRegistry(0)
	registry.Add("10.0.0.1:8080")
	registry.Add("10.0.0.2:8080")
	registry.Add("10.0.0.3:8080")

	registry.MarkGood("10.0.0.2:8080")

	for i := 0; i < 20; i++ {
		addr, ok := registry.Pick()
		require.True(t, ok)
		assert.Equal(t, "10.0.0.2:8080", addr)
	}
}

func TestProxyRegistrySkipsBadWhileHealthyExist(t *testing.T) {
	registry := NewProxyRegistry(30 * time.Minute)
	registry.Add("10.0.0.1:8080")
	registry.Add("10.0.0.2:8080")

	registry.MarkBad("10.0.0.1:8080")

	for i := 0; i < 20; i++ {
		addr, ok := registry.Pick()
		require.True(t, ok)
		assert.Equal(t, "10.0.0.2:8080", addr)
	}
}

func TestProxyRegistryMarkGoodClearsFailure(t *testing.T) {
	registry := NewProxyRegistry(30 * time.Minute)
	registry.Add("10.0.0.1:8080")

	registry.MarkBad("10.0.0.1:8080")
	assert.Equal(t, 0, registry.HealthyCount())

	registry.MarkGood("10.0.0.1:8080")
	assert.Equal(t, 1, registry.HealthyCount())
}
