package store

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FreshExpires(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryStore[string](1, 5*time.Minute, clock)

	_, err := s.Fresh("out.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	s.Save("out.txt", "v1")
	entry, err := s.Fresh("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "v1", entry.Value)

	clock.Advance(5 * time.Minute)
	_, err = s.Fresh("out.txt")
	require.NoError(t, err)

	clock.Advance(time.Second)
	entry, err = s.Fresh("out.txt")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, "v1", entry.Value)

	latest, err := s.Latest("out.txt")
	require.NoError(t, err)
	assert.Equal(t, "v1", latest.Value)
}

func TestMemoryStore_Retention(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore[int](3, time.Hour, clock)

	for i := 1; i <= 5; i++ {
		s.Save("k", i)
		clock.Advance(time.Minute)
	}
	h, err := s.History("k")
	require.NoError(t, err)
	require.Len(t, h, 3)
	assert.Equal(t, 3, h[0].Value)
	assert.Equal(t, 5, h[2].Value)

	clock.Advance(2 * time.Hour)
	s.Save("k", 6)
	h, err = s.History("k")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, 6, h[0].Value)
}

func TestMemoryStore_NoExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore[int](0, 0, clock)
	s.Save("k", 1)
	s.Save("k", 2)
	clock.Advance(1000 * time.Hour)

	entry, err := s.Fresh("k")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Value)

	s.Invalidate("k")
	_, err = s.Latest("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s := NewMemoryStore[int](10, 0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Save("k", i)
			_, _ = s.Latest("k")
		}()
	}
	wg.Wait()

	h, err := s.History("k")
	require.NoError(t, err)
	assert.Len(t, h, 10)
}
