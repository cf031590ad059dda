package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameNameSerializes(t *testing.T) {
	s := NewService()
	ctx := context.Background()

	first, err := s.Acquire(ctx, "shop")
	require.NoError(t, err)

	acquired := make(chan *Lease)
	go func() {
		lease, err := s.Acquire(ctx, "shop")
		require.NoError(t, err)
		acquired <- lease
	}()

	select {
	case <-acquired:
		t.Fatal("second acquisition should block while the first lease is held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case lease := <-acquired:
		lease.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquisition should proceed after release")
	}
}

func TestDifferentNamesDoNotContend(t *testing.T) {
	s := NewService()
	ctx := context.Background()

	a, err := s.Acquire(ctx, "shop")
	require.NoError(t, err)
	defer a.Release()

	done := make(chan struct{})
	go func() {
		b, err := s.Acquire(ctx, "billing")
		require.NoError(t, err)
		b.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquisition for a different name must not block")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	s := NewService()

	held, err := s.Acquire(context.Background(), "shop")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx, "shop")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := NewService()
	lease, err := s.Acquire(context.Background(), "shop")
	require.NoError(t, err)

	lease.Release()
	lease.Release()

	again, err := s.Acquire(context.Background(), "shop")
	require.NoError(t, err)
	again.Release()
}
