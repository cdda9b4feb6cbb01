package submission

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subport/pkg/requestcontext"
)

func TestClaimAdmitsFirstSubmissionOnly(t *testing.T) {
	guard := NewInMemory(time.Minute)
	ctx := context.Background()

	first, err := guard.Claim(ctx, "form-abc")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := guard.Claim(ctx, "form-abc")
	require.NoError(t, err)
	assert.False(t, second)

	other, err := guard.Claim(ctx, "form-xyz")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestClaimReleasesAfterTTL(t *testing.T) {
	guard := NewInMemory(time.Minute)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithTime(context.Background(), base)
	first, err := guard.Claim(ctx, "form-abc")
	require.NoError(t, err)
	assert.True(t, first)

	ctx = requestcontext.WithTime(context.Background(), base.Add(30*time.Second))
	replay, err := guard.Claim(ctx, "form-abc")
	require.NoError(t, err)
	assert.False(t, replay)

	ctx = requestcontext.WithTime(context.Background(), base.Add(2*time.Minute))
	later, err := guard.Claim(ctx, "form-abc")
	require.NoError(t, err)
	assert.True(t, later, "expired tokens may be claimed again")
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	guard := NewInMemory(time.Minute)
	ctx := context.Background()

	const goroutines = 50
	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := guard.Claim(ctx, "same-token")
			require.NoError(t, err)
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
