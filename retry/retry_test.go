package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records requested delays instead of sleeping.
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func newTestRetrier(p Policy, stats *Stats) (*Retrier, *fakeSleeper) {
	r := New(p, stats)
	fs := &fakeSleeper{}
	r.sleep = fs.sleep
	return r, fs
}

func TestDo_SuccessFirstTry(t *testing.T) {
	stats := NewStats()
	r, fs := newTestRetrier(DefaultPolicy(), stats)

	calls := 0
	err := r.Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)
	assert.Zero(t, stats.Snapshot().TotalErrors)
}

func TestDo_TransientExhaustsAfterExactlyAttempts(t *testing.T) {
	stats := NewStats()
	policy := Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, ExponentialBase: 2.0}
	r, fs := newTestRetrier(policy, stats)

	calls := 0
	err := r.Do(context.Background(), "upsert", func(ctx context.Context) error {
		calls++
		return Wrap(Connectivity, "upsert", errors.New("connection refused"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Connectivity, re.Category)
	assert.Equal(t, 3, re.Attempts)

	// Every inter-attempt delay respects base/max bounds.
	require.Len(t, fs.delays, 2)
	for _, d := range fs.delays {
		assert.GreaterOrEqual(t, d, policy.BaseDelay)
		assert.LessOrEqual(t, d, policy.MaxDelay)
	}

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.TotalErrors)
	assert.Equal(t, int64(2), snap.RecoveryAttempts)
	assert.Equal(t, int64(0), snap.SuccessfulRecoveries)
	assert.Equal(t, int64(3), snap.ErrorsByCategory[Connectivity])
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	stats := NewStats()
	r, fs := newTestRetrier(DefaultPolicy(), stats)

	calls := 0
	err := r.Do(context.Background(), "add", func(ctx context.Context) error {
		calls++
		return Wrap(Validation, "add", errors.New("content is required"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Validation, re.Category)
	assert.Equal(t, 1, re.Attempts)
}

func TestDo_RecoveryCounted(t *testing.T) {
	stats := NewStats()
	r, _ := newTestRetrier(DefaultPolicy(), stats)

	calls := 0
	err := r.Do(context.Background(), "search", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return Wrap(Storage, "search", errors.New("timed out"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.RecoveryAttempts)
	assert.Equal(t, int64(1), snap.SuccessfulRecoveries)
}

func TestDo_UnclassifiedErrorIsInternal(t *testing.T) {
	stats := NewStats()
	r, _ := newTestRetrier(DefaultPolicy(), stats)

	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		return errors.New("boom")
	})

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, Internal, re.Category)
	assert.Equal(t, 1, re.Attempts)
}

func TestPolicy_DelayBounds(t *testing.T) {
	p := Policy{Attempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, ExponentialBase: 2.0}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	// Capped at MaxDelay once the exponential overtakes it.
	assert.Equal(t, 30*time.Second, p.Delay(10))
}

func TestCategory_Transient(t *testing.T) {
	assert.True(t, Connectivity.Transient())
	assert.True(t, Storage.Transient())
	assert.False(t, Validation.Transient())
	assert.False(t, Permission.Transient())
	assert.False(t, Embedding.Transient())
	assert.False(t, Internal.Transient())
}

func TestStats_ConcurrentIncrements(t *testing.T) {
	stats := NewStats()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				stats.RecordError(Connectivity)
				stats.RecordRecoveryAttempt()
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	snap := stats.Snapshot()
	assert.Equal(t, int64(800), snap.TotalErrors)
	assert.Equal(t, int64(800), snap.RecoveryAttempts)
	assert.Equal(t, int64(800), snap.ErrorsByCategory[Connectivity])
}
