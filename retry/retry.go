// Package retry wraps calls to external capabilities (embedding, vector
// store I/O) with failure classification, bounded exponential backoff, and
// process-wide error statistics.
//
// Transient categories (connectivity, storage) are retried; everything else
// fails immediately. Every failure and recovery event increments counters on
// an injected Stats collector, which the health check reads.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Category classifies a failure from an external call.
type Category string

const (
	Connectivity Category = "connectivity"
	Storage      Category = "storage"
	Embedding    Category = "embedding"
	Validation   Category = "validation"
	Permission   Category = "permission"
	Protocol     Category = "protocol"
	Internal     Category = "internal"
)

// Transient reports whether failures in this category are worth retrying.
func (c Category) Transient() bool {
	return c == Connectivity || c == Storage
}

// Error is a classified failure from a wrapped call. After retries are
// exhausted, Attempts records how many tries were made.
type Error struct {
	Category Category
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: %s error after %d attempts: %v", e.Op, e.Category, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with a category so Retrier.Do can decide whether to retry.
// Adapters use this at the call site where the failure mode is known.
func Wrap(cat Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Category: cat, Op: op, Attempts: 1, Err: err}
}

// Classify extracts the category from a wrapped error. Unclassified errors
// are treated as internal (non-transient).
func Classify(err error) Category {
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	return Internal
}

// Policy controls backoff between retry attempts.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff regardless of attempt count.
	MaxDelay time.Duration

	// ExponentialBase is the backoff multiplier per attempt.
	ExponentialBase float64

	// Jitter adds randomness to spread out retries. The jittered delay
	// stays within [delay, MaxDelay].
	Jitter bool
}

// DefaultPolicy returns the standard retry policy: 3 attempts, 1s base,
// 30s cap, doubling, jitter on.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          true,
	}
}

// Delay returns the backoff before retry number attempt (0-based), without
// jitter: min(BaseDelay * ExponentialBase^attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt)))
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d
}

// Retrier executes functions under a Policy, recording every failure and
// recovery on its Stats collector.
type Retrier struct {
	policy Policy
	stats  *Stats

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is replaceable in tests so backoff bounds can be asserted
	// without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. stats must not be nil; it is shared process-wide.
func New(policy Policy, stats *Stats) *Retrier {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Retrier{
		policy: policy,
		stats:  stats,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Do runs fn, retrying transient failures per the policy. The returned error
// is always a *Error carrying the category and total attempt count; nil on
// success. A success after at least one failure counts as a recovery.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.policy.Attempts; attempt++ {
		if attempt > 0 {
			r.stats.RecordRecoveryAttempt()
			if err := r.sleep(ctx, r.backoff(attempt-1)); err != nil {
				return &Error{Category: Classify(lastErr), Op: op, Attempts: attempt, Err: lastErr}
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.stats.RecordRecovery()
			}
			return nil
		}

		cat := Classify(err)
		r.stats.RecordError(cat)
		lastErr = err

		if !cat.Transient() {
			return &Error{Category: cat, Op: op, Attempts: attempt + 1, Err: unwrapClassified(err)}
		}
	}
	return &Error{Category: Classify(lastErr), Op: op, Attempts: r.policy.Attempts, Err: unwrapClassified(lastErr)}
}

// backoff computes the jittered delay for retry number attempt (0-based).
// The result stays within [Delay(attempt), MaxDelay].
func (r *Retrier) backoff(attempt int) time.Duration {
	d := r.policy.Delay(attempt)
	if r.policy.Jitter {
		r.mu.Lock()
		d += time.Duration(r.rng.Int63n(int64(d)/2 + 1))
		r.mu.Unlock()
		if d > r.policy.MaxDelay {
			d = r.policy.MaxDelay
		}
	}
	return d
}

func unwrapClassified(err error) error {
	var re *Error
	if errors.As(err, &re) {
		return re.Err
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
