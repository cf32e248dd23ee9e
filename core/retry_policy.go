package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type BackoffStrategy string

const (
	BackoffImmediate   BackoffStrategy = "immediate"
	BackoffExponential BackoffStrategy = "exponential"
)

const minRetryStep = time.Millisecond

type RetryPolicy struct {
	MaxRetries int
	Strategy   BackoffStrategy
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

type RetryDecision string

const (
	RetryDecisionRetry RetryDecision = "retry"
	RetryDecisionFail  RetryDecision = "fail"
	RetryDecisionDefer RetryDecision = "defer"
)

// DeferredError holds an item back for at least Delay. The attempt never
// reached the collaborator, so no retry is spent.
type DeferredError struct {
	Cause error
	Delay time.Duration
}

func (e *DeferredError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return fmt.Sprintf("core: deferred for %s", e.Delay)
	}
	return e.Cause.Error()
}

func (e *DeferredError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func DeferFor(cause error, delay time.Duration) error {
	return &DeferredError{Cause: cause, Delay: delay}
}

func (p RetryPolicy) ShouldRetry(item *QueueItem) bool {
	if item == nil {
		return false
	}
	return item.RetriesCount < p.MaxRetries
}

// Backoff returns the delay applied before the given attempt number.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.Strategy != BackoffExponential || p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	next := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if next >= math.MaxInt64 {
		if p.MaxDelay > 0 {
			return p.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}
	delay := time.Duration(next)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ScheduleRetry bumps the retry counter and pushes wait_until forward. The
// new wait_until is always strictly later than the previous one.
func (p RetryPolicy) ScheduleRetry(item *QueueItem, now time.Time) {
	if item == nil {
		return
	}
	now = now.UTC()
	item.RetriesCount++
	next := now.Add(p.Backoff(item.RetriesCount))
	if !next.After(item.WaitUntil) {
		next = item.WaitUntil.Add(minRetryStep)
	}
	item.WaitUntil = next
	item.UpdatedAt = now
}

// Defer moves wait_until to the later of the next regular backoff and
// now+delay. The retry counter is left untouched.
func (p RetryPolicy) Defer(item *QueueItem, delay time.Duration, now time.Time) {
	if item == nil {
		return
	}
	now = now.UTC()
	next := now.Add(p.Backoff(item.RetriesCount + 1))
	if held := now.Add(delay); held.After(next) {
		next = held
	}
	if !next.After(item.WaitUntil) {
		next = item.WaitUntil.Add(minRetryStep)
	}
	item.WaitUntil = next
	item.UpdatedAt = now
}

func (p RetryPolicy) MarkFailed(item *QueueItem, detail string, now time.Time) {
	if item == nil {
		return
	}
	item.Status = StatusFailed
	item.FailureDetail = strings.TrimSpace(detail)
	item.UpdatedAt = now.UTC()
}

// Apply records a failed attempt. Invariant violations and exhausted items
// go to failed, deferrals are held without spending a retry and everything
// else is rescheduled.
func (p RetryPolicy) Apply(item *QueueItem, cause error, now time.Time) RetryDecision {
	detail := "unknown failure"
	if cause != nil {
		detail = cause.Error()
	}
	var deferred *DeferredError
	if errors.As(cause, &deferred) && !IsInvariantViolation(cause) {
		p.Defer(item, deferred.Delay, now)
		return RetryDecisionDefer
	}
	if IsInvariantViolation(cause) || !p.ShouldRetry(item) {
		p.MarkFailed(item, detail, now)
		return RetryDecisionFail
	}
	p.ScheduleRetry(item, now)
	return RetryDecisionRetry
}
