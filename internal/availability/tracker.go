package availability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result is a finished check. Known is false when the check failed; a failed
// check never signals a conflict.
type Result struct {
	Query    Query
	Conflict bool
	Known    bool
	Seq      uint64
}

// Tracker runs the checks of one form. Every request supersedes the previous
// one: its context is cancelled and its sequence number retired, so a late
// answer for old inputs is dropped instead of overwriting a newer one.
type Tracker struct {
	checker  *Checker
	debounce time.Duration

	mu      sync.Mutex
	seq     uint64
	waiting uint64 // seq of the request still owed a result, 0 when none
	cancel  context.CancelFunc
	last    Result
	hasLast bool

	wg sync.WaitGroup
}

func NewTracker(checker *Checker, debounce time.Duration) *Tracker {
	return &Tracker{checker: checker, debounce: debounce}
}

// Request starts a background check for q and returns its sequence number.
func (t *Tracker) Request(parent context.Context, q Query) uint64 {
	t.mu.Lock()
	seq := t.supersedeLocked()
	t.waiting = seq
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()

		if t.debounce > 0 {
			timer := time.NewTimer(t.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				t.checker.recorder.ObserveAvailability(OutcomeStale)
				return
			case <-timer.C:
			}
		}

		conflict, err := t.checker.Check(ctx, q)
		res := Result{Query: q, Conflict: conflict, Known: err == nil, Seq: seq}
		if err != nil && ctx.Err() == nil {
			t.checker.log.Warn("availability check failed, treating as no conflict",
				zap.Stringer("query", q), zap.Error(err))
		}
		t.store(res)
	}()

	return seq
}

// CheckNow runs a check inline, superseding anything in flight. The result is
// stored like any other; the error is returned so the caller can refuse to
// proceed without an answer.
func (t *Tracker) CheckNow(ctx context.Context, q Query) (Result, error) {
	t.mu.Lock()
	seq := t.supersedeLocked()
	t.waiting = seq
	t.mu.Unlock()

	conflict, err := t.checker.Check(ctx, q)
	res := Result{Query: q, Conflict: conflict, Known: err == nil, Seq: seq}
	t.store(res)
	return res, err
}

// Cancel retires any in-flight check and forgets the last result.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	t.supersedeLocked()
	t.waiting = 0
	t.hasLast = false
	t.last = Result{}
	t.mu.Unlock()
}

// Current returns the last stored result if it answers q.
func (t *Tracker) Current(q Query) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasLast || t.last.Query != q {
		return Result{}, false
	}
	return t.last, true
}

// Pending reports whether the newest request has not produced a result yet.
func (t *Tracker) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waiting != 0
}

// Wait blocks until every background check has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) supersedeLocked() uint64 {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.seq++
	return t.seq
}

func (t *Tracker) store(res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if res.Seq != t.seq {
		t.checker.recorder.ObserveAvailability(OutcomeStale)
		return
	}
	t.last = res
	t.hasLast = true
	t.waiting = 0
	switch {
	case !res.Known:
		t.checker.recorder.ObserveAvailability(OutcomeError)
	case res.Conflict:
		t.checker.recorder.ObserveAvailability(OutcomeConflict)
	default:
		t.checker.recorder.ObserveAvailability(OutcomeFree)
	}
}
