package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Observer receives one call per finished reconcile. Implemented by the metrics package.
type Observer interface {
	ObserveReconcile(outcome string, elapsed time.Duration, usedFallback bool)
}

// Options tune a Reconciler. Zero values pick defaults.
type Options struct {
	Timeout  time.Duration
	Atomic   bool
	Recorder Recorder
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Reconciler turns scanned identifiers into attendance transitions.
type Reconciler struct {
	store    Store
	atomic   AtomicStore
	recorder Recorder
	observer Observer
	guards   *Guards
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewReconciler creates a reconciler backed by store. Atomic mode needs store to
// implement AtomicStore.
func NewReconciler(store Store, opts Options) (*Reconciler, error) {
	r := &Reconciler{
		store:    store,
		recorder: opts.Recorder,
		observer: opts.Observer,
		guards:   NewGuards(),
		timeout:  opts.Timeout,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Atomic {
		as, ok := store.(AtomicStore)
		if !ok {
			return nil, errors.New("attendance: store does not support atomic reconcile")
		}
		r.atomic = as
	}
	return r, nil
}

// Guards exposes the per-session in-flight set.
func (r *Reconciler) Guards() *Guards { return r.guards }

// Reconcile runs one scan for session. It never returns an error; every failure
// is a TransientError result.
func (r *Reconciler) Reconcile(ctx context.Context, session, raw string) Result {
	return r.ReconcileFor(ctx, "", session, raw)
}

// ReconcileFor is Reconcile with the history entry filed under station.
func (r *Reconciler) ReconcileFor(ctx context.Context, station, session, raw string) (res Result) {
	id := strings.TrimSpace(raw)
	start := time.Now()

	release, ok := r.guards.TryAcquire(session)
	if !ok {
		res = Result{Outcome: Busy, Identifier: id}
		r.observe(res, start)
		return res
	}
	defer release()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("reconcile panicked", "session", session, "id", id, "panic", p)
			res = transient(id, "unexpected error while marking attendance")
		}
		r.observe(res, start)
	}()

	if id == "" {
		return Result{Outcome: NotFound}
	}
	scannedAt := r.now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.atomic != nil {
		res = r.reconcileAtomic(ctx, id)
	} else {
		res = r.reconcileStepwise(ctx, id)
	}
	if res.Outcome == Marked {
		res.MarkedAt = scannedAt
		r.record(ctx, station, res)
	}
	r.log.Info("scan reconciled", "session", session, "id", id, "outcome", res.Outcome.String(), "fallback", res.UsedFallback)
	return res
}

func (r *Reconciler) reconcileStepwise(ctx context.Context, id string) Result {
	reg, err := r.store.Registration(ctx, id)
	if err != nil {
		return r.failure(ctx, id, "lookup", err)
	}
	if reg == nil {
		return Result{Outcome: NotFound, Identifier: id}
	}
	if reg.Approval != Accepted {
		return Result{Outcome: NotApproved, Identifier: id, EventTitle: reg.EventTitle, Registration: reg}
	}
	if reg.Attendance == Present {
		return Result{Outcome: AlreadyMarked, Identifier: id, EventTitle: reg.EventTitle, Registration: reg}
	}

	n, err := r.store.MarkPresent(ctx, id)
	if err != nil {
		return r.failure(ctx, id, "update", err)
	}
	if n == 0 {
		// Another writer changed the row between lookup and update.
		status, err := r.store.AttendanceOf(ctx, id)
		if err != nil {
			return r.failure(ctx, id, "re-read", err)
		}
		if status == Present {
			reg.Attendance = Present
			return Result{Outcome: AlreadyMarked, Identifier: id, EventTitle: reg.EventTitle, Registration: reg}
		}
		return transient(id, "registration changed while marking attendance")
	}

	present, err := r.verify(ctx, id)
	if err != nil {
		return r.failure(ctx, id, "verify", err)
	}
	usedFallback := false
	if !present {
		usedFallback = true
		r.log.Warn("conditional update not visible, calling mark_attendance", "id", id)
		if err := r.store.MarkAttendance(ctx, id); err != nil {
			return r.failure(ctx, id, "fallback", err)
		}
		present, err = r.verify(ctx, id)
		if err != nil {
			return r.failure(ctx, id, "verify", err)
		}
		if !present {
			res := transient(id, "attendance still not marked after fallback")
			res.UsedFallback = true
			return res
		}
	}

	reg.Attendance = Present
	return Result{Outcome: Marked, Identifier: id, EventTitle: reg.EventTitle, Registration: reg, UsedFallback: usedFallback}
}

func (r *Reconciler) reconcileAtomic(ctx context.Context, id string) Result {
	out, err := r.atomic.ReconcileAtomic(ctx, id)
	if err != nil {
		return r.failure(ctx, id, "reconcile", err)
	}
	if !out.Found {
		return Result{Outcome: NotFound, Identifier: id}
	}
	reg := &Registration{
		ID:         id,
		EventTitle: out.EventTitle,
		Email:      out.Email,
		Approval:   out.Approval,
		Attendance: out.Attendance,
	}
	res := Result{Identifier: id, EventTitle: out.EventTitle, Registration: reg}
	switch {
	case out.Approval != Accepted:
		res.Outcome = NotApproved
	case out.Marked:
		res.Outcome = Marked
	case out.Attendance == Present:
		res.Outcome = AlreadyMarked
	default:
		return transient(id, "attendance not marked by reconcile procedure")
	}
	return res
}

func (r *Reconciler) verify(ctx context.Context, id string) (bool, error) {
	status, err := r.store.AttendanceOf(ctx, id)
	if err != nil {
		return false, err
	}
	return status == Present, nil
}

func (r *Reconciler) record(ctx context.Context, station string, res Result) {
	if r.recorder == nil {
		return
	}
	entry := HistoryEntry{
		Station:    station,
		Identifier: res.Identifier,
		ScannedAt:  res.MarkedAt,
		EventTitle: res.EventTitle,
	}
	if res.Registration != nil {
		entry.Display = res.Registration.Email
	}
	// Best effort: the scan is already Present in the store.
	if _, err := r.recorder.Append(ctx, entry); err != nil {
		r.log.Warn("history append failed", "id", res.Identifier, "error", err)
	}
}

func (r *Reconciler) failure(ctx context.Context, id, step string, err error) Result {
	msg := fmt.Sprintf("%s failed: %v", step, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		msg = step + " timed out"
	}
	r.log.Warn("attendance store error", "id", id, "step", step, "error", err)
	return transient(id, msg)
}

func (r *Reconciler) observe(res Result, start time.Time) {
	if r.observer == nil {
		return
	}
	r.observer.ObserveReconcile(res.Outcome.String(), time.Since(start), res.UsedFallback)
}
