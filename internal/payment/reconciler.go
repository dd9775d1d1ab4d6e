package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/farmbridge/internal/db"
	dbgen "github.com/noah-isme/farmbridge/internal/db/gen"
	"github.com/noah-isme/farmbridge/internal/lock"
	"github.com/noah-isme/farmbridge/internal/obs"
)

// Task types handled by the worker.
const (
	TypeReconcile = "payment:reconcile"
	TypeSweep     = "payment:sweep"
)

const sweepLockKey = "lock:payment:sweep"

// ErrStillPending is returned while the gateway has no final answer and the
// payment has not yet expired. Task handlers return it so the task retries.
var ErrStillPending = errors.New("payment still pending at gateway")

// ReconcileResult names what a reconciliation pass did.
type ReconcileResult string

const (
	ReconcileTerminal  ReconcileResult = "terminal"
	ReconcileCompleted ReconcileResult = "completed"
	ReconcileFailed    ReconcileResult = "failed"
	ReconcileExpired   ReconcileResult = "expired"
	ReconcilePending   ReconcileResult = "pending"
	ReconcileMismatch  ReconcileResult = "mismatch"
)

type reconcilePayload struct {
	Reference string `json:"reference"`
}

// NewReconcileTask builds the task that verifies one reference.
func NewReconcileTask(reference string) (*asynq.Task, error) {
	payload, err := json.Marshal(reconcilePayload{Reference: reference})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReconcile, payload), nil
}

// NewSweepTask builds the periodic stale-payment sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweep, nil)
}

// ErrAlreadyQueued is returned when a live reconcile task for the reference
// already exists.
var ErrAlreadyQueued = errors.New("reconcile task already queued")

// TaskEnqueuer is the part of *asynq.Client the enqueuer uses.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskInspector is the part of *asynq.Inspector the enqueuer uses to free
// task ids held by finished tasks.
type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
}

// AsynqEnqueuer schedules reconcile tasks. The task id is derived from the
// reference so a reference is queued at most once at a time. An archived or
// completed task still owns its id; with an Inspector set it is deleted and
// the reference queued again.
type AsynqEnqueuer struct {
	Client    TaskEnqueuer
	Inspector TaskInspector
	Queue     string
	// MaxRetry bounds how often a still-pending payment is re-polled before
	// the task is archived. Zero keeps asynq's default.
	MaxRetry int
}

func reconcileTaskID(reference string) string { return "reconcile:" + reference }

// EnqueueReconcile implements Enqueuer.
func (e AsynqEnqueuer) EnqueueReconcile(ctx context.Context, reference string, delay time.Duration) error {
	if e.Client == nil {
		return errors.New("task client not configured")
	}
	task, err := NewReconcileTask(reference)
	if err != nil {
		return err
	}
	id := reconcileTaskID(reference)
	opts := []asynq.Option{asynq.TaskID(id), asynq.Queue(e.queue())}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}

	err = e.enqueue(ctx, task, opts)
	if !errors.Is(err, ErrAlreadyQueued) || e.Inspector == nil {
		return err
	}
	freed, err := e.release(id)
	if err != nil {
		return fmt.Errorf("inspect reconcile task %s: %w", reference, err)
	}
	if !freed {
		return ErrAlreadyQueued
	}
	return e.enqueue(ctx, task, opts)
}

func (e AsynqEnqueuer) enqueue(ctx context.Context, task *asynq.Task, opts []asynq.Option) error {
	if _, err := e.Client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return ErrAlreadyQueued
		}
		return fmt.Errorf("enqueue reconcile: %w", err)
	}
	return nil
}

// release deletes the task holding id when it has finished. It reports
// whether the id is free again.
func (e AsynqEnqueuer) release(id string) (bool, error) {
	info, err := e.Inspector.GetTaskInfo(e.queue(), id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	switch info.State {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
	default:
		return false, nil
	}
	if err := e.Inspector.DeleteTask(e.queue(), id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, err
	}
	return true, nil
}

func (e AsynqEnqueuer) queue() string {
	if e.Queue == "" {
		return "default"
	}
	return e.Queue
}

// TryLocker runs fn only when the named lock is free.
type TryLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Reconciler asks the gateway for the truth about payments the webhook has
// not settled and applies the answer through the engine.
type Reconciler struct {
	Repo          Repository
	Engine        *Engine
	Gateway       Gateway
	Enqueuer      Enqueuer
	Locker        TryLocker
	PendingExpiry time.Duration
	StaleAfter    time.Duration
	BatchSize     int
	Now           func() time.Time
}

// Reconcile verifies reference with the gateway. Terminal payments are left
// untouched and the gateway is not called for them.
func (r *Reconciler) Reconcile(ctx context.Context, reference string, source Source) (result ReconcileResult, err error) {
	if r == nil || r.Repo == nil || r.Engine == nil || r.Gateway == nil {
		return "", ErrNotConfigured
	}
	defer func() {
		label := string(result)
		if err != nil && result == "" {
			label = "error"
			if errors.Is(err, ErrPaymentNotFound) {
				label = "not_found"
			}
		}
		if obs.PaymentReconcileTotal != nil {
			obs.PaymentReconcileTotal.WithLabelValues(label).Inc()
		}
	}()
	logger := zerolog.Ctx(ctx).With().Str("reference", reference).Logger()

	p, err := r.Repo.GetPaymentByReference(ctx, reference)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPaymentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load payment: %w", err)
	}
	if p.Status.Terminal() {
		return ReconcileTerminal, nil
	}

	v, err := r.Gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.Kind == GatewayRejected && r.expired(p) {
			logger.Warn().Err(err).Msg("gateway does not know expired payment")
			return r.fail(ctx, reference, source, ReconcileExpired)
		}
		return "", fmt.Errorf("verify transaction: %w", err)
	}

	switch v.Status {
	case "success":
		if !matchesPayment(p, v) {
			logger.Error().
				Int64("gateway_amount", v.AmountMinor).
				Str("gateway_currency", v.Currency).
				Str("currency", p.Currency).
				Msg("gateway amount does not match payment")
			return ReconcileMismatch, nil
		}
		t, err := r.Engine.MarkCompleted(ctx, reference, source)
		if err != nil {
			return "", err
		}
		if t.Outcome == OutcomeAlreadyProcessed {
			return ReconcileTerminal, nil
		}
		return ReconcileCompleted, nil
	case "failed", "reversed":
		return r.fail(ctx, reference, source, ReconcileFailed)
	default:
		if r.expired(p) {
			logger.Info().Str("gateway_status", v.Status).Msg("pending payment expired")
			return r.fail(ctx, reference, source, ReconcileExpired)
		}
		return ReconcilePending, ErrStillPending
	}
}

func (r *Reconciler) fail(ctx context.Context, reference string, source Source, result ReconcileResult) (ReconcileResult, error) {
	t, err := r.Engine.MarkFailed(ctx, reference, source)
	if err != nil {
		return "", err
	}
	if t.Outcome == OutcomeAlreadyProcessed {
		return ReconcileTerminal, nil
	}
	return result, nil
}

func (r *Reconciler) expired(p dbgen.Payment) bool {
	expiry := r.PendingExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return p.CreatedAt.Valid && r.now().Sub(p.CreatedAt.Time) >= expiry
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func matchesPayment(p dbgen.Payment, v Verification) bool {
	amount, err := db.Decimal(p.Amount)
	if err != nil {
		return false
	}
	if v.Currency != "" && !strings.EqualFold(v.Currency, p.Currency) {
		return false
	}
	return MinorUnits(amount) == v.AmountMinor
}

// Stale lists pending payments created more than olderThan ago.
func (r *Reconciler) Stale(ctx context.Context, olderThan time.Duration) ([]dbgen.Payment, error) {
	if r == nil || r.Repo == nil {
		return nil, ErrNotConfigured
	}
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	return r.Repo.ListStalePendingPayments(ctx, dbgen.ListStalePendingPaymentsParams{
		CreatedBefore: db.Timestamptz(r.now().Add(-olderThan)),
		Limit:         int32(limit),
	})
}

// SweepResult counts what one sweep did with the stale payments it found.
type SweepResult struct {
	Queued        int
	AlreadyQueued int
	Failed        int
}

// Sweep queues a reconcile task for every stale pending payment.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	if r == nil || r.Enqueuer == nil {
		return res, ErrNotConfigured
	}
	staleAfter := r.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	payments, err := r.Stale(ctx, staleAfter)
	if err != nil {
		return res, fmt.Errorf("list stale payments: %w", err)
	}
	for _, p := range payments {
		err := r.Enqueuer.EnqueueReconcile(ctx, p.TransactionReference, 0)
		switch {
		case err == nil:
			res.Queued++
		case errors.Is(err, ErrAlreadyQueued):
			res.AlreadyQueued++
		default:
			res.Failed++
			zerolog.Ctx(ctx).Warn().Err(err).Str("reference", p.TransactionReference).Msg("sweep enqueue")
		}
	}
	return res, nil
}

// HandleReconcileTask is the asynq handler for TypeReconcile.
func (r *Reconciler) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload reconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(payload.Reference) == "" {
		return fmt.Errorf("reconcile payload without reference: %w", asynq.SkipRetry)
	}
	result, err := r.Reconcile(ctx, payload.Reference, SourceReconciler)
	if errors.Is(err, ErrPaymentNotFound) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("reference", payload.Reference).Str("result", string(result)).Msg("payment_reconciled")
	return nil
}

// HandleSweepTask is the asynq handler for TypeSweep. Only one worker runs
// a sweep at a time.
func (r *Reconciler) HandleSweepTask(ctx context.Context, _ *asynq.Task) error {
	run := func(ctx context.Context) error {
		res, err := r.Sweep(ctx)
		if err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().
			Int("queued", res.Queued).
			Int("already_queued", res.AlreadyQueued).
			Int("failed", res.Failed).
			Msg("payment_sweep")
		return nil
	}
	if r.Locker == nil {
		return run(ctx)
	}
	err := r.Locker.TryLock(ctx, sweepLockKey, time.Minute, run)
	if errors.Is(err, lock.ErrNotAcquired) {
		zerolog.Ctx(ctx).Debug().Msg("payment sweep already running")
		return nil
	}
	return err
}

// Register mounts the reconciler's handlers on mux.
func (r *Reconciler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeReconcile, r.HandleReconcileTask)
	mux.HandleFunc(TypeSweep, r.HandleSweepTask)
}
