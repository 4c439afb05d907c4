/*
service.go - Admission controller and administrative operations

SUBMISSION STATE MACHINE:

	received
	   │ start > end ─────────────────────────▶ ErrInvalidRange
	   │ zero chargeable days ────────────────▶ ErrEmptyInterval
	   │ edit id unknown / not owned ─────────▶ ErrNotFound / ErrNotAuthorized
	   │ committed + days > allowance ────────▶ *QuotaExceededError
	   │ evaluator: no conflict ──────────────▶ accepted, pending
	   │ evaluator: conflict, !force ─────────▶ needs confirmation (no write)
	   └ evaluator: conflict, force ──────────▶ accepted, waitlist

CONCURRENCY:
  Every mutation runs inside mutate: load the snapshot, decide against it,
  compare-and-swap the whole collection. On ErrConcurrentModification the
  decision is re-run on a fresh snapshot, up to MaxRetries times. Two
  admissions racing on the same days therefore cannot both commit against
  the same stale view.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/vacation-planner/calendar"
)

// DefaultMaxRetries bounds the compare-and-swap loop.
const DefaultMaxRetries = 5

// MaxSpanDays is the longest interval, in calendar days, a request may cover.
const MaxSpanDays = 366

// errNoChange aborts a mutation without writing.
var errNoChange = errors.New("no change")

// Recorder receives decision and store events for metrics.
type Recorder interface {
	Decision(outcome string)
	StoreConflict()
}

type nopRecorder struct{}

func (nopRecorder) Decision(string) {}
func (nopRecorder) StoreConflict()  {}

// Caller is the authenticated principal of an operation.
type Caller struct {
	Employee Employee
	IsAdmin  bool
}

// Submission is the input of Submit. EditID 0 creates a new request.
type Submission struct {
	Start  calendar.Date
	End    calendar.Date
	EditID int64
	Force  bool
}

// Outcome is the result category of a submission that was not rejected.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeNeedsConfirmation Outcome = "needs_confirmation"
)

// Decision is returned by Submit when the request was not rejected.
// Request is nil when Outcome is OutcomeNeedsConfirmation.
type Decision struct {
	Outcome  Outcome
	Request  *Request
	Conflict *Conflict
}

// Toast returns the confirmation text for an accepted decision.
func (d *Decision) Toast() string {
	if d.Request != nil && d.Request.Status == StatusWaitlist {
		return "Added to Waitlist"
	}
	return "Saved successfully"
}

// Prompt returns the question shown when confirmation is needed.
func (d *Decision) Prompt() string {
	if d.Conflict == nil {
		return ""
	}
	return d.Conflict.Message() + " Join waitlist?"
}

// Config wires a Service.
type Config struct {
	Calendar   *calendar.Calendar
	Policy     Policy
	Store      Store
	Directory  Directory
	Admins     AdminChecker
	Logger     *zap.Logger
	Metrics    Recorder
	MaxRetries int
	// DisplayYear selects the holiday list of LoadState. Zero means the
	// current year.
	DisplayYear int
	Now         func() time.Time
}

// Service is the admission controller.
type Service struct {
	calendar    *calendar.Calendar
	evaluator   Evaluator
	store       Store
	directory   Directory
	admins      AdminChecker
	logger      *zap.Logger
	metrics     Recorder
	maxRetries  int
	displayYear int
	now         func() time.Time
}

// NewService validates cfg and returns a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Calendar == nil || cfg.Store == nil || cfg.Directory == nil || cfg.Admins == nil {
		return nil, errors.New("leave: calendar, store, directory and admin checker are required")
	}
	if cfg.Policy.MaxAbsent < 1 || cfg.Policy.MinSupervisors < 0 {
		return nil, fmt.Errorf("leave: invalid policy %+v", cfg.Policy)
	}
	s := &Service{
		calendar:    cfg.Calendar,
		evaluator:   Evaluator{Calendar: cfg.Calendar, Policy: cfg.Policy},
		store:       cfg.Store,
		directory:   cfg.Directory,
		admins:      cfg.Admins,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		maxRetries:  cfg.MaxRetries,
		displayYear: cfg.DisplayYear,
		now:         cfg.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("leave")
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Evaluator returns the capacity evaluator used by the service.
func (s *Service) Evaluator() Evaluator { return s.evaluator }

// Calendar returns the service's holiday calendar.
func (s *Service) Calendar() *calendar.Calendar { return s.calendar }

// =============================================================================
// IDENTITY
// =============================================================================

// Authenticate resolves an employee id.
func (s *Service) Authenticate(ctx context.Context, id string) (Employee, error) {
	emp, err := s.directory.Lookup(ctx, id)
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}

// ResolveCaller builds the Caller for an authenticated employee id.
func (s *Service) ResolveCaller(ctx context.Context, id string) (Caller, error) {
	emp, err := s.Authenticate(ctx, id)
	if err != nil {
		return Caller{}, err
	}
	return Caller{Employee: emp, IsAdmin: s.isAdmin(ctx, id)}, nil
}

// isAdmin fails closed.
func (s *Service) isAdmin(ctx context.Context, id string) bool {
	ok, err := s.admins.IsAdmin(ctx, id)
	if err != nil {
		s.logger.Warn("admin check failed, denying", zap.String("employee_id", id), zap.Error(err))
		return false
	}
	return ok
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit runs the admission decision for caller and persists accepted
// requests. Rejections are returned as errors; a conflict without Force is
// returned as a Decision with OutcomeNeedsConfirmation and nothing is written.
func (s *Service) Submit(ctx context.Context, caller Caller, sub Submission) (*Decision, error) {
	owner := caller.Employee
	period := calendar.Period{Start: sub.Start, End: sub.End}
	if sub.Start.After(sub.End) {
		s.reject(owner.ID, ErrInvalidRange)
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange, sub.Start, sub.End)
	}
	if n := period.Len(); n > MaxSpanDays {
		s.reject(owner.ID, ErrInvalidRange)
		return nil, fmt.Errorf("%w: %s spans %d days, at most %d allowed", ErrInvalidRange, period, n, MaxSpanDays)
	}
	days := s.calendar.ChargeableDays(period)
	if days == 0 {
		s.reject(owner.ID, ErrEmptyInterval)
		return nil, fmt.Errorf("%w: %s", ErrEmptyInterval, period)
	}

	roster, err := s.directory.Roster(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	var decision *Decision
	_, err = s.mutate(ctx, "submit", func(current Collection) (Collection, error) {
		decision = nil

		if sub.EditID != 0 {
			prev, ok := current.Find(sub.EditID)
			if !ok {
				return nil, fmt.Errorf("request %d: %w", sub.EditID, ErrNotFound)
			}
			if prev.OwnerID != owner.ID {
				return nil, fmt.Errorf("edit request %d: %w", sub.EditID, ErrNotAuthorized)
			}
		}

		committed := current.CommittedDays(owner.ID, sub.EditID)
		if committed+days > owner.Allowance {
			return nil, &QuotaExceededError{
				EmployeeID: owner.ID,
				Allowance:  owner.Allowance,
				Committed:  committed,
				Requested:  days,
			}
		}

		conflict := s.evaluator.Evaluate(CapacityQuery{
			Period:      period,
			RequesterID: owner.ID,
			Requests:    current,
			ExcludeID:   sub.EditID,
			Roster:      roster,
		})

		status := StatusPending
		if conflict != nil {
			if !sub.Force {
				decision = &Decision{Outcome: OutcomeNeedsConfirmation, Conflict: conflict}
				return nil, errNoChange
			}
			status = StatusWaitlist
		}

		id := sub.EditID
		if id == 0 {
			id = s.nextID(current)
		}
		req := Request{
			ID:             id,
			OwnerID:        owner.ID,
			OwnerName:      owner.Name,
			Start:          sub.Start,
			End:            sub.End,
			ChargeableDays: days,
			Status:         status,
			CreatedAt:      s.now().Format(CreatedAtLayout),
		}
		decision = &Decision{Outcome: OutcomeAccepted, Request: &req, Conflict: conflict}
		return append(current.Without(sub.EditID), req), nil
	})
	if err != nil {
		s.reject(owner.ID, err)
		return nil, err
	}

	switch {
	case decision.Outcome == OutcomeNeedsConfirmation:
		s.metrics.Decision(string(OutcomeNeedsConfirmation))
		s.logger.Info("submission needs confirmation",
			zap.String("employee_id", owner.ID),
			zap.Stringer("period", period),
			zap.String("reason", string(decision.Conflict.Reason)),
			zap.Stringer("day", decision.Conflict.Day))
	default:
		s.metrics.Decision(string(decision.Request.Status))
		s.logger.Info("submission accepted",
			zap.String("employee_id", owner.ID),
			zap.Int64("request_id", decision.Request.ID),
			zap.Stringer("period", period),
			zap.Int("days", days),
			zap.String("status", string(decision.Request.Status)),
			zap.Bool("edit", sub.EditID != 0))
	}
	return decision, nil
}

func (s *Service) reject(employeeID string, err error) {
	s.metrics.Decision("rejected")
	s.logger.Info("submission rejected",
		zap.String("employee_id", employeeID),
		zap.String("code", Code(err)),
		zap.Error(err))
}

// nextID derives an id from the creation time in milliseconds, bumped past
// the current maximum so ids stay unique within the collection.
func (s *Service) nextID(current Collection) int64 {
	id := s.now().UnixMilli()
	if max := current.MaxID(); id <= max {
		id = max + 1
	}
	return id
}

// =============================================================================
// ADMINISTRATIVE OPERATIONS
// =============================================================================

// Approve sets a request to approved. It does not re-run the capacity
// evaluation: administrator approval overrides the rules.
func (s *Service) Approve(ctx context.Context, caller Caller, id int64) (Request, error) {
	if !caller.IsAdmin {
		return Request{}, fmt.Errorf("approve request %d: %w", id, ErrNotAuthorized)
	}

	var approved Request
	var previous Status
	_, err := s.mutate(ctx, "approve", func(current Collection) (Collection, error) {
		for i := range current {
			if current[i].ID == id {
				previous = current[i].Status
				current[i].Status = StatusApproved
				approved = current[i]
				return current, nil
			}
		}
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	})
	if err != nil {
		return Request{}, err
	}

	s.logger.Warn("administrator override: request approved without capacity evaluation",
		zap.String("admin_id", caller.Employee.ID),
		zap.Int64("request_id", id),
		zap.String("owner_id", approved.OwnerID),
		zap.String("previous_status", string(previous)))
	return approved, nil
}

// Delete removes a request. The owner may cancel their own request; an
// administrator may delete any request, which is how requests are rejected.
func (s *Service) Delete(ctx context.Context, caller Caller, id int64) error {
	var removed Request
	_, err := s.mutate(ctx, "delete", func(current Collection) (Collection, error) {
		r, ok := current.Find(id)
		if !ok {
			return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
		}
		if r.OwnerID != caller.Employee.ID && !caller.IsAdmin {
			return nil, fmt.Errorf("delete request %d: %w", id, ErrNotAuthorized)
		}
		removed = r
		return current.Without(id), nil
	})
	if err != nil {
		return err
	}

	action := "cancelled"
	if removed.OwnerID != caller.Employee.ID {
		action = "rejected"
	}
	s.logger.Info("request deleted",
		zap.String("action", action),
		zap.String("caller_id", caller.Employee.ID),
		zap.Int64("request_id", id),
		zap.String("owner_id", removed.OwnerID),
		zap.String("status", string(removed.Status)))
	return nil
}

// Reset clears the whole collection.
func (s *Service) Reset(ctx context.Context, caller Caller) error {
	if !caller.IsAdmin {
		return fmt.Errorf("reset: %w", ErrNotAuthorized)
	}
	var dropped int
	_, err := s.mutate(ctx, "reset", func(current Collection) (Collection, error) {
		dropped = len(current)
		return Collection{}, nil
	})
	if err != nil {
		return err
	}
	s.logger.Warn("collection reset", zap.String("admin_id", caller.Employee.ID), zap.Int("dropped", dropped))
	return nil
}

// Restore replaces the collection with requests, recomputing each cached
// chargeable-day count. Used for demo scenarios and backup restores.
func (s *Service) Restore(ctx context.Context, caller Caller, requests Collection) (int, error) {
	if !caller.IsAdmin {
		return 0, fmt.Errorf("restore: %w", ErrNotAuthorized)
	}
	next := make(Collection, 0, len(requests))
	seen := make(map[int64]bool, len(requests))
	for _, r := range requests {
		if r.Start.After(r.End) || r.Period().Len() > MaxSpanDays {
			return 0, fmt.Errorf("request %d: %w", r.ID, ErrInvalidRange)
		}
		if seen[r.ID] {
			return 0, fmt.Errorf("restore: duplicate request id %d", r.ID)
		}
		seen[r.ID] = true
		r.ChargeableDays = s.calendar.ChargeableDays(r.Period())
		next = append(next, r)
	}

	_, err := s.mutate(ctx, "restore", func(Collection) (Collection, error) {
		return next, nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Warn("collection restored", zap.String("admin_id", caller.Employee.ID), zap.Int("requests", len(next)))
	return len(next), nil
}

// =============================================================================
// MUTATION LOOP
// =============================================================================

// mutate runs fn against the latest snapshot and writes its result with a
// version check, retrying on concurrent modification. fn receives a private
// copy of the collection. Returning errNoChange ends the loop without a write.
func (s *Service) mutate(ctx context.Context, op string, fn func(Collection) (Collection, error)) (Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}

		snap, err := s.store.Load(ctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%s: load requests: %w", op, err)
		}

		next, err := fn(snap.Requests.Clone())
		if errors.Is(err, errNoChange) {
			return snap, nil
		}
		if err != nil {
			return Snapshot{}, err
		}

		written, err := s.store.Replace(ctx, snap.Version, next)
		if err == nil {
			return written, nil
		}
		if !IsRetryable(err) {
			return Snapshot{}, fmt.Errorf("%s: replace requests: %w", op, err)
		}

		lastErr = err
		s.metrics.StoreConflict()
		s.logger.Debug("store version conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int64("version", snap.Version))
	}
	return Snapshot{}, fmt.Errorf("%s: gave up after %d attempts: %w", op, s.maxRetries, lastErr)
}
