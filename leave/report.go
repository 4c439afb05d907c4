package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Report is a tabular snapshot of the whole collection.
type Report struct {
	Rows        Collection
	Pending     int
	GeneratedAt time.Time
	// ApprovedShare is the percentage of chargeable days already approved.
	ApprovedShare decimal.Decimal
}

// Summary returns the one-line status for the report recipient.
func (r *Report) Summary() string {
	if r.Pending > 0 {
		return fmt.Sprintf("Action required: %d pending requests.", r.Pending)
	}
	return "System running normal. No pending requests."
}

// ExportReport builds a report of all requests.
func (s *Service) ExportReport(ctx context.Context) (*Report, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	var total, approved int64
	for _, r := range snap.Requests {
		total += int64(r.ChargeableDays)
		if r.Status == StatusApproved {
			approved += int64(r.ChargeableDays)
		}
	}
	share := decimal.Zero
	if total > 0 {
		share = decimal.NewFromInt(approved).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(total)).Round(1)
	}

	return &Report{
		Rows:          snap.Requests.Clone(),
		Pending:       snap.Requests.CountStatus(StatusPending),
		GeneratedAt:   s.now(),
		ApprovedShare: share,
	}, nil
}

// ExportReportFor is ExportReport restricted to administrators.
func (s *Service) ExportReportFor(ctx context.Context, caller Caller) (*Report, error) {
	if !caller.IsAdmin {
		return nil, fmt.Errorf("export report: %w", ErrNotAuthorized)
	}
	return s.ExportReport(ctx)
}
