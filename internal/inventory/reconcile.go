package inventory

import (
	"context"
)

// Reconcile recomputes a lot's position from unit rows. A mismatch against
// the stored counters is data for the caller to surface, never an error;
// the only failure mode is a missing lot.
func (s *Service) Reconcile(ctx context.Context, lotID int64) (StatusCounts, error) {
	if _, err := s.repo.GetLot(ctx, lotID); err != nil {
		return StatusCounts{}, err
	}
	return s.repo.CountUnitsByStatus(ctx, lotID)
}

// ReconcileAll scans every lot and flags those whose stored counters disagree
// with actual unit counts. Discrepancies are surfaced for manual review and
// never auto-corrected: legacy-entry lots carry counters with no unit rows
// behind them, and those are legitimate.
func (s *Service) ReconcileAll(ctx context.Context) ([]Discrepancy, error) {
	return s.repo.ListDiscrepancies(ctx)
}
