/*
accrual.go - Monthly accrual generator

PURPOSE:
  Posts the monthly leave credits. One accrual transaction per employee per
  accruing category per calendar month, dated to the last day of the month
  and tagged with the "YYYY-MM" period key. Re-running a period is a no-op:
  already-posted periods are silently skipped, which makes the generator
  safe to run from a scheduler, a CLI, and a manual retry simultaneously.

RATE RESOLUTION:
  Tier-rated categories (paid planned leave) ask the rate schedule for the
  employee's rate as of the accrual date, so an accrual run after a
  promotion credits the new rate without any special casing. Fixed-rate
  categories use the policy's monthly amount.

SKIPS:
  Locked and inactive employees accrue nothing. Employees hired after the
  period accrue nothing for it. Skips are counted, not errored.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// ACCRUAL GENERATOR
// =============================================================================

// AccrualGenerator posts monthly accrual transactions through the service's
// gated submit path.
type AccrualGenerator struct {
	Service   *ledger.Service
	Directory ledger.Directory
	Policies  ledger.PolicySet
	Schedule  *RateSchedule
}

func NewAccrualGenerator(service *ledger.Service, directory ledger.Directory, policies ledger.PolicySet, schedule *RateSchedule) *AccrualGenerator {
	return &AccrualGenerator{Service: service, Directory: directory, Policies: policies, Schedule: schedule}
}

// RunSummary reports one generator run.
type RunSummary struct {
	Period     string
	Posted     int
	Duplicates int // periods already posted, silently skipped
	Skipped    int // locked, inactive or not-yet-hired employees
	Failed     int
}

// RunPeriod posts accruals for every active employee and accruing category
// for the month containing `period`. Safe to call repeatedly.
func (g *AccrualGenerator) RunPeriod(ctx context.Context, period ledger.TimePoint) (RunSummary, error) {
	summary := RunSummary{Period: period.PeriodKey()}

	employees, err := g.Directory.ListEmployees(ctx)
	if err != nil {
		return summary, err
	}

	for _, emp := range employees {
		if !emp.Active() {
			summary.Skipped++
			continue
		}
		if !emp.HireDate.IsZero() && ledger.StartOfMonth(emp.HireDate).After(period) {
			summary.Skipped++
			continue
		}
		if err := g.accrueEmployee(ctx, emp, period, &summary); err != nil {
			return summary, err
		}
	}

	log.Printf("[Accrual] period=%s posted=%d duplicates=%d skipped=%d failed=%d",
		summary.Period, summary.Posted, summary.Duplicates, summary.Skipped, summary.Failed)
	return summary, nil
}

func (g *AccrualGenerator) accrueEmployee(ctx context.Context, emp ledger.Employee, period ledger.TimePoint, summary *RunSummary) error {
	for _, policy := range g.Policies.Categories() {
		amount, err := g.rateFor(ctx, emp, policy, ledger.EndOfMonth(period))
		if err != nil {
			return err
		}
		if amount.IsZero() {
			continue
		}

		_, err = g.Service.Submit(ctx, ledger.SubmitRequest{
			Kind:        ledger.KindAccrual,
			EmployeeID:  emp.ID,
			Category:    policy.Category,
			Quantity:    amount,
			EffectiveAt: ledger.EndOfMonth(period),
			Actor:       ledger.SystemActor("accrual-generator"),
			PeriodKey:   period.PeriodKey(),
		})
		switch {
		case err == nil:
			summary.Posted++
		case errors.Is(err, ledger.ErrDuplicateAccrualPeriod):
			summary.Duplicates++
		case ledger.IsRejection(err):
			// A rejection here means the employee's state changed under us
			// (locked mid-run). Count it and keep going.
			summary.Failed++
			log.Printf("[Accrual] rejected employee=%s category=%s period=%s: %v",
				emp.ID, policy.Category, period.PeriodKey(), err)
		default:
			return fmt.Errorf("accrual for %s/%s: %w", emp.ID, policy.Category, err)
		}
	}
	return nil
}

// rateFor resolves the accrual amount for one employee/category at a date.
func (g *AccrualGenerator) rateFor(ctx context.Context, emp ledger.Employee, policy ledger.CategoryPolicy, at ledger.TimePoint) (ledger.Quantity, error) {
	if policy.AccruesByTier {
		return g.Schedule.RateAt(ctx, emp.ID, at)
	}
	return policy.MonthlyAccrual, nil
}

// Backfill runs every period from the month of `from` through the month of
// `to`, inclusive. Already-posted periods are skipped by the idempotence
// guard, so backfilling over a partially accrued range only fills the gaps.
func (g *AccrualGenerator) Backfill(ctx context.Context, from, to ledger.TimePoint) ([]RunSummary, error) {
	var summaries []RunSummary
	for _, month := range ledger.MonthsBetween(from, to) {
		s, err := g.RunPeriod(ctx, month)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
