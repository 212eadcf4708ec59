package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/landbridge/contracts-service/internal/model"
)

// ResourceState is one engineer row as derived by the fold. EngineerID points
// at the baseline row the state descends from; rows added by change requests
// carry no baseline id.
type ResourceState struct {
	EngineerID  *uint
	Role        string
	Level       string
	BillingType model.BillingType

	Rating        float64
	MonthlySalary float64
	HourlyRate    float64
	Hours         float64

	StartDate time.Time
	EndDate   *time.Time
}

// Subtotal mirrors EngagedEngineer.Subtotal for derived rows.
func (s ResourceState) Subtotal() float64 {
	if s.BillingType == model.BillingTypeHourly {
		return s.HourlyRate * s.Hours
	}
	return s.MonthlySalary
}

// Snapshot is a derived view of a Retainer contract at one point in the event
// log: staffing plus the billing ledger.
type Snapshot struct {
	Resources []ResourceState
	Billing   []model.BillingDetail
	Total     float64
}

// Reconstructor derives the current state of a Retainer SOW from its frozen
// baseline plus the ordered sequence of approved resource events. It never
// mutates; every method is safe for concurrent readers.
type Reconstructor struct {
	store Store
}

func NewReconstructor(store Store) *Reconstructor {
	return &Reconstructor{store: store}
}

// Baseline returns the snapshot frozen at first entry into Active.
func (r *Reconstructor) Baseline(ctx context.Context, contractID uint) (*Snapshot, error) {
	engineers, err := r.store.ListEngineers(ctx, contractID, true)
	if err != nil {
		return nil, err
	}
	billing, err := r.baselineBilling(ctx, contractID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Resources: baselineStates(engineers),
		Billing:   billing,
	}
	snap.Total = ledgerTotal(billing)
	return snap, nil
}

// CurrentState folds the baseline through every persisted resource event.
// Events are only ever written at terminal change-request approval, so the
// persisted log is exactly the approved set.
func (r *Reconstructor) CurrentState(ctx context.Context, contractID uint) (*Snapshot, error) {
	engineers, err := r.store.ListEngineers(ctx, contractID, true)
	if err != nil {
		return nil, err
	}
	events, err := r.store.ListResourceEvents(ctx, contractID)
	if err != nil {
		return nil, err
	}
	baseline, err := r.baselineBilling(ctx, contractID)
	if err != nil {
		return nil, err
	}
	adjustments, err := r.approvedAdjustments(ctx, contractID)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Resources: FoldResources(engineers, events),
		Billing:   FoldBilling(baseline, adjustments),
	}
	snap.Total = ledgerTotal(snap.Billing)
	return snap, nil
}

// Preview returns the pre-CR current state alongside the state that approving
// the pending change request would produce. The event log is not touched.
func (r *Reconstructor) Preview(ctx context.Context, contractID uint, cr *model.ChangeRequest) (before, after *Snapshot, err error) {
	before, err = r.CurrentState(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}

	deltas, err := r.store.ListResourceDeltas(ctx, cr.ID)
	if err != nil {
		return nil, nil, err
	}
	billingDeltas, err := r.store.ListBillingDeltas(ctx, cr.ID)
	if err != nil {
		return nil, nil, err
	}

	engineers, err := r.store.ListEngineers(ctx, contractID, true)
	if err != nil {
		return nil, nil, err
	}
	events, err := r.store.ListResourceEvents(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	pending := EventsFromDeltas(cr, 0, deltas)
	after = &Snapshot{
		Resources: FoldResources(engineers, append(append([]model.ResourceEvent{}, events...), pending...)),
		Billing:   append(append([]model.BillingDetail{}, before.Billing...), adjustmentRows(contractID, cr.ID, billingDeltas)...),
	}
	sortLedger(after.Billing)
	after.Total = ledgerTotal(after.Billing)
	return before, after, nil
}

func (r *Reconstructor) baselineBilling(ctx context.Context, contractID uint) ([]model.BillingDetail, error) {
	rows, err := r.store.ListBillingDetails(ctx, contractID)
	if err != nil {
		return nil, err
	}
	out := make([]model.BillingDetail, 0, len(rows))
	for _, row := range rows {
		if row.Baseline {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *Reconstructor) approvedAdjustments(ctx context.Context, contractID uint) ([]model.BillingDetail, error) {
	rows, err := r.store.ListBillingDetails(ctx, contractID)
	if err != nil {
		return nil, err
	}
	out := make([]model.BillingDetail, 0, len(rows))
	for _, row := range rows {
		if !row.Baseline && row.SourceCRID != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

// FoldResources applies events to the baseline in ascending effective-date
// order, ties broken by sequence. ADD inserts a row, REMOVE tombstones the
// matching baseline row, MODIFY replaces the named fields. The fold is pure:
// inputs are never mutated.
func FoldResources(baseline []model.EngagedEngineer, events []model.ResourceEvent) []ResourceState {
	state := baselineStates(baseline)

	ordered := append([]model.ResourceEvent{}, events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].EffectiveFrom.Equal(ordered[j].EffectiveFrom) {
			return ordered[i].EffectiveFrom.Before(ordered[j].EffectiveFrom)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	for _, ev := range ordered {
		switch ev.Action {
		case model.ResourceActionAdd:
			added := ResourceState{
				Role:        ev.Role,
				Level:       ev.Level,
				BillingType: ev.BillingType,
				StartDate:   ev.EffectiveFrom,
			}
			if ev.StartDateNew != nil {
				added.StartDate = *ev.StartDateNew
			}
			added.EndDate = copyDate(ev.EndDateNew)
			if ev.RatingNew != nil {
				added.Rating = *ev.RatingNew
			}
			if ev.RateNew != nil {
				if ev.BillingType == model.BillingTypeHourly {
					added.HourlyRate = *ev.RateNew
				} else {
					added.MonthlySalary = *ev.RateNew
				}
			}
			if ev.HoursNew != nil {
				added.Hours = *ev.HoursNew
			}
			state = append(state, added)

		case model.ResourceActionRemove:
			if ev.EngineerID == nil {
				continue
			}
			for i := range state {
				if state[i].EngineerID != nil && *state[i].EngineerID == *ev.EngineerID {
					end := ev.EffectiveFrom
					if ev.EndDateNew != nil {
						end = *ev.EndDateNew
					}
					state[i].EndDate = &end
				}
			}

		case model.ResourceActionModify:
			if ev.EngineerID == nil {
				continue
			}
			for i := range state {
				if state[i].EngineerID == nil || *state[i].EngineerID != *ev.EngineerID {
					continue
				}
				if ev.RatingNew != nil {
					state[i].Rating = *ev.RatingNew
				}
				if ev.RateNew != nil {
					if state[i].BillingType == model.BillingTypeHourly {
						state[i].HourlyRate = *ev.RateNew
					} else {
						state[i].MonthlySalary = *ev.RateNew
					}
				}
				if ev.HoursNew != nil {
					state[i].Hours = *ev.HoursNew
				}
				if ev.StartDateNew != nil {
					state[i].StartDate = *ev.StartDateNew
				}
				if ev.EndDateNew != nil {
					state[i].EndDate = copyDate(ev.EndDateNew)
				}
			}
		}
	}
	return state
}

func baselineStates(rows []model.EngagedEngineer) []ResourceState {
	out := make([]ResourceState, 0, len(rows))
	for _, row := range rows {
		id := row.ID
		out = append(out, ResourceState{
			EngineerID:    &id,
			Role:          row.Role,
			Level:         row.Level,
			BillingType:   row.BillingType,
			Rating:        row.Rating,
			MonthlySalary: row.MonthlySalary,
			HourlyRate:    row.HourlyRate,
			Hours:         row.Hours,
			StartDate:     row.StartDate,
			EndDate:       copyDate(row.EndDate),
		})
	}
	return out
}

// EventsFromDeltas materializes a change request's proposed deltas as resource
// events, ordered by effective date then submission order.
func EventsFromDeltas(cr *model.ChangeRequest, appendixID uint, deltas []model.ResourceDelta) []model.ResourceEvent {
	ordered := append([]model.ResourceDelta{}, deltas...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].EffectiveFrom.Equal(ordered[j].EffectiveFrom) {
			return ordered[i].EffectiveFrom.Before(ordered[j].EffectiveFrom)
		}
		return ordered[i].Position < ordered[j].Position
	})

	events := make([]model.ResourceEvent, 0, len(ordered))
	for i, d := range ordered {
		effective := d.EffectiveFrom
		if effective.IsZero() {
			effective = cr.EffectiveFrom
		}
		events = append(events, model.ResourceEvent{
			ContractID:      cr.ContractID,
			ChangeRequestID: cr.ID,
			AppendixID:      appendixID,
			Seq:             i,
			Action:          d.Action,
			EngineerID:      d.EngineerID,
			Role:            d.Role,
			Level:           d.Level,
			BillingType:     d.BillingType,
			RatingOld:       d.RatingOld,
			RatingNew:       d.RatingNew,
			RateOld:         d.RateOld,
			RateNew:         d.RateNew,
			HoursOld:        d.HoursOld,
			HoursNew:        d.HoursNew,
			StartDateOld:    d.StartDateOld,
			StartDateNew:    d.StartDateNew,
			EndDateOld:      d.EndDateOld,
			EndDateNew:      d.EndDateNew,
			EffectiveFrom:   effective,
		})
	}
	return events
}

// FoldBilling combines the frozen baseline rows with the signed adjustment
// rows appended by approved change requests, ordered by payment date.
func FoldBilling(baseline, adjustments []model.BillingDetail) []model.BillingDetail {
	out := make([]model.BillingDetail, 0, len(baseline)+len(adjustments))
	out = append(out, baseline...)
	out = append(out, adjustments...)
	sortLedger(out)
	return out
}

func sortLedger(rows []model.BillingDetail) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].PaymentDate.Before(rows[j].PaymentDate)
	})
}

func ledgerTotal(rows []model.BillingDetail) float64 {
	var total float64
	for _, row := range rows {
		total += row.Amount
	}
	return total
}

func adjustmentRows(contractID, crID uint, deltas []model.BillingDelta) []model.BillingDetail {
	rows := make([]model.BillingDetail, 0, len(deltas))
	for _, d := range deltas {
		id := crID
		rows = append(rows, model.BillingDetail{
			ContractID:  contractID,
			PaymentDate: d.PaymentDate,
			Amount:      d.Amount,
			Note:        d.Note,
			SourceCRID:  &id,
		})
	}
	return rows
}

// ValidateMilestonePercentages rejects milestone sets whose payment
// percentages exceed 100. Enforced at edit time so the prior state survives a
// bad edit untouched.
func ValidateMilestonePercentages(milestones []model.Milestone) error {
	var sum float64
	for _, m := range milestones {
		if m.PaymentPercentage < 0 {
			return fmt.Errorf("%w: milestone %q has negative payment percentage", ErrInvalidInput, m.Name)
		}
		sum += m.PaymentPercentage
	}
	if sum > 100 {
		return fmt.Errorf("%w: milestone percentages sum to %.2f, must not exceed 100", ErrInvalidInput, sum)
	}
	return nil
}

// MilestoneBilling derives the Fixed-Price ledger deterministically from
// milestone percentages and the contract's billing-day policy.
func MilestoneBilling(contract *model.Contract, milestones []model.Milestone) ([]model.BillingDetail, error) {
	if err := ValidateMilestonePercentages(milestones); err != nil {
		return nil, err
	}
	rows := make([]model.BillingDetail, 0, len(milestones))
	for _, m := range milestones {
		pct := m.PaymentPercentage
		rows = append(rows, model.BillingDetail{
			ContractID:  contract.ID,
			BillingName: m.Name + " Payment",
			Milestone:   m.Name,
			Percentage:  &pct,
			Amount:      math.Round(contract.Value * m.PaymentPercentage / 100),
			PaymentDate: InvoiceDate(m.PlannedEnd, contract.BillingDay),
			Note:        m.DeliveryNote,
		})
	}
	return rows, nil
}

// InvoiceDate applies the billing-day policy: if the milestone's planned end
// falls after the billing day, the invoice slips to the billing day of the
// following month, otherwise it lands in the same month. "Last business day"
// resolves to the last calendar day of the applicable month.
func InvoiceDate(plannedEnd time.Time, billingDay string) time.Time {
	if billingDay == "" {
		return plannedEnd
	}
	year, month, _ := plannedEnd.Date()

	last := strings.Contains(strings.ToLower(billingDay), "last")
	day := plannedEnd.Day()
	if last {
		day = lastDayOfMonth(year, month)
	} else if n, ok := firstNumber(billingDay); ok {
		day = n
	}

	if plannedEnd.Day() > day {
		month++
	}
	if last {
		day = lastDayOfMonth(year, month)
	} else if max := lastDayOfMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, plannedEnd.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func firstNumber(s string) (int, bool) {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(s[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(s[start:])
		return n, err == nil
	}
	return 0, false
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
