package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landbridge/contracts-service/internal/model"
)

func activatedRetainer(t *testing.T, store *fakeStore) *model.Contract {
	t.Helper()
	ctx := context.Background()

	sow := seedRetainer(store, model.ContractStatusClientUnderReview)
	seedWorkingEngineers(store, sow.ID)

	contracts, _ := newContractService(store)
	active, err := contracts.ClientDecision(ctx, client, sow.ID, true)
	require.NoError(t, err)
	require.True(t, active.BaselineFrozen)
	return active
}

func draftRetainerCR(t *testing.T, store *fakeStore, svc *ChangeRequestService, contract *model.Contract) *model.ChangeRequest {
	t.Helper()
	ctx := context.Background()

	baseline, err := store.ListEngineers(ctx, contract.ID, true)
	require.NoError(t, err)
	require.NotEmpty(t, baseline)

	cr, err := svc.Create(ctx, salesRep, contract.ID, ChangeRequestInput{
		Type:          model.CRTypeResourceChange,
		Title:         "Scale the platform team",
		Summary:       "Add two engineers, bump the lead's salary",
		EffectiveFrom: date(2026, 4, 1),
		ResourceDeltas: []model.ResourceDelta{
			{Action: model.ResourceActionAdd, Role: "SRE", BillingType: model.BillingTypeMonthly, RateNew: ptr(7000.0)},
			{Action: model.ResourceActionAdd, Role: "Data Engineer", BillingType: model.BillingTypeMonthly, RateNew: ptr(9000.0)},
			{Action: model.ResourceActionModify, EngineerID: ptr(baseline[0].ID), RateOld: ptr(8000.0), RateNew: ptr(8800.0)},
		},
		BillingDeltas: []model.BillingDelta{
			{PaymentDate: date(2026, 4, 30), Amount: 16000, Note: "April staffing uplift"},
		},
	})
	require.NoError(t, err)
	return cr
}

func TestCreateChangeRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns a yearly sequential code", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)

		cr := draftRetainerCR(t, store, svc, contract)
		assert.Regexp(t, `^CR-\d{4}-01$`, cr.Code)
		assert.Equal(t, model.ChangeRequestStatusDraft, cr.Status)
	})

	t.Run("type taxonomy follows the contract", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)

		_, err := svc.Create(ctx, salesRep, contract.ID, ChangeRequestInput{
			Type:          model.CRTypeExtendSchedule,
			Title:         "Wrong taxonomy",
			EffectiveFrom: date(2026, 4, 1),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("retainer requires an effective date", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)

		_, err := svc.Create(ctx, salesRep, contract.ID, ChangeRequestInput{
			Type:  model.CRTypeResourceChange,
			Title: "No effective date",
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("rejected on terminated contracts", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		sow := seedRetainer(store, model.ContractStatusTerminated)

		_, err := svc.Create(ctx, salesRep, sow.ID, ChangeRequestInput{
			Type:          model.CRTypeResourceChange,
			Title:         "Too late",
			EffectiveFrom: date(2026, 4, 1),
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestChangeRequestReviewFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("draft cannot be reviewed before submission", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		_, err := svc.SubmitReview(ctx, manager, cr.ID, ReviewActionApprove, "")
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("only the creator submits", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		_, err := svc.Submit(ctx, manager, cr.ID, manager.UserID)
		assert.ErrorIs(t, err, ErrPermissionDenied)

		submitted, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusUnderInternalReview, submitted.Status)
	})

	t.Run("revision request enters the processing loop", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)

		processing, err := svc.SubmitReview(ctx, manager, cr.ID, ReviewActionRequestRevision, "split the billing delta")
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusProcessing, processing.Status)
		assert.True(t, processing.Status.Editable())

		// Resubmission out of Processing works.
		resubmitted, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusUnderInternalReview, resubmitted.Status)
	})

	t.Run("retainer approval routes through the client gate", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)

		gated, err := svc.SubmitReview(ctx, manager, cr.ID, ReviewActionApprove, "")
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusClientUnderReview, gated.Status)

		// No side effects yet.
		events, err := store.ListResourceEvents(ctx, contract.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("concurrent reviews resolve to one winner", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)

		// Both callers loaded the CR under internal review; the CAS transition
		// lets exactly one through.
		loaded, err := store.GetChangeRequest(ctx, cr.ID)
		require.NoError(t, err)
		_, err = store.TransitionChangeRequest(ctx, loaded.ID, loaded.Status, model.ChangeRequestStatusClientUnderReview, nil)
		require.NoError(t, err)
		_, err = store.TransitionChangeRequest(ctx, loaded.ID, loaded.Status, model.ChangeRequestStatusProcessing, nil)
		assert.ErrorIs(t, err, ErrConcurrentModification)
	})
}

func TestRetainerApprovalSideEffects(t *testing.T) {
	ctx := context.Background()

	approveThroughClient := func(t *testing.T, store *fakeStore, svc *ChangeRequestService, cr *model.ChangeRequest) (*model.ChangeRequest, error) {
		t.Helper()
		_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)
		_, err = svc.SubmitReview(ctx, manager, cr.ID, ReviewActionApprove, "")
		require.NoError(t, err)
		return svc.ClientDecision(ctx, client, cr.ID, true, "agreed")
	}

	t.Run("approval lands all side effects in one transaction", func(t *testing.T) {
		store := newFakeStore()
		svc, renderer, attachments := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		approved, err := approveThroughClient(t, store, svc, cr)
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusApproved, approved.Status)
		require.NotNil(t, approved.AppendixID)
		require.NotNil(t, approved.ApprovedBy)
		assert.Equal(t, client.UserID, *approved.ApprovedBy)

		// Exactly one appendix, numbered sequentially.
		appendix, err := store.GetAppendix(ctx, *approved.AppendixID)
		require.NoError(t, err)
		assert.Equal(t, 1, appendix.Number)
		assert.Equal(t, "PL-001", appendix.Code)
		assert.Equal(t, cr.ID, appendix.ChangeRequestID)

		// One event per delta, ordered.
		events, err := store.ListResourceEvents(ctx, contract.ID)
		require.NoError(t, err)
		require.Len(t, events, 3)
		for _, ev := range events {
			assert.Equal(t, cr.ID, ev.ChangeRequestID)
			assert.Equal(t, appendix.ID, ev.AppendixID)
		}

		// One billing adjustment row, tagged with its source CR.
		rows, err := store.ListBillingDetails(ctx, contract.ID)
		require.NoError(t, err)
		var adjustments int
		for _, row := range rows {
			if row.SourceCRID != nil && *row.SourceCRID == cr.ID {
				adjustments++
				assert.Equal(t, 16000.0, row.Amount)
			}
		}
		assert.Equal(t, 1, adjustments)

		// The PDF was rendered and stored after commit.
		assert.Equal(t, 1, renderer.rendered)
		stored, err := store.GetAppendix(ctx, appendix.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, stored.PDFKey)
		assert.Contains(t, attachments.objects, stored.PDFKey)

		// The fold now includes the approved changes.
		snap, err := NewReconstructor(store).CurrentState(ctx, contract.ID)
		require.NoError(t, err)
		assert.Len(t, snap.Resources, 4)
	})

	t.Run("a failed side effect rolls the whole approval back", func(t *testing.T) {
		store := newFakeStore()
		svc, renderer, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		store.appendEventsErr = errors.New("disk full")
		_, err := approveThroughClient(t, store, svc, cr)
		require.Error(t, err)

		// No events, no appendix, no billing rows, status unchanged.
		events, err := store.ListResourceEvents(ctx, contract.ID)
		require.NoError(t, err)
		assert.Empty(t, events)

		reloaded, err := store.GetChangeRequest(ctx, cr.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusClientUnderReview, reloaded.Status)
		assert.Nil(t, reloaded.AppendixID)

		rows, err := store.ListBillingDetails(ctx, contract.ID)
		require.NoError(t, err)
		for _, row := range rows {
			assert.Nil(t, row.SourceCRID)
		}
		assert.Zero(t, renderer.rendered)

		// Clearing the fault lets the same CR approve cleanly.
		store.appendEventsErr = nil
		approved, err := svc.ClientDecision(ctx, client, cr.ID, true, "retry")
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusApproved, approved.Status)
	})

	t.Run("appendix numbers grow per contract", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)

		first := draftRetainerCR(t, store, svc, contract)
		approved, err := approveThroughClient(t, store, svc, first)
		require.NoError(t, err)
		a1, err := store.GetAppendix(ctx, *approved.AppendixID)
		require.NoError(t, err)
		assert.Equal(t, 1, a1.Number)

		second := draftRetainerCR(t, store, svc, contract)
		approved2, err := approveThroughClient(t, store, svc, second)
		require.NoError(t, err)
		a2, err := store.GetAppendix(ctx, *approved2.AppendixID)
		require.NoError(t, err)
		assert.Equal(t, 2, a2.Number)
		assert.Equal(t, "PL-002", a2.Code)
	})

	t.Run("client rejection leaves the ledger untouched", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newCRService(store)
		contract := activatedRetainer(t, store)
		cr := draftRetainerCR(t, store, svc, contract)

		_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
		require.NoError(t, err)
		_, err = svc.SubmitReview(ctx, manager, cr.ID, ReviewActionApprove, "")
		require.NoError(t, err)

		rejected, err := svc.ClientDecision(ctx, client, cr.ID, false, "too expensive")
		require.NoError(t, err)
		assert.Equal(t, model.ChangeRequestStatusRejected, rejected.Status)
		assert.Nil(t, rejected.AppendixID)

		events, err := store.ListResourceEvents(ctx, contract.ID)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestFixedPriceApproval(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newCRService(store)
	fp := seedFixedPrice(store, model.ContractStatusActive)

	newEnd := date(2026, 11, 30)
	cr, err := svc.Create(ctx, salesRep, fp.ID, ChangeRequestInput{
		Type:           model.CRTypeExtendSchedule,
		Title:          "Slip the launch",
		Summary:        "Two extra months for the payment integration",
		DevHours:       ptr(320),
		TestHours:      ptr(80),
		DelayDays:      ptr(61),
		NewEndDate:     &newEnd,
		AdditionalCost: ptr(15000.0),
	})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
	require.NoError(t, err)

	// No client gate for Fixed Price: internal approval is terminal.
	approved, err := svc.SubmitReview(ctx, manager, cr.ID, ReviewActionApprove, "impact accepted")
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRequestStatusApproved, approved.Status)
	assert.Nil(t, approved.AppendixID)

	// The impact analysis lands on the contract and reopens it for editing.
	contract, err := store.GetContract(ctx, fp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContractStatusRequestForChange, contract.Status)
	assert.Equal(t, newEnd, contract.EffectiveEnd)
	assert.Equal(t, 105000.0, contract.Value)

	events, err := store.ListResourceEvents(ctx, fp.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestPastDataLock(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newCRService(store)
	contract := activatedRetainer(t, store)

	// End one baseline engineer before the CR's effective date.
	baseline, err := store.ListEngineers(ctx, contract.ID, true)
	require.NoError(t, err)
	ended := baseline[0]
	endDate := date(2026, 2, 28)
	ended.EndDate = &endDate
	require.NoError(t, store.CreateEngineers(ctx, []model.EngagedEngineer{ended}))
	// CreateEngineers with an existing ID overwrites the row in the fake.

	cr, err := svc.Create(ctx, salesRep, contract.ID, ChangeRequestInput{
		Type:          model.CRTypeResourceChange,
		Title:         "Touch history",
		EffectiveFrom: date(2026, 4, 1),
	})
	require.NoError(t, err)

	t.Run("editing a row that ended before the effective date is rejected", func(t *testing.T) {
		_, err := svc.Update(ctx, salesRep, cr.ID, ChangeRequestInput{
			ResourceDeltas: []model.ResourceDelta{
				{Action: model.ResourceActionModify, EngineerID: ptr(ended.ID), RateNew: ptr(9999.0)},
			},
		})
		assert.ErrorIs(t, err, ErrImmutableField)
	})

	t.Run("billing adjustments before the effective date are rejected", func(t *testing.T) {
		_, err := svc.Update(ctx, salesRep, cr.ID, ChangeRequestInput{
			BillingDeltas: []model.BillingDelta{
				{PaymentDate: date(2026, 3, 15), Amount: 500},
			},
		})
		assert.ErrorIs(t, err, ErrImmutableField)
	})

	t.Run("deltas at or after the effective date pass", func(t *testing.T) {
		_, err := svc.Update(ctx, salesRep, cr.ID, ChangeRequestInput{
			BillingDeltas: []model.BillingDelta{
				{PaymentDate: date(2026, 4, 30), Amount: 500},
			},
		})
		assert.NoError(t, err)
	})
}

func TestChangeRequestUpdateRights(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newCRService(store)
	contract := activatedRetainer(t, store)
	cr := draftRetainerCR(t, store, svc, contract)

	t.Run("only the creator edits a draft", func(t *testing.T) {
		_, err := svc.Update(ctx, manager, cr.ID, ChangeRequestInput{Title: "Hijack"})
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})

	t.Run("terminal states are frozen", func(t *testing.T) {
		_, err := store.TransitionChangeRequest(ctx, cr.ID, model.ChangeRequestStatusDraft, model.ChangeRequestStatusRejected, nil)
		require.NoError(t, err)

		_, err = svc.Update(ctx, salesRep, cr.ID, ChangeRequestInput{Title: "Too late"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestManagerFastApproval(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newCRService(store)
	contract := activatedRetainer(t, store)
	cr := draftRetainerCR(t, store, svc, contract)

	_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
	require.NoError(t, err)
	_, err = svc.SubmitReview(ctx, manager, cr.ID, ReviewActionRequestRevision, "tighten the notes")
	require.NoError(t, err)

	gated, err := svc.ApproveAsManager(ctx, manager, cr.ID, "good enough now")
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRequestStatusClientUnderReview, gated.Status)
}

func TestRejectChangeRequest(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc, _, _ := newCRService(store)
	contract := activatedRetainer(t, store)
	cr := draftRetainerCR(t, store, svc, contract)

	_, err := svc.Submit(ctx, salesRep, cr.ID, manager.UserID)
	require.NoError(t, err)
	_, err = svc.SubmitReview(ctx, manager, cr.ID, ReviewActionRequestRevision, "not viable")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, salesRep, cr.ID, "nope")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	rejected, err := svc.Reject(ctx, manager, cr.ID, "client pulled the budget")
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRequestStatusRejected, rejected.Status)
	assert.Contains(t, rejected.Reason, "client pulled the budget")

	// Soft delete: the record and its trail survive.
	reloaded, err := store.GetChangeRequest(ctx, cr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ChangeRequestStatusRejected, reloaded.Status)
	history, err := store.ListHistory(ctx, nil, &cr.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}
