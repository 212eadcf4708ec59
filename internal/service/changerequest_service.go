package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/landbridge/contracts-service/internal/model"
)

// AppendixDocument is the material handed to the PDF renderer for one
// approved change request.
type AppendixDocument struct {
	Contract      *model.Contract
	ChangeRequest *model.ChangeRequest
	Appendix      *model.Appendix
	Events        []model.ResourceEvent
	Billing       []model.BillingDetail
}

// AppendixRenderer produces the appendix PDF. Rendering happens outside the
// approval transaction; the document references only committed state.
type AppendixRenderer interface {
	Render(doc AppendixDocument) ([]byte, error)
}

// AttachmentStore is the external object store for uploaded documents and
// generated appendix PDFs. Idempotent and retryable, never part of a status
// transition's transactional boundary.
type AttachmentStore interface {
	Upload(ctx context.Context, name string, content []byte) (key string, err error)
	IssuePresignedURL(key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ChangeRequestService is the change-request state machine. Terminal approval
// of a Retainer CR emits resource events, allocates the appendix and appends
// billing adjustments in one transaction; a partially applied approval never
// commits.
type ChangeRequestService struct {
	store       Store
	identity    IdentityProvider
	recon       *Reconstructor
	renderer    AppendixRenderer
	attachments AttachmentStore
	notifier    Notifier
	log         zerolog.Logger
}

func NewChangeRequestService(
	store Store,
	identity IdentityProvider,
	recon *Reconstructor,
	renderer AppendixRenderer,
	attachments AttachmentStore,
	notifier Notifier,
	log zerolog.Logger,
) *ChangeRequestService {
	return &ChangeRequestService{
		store:       store,
		identity:    identity,
		recon:       recon,
		renderer:    renderer,
		attachments: attachments,
		notifier:    notifier,
		log:         log,
	}
}

type ChangeRequestInput struct {
	Type           model.ChangeRequestType
	Title          string
	Summary        string
	Reason         string
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time

	// Fixed-Price impact analysis
	DevHours       *int
	TestHours      *int
	NewEndDate     *time.Time
	DelayDays      *int
	AdditionalCost *float64

	// Replacing nil leaves the collection untouched on update.
	ResourceDeltas []model.ResourceDelta
	BillingDeltas  []model.BillingDelta
}

// Get loads one change request with its proposed deltas.
func (s *ChangeRequestService) Get(ctx context.Context, actor model.Principal, crID uint) (*model.ChangeRequest, []model.ResourceDelta, []model.BillingDelta, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, nil, nil, err
	}
	contract, err := s.store.GetContract(ctx, cr.ContractID)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.requireContractParty(actor, contract); err != nil {
		return nil, nil, nil, err
	}
	resources, err := s.store.ListResourceDeltas(ctx, cr.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	billing, err := s.store.ListBillingDeltas(ctx, cr.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return cr, resources, billing, nil
}

// List returns the contract's change requests, oldest first.
func (s *ChangeRequestService) List(ctx context.Context, actor model.Principal, contractID uint) ([]model.ChangeRequest, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContractParty(actor, contract); err != nil {
		return nil, err
	}
	return s.store.ListChangeRequests(ctx, contractID)
}

// Staffing returns the frozen baseline and the reconstructed current state of
// a Retainer contract.
func (s *ChangeRequestService) Staffing(ctx context.Context, actor model.Principal, contractID uint) (baseline, current *Snapshot, err error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	if !contract.IsRetainer() {
		return nil, nil, fmt.Errorf("%w: staffing applies to Retainer contracts only", ErrInvalidInput)
	}
	if err := s.requireContractParty(actor, contract); err != nil {
		return nil, nil, err
	}
	baseline, err = s.recon.Baseline(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	current, err = s.recon.CurrentState(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	return baseline, current, nil
}

// AppendixLink issues a short-lived download URL for an appendix PDF.
func (s *ChangeRequestService) AppendixLink(ctx context.Context, actor model.Principal, appendixID uint) (*model.Appendix, string, error) {
	appendix, err := s.store.GetAppendix(ctx, appendixID)
	if err != nil {
		return nil, "", err
	}
	contract, err := s.store.GetContract(ctx, appendix.ContractID)
	if err != nil {
		return nil, "", err
	}
	if err := s.requireContractParty(actor, contract); err != nil {
		return nil, "", err
	}
	if appendix.PDFKey == "" {
		return nil, "", fmt.Errorf("%w: appendix %s has no rendered document yet", ErrNotFound, appendix.Code)
	}
	url, err := s.attachments.IssuePresignedURL(appendix.PDFKey)
	if err != nil {
		return nil, "", err
	}
	return appendix, url, nil
}

// Create opens a change request in Draft against an Active contract, or
// against an editable contract for the constrained-edit case.
func (s *ChangeRequestService) Create(ctx context.Context, actor model.Principal, contractID uint, input ChangeRequestInput) (*model.ChangeRequest, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.requireContractParty(actor, contract); err != nil {
		return nil, err
	}
	if contract.Status != model.ContractStatusActive && !contract.Status.Editable() {
		return nil, fmt.Errorf("%w: change requests require an Active or editable contract, got %s", ErrInvalidInput, contract.Status)
	}
	if !model.ValidChangeRequestType(input.Type, contract.Kind, contract.EngagementType) {
		return nil, fmt.Errorf("%w: change request type %s is not valid for %s/%s contracts",
			ErrInvalidInput, input.Type, contract.Kind, contract.EngagementType)
	}
	if input.Summary == "" && input.Title == "" {
		return nil, fmt.Errorf("%w: a title or summary is required", ErrInvalidInput)
	}
	if contract.IsRetainer() && input.EffectiveFrom.IsZero() {
		return nil, fmt.Errorf("%w: effective-from date is required for Retainer change requests", ErrInvalidInput)
	}

	cr := &model.ChangeRequest{
		ContractID:     contract.ID,
		Type:           input.Type,
		Status:         model.ChangeRequestStatusDraft,
		Title:          input.Title,
		Summary:        firstNonEmpty(input.Summary, input.Title),
		Reason:         input.Reason,
		EffectiveFrom:  input.EffectiveFrom,
		EffectiveUntil: input.EffectiveUntil,
		DevHours:       input.DevHours,
		TestHours:      input.TestHours,
		NewEndDate:     input.NewEndDate,
		DelayDays:      input.DelayDays,
		AdditionalCost: input.AdditionalCost,
		CreatedBy:      actor.UserID,
	}

	err = s.store.Atomically(ctx, func(tx Store) error {
		count, err := tx.CountChangeRequests(ctx, time.Now().Year())
		if err != nil {
			return err
		}
		cr.Code = fmt.Sprintf("CR-%d-%02d", time.Now().Year(), count+1)
		if err := tx.CreateChangeRequest(ctx, cr); err != nil {
			return err
		}
		if err := s.replaceDeltas(ctx, tx, cr, contract, input); err != nil {
			return err
		}
		return s.history(ctx, tx, cr, model.HistoryCreated,
			fmt.Sprintf("Change request %s created by %s", cr.Code, actor.FullName), actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify("change_request.created", map[string]any{"change_request_id": cr.ID, "code": cr.Code})
	return cr, nil
}

// Update edits a change request's fields and proposed deltas. Permitted for
// the creator while Draft, or for anyone with contract edit rights while
// Processing. Rows already effective before the CR's effective-from date are
// past-locked and rejected, not hidden.
func (s *ChangeRequestService) Update(ctx context.Context, actor model.Principal, crID uint, input ChangeRequestInput) (*model.ChangeRequest, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, cr.ContractID)
	if err != nil {
		return nil, err
	}

	switch cr.Status {
	case model.ChangeRequestStatusDraft:
		if cr.CreatedBy != actor.UserID {
			return nil, fmt.Errorf("%w: only the creator can edit a draft change request", ErrPermissionDenied)
		}
	case model.ChangeRequestStatusProcessing:
		if !actor.IsSalesManager() && actor.UserID != contract.AssigneeID && actor.UserID != cr.CreatedBy {
			return nil, fmt.Errorf("%w: caller lacks edit rights on this change request", ErrPermissionDenied)
		}
	default:
		return nil, fmt.Errorf("%w: change request %s is not editable in status %s", ErrInvalidInput, cr.Code, cr.Status)
	}

	applyChangeRequestInput(cr, input)
	if err := s.checkPastDataLock(ctx, cr, contract, input); err != nil {
		return nil, err
	}

	err = s.store.Atomically(ctx, func(tx Store) error {
		if err := tx.SaveChangeRequest(ctx, cr); err != nil {
			return err
		}
		if err := s.replaceDeltas(ctx, tx, cr, contract, input); err != nil {
			return err
		}
		return s.history(ctx, tx, cr, model.HistoryUpdated,
			fmt.Sprintf("Change request updated by %s", actor.FullName), actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return cr, nil
}

// Submit hands a draft or revised change request to an internal reviewer.
func (s *ChangeRequestService) Submit(ctx context.Context, actor model.Principal, crID, reviewerID uint) (*model.ChangeRequest, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if cr.CreatedBy != actor.UserID {
		return nil, fmt.Errorf("%w: only the creator can submit this change request", ErrPermissionDenied)
	}
	if !cr.Status.Editable() {
		return nil, fmt.Errorf("%w: change request %s cannot be submitted from status %s", ErrInvalidInput, cr.Code, cr.Status)
	}
	if reviewerID == 0 {
		return nil, fmt.Errorf("%w: internal reviewer is required", ErrInvalidInput)
	}
	reviewer, err := s.identity.Resolve(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !reviewer.IsSalesManager() {
		return nil, fmt.Errorf("%w: internal reviewer must hold the Sales Manager capability", ErrInvalidInput)
	}

	updated, err := s.store.TransitionChangeRequest(ctx, cr.ID, cr.Status, model.ChangeRequestStatusUnderInternalReview, func(c *model.ChangeRequest) {
		c.InternalReviewerID = &reviewerID
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, updated, model.HistorySubmitted,
		fmt.Sprintf("Submitted for internal review by %s", actor.FullName), actor.UserID, "change_request.submitted")
	return updated, nil
}

// SubmitReview records the internal reviewer's verdict. APPROVE routes
// Retainer CRs to the client gate; Fixed-Price and MSA flows have no client
// gate and approve terminally.
func (s *ChangeRequestService) SubmitReview(ctx context.Context, actor model.Principal, crID uint, action ReviewAction, notes string) (*model.ChangeRequest, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if cr.InternalReviewerID == nil || *cr.InternalReviewerID != actor.UserID {
		return nil, fmt.Errorf("%w: only the assigned internal reviewer can review", ErrPermissionDenied)
	}
	if cr.Status != model.ChangeRequestStatusUnderInternalReview {
		return nil, fmt.Errorf("%w: change request %s is not under internal review", ErrInvalidInput, cr.Code)
	}
	contract, err := s.store.GetContract(ctx, cr.ContractID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ReviewActionRequestRevision:
		updated, err := s.store.TransitionChangeRequest(ctx, cr.ID, cr.Status, model.ChangeRequestStatusProcessing, func(c *model.ChangeRequest) {
			c.ReviewNotes = notes
		})
		if err != nil {
			return nil, err
		}
		s.afterTransition(ctx, updated, model.HistoryReviewed,
			fmt.Sprintf("Revision requested by %s", actor.FullName), actor.UserID, "change_request.revision_requested")
		return updated, nil

	case ReviewActionApprove:
		if contract.IsRetainer() {
			updated, err := s.store.TransitionChangeRequest(ctx, cr.ID, cr.Status, model.ChangeRequestStatusClientUnderReview, func(c *model.ChangeRequest) {
				c.ReviewNotes = notes
			})
			if err != nil {
				return nil, err
			}
			s.afterTransition(ctx, updated, model.HistoryReviewed,
				fmt.Sprintf("Approved internally by %s, sent to client", actor.FullName), actor.UserID, "change_request.client_review")
			return updated, nil
		}
		return s.approveTerminally(ctx, actor, cr, contract, cr.Status, notes)

	default:
		return nil, fmt.Errorf("%w: review action must be APPROVE or REQUEST_REVISION", ErrInvalidInput)
	}
}

// ApproveAsManager lets the assigned reviewer approve a Retainer CR straight
// out of Processing, bypassing a second internal round-trip.
func (s *ChangeRequestService) ApproveAsManager(ctx context.Context, actor model.Principal, crID uint, notes string) (*model.ChangeRequest, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, cr.ContractID)
	if err != nil {
		return nil, err
	}
	if !contract.IsRetainer() {
		return nil, fmt.Errorf("%w: manager fast-approval applies to Retainer contracts only", ErrInvalidInput)
	}
	if cr.Status != model.ChangeRequestStatusProcessing {
		return nil, fmt.Errorf("%w: change request %s is not in Processing", ErrInvalidInput, cr.Code)
	}
	if !actor.IsSalesManager() || cr.InternalReviewerID == nil || *cr.InternalReviewerID != actor.UserID {
		return nil, fmt.Errorf("%w: caller must be the assigned reviewer with the Sales Manager capability", ErrPermissionDenied)
	}

	updated, err := s.store.TransitionChangeRequest(ctx, cr.ID, model.ChangeRequestStatusProcessing, model.ChangeRequestStatusClientUnderReview, func(c *model.ChangeRequest) {
		c.ReviewNotes = notes
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, updated, model.HistoryReviewed,
		fmt.Sprintf("Fast-approved by manager %s, sent to client", actor.FullName), actor.UserID, "change_request.client_review")
	return updated, nil
}

// ClientDecision resolves the client gate on a Retainer change request.
// Approval is terminal and applies the event-sourced side effects.
func (s *ChangeRequestService) ClientDecision(ctx context.Context, actor model.Principal, crID uint, approve bool, notes string) (*model.ChangeRequest, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	contract, err := s.store.GetContract(ctx, cr.ContractID)
	if err != nil {
		return nil, err
	}
	if !actor.IsClient() || actor.UserID != contract.ClientID {
		return nil, fmt.Errorf("%w: only the contract's client can decide", ErrPermissionDenied)
	}
	if cr.Status != model.ChangeRequestStatusClientUnderReview {
		return nil, fmt.Errorf("%w: change request %s is not awaiting a client decision", ErrInvalidInput, cr.Code)
	}

	if !approve {
		updated, err := s.store.TransitionChangeRequest(ctx, cr.ID, cr.Status, model.ChangeRequestStatusRejected, func(c *model.ChangeRequest) {
			c.ReviewNotes = notes
		})
		if err != nil {
			return nil, err
		}
		s.afterTransition(ctx, updated, model.HistoryRejected,
			fmt.Sprintf("Rejected by client %s", actor.FullName), actor.UserID, "change_request.rejected")
		return updated, nil
	}
	return s.approveTerminally(ctx, actor, cr, contract, cr.Status, notes)
}

// Reject terminates a change request in revision. Soft: a status transition,
// the record and its history survive.
func (s *ChangeRequestService) Reject(ctx context.Context, actor model.Principal, crID uint, reason string) (*model.ChangeRequest, error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, err
	}
	if !actor.IsSalesManager() {
		return nil, fmt.Errorf("%w: only a Sales Manager can reject a change request", ErrPermissionDenied)
	}
	if cr.Status != model.ChangeRequestStatusProcessing {
		return nil, fmt.Errorf("%w: only Processing change requests can be rejected", ErrInvalidInput)
	}
	updated, err := s.store.TransitionChangeRequest(ctx, cr.ID, model.ChangeRequestStatusProcessing, model.ChangeRequestStatusRejected, func(c *model.ChangeRequest) {
		if reason != "" {
			c.Reason = appendReason(c.Reason, reason)
		}
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, updated, model.HistoryRejected,
		fmt.Sprintf("Rejected by %s: %s", actor.FullName, reason), actor.UserID, "change_request.rejected")
	return updated, nil
}

// Preview returns the before/after comparison for a pending change request
// without touching the event log.
func (s *ChangeRequestService) Preview(ctx context.Context, actor model.Principal, crID uint) (before, after *Snapshot, err error) {
	cr, err := s.store.GetChangeRequest(ctx, crID)
	if err != nil {
		return nil, nil, err
	}
	contract, err := s.store.GetContract(ctx, cr.ContractID)
	if err != nil {
		return nil, nil, err
	}
	if !contract.IsRetainer() {
		return nil, nil, fmt.Errorf("%w: preview applies to Retainer contracts only", ErrInvalidInput)
	}
	if err := s.requireContractParty(actor, contract); err != nil {
		return nil, nil, err
	}
	return s.recon.Preview(ctx, contract.ID, cr)
}

// approveTerminally commits the terminal approval. For Retainer contracts the
// resource events, the sequential appendix and the billing adjustment rows
// land in the same transaction as the status flip; for Fixed-Price the impact
// analysis is applied to the contract and the contract re-enters
// RequestForChange.
func (s *ChangeRequestService) approveTerminally(ctx context.Context, actor model.Principal, cr *model.ChangeRequest, contract *model.Contract, expected model.ChangeRequestStatus, notes string) (*model.ChangeRequest, error) {
	var (
		updated  *model.ChangeRequest
		appendix *model.Appendix
		events   []model.ResourceEvent
	)

	err := s.store.Atomically(ctx, func(tx Store) error {
		var err error
		if contract.IsRetainer() {
			appendix, events, err = s.applyRetainerApproval(ctx, tx, cr, contract)
			if err != nil {
				return err
			}
		}

		now := time.Now()
		updated, err = tx.TransitionChangeRequest(ctx, cr.ID, expected, model.ChangeRequestStatusApproved, func(c *model.ChangeRequest) {
			c.ApprovedBy = &actor.UserID
			c.ApprovedAt = &now
			c.ReviewNotes = notes
			if appendix != nil {
				c.AppendixID = &appendix.ID
			}
		})
		if err != nil {
			return err
		}

		if !contract.IsRetainer() {
			if err := s.applyImpactAnalysis(ctx, tx, updated, contract); err != nil {
				return err
			}
		}

		detail := fmt.Sprintf("Change request approved by %s", actor.FullName)
		if appendix != nil {
			detail += fmt.Sprintf(". Appendix %s created", appendix.Code)
		}
		return s.history(ctx, tx, updated, model.HistoryApproved, detail, actor.UserID)
	})
	if err != nil {
		return nil, err
	}

	if appendix != nil {
		s.publishAppendixPDF(ctx, contract, updated, appendix, events)
	}
	s.notifier.Notify("change_request.approved", map[string]any{
		"change_request_id": updated.ID,
		"code":              updated.Code,
		"contract_id":       contract.ID,
	})
	return updated, nil
}

// applyRetainerApproval emits one resource event per proposed delta, ordered
// by effective date then submission index, allocates the next appendix number
// under the same boundary, and appends one billing adjustment row per signed
// billing delta.
func (s *ChangeRequestService) applyRetainerApproval(ctx context.Context, tx Store, cr *model.ChangeRequest, contract *model.Contract) (*model.Appendix, []model.ResourceEvent, error) {
	// The baseline must exist before events can be folded onto it. Freezing
	// is idempotent; a contract activated before the snapshot feature shipped
	// gets its baseline here.
	if !contract.BaselineFrozen {
		if err := s.ensureBaseline(ctx, tx, contract); err != nil {
			return nil, nil, err
		}
	}

	number, err := tx.NextAppendixNumber(ctx, contract.ID)
	if err != nil {
		return nil, nil, err
	}
	appendix := &model.Appendix{
		ContractID:      contract.ID,
		ChangeRequestID: cr.ID,
		Number:          number,
		Code:            fmt.Sprintf("PL-%03d", number),
		Title:           firstNonEmpty(cr.Title, fmt.Sprintf("Appendix for %s", cr.Code)),
		Summary:         cr.Summary,
	}
	if err := tx.CreateAppendix(ctx, appendix); err != nil {
		return nil, nil, err
	}

	deltas, err := tx.ListResourceDeltas(ctx, cr.ID)
	if err != nil {
		return nil, nil, err
	}
	events := EventsFromDeltas(cr, appendix.ID, deltas)
	if err := tx.AppendResourceEvents(ctx, events); err != nil {
		return nil, nil, err
	}

	billingDeltas, err := tx.ListBillingDeltas(ctx, cr.ID)
	if err != nil {
		return nil, nil, err
	}
	if rows := adjustmentRows(contract.ID, cr.ID, billingDeltas); len(rows) > 0 {
		if err := tx.CreateBillingDetails(ctx, rows); err != nil {
			return nil, nil, err
		}
	}
	return appendix, events, nil
}

func (s *ChangeRequestService) ensureBaseline(ctx context.Context, tx Store, contract *model.Contract) error {
	existing, err := tx.ListEngineers(ctx, contract.ID, true)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		working, err := tx.ListEngineers(ctx, contract.ID, false)
		if err != nil {
			return err
		}
		snapshot := make([]model.EngagedEngineer, 0, len(working))
		for _, row := range working {
			row.ID = 0
			row.Baseline = true
			snapshot = append(snapshot, row)
		}
		if err := tx.CreateEngineers(ctx, snapshot); err != nil {
			return err
		}
	}
	contract.BaselineFrozen = true
	return tx.SaveContract(ctx, contract)
}

// applyImpactAnalysis carries a Fixed-Price CR's schedule impact onto the
// contract and re-opens it for the constrained edit loop.
func (s *ChangeRequestService) applyImpactAnalysis(ctx context.Context, tx Store, cr *model.ChangeRequest, contract *model.Contract) error {
	if contract.Status != model.ContractStatusActive {
		return nil
	}
	_, err := tx.TransitionContract(ctx, contract.ID, model.ContractStatusActive, model.ContractStatusRequestForChange, func(c *model.Contract) {
		if cr.NewEndDate != nil {
			c.EffectiveEnd = *cr.NewEndDate
		}
		if cr.AdditionalCost != nil {
			c.Value += *cr.AdditionalCost
		}
	})
	return err
}

// publishAppendixPDF renders and stores the appendix document. The upload is
// outside the approval's transactional boundary and eventually consistent
// with the entity record; a failed upload leaves the appendix without a key
// and is retried out of band.
func (s *ChangeRequestService) publishAppendixPDF(ctx context.Context, contract *model.Contract, cr *model.ChangeRequest, appendix *model.Appendix, events []model.ResourceEvent) {
	billing, err := s.store.ListBillingDetails(ctx, contract.ID)
	if err != nil {
		s.log.Error().Err(err).Uint("appendix_id", appendix.ID).Msg("load billing for appendix pdf")
		billing = nil
	}
	content, err := s.renderer.Render(AppendixDocument{
		Contract:      contract,
		ChangeRequest: cr,
		Appendix:      appendix,
		Events:        events,
		Billing:       billing,
	})
	if err != nil {
		s.log.Error().Err(err).Uint("appendix_id", appendix.ID).Msg("render appendix pdf")
		return
	}
	key, err := s.attachments.Upload(ctx, appendix.Code+".pdf", content)
	if err != nil {
		s.log.Error().Err(err).Uint("appendix_id", appendix.ID).Msg("upload appendix pdf")
		return
	}
	appendix.PDFKey = key
	if err := s.store.SaveAppendix(ctx, appendix); err != nil {
		s.log.Error().Err(err).Uint("appendix_id", appendix.ID).Msg("save appendix pdf key")
	}
}

// checkPastDataLock rejects edits that would rewrite rows already effective
// before the change request's effective-from date.
func (s *ChangeRequestService) checkPastDataLock(ctx context.Context, cr *model.ChangeRequest, contract *model.Contract, input ChangeRequestInput) error {
	if cr.EffectiveFrom.IsZero() {
		return nil
	}
	if input.ResourceDeltas != nil && contract.IsRetainer() {
		current, err := s.recon.CurrentState(ctx, contract.ID)
		if err != nil {
			return err
		}
		for _, d := range input.ResourceDeltas {
			if d.EngineerID == nil {
				continue
			}
			for _, state := range current.Resources {
				if state.EngineerID == nil || *state.EngineerID != *d.EngineerID {
					continue
				}
				if state.EndDate != nil && state.EndDate.Before(cr.EffectiveFrom) {
					return fmt.Errorf("%w: resource %d ended %s, before the change request takes effect",
						ErrImmutableField, *d.EngineerID, state.EndDate.Format("2006-01-02"))
				}
			}
		}
	}
	for _, d := range input.BillingDeltas {
		if !d.PaymentDate.IsZero() && d.PaymentDate.Before(cr.EffectiveFrom) {
			return fmt.Errorf("%w: billing adjustment dated %s precedes the change request's effective date",
				ErrImmutableField, d.PaymentDate.Format("2006-01-02"))
		}
	}
	return nil
}

func (s *ChangeRequestService) replaceDeltas(ctx context.Context, tx Store, cr *model.ChangeRequest, contract *model.Contract, input ChangeRequestInput) error {
	if input.ResourceDeltas != nil {
		if !contract.IsRetainer() {
			return fmt.Errorf("%w: resource deltas apply to Retainer contracts only", ErrInvalidInput)
		}
		for i := range input.ResourceDeltas {
			input.ResourceDeltas[i].Position = i
			if input.ResourceDeltas[i].EffectiveFrom.IsZero() {
				input.ResourceDeltas[i].EffectiveFrom = cr.EffectiveFrom
			}
		}
		if err := tx.ReplaceResourceDeltas(ctx, cr.ID, input.ResourceDeltas); err != nil {
			return err
		}
	}
	if input.BillingDeltas != nil {
		for i := range input.BillingDeltas {
			input.BillingDeltas[i].Position = i
		}
		if err := tx.ReplaceBillingDeltas(ctx, cr.ID, input.BillingDeltas); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChangeRequestService) requireContractParty(actor model.Principal, contract *model.Contract) error {
	if actor.IsSalesManager() || actor.UserID == contract.AssigneeID {
		return nil
	}
	if actor.IsClient() && actor.UserID == contract.ClientID {
		return nil
	}
	return fmt.Errorf("%w: caller is not a party to contract %s", ErrPermissionDenied, contract.Code)
}

func (s *ChangeRequestService) history(ctx context.Context, tx Store, cr *model.ChangeRequest, action model.HistoryAction, detail string, actorID uint) error {
	contractID := cr.ContractID
	crID := cr.ID
	return tx.AppendHistory(ctx, &model.HistoryEntry{
		ContractID:      &contractID,
		ChangeRequestID: &crID,
		Action:          action,
		Detail:          detail,
		ActorID:         actorID,
	})
}

func (s *ChangeRequestService) afterTransition(ctx context.Context, cr *model.ChangeRequest, action model.HistoryAction, detail string, actorID uint, event string) {
	if err := s.history(ctx, s.store, cr, action, detail, actorID); err != nil {
		s.log.Error().Err(err).Uint("change_request_id", cr.ID).Msg("record history")
	}
	s.notifier.Notify(event, map[string]any{"change_request_id": cr.ID, "code": cr.Code, "status": cr.Status})
}

func applyChangeRequestInput(cr *model.ChangeRequest, input ChangeRequestInput) {
	if input.Title != "" {
		cr.Title = input.Title
	}
	if input.Summary != "" {
		cr.Summary = input.Summary
	}
	if input.Reason != "" {
		cr.Reason = input.Reason
	}
	if !input.EffectiveFrom.IsZero() {
		cr.EffectiveFrom = input.EffectiveFrom
	}
	if input.EffectiveUntil != nil {
		cr.EffectiveUntil = input.EffectiveUntil
	}
	if input.DevHours != nil {
		cr.DevHours = input.DevHours
	}
	if input.TestHours != nil {
		cr.TestHours = input.TestHours
	}
	if input.NewEndDate != nil {
		cr.NewEndDate = input.NewEndDate
	}
	if input.DelayDays != nil {
		cr.DelayDays = input.DelayDays
	}
	if input.AdditionalCost != nil {
		cr.AdditionalCost = input.AdditionalCost
	}
}

func appendReason(existing, reason string) string {
	if existing == "" {
		return "Rejection reason: " + reason
	}
	return existing + "\n\nRejection reason: " + reason
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
