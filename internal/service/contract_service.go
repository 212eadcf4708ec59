package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/landbridge/contracts-service/internal/model"
)

type ReviewAction string

const (
	ReviewActionApprove         ReviewAction = "APPROVE"
	ReviewActionRequestRevision ReviewAction = "REQUEST_REVISION"
)

// ContractService is the contract state machine. Every transition is a
// compare-and-set on (id, expected status): a racing caller sees
// ErrConcurrentModification rather than silently overwriting.
type ContractService struct {
	store    Store
	identity IdentityProvider
	notifier Notifier
	log      zerolog.Logger
}

func NewContractService(store Store, identity IdentityProvider, notifier Notifier, log zerolog.Logger) *ContractService {
	return &ContractService{store: store, identity: identity, notifier: notifier, log: log}
}

type CreateContractInput struct {
	Kind           model.ContractKind
	ClientID       uint
	Name           string
	EngagementType model.EngagementType
	ParentMSAID    *uint
	ProjectName    string
	Scope          string
	EffectiveStart time.Time
	EffectiveEnd   time.Time
	Value          float64
	Currency       string
	PaymentTerms   string
	InvoicingCycle string
	BillingDay     string
	TaxWithholding string
	IPOwnership    string
	GoverningLaw   string
}

type UpdateContractInput struct {
	Name           *string
	Scope          *string
	EffectiveStart *time.Time
	EffectiveEnd   *time.Time
	Value          *float64
	Currency       *string
	PaymentTerms   *string
	InvoicingCycle *string
	BillingDay     *string
	TaxWithholding *string
	IPOwnership    *string
	GoverningLaw   *string

	// Replacing nil leaves the collection untouched.
	Milestones []model.Milestone
	Engineers  []model.EngagedEngineer
	Billing    []model.BillingDetail
}

// Get loads one contract visible to the caller. Clients see only their own
// contracts; sales staff see everything.
func (s *ContractService) Get(ctx context.Context, actor model.Principal, contractID uint) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if actor.IsClient() && actor.UserID != contract.ClientID {
		return nil, fmt.Errorf("%w: contract %d is not visible to this client", ErrPermissionDenied, contractID)
	}
	return contract, nil
}

// List returns the caller's visible contracts.
func (s *ContractService) List(ctx context.Context, actor model.Principal) ([]model.Contract, error) {
	if actor.IsClient() {
		id := actor.UserID
		return s.store.ListContracts(ctx, &id)
	}
	return s.store.ListContracts(ctx, nil)
}

// History returns the contract's audit trail, oldest first.
func (s *ContractService) History(ctx context.Context, actor model.Principal, contractID uint) ([]model.HistoryEntry, error) {
	if _, err := s.Get(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, &contractID, nil)
}

// Milestones returns the Fixed-Price milestone plan.
func (s *ContractService) Milestones(ctx context.Context, actor model.Principal, contractID uint) ([]model.Milestone, error) {
	if _, err := s.Get(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.store.ListMilestones(ctx, contractID)
}

// Engineers returns the editable working staffing set. The frozen baseline
// and the folded current state are served by the staffing view instead.
func (s *ContractService) Engineers(ctx context.Context, actor model.Principal, contractID uint) ([]model.EngagedEngineer, error) {
	if _, err := s.Get(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return s.store.ListEngineers(ctx, contractID, false)
}

// Create opens a contract in Draft, assigned to the calling sales rep.
func (s *ContractService) Create(ctx context.Context, actor model.Principal, input CreateContractInput) (*model.Contract, error) {
	if !actor.IsSalesRep() && !actor.IsSalesManager() {
		return nil, fmt.Errorf("%w: only sales staff can create contracts", ErrPermissionDenied)
	}
	if input.Name == "" {
		return nil, fmt.Errorf("%w: contract name is required", ErrInvalidInput)
	}
	if input.ClientID == 0 {
		return nil, fmt.Errorf("%w: client is required", ErrInvalidInput)
	}
	if err := validatePeriod(input.EffectiveStart, input.EffectiveEnd); err != nil {
		return nil, err
	}
	switch input.Kind {
	case model.ContractKindMSA:
	case model.ContractKindSOW:
		if input.EngagementType != model.EngagementFixedPrice && input.EngagementType != model.EngagementRetainer {
			return nil, fmt.Errorf("%w: SOW contracts require an engagement type", ErrInvalidInput)
		}
		if input.ParentMSAID == nil {
			return nil, fmt.Errorf("%w: SOW contracts require a parent MSA", ErrInvalidInput)
		}
		parent, err := s.store.GetContract(ctx, *input.ParentMSAID)
		if err != nil {
			return nil, err
		}
		if parent.Kind != model.ContractKindMSA {
			return nil, fmt.Errorf("%w: parent contract %d is not an MSA", ErrInvalidInput, parent.ID)
		}
	default:
		return nil, fmt.Errorf("%w: unknown contract kind %q", ErrInvalidInput, input.Kind)
	}

	contract := &model.Contract{
		Kind:           input.Kind,
		ClientID:       input.ClientID,
		Name:           input.Name,
		Status:         model.ContractStatusDraft,
		EngagementType: input.EngagementType,
		ParentMSAID:    input.ParentMSAID,
		ProjectName:    input.ProjectName,
		Scope:          input.Scope,
		EffectiveStart: input.EffectiveStart,
		EffectiveEnd:   input.EffectiveEnd,
		Value:          input.Value,
		Currency:       input.Currency,
		PaymentTerms:   input.PaymentTerms,
		InvoicingCycle: input.InvoicingCycle,
		BillingDay:     input.BillingDay,
		TaxWithholding: input.TaxWithholding,
		IPOwnership:    input.IPOwnership,
		GoverningLaw:   input.GoverningLaw,
		AssigneeID:     actor.UserID,
	}

	err := s.store.Atomically(ctx, func(tx Store) error {
		count, err := tx.CountContracts(ctx, input.Kind, time.Now().Year())
		if err != nil {
			return err
		}
		contract.Code = fmt.Sprintf("%s-%d-%02d", input.Kind, time.Now().Year(), count+1)
		if err := tx.CreateContract(ctx, contract); err != nil {
			return err
		}
		return s.recordHistory(ctx, tx, contract.ID, nil, model.HistoryCreated,
			fmt.Sprintf("Contract %s created by %s", contract.Code, actor.FullName), actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify("contract.created", map[string]any{"contract_id": contract.ID, "code": contract.Code})
	return contract, nil
}

// Update mutates an editable contract. Editability is a state-machine
// property, not a presentation concern: a contract outside Draft or
// RequestForChange rejects every field-level change.
func (s *ContractService) Update(ctx context.Context, actor model.Principal, contractID uint, input UpdateContractInput) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssigneeOrManager(actor, contract); err != nil {
		return nil, err
	}
	if !contract.Status.Editable() {
		return nil, fmt.Errorf("%w: contract %s is not editable in status %s", ErrInvalidInput, contract.Code, contract.Status)
	}

	applyContractInput(contract, input)
	if err := validatePeriod(contract.EffectiveStart, contract.EffectiveEnd); err != nil {
		return nil, err
	}
	if input.Milestones != nil {
		if !contract.IsFixedPrice() {
			return nil, fmt.Errorf("%w: milestones only apply to Fixed-Price SOW contracts", ErrInvalidInput)
		}
		if err := ValidateMilestonePercentages(input.Milestones); err != nil {
			return nil, err
		}
	}

	err = s.store.Atomically(ctx, func(tx Store) error {
		if err := tx.SaveContract(ctx, contract); err != nil {
			return err
		}
		if input.Milestones != nil {
			if err := tx.ReplaceMilestones(ctx, contract.ID, input.Milestones); err != nil {
				return err
			}
			derived, err := MilestoneBilling(contract, input.Milestones)
			if err != nil {
				return err
			}
			if err := tx.ReplaceWorkingBillingDetails(ctx, contract.ID, derived); err != nil {
				return err
			}
		}
		if input.Engineers != nil {
			if err := tx.ReplaceEngineers(ctx, contract.ID, false, input.Engineers); err != nil {
				return err
			}
		}
		if input.Billing != nil {
			if err := tx.ReplaceWorkingBillingDetails(ctx, contract.ID, input.Billing); err != nil {
				return err
			}
		}
		return s.recordHistory(ctx, tx, contract.ID, nil, model.HistoryUpdated,
			fmt.Sprintf("Contract updated by %s", actor.FullName), actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// SubmitForInternalReview hands an editable contract to a sales manager.
func (s *ContractService) SubmitForInternalReview(ctx context.Context, actor model.Principal, contractID, reviewerID uint) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAssigneeOrManager(actor, contract); err != nil {
		return nil, err
	}
	if !contract.Status.Editable() {
		return nil, fmt.Errorf("%w: contract %s cannot be submitted from status %s", ErrInvalidInput, contract.Code, contract.Status)
	}
	if reviewerID == 0 {
		return nil, fmt.Errorf("%w: reviewer is required", ErrInvalidInput)
	}
	reviewer, err := s.identity.Resolve(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if !reviewer.IsSalesManager() {
		return nil, fmt.Errorf("%w: reviewer must hold the Sales Manager capability", ErrInvalidInput)
	}
	if err := validateSubmittable(contract); err != nil {
		return nil, err
	}

	expected := contract.Status
	updated, err := s.store.TransitionContract(ctx, contract.ID, expected, model.ContractStatusUnderReview, func(c *model.Contract) {
		c.ReviewerID = &reviewerID
		c.ReviewAction = ""
		c.ReviewNotes = ""
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, updated, nil, model.HistorySubmitted,
		fmt.Sprintf("Submitted for internal review by %s", actor.FullName), actor.UserID, "contract.submitted")
	return updated, nil
}

// SubmitReview records the assigned reviewer's verdict on an internal review.
func (s *ContractService) SubmitReview(ctx context.Context, actor model.Principal, contractID uint, action ReviewAction, notes string) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ReviewerID == nil || *contract.ReviewerID != actor.UserID {
		return nil, fmt.Errorf("%w: only the assigned reviewer can submit a review", ErrPermissionDenied)
	}
	if contract.Status != model.ContractStatusUnderReview {
		return nil, fmt.Errorf("%w: contract %s is not under internal review", ErrInvalidInput, contract.Code)
	}

	var next model.ContractStatus
	switch action {
	case ReviewActionApprove:
		next = model.ContractStatusClientUnderReview
	case ReviewActionRequestRevision:
		next = model.ContractStatusRequestForChange
	default:
		return nil, fmt.Errorf("%w: review action must be APPROVE or REQUEST_REVISION", ErrInvalidInput)
	}

	updated, err := s.store.TransitionContract(ctx, contract.ID, model.ContractStatusUnderReview, next, func(c *model.Contract) {
		c.ReviewAction = string(action)
		c.ReviewNotes = notes
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, updated, nil, model.HistoryReviewed,
		fmt.Sprintf("Internal review %s by %s", action, actor.FullName), actor.UserID, "contract.reviewed")
	return updated, nil
}

// ClientDecision resolves the client review gate. First entry into Active
// freezes the Retainer baseline snapshot within the same transaction.
func (s *ContractService) ClientDecision(ctx context.Context, actor model.Principal, contractID uint, approve bool) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !actor.IsClient() || actor.UserID != contract.ClientID {
		return nil, fmt.Errorf("%w: only the contract's client can decide", ErrPermissionDenied)
	}
	if contract.Status != model.ContractStatusClientUnderReview {
		return nil, fmt.Errorf("%w: contract %s is not awaiting a client decision", ErrInvalidInput, contract.Code)
	}

	if !approve {
		updated, err := s.store.TransitionContract(ctx, contract.ID, model.ContractStatusClientUnderReview, model.ContractStatusRequestForChange, nil)
		if err != nil {
			return nil, err
		}
		s.afterTransition(ctx, updated, nil, model.HistoryReviewed,
			fmt.Sprintf("Client %s requested changes", actor.FullName), actor.UserID, "contract.client_rejected")
		return updated, nil
	}

	var updated *model.Contract
	err = s.store.Atomically(ctx, func(tx Store) error {
		updated, err = tx.TransitionContract(ctx, contract.ID, model.ContractStatusClientUnderReview, model.ContractStatusActive, nil)
		if err != nil {
			return err
		}
		if updated.IsRetainer() && !updated.BaselineFrozen {
			if err := s.freezeBaseline(ctx, tx, updated); err != nil {
				return err
			}
		}
		return s.recordHistory(ctx, tx, updated.ID, nil, model.HistoryActivated,
			fmt.Sprintf("Contract activated by client %s", actor.FullName), actor.UserID)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify("contract.activated", map[string]any{"contract_id": updated.ID, "code": updated.Code})
	return updated, nil
}

// Terminate closes an active contract. Terminal.
func (s *ContractService) Terminate(ctx context.Context, actor model.Principal, contractID uint, reason string) (*model.Contract, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !actor.IsSalesManager() {
		return nil, fmt.Errorf("%w: only a Sales Manager can terminate a contract", ErrPermissionDenied)
	}
	if contract.Status != model.ContractStatusActive {
		return nil, fmt.Errorf("%w: only Active contracts can be terminated", ErrInvalidInput)
	}
	updated, err := s.store.TransitionContract(ctx, contract.ID, model.ContractStatusActive, model.ContractStatusTerminated, func(c *model.Contract) {
		c.ReviewNotes = reason
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, updated, nil, model.HistoryTerminated,
		fmt.Sprintf("Contract terminated by %s: %s", actor.FullName, reason), actor.UserID, "contract.terminated")
	return updated, nil
}

// freezeBaseline copies the working resource and billing rows into the
// immutable baseline snapshot. Idempotent: an existing snapshot is kept.
func (s *ContractService) freezeBaseline(ctx context.Context, tx Store, contract *model.Contract) error {
	existing, err := tx.ListEngineers(ctx, contract.ID, true)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		contract.BaselineFrozen = true
		return tx.SaveContract(ctx, contract)
	}

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

	rows, err := tx.ListBillingDetails(ctx, contract.ID)
	if err != nil {
		return err
	}
	frozen := make([]model.BillingDetail, 0, len(rows))
	for _, row := range rows {
		if row.Baseline || row.SourceCRID != nil {
			continue
		}
		row.ID = 0
		row.Baseline = true
		frozen = append(frozen, row)
	}
	if err := tx.CreateBillingDetails(ctx, frozen); err != nil {
		return err
	}

	contract.BaselineFrozen = true
	return tx.SaveContract(ctx, contract)
}

func (s *ContractService) requireAssigneeOrManager(actor model.Principal, contract *model.Contract) error {
	if actor.IsSalesManager() || actor.UserID == contract.AssigneeID {
		return nil
	}
	return fmt.Errorf("%w: caller is neither the assignee nor a Sales Manager", ErrPermissionDenied)
}

func (s *ContractService) recordHistory(ctx context.Context, tx Store, contractID uint, crID *uint, action model.HistoryAction, detail string, actorID uint) error {
	id := contractID
	return tx.AppendHistory(ctx, &model.HistoryEntry{
		ContractID:      &id,
		ChangeRequestID: crID,
		Action:          action,
		Detail:          detail,
		ActorID:         actorID,
	})
}

func (s *ContractService) afterTransition(ctx context.Context, contract *model.Contract, crID *uint, action model.HistoryAction, detail string, actorID uint, event string) {
	if err := s.recordHistory(ctx, s.store, contract.ID, crID, action, detail, actorID); err != nil {
		s.log.Error().Err(err).Uint("contract_id", contract.ID).Msg("record history")
	}
	s.notifier.Notify(event, map[string]any{"contract_id": contract.ID, "code": contract.Code, "status": contract.Status})
}

func applyContractInput(c *model.Contract, input UpdateContractInput) {
	if input.Name != nil {
		c.Name = *input.Name
	}
	if input.Scope != nil {
		c.Scope = *input.Scope
	}
	if input.EffectiveStart != nil {
		c.EffectiveStart = *input.EffectiveStart
	}
	if input.EffectiveEnd != nil {
		c.EffectiveEnd = *input.EffectiveEnd
	}
	if input.Value != nil {
		c.Value = *input.Value
	}
	if input.Currency != nil {
		c.Currency = *input.Currency
	}
	if input.PaymentTerms != nil {
		c.PaymentTerms = *input.PaymentTerms
	}
	if input.InvoicingCycle != nil {
		c.InvoicingCycle = *input.InvoicingCycle
	}
	if input.BillingDay != nil {
		c.BillingDay = *input.BillingDay
	}
	if input.TaxWithholding != nil {
		c.TaxWithholding = *input.TaxWithholding
	}
	if input.IPOwnership != nil {
		c.IPOwnership = *input.IPOwnership
	}
	if input.GoverningLaw != nil {
		c.GoverningLaw = *input.GoverningLaw
	}
}

func validatePeriod(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: effective start and end dates are required", ErrInvalidInput)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: effective end must not precede effective start", ErrInvalidInput)
	}
	return nil
}

// validateSubmittable checks the commercial and legal fields a contract must
// carry before internal review.
func validateSubmittable(c *model.Contract) error {
	var missing []string
	if c.Value <= 0 {
		missing = append(missing, "value")
	}
	if c.Currency == "" {
		missing = append(missing, "currency")
	}
	if c.PaymentTerms == "" {
		missing = append(missing, "payment terms")
	}
	if c.GoverningLaw == "" {
		missing = append(missing, "governing law")
	}
	if c.IsFixedPrice() && c.BillingDay == "" {
		missing = append(missing, "billing day")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: contract is incomplete, missing %v", ErrInvalidInput, missing)
	}
	return nil
}

// IsNotFound reports whether err maps to an absent entity, unwrapping store
// errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
