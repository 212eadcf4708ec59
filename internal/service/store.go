package service

import (
	"context"

	"github.com/landbridge/contracts-service/internal/model"
)

// Store is the entity store consumed by the state machines. The gorm
// implementation lives in internal/repository; tests use an in-memory fake
// with the same transition semantics.
type Store interface {
	// Contracts
	GetContract(ctx context.Context, id uint) (*model.Contract, error)
	ListContracts(ctx context.Context, clientID *uint) ([]model.Contract, error)
	CreateContract(ctx context.Context, c *model.Contract) error
	SaveContract(ctx context.Context, c *model.Contract) error
	CountContracts(ctx context.Context, kind model.ContractKind, year int) (int64, error)

	// TransitionContract performs a compare-and-set on (id, expected). It
	// loads the row under lock, fails with ErrConcurrentModification when the
	// persisted status no longer matches expected, otherwise applies the new
	// status plus mutate and persists.
	TransitionContract(ctx context.Context, id uint, expected, next model.ContractStatus, mutate func(*model.Contract)) (*model.Contract, error)

	// Change requests
	GetChangeRequest(ctx context.Context, id uint) (*model.ChangeRequest, error)
	ListChangeRequests(ctx context.Context, contractID uint) ([]model.ChangeRequest, error)
	CreateChangeRequest(ctx context.Context, cr *model.ChangeRequest) error
	SaveChangeRequest(ctx context.Context, cr *model.ChangeRequest) error
	CountChangeRequests(ctx context.Context, year int) (int64, error)
	TransitionChangeRequest(ctx context.Context, id uint, expected, next model.ChangeRequestStatus, mutate func(*model.ChangeRequest)) (*model.ChangeRequest, error)

	// Proposed deltas owned by a change request
	ListResourceDeltas(ctx context.Context, crID uint) ([]model.ResourceDelta, error)
	ReplaceResourceDeltas(ctx context.Context, crID uint, deltas []model.ResourceDelta) error
	ListBillingDeltas(ctx context.Context, crID uint) ([]model.BillingDelta, error)
	ReplaceBillingDeltas(ctx context.Context, crID uint, deltas []model.BillingDelta) error

	// Engaged engineers (working set and frozen baseline)
	ListEngineers(ctx context.Context, contractID uint, baseline bool) ([]model.EngagedEngineer, error)
	ReplaceEngineers(ctx context.Context, contractID uint, baseline bool, rows []model.EngagedEngineer) error
	CreateEngineers(ctx context.Context, rows []model.EngagedEngineer) error

	// Billing rows
	ListBillingDetails(ctx context.Context, contractID uint) ([]model.BillingDetail, error)
	GetBillingDetail(ctx context.Context, id uint) (*model.BillingDetail, error)
	SaveBillingDetail(ctx context.Context, row *model.BillingDetail) error
	ReplaceWorkingBillingDetails(ctx context.Context, contractID uint, rows []model.BillingDetail) error
	CreateBillingDetails(ctx context.Context, rows []model.BillingDetail) error

	// Milestones (Fixed Price)
	ListMilestones(ctx context.Context, contractID uint) ([]model.Milestone, error)
	ReplaceMilestones(ctx context.Context, contractID uint, rows []model.Milestone) error

	// Resource events, ordered by effective date then insertion
	ListResourceEvents(ctx context.Context, contractID uint) ([]model.ResourceEvent, error)
	AppendResourceEvents(ctx context.Context, events []model.ResourceEvent) error

	// Appendices
	GetAppendix(ctx context.Context, id uint) (*model.Appendix, error)
	NextAppendixNumber(ctx context.Context, contractID uint) (int, error)
	CreateAppendix(ctx context.Context, a *model.Appendix) error
	SaveAppendix(ctx context.Context, a *model.Appendix) error

	// History
	AppendHistory(ctx context.Context, entry *model.HistoryEntry) error
	ListHistory(ctx context.Context, contractID *uint, crID *uint) ([]model.HistoryEntry, error)

	// Attachment metadata (file bytes live in the attachment store)
	CreateAttachment(ctx context.Context, a *model.Attachment) error
	GetAttachment(ctx context.Context, id uint) (*model.Attachment, error)
	ListAttachments(ctx context.Context, contractID *uint, crID *uint) ([]model.Attachment, error)
	DeleteAttachment(ctx context.Context, id uint) error

	// Atomically runs fn against a transactional view of the store. Either
	// every write inside fn commits or none of them do.
	Atomically(ctx context.Context, fn func(Store) error) error
}

// IdentityProvider resolves a user id to its principal. Role checks on
// transitions go through this, never through client-supplied claims alone.
type IdentityProvider interface {
	Resolve(ctx context.Context, userID uint) (model.Principal, error)
}

// Notifier is the fire-and-forget notification sink. Implementations must not
// block the state machine; errors are logged, never returned.
type Notifier interface {
	Notify(event string, fields map[string]any)
}
