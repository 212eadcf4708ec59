package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/landbridge/contracts-service/internal/model"
)

type fakeIdentity struct {
	users map[uint]model.Principal
}

func (f *fakeIdentity) Resolve(ctx context.Context, userID uint) (model.Principal, error) {
	p, ok := f.users[userID]
	if !ok {
		return model.Principal{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	return p, nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(event string, fields map[string]any) {
	f.events = append(f.events, event)
}

type fakeRenderer struct {
	rendered int
	err      error
}

func (f *fakeRenderer) Render(doc AppendixDocument) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rendered++
	return []byte("%PDF-1.4 " + doc.Appendix.Code), nil
}

type fakeAttachments struct {
	objects map[string][]byte
}

func newFakeAttachments() *fakeAttachments {
	return &fakeAttachments{objects: map[string][]byte{}}
}

func (f *fakeAttachments) Upload(ctx context.Context, name string, content []byte) (string, error) {
	key := fmt.Sprintf("obj-%d-%s", len(f.objects)+1, name)
	f.objects[key] = content
	return key, nil
}

func (f *fakeAttachments) IssuePresignedURL(key string) (string, error) {
	if _, ok := f.objects[key]; !ok {
		return "", fmt.Errorf("%w: object %s", ErrNotFound, key)
	}
	return "https://files.test/" + key, nil
}

func (f *fakeAttachments) Delete(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

var (
	salesRep = model.Principal{UserID: 1, Role: model.RoleSalesRep, FullName: "Rin Tanaka"}
	manager  = model.Principal{UserID: 2, Role: model.RoleSalesManager, FullName: "Mai Suzuki"}
	client   = model.Principal{UserID: 3, Role: model.RoleClient, FullName: "Acme K.K."}
)

func testIdentity() *fakeIdentity {
	return &fakeIdentity{users: map[uint]model.Principal{
		salesRep.UserID: salesRep,
		manager.UserID:  manager,
		client.UserID:   client,
	}}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newContractService(store Store) (*ContractService, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return NewContractService(store, testIdentity(), notifier, zerolog.Nop()), notifier
}

func newCRService(store Store) (*ChangeRequestService, *fakeRenderer, *fakeAttachments) {
	renderer := &fakeRenderer{}
	attachments := newFakeAttachments()
	svc := NewChangeRequestService(store, testIdentity(), NewReconstructor(store), renderer, attachments, &fakeNotifier{}, zerolog.Nop())
	return svc, renderer, attachments
}

func seedMSA(store Store) *model.Contract {
	msa := &model.Contract{
		Kind:           model.ContractKindMSA,
		Code:           "MSA-2026-01",
		ClientID:       client.UserID,
		Name:           "Master Services Agreement",
		Status:         model.ContractStatusActive,
		EffectiveStart: date(2026, 1, 1),
		EffectiveEnd:   date(2027, 12, 31),
		Value:          0,
		Currency:       "USD",
		AssigneeID:     salesRep.UserID,
	}
	_ = store.CreateContract(context.Background(), msa)
	return msa
}

func seedRetainer(store Store, status model.ContractStatus) *model.Contract {
	msa := seedMSA(store)
	sow := &model.Contract{
		Kind:           model.ContractKindSOW,
		Code:           "SOW-2026-01",
		ClientID:       client.UserID,
		Name:           "Platform Team Retainer",
		Status:         status,
		EngagementType: model.EngagementRetainer,
		ParentMSAID:    &msa.ID,
		EffectiveStart: date(2026, 1, 1),
		EffectiveEnd:   date(2026, 12, 31),
		Value:          120000,
		Currency:       "USD",
		PaymentTerms:   "NET 30",
		BillingDay:     "15th",
		GoverningLaw:   "Japan",
		AssigneeID:     salesRep.UserID,
	}
	_ = store.CreateContract(context.Background(), sow)
	return sow
}

func seedFixedPrice(store Store, status model.ContractStatus) *model.Contract {
	msa := seedMSA(store)
	sow := &model.Contract{
		Kind:           model.ContractKindSOW,
		Code:           "SOW-2026-02",
		ClientID:       client.UserID,
		Name:           "Mobile App Build",
		Status:         status,
		EngagementType: model.EngagementFixedPrice,
		ParentMSAID:    &msa.ID,
		EffectiveStart: date(2026, 1, 1),
		EffectiveEnd:   date(2026, 9, 30),
		Value:          90000,
		Currency:       "USD",
		PaymentTerms:   "NET 30",
		BillingDay:     "15th",
		GoverningLaw:   "Japan",
		AssigneeID:     salesRep.UserID,
	}
	_ = store.CreateContract(context.Background(), sow)
	return sow
}

func seedWorkingEngineers(store Store, contractID uint) {
	_ = store.ReplaceEngineers(context.Background(), contractID, false, []model.EngagedEngineer{
		{
			Role:          "Backend Engineer",
			Level:         "Senior",
			BillingType:   model.BillingTypeMonthly,
			Rating:        1.0,
			MonthlySalary: 8000,
			StartDate:     date(2026, 1, 1),
		},
		{
			Role:        "QA Engineer",
			Level:       "Middle",
			BillingType: model.BillingTypeHourly,
			HourlyRate:  45,
			Hours:       80,
			StartDate:   date(2026, 1, 1),
		},
	})
}
