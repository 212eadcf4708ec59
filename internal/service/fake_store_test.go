package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/landbridge/contracts-service/internal/model"
)

// fakeStore is an in-memory Store with the same transition and transaction
// semantics as the gorm implementation: compare-and-set transitions and
// all-or-nothing Atomically blocks.
type fakeStore struct {
	mu sync.Mutex
	s  *fakeState

	// Injected failures for atomicity tests.
	appendEventsErr   error
	createAppendixErr error
}

type fakeState struct {
	nextID uint

	contracts   map[uint]model.Contract
	crs         map[uint]model.ChangeRequest
	engineers   map[uint]model.EngagedEngineer
	billing     map[uint]model.BillingDetail
	milestones  map[uint][]model.Milestone
	appendices  map[uint]model.Appendix
	attachments map[uint]model.Attachment

	resourceDeltas map[uint][]model.ResourceDelta
	billingDeltas  map[uint][]model.BillingDelta

	events  []model.ResourceEvent
	history []model.HistoryEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{s: newFakeState()}
}

func newFakeState() *fakeState {
	return &fakeState{
		contracts:      map[uint]model.Contract{},
		crs:            map[uint]model.ChangeRequest{},
		engineers:      map[uint]model.EngagedEngineer{},
		billing:        map[uint]model.BillingDetail{},
		milestones:     map[uint][]model.Milestone{},
		appendices:     map[uint]model.Appendix{},
		attachments:    map[uint]model.Attachment{},
		resourceDeltas: map[uint][]model.ResourceDelta{},
		billingDeltas:  map[uint][]model.BillingDelta{},
	}
}

func (st *fakeState) clone() *fakeState {
	out := newFakeState()
	out.nextID = st.nextID
	for k, v := range st.contracts {
		out.contracts[k] = v
	}
	for k, v := range st.crs {
		out.crs[k] = v
	}
	for k, v := range st.engineers {
		out.engineers[k] = v
	}
	for k, v := range st.billing {
		out.billing[k] = v
	}
	for k, v := range st.milestones {
		out.milestones[k] = append([]model.Milestone{}, v...)
	}
	for k, v := range st.appendices {
		out.appendices[k] = v
	}
	for k, v := range st.attachments {
		out.attachments[k] = v
	}
	for k, v := range st.resourceDeltas {
		out.resourceDeltas[k] = append([]model.ResourceDelta{}, v...)
	}
	for k, v := range st.billingDeltas {
		out.billingDeltas[k] = append([]model.BillingDelta{}, v...)
	}
	out.events = append([]model.ResourceEvent{}, st.events...)
	out.history = append([]model.HistoryEntry{}, st.history...)
	return out
}

func (st *fakeState) id() uint {
	st.nextID++
	return st.nextID
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) GetContract(ctx context.Context, id uint) (*model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	return &c, nil
}

func (f *fakeStore) ListContracts(ctx context.Context, clientID *uint) ([]model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Contract
	for _, c := range f.s.contracts {
		if clientID == nil || c.ClientID == *clientID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateContract(ctx context.Context, c *model.Contract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == 0 {
		c.ID = f.s.id()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	f.s.contracts[c.ID] = *c
	return nil
}

func (f *fakeStore) SaveContract(ctx context.Context, c *model.Contract) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.contracts[c.ID] = *c
	return nil
}

func (f *fakeStore) CountContracts(ctx context.Context, kind model.ContractKind, year int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, c := range f.s.contracts {
		if c.Kind == kind && c.CreatedAt.Year() == year {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) TransitionContract(ctx context.Context, id uint, expected, next model.ContractStatus, mutate func(*model.Contract)) (*model.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	if c.Status != expected {
		return nil, fmt.Errorf("%w: contract %d is %s, expected %s", ErrConcurrentModification, id, c.Status, expected)
	}
	c.Status = next
	if mutate != nil {
		mutate(&c)
	}
	f.s.contracts[id] = c
	return &c, nil
}

func (f *fakeStore) GetChangeRequest(ctx context.Context, id uint) (*model.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cr, ok := f.s.crs[id]
	if !ok {
		return nil, fmt.Errorf("%w: change request %d", ErrNotFound, id)
	}
	return &cr, nil
}

func (f *fakeStore) ListChangeRequests(ctx context.Context, contractID uint) ([]model.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ChangeRequest
	for _, cr := range f.s.crs {
		if cr.ContractID == contractID {
			out = append(out, cr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) CreateChangeRequest(ctx context.Context, cr *model.ChangeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cr.ID == 0 {
		cr.ID = f.s.id()
	}
	if cr.CreatedAt.IsZero() {
		cr.CreatedAt = time.Now()
	}
	f.s.crs[cr.ID] = *cr
	return nil
}

func (f *fakeStore) SaveChangeRequest(ctx context.Context, cr *model.ChangeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.crs[cr.ID] = *cr
	return nil
}

func (f *fakeStore) CountChangeRequests(ctx context.Context, year int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, cr := range f.s.crs {
		if cr.CreatedAt.Year() == year {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) TransitionChangeRequest(ctx context.Context, id uint, expected, next model.ChangeRequestStatus, mutate func(*model.ChangeRequest)) (*model.ChangeRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cr, ok := f.s.crs[id]
	if !ok {
		return nil, fmt.Errorf("%w: change request %d", ErrNotFound, id)
	}
	if cr.Status != expected {
		return nil, fmt.Errorf("%w: change request %d is %s, expected %s", ErrConcurrentModification, id, cr.Status, expected)
	}
	cr.Status = next
	if mutate != nil {
		mutate(&cr)
	}
	f.s.crs[id] = cr
	return &cr, nil
}

func (f *fakeStore) ListResourceDeltas(ctx context.Context, crID uint) ([]model.ResourceDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ResourceDelta{}, f.s.resourceDeltas[crID]...), nil
}

func (f *fakeStore) ReplaceResourceDeltas(ctx context.Context, crID uint, deltas []model.ResourceDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.ResourceDelta, len(deltas))
	for i, d := range deltas {
		d.ID = f.s.id()
		d.ChangeRequestID = crID
		rows[i] = d
	}
	f.s.resourceDeltas[crID] = rows
	return nil
}

func (f *fakeStore) ListBillingDeltas(ctx context.Context, crID uint) ([]model.BillingDelta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BillingDelta{}, f.s.billingDeltas[crID]...), nil
}

func (f *fakeStore) ReplaceBillingDeltas(ctx context.Context, crID uint, deltas []model.BillingDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.BillingDelta, len(deltas))
	for i, d := range deltas {
		d.ID = f.s.id()
		d.ChangeRequestID = crID
		rows[i] = d
	}
	f.s.billingDeltas[crID] = rows
	return nil
}

func (f *fakeStore) ListEngineers(ctx context.Context, contractID uint, baseline bool) ([]model.EngagedEngineer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EngagedEngineer
	for _, e := range f.s.engineers {
		if e.ContractID == contractID && e.Baseline == baseline {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) ReplaceEngineers(ctx context.Context, contractID uint, baseline bool, rows []model.EngagedEngineer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, e := range f.s.engineers {
		if e.ContractID == contractID && e.Baseline == baseline {
			delete(f.s.engineers, id)
		}
	}
	for _, row := range rows {
		row.ID = f.s.id()
		row.ContractID = contractID
		row.Baseline = baseline
		f.s.engineers[row.ID] = row
	}
	return nil
}

func (f *fakeStore) CreateEngineers(ctx context.Context, rows []model.EngagedEngineer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		if row.ID == 0 {
			row.ID = f.s.id()
		}
		f.s.engineers[row.ID] = row
	}
	return nil
}

func (f *fakeStore) ListBillingDetails(ctx context.Context, contractID uint) ([]model.BillingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.BillingDetail
	for _, b := range f.s.billing {
		if b.ContractID == contractID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.Before(out[j].PaymentDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f *fakeStore) GetBillingDetail(ctx context.Context, id uint) (*model.BillingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.s.billing[id]
	if !ok {
		return nil, fmt.Errorf("%w: billing row %d", ErrNotFound, id)
	}
	return &b, nil
}

func (f *fakeStore) SaveBillingDetail(ctx context.Context, row *model.BillingDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.billing[row.ID] = *row
	return nil
}

func (f *fakeStore) ReplaceWorkingBillingDetails(ctx context.Context, contractID uint, rows []model.BillingDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range f.s.billing {
		if b.ContractID == contractID && !b.Baseline && b.SourceCRID == nil {
			delete(f.s.billing, id)
		}
	}
	for _, row := range rows {
		row.ID = f.s.id()
		row.ContractID = contractID
		row.Baseline = false
		row.SourceCRID = nil
		f.s.billing[row.ID] = row
	}
	return nil
}

func (f *fakeStore) CreateBillingDetails(ctx context.Context, rows []model.BillingDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		if row.ID == 0 {
			row.ID = f.s.id()
		}
		f.s.billing[row.ID] = row
	}
	return nil
}

func (f *fakeStore) ListMilestones(ctx context.Context, contractID uint) ([]model.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Milestone{}, f.s.milestones[contractID]...), nil
}

func (f *fakeStore) ReplaceMilestones(ctx context.Context, contractID uint, rows []model.Milestone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := make([]model.Milestone, len(rows))
	for i, row := range rows {
		row.ID = f.s.id()
		row.ContractID = contractID
		row.Position = i
		stored[i] = row
	}
	f.s.milestones[contractID] = stored
	return nil
}

func (f *fakeStore) ListResourceEvents(ctx context.Context, contractID uint) ([]model.ResourceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ResourceEvent
	for _, ev := range f.s.events {
		if ev.ContractID == contractID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EffectiveFrom.Equal(out[j].EffectiveFrom) {
			return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (f *fakeStore) AppendResourceEvents(ctx context.Context, events []model.ResourceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendEventsErr != nil {
		return f.appendEventsErr
	}
	for _, ev := range events {
		ev.ID = f.s.id()
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = time.Now()
		}
		f.s.events = append(f.s.events, ev)
	}
	return nil
}

func (f *fakeStore) GetAppendix(ctx context.Context, id uint) (*model.Appendix, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.s.appendices[id]
	if !ok {
		return nil, fmt.Errorf("%w: appendix %d", ErrNotFound, id)
	}
	return &a, nil
}

func (f *fakeStore) NextAppendixNumber(ctx context.Context, contractID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, a := range f.s.appendices {
		if a.ContractID == contractID && a.Number > max {
			max = a.Number
		}
	}
	return max + 1, nil
}

func (f *fakeStore) CreateAppendix(ctx context.Context, a *model.Appendix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAppendixErr != nil {
		return f.createAppendixErr
	}
	if a.ID == 0 {
		a.ID = f.s.id()
	}
	f.s.appendices[a.ID] = *a
	return nil
}

func (f *fakeStore) SaveAppendix(ctx context.Context, a *model.Appendix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.appendices[a.ID] = *a
	return nil
}

func (f *fakeStore) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := *entry
	e.ID = f.s.id()
	f.s.history = append(f.s.history, e)
	return nil
}

func (f *fakeStore) ListHistory(ctx context.Context, contractID *uint, crID *uint) ([]model.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.HistoryEntry
	for _, e := range f.s.history {
		if contractID != nil && (e.ContractID == nil || *e.ContractID != *contractID) {
			continue
		}
		if crID != nil && (e.ChangeRequestID == nil || *e.ChangeRequestID != *crID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == 0 {
		a.ID = f.s.id()
	}
	f.s.attachments[a.ID] = *a
	return nil
}

func (f *fakeStore) GetAttachment(ctx context.Context, id uint) (*model.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.s.attachments[id]
	if !ok {
		return nil, fmt.Errorf("%w: attachment %d", ErrNotFound, id)
	}
	return &a, nil
}

func (f *fakeStore) ListAttachments(ctx context.Context, contractID *uint, crID *uint) ([]model.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Attachment
	for _, a := range f.s.attachments {
		if contractID != nil && (a.ContractID == nil || *a.ContractID != *contractID) {
			continue
		}
		if crID != nil && (a.ChangeRequestID == nil || *a.ChangeRequestID != *crID) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) DeleteAttachment(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.s.attachments, id)
	return nil
}

// Atomically runs fn against a cloned state and swaps it in only when fn
// succeeds, mirroring the database transaction.
func (f *fakeStore) Atomically(ctx context.Context, fn func(Store) error) error {
	f.mu.Lock()
	tx := &fakeStore{
		s:                 f.s.clone(),
		appendEventsErr:   f.appendEventsErr,
		createAppendixErr: f.createAppendixErr,
	}
	f.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	f.mu.Lock()
	f.s = tx.s
	f.mu.Unlock()
	return nil
}
