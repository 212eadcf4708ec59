package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/landbridge/contracts-service/internal/model"
	"github.com/landbridge/contracts-service/internal/service"
)

// Store is the gorm-backed entity store. Transition methods take a row lock
// and re-check the expected status so concurrent transitions resolve to one
// winner and one ErrConcurrentModification.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ service.Store = (*Store)(nil)

// Contracts

func (s *Store) GetContract(ctx context.Context, id uint) (*model.Contract, error) {
	var contract model.Contract
	if err := s.db.WithContext(ctx).First(&contract, id).Error; err != nil {
		return nil, wrapNotFound(err, "contract %d", id)
	}
	return &contract, nil
}

func (s *Store) ListContracts(ctx context.Context, clientID *uint) ([]model.Contract, error) {
	query := s.db.WithContext(ctx).Order("id")
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}
	var contracts []model.Contract
	if err := query.Find(&contracts).Error; err != nil {
		return nil, err
	}
	return contracts, nil
}

func (s *Store) CreateContract(ctx context.Context, c *model.Contract) error {
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) SaveContract(ctx context.Context, c *model.Contract) error {
	return s.db.WithContext(ctx).Save(c).Error
}

func (s *Store) CountContracts(ctx context.Context, kind model.ContractKind, year int) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Contract{}).
		Where("kind = ? AND EXTRACT(YEAR FROM created_at) = ?", kind, year).
		Count(&count).Error
	return count, err
}

func (s *Store) TransitionContract(ctx context.Context, id uint, expected, next model.ContractStatus, mutate func(*model.Contract)) (*model.Contract, error) {
	var out *model.Contract
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contract model.Contract
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&contract, id).Error; err != nil {
			return wrapNotFound(err, "contract %d", id)
		}
		if contract.Status != expected {
			return fmt.Errorf("%w: contract %d is %s, expected %s",
				service.ErrConcurrentModification, id, contract.Status, expected)
		}
		contract.Status = next
		if mutate != nil {
			mutate(&contract)
		}
		if err := tx.Save(&contract).Error; err != nil {
			return err
		}
		out = &contract
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Change requests

func (s *Store) GetChangeRequest(ctx context.Context, id uint) (*model.ChangeRequest, error) {
	var cr model.ChangeRequest
	if err := s.db.WithContext(ctx).First(&cr, id).Error; err != nil {
		return nil, wrapNotFound(err, "change request %d", id)
	}
	return &cr, nil
}

func (s *Store) ListChangeRequests(ctx context.Context, contractID uint) ([]model.ChangeRequest, error) {
	var crs []model.ChangeRequest
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("id").
		Find(&crs).Error
	if err != nil {
		return nil, err
	}
	return crs, nil
}

func (s *Store) CreateChangeRequest(ctx context.Context, cr *model.ChangeRequest) error {
	return s.db.WithContext(ctx).Create(cr).Error
}

func (s *Store) SaveChangeRequest(ctx context.Context, cr *model.ChangeRequest) error {
	return s.db.WithContext(ctx).Save(cr).Error
}

func (s *Store) CountChangeRequests(ctx context.Context, year int) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ChangeRequest{}).
		Where("EXTRACT(YEAR FROM created_at) = ?", year).
		Count(&count).Error
	return count, err
}

func (s *Store) TransitionChangeRequest(ctx context.Context, id uint, expected, next model.ChangeRequestStatus, mutate func(*model.ChangeRequest)) (*model.ChangeRequest, error) {
	var out *model.ChangeRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cr model.ChangeRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cr, id).Error; err != nil {
			return wrapNotFound(err, "change request %d", id)
		}
		if cr.Status != expected {
			return fmt.Errorf("%w: change request %d is %s, expected %s",
				service.ErrConcurrentModification, id, cr.Status, expected)
		}
		cr.Status = next
		if mutate != nil {
			mutate(&cr)
		}
		if err := tx.Save(&cr).Error; err != nil {
			return err
		}
		out = &cr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Proposed deltas

func (s *Store) ListResourceDeltas(ctx context.Context, crID uint) ([]model.ResourceDelta, error) {
	var deltas []model.ResourceDelta
	err := s.db.WithContext(ctx).
		Where("change_request_id = ?", crID).
		Order("position").
		Find(&deltas).Error
	if err != nil {
		return nil, err
	}
	return deltas, nil
}

func (s *Store) ReplaceResourceDeltas(ctx context.Context, crID uint, deltas []model.ResourceDelta) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("change_request_id = ?", crID).Delete(&model.ResourceDelta{}).Error; err != nil {
			return err
		}
		for i := range deltas {
			deltas[i].ID = 0
			deltas[i].ChangeRequestID = crID
		}
		if len(deltas) == 0 {
			return nil
		}
		return tx.Create(&deltas).Error
	})
}

func (s *Store) ListBillingDeltas(ctx context.Context, crID uint) ([]model.BillingDelta, error) {
	var deltas []model.BillingDelta
	err := s.db.WithContext(ctx).
		Where("change_request_id = ?", crID).
		Order("position").
		Find(&deltas).Error
	if err != nil {
		return nil, err
	}
	return deltas, nil
}

func (s *Store) ReplaceBillingDeltas(ctx context.Context, crID uint, deltas []model.BillingDelta) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("change_request_id = ?", crID).Delete(&model.BillingDelta{}).Error; err != nil {
			return err
		}
		for i := range deltas {
			deltas[i].ID = 0
			deltas[i].ChangeRequestID = crID
		}
		if len(deltas) == 0 {
			return nil
		}
		return tx.Create(&deltas).Error
	})
}

// Engaged engineers

func (s *Store) ListEngineers(ctx context.Context, contractID uint, baseline bool) ([]model.EngagedEngineer, error) {
	var rows []model.EngagedEngineer
	err := s.db.WithContext(ctx).
		Where("contract_id = ? AND baseline = ?", contractID, baseline).
		Order("start_date, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ReplaceEngineers(ctx context.Context, contractID uint, baseline bool, rows []model.EngagedEngineer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ? AND baseline = ?", contractID, baseline).
			Delete(&model.EngagedEngineer{}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].ContractID = contractID
			rows[i].Baseline = baseline
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) CreateEngineers(ctx context.Context, rows []model.EngagedEngineer) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// Billing rows

func (s *Store) ListBillingDetails(ctx context.Context, contractID uint) ([]model.BillingDetail, error) {
	var rows []model.BillingDetail
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("payment_date, id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) GetBillingDetail(ctx context.Context, id uint) (*model.BillingDetail, error) {
	var row model.BillingDetail
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, wrapNotFound(err, "billing row %d", id)
	}
	return &row, nil
}

func (s *Store) SaveBillingDetail(ctx context.Context, row *model.BillingDetail) error {
	return s.db.WithContext(ctx).Save(row).Error
}

func (s *Store) ReplaceWorkingBillingDetails(ctx context.Context, contractID uint, rows []model.BillingDetail) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ? AND baseline = FALSE AND source_cr_id IS NULL", contractID).
			Delete(&model.BillingDetail{}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].ContractID = contractID
			rows[i].Baseline = false
			rows[i].SourceCRID = nil
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (s *Store) CreateBillingDetails(ctx context.Context, rows []model.BillingDetail) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// Milestones

func (s *Store) ListMilestones(ctx context.Context, contractID uint) ([]model.Milestone, error) {
	var rows []model.Milestone
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) ReplaceMilestones(ctx context.Context, contractID uint, rows []model.Milestone) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", contractID).Delete(&model.Milestone{}).Error; err != nil {
			return err
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].ContractID = contractID
			rows[i].Position = i
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Resource events

func (s *Store) ListResourceEvents(ctx context.Context, contractID uint) ([]model.ResourceEvent, error) {
	var events []model.ResourceEvent
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("effective_from, seq, id").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) AppendResourceEvents(ctx context.Context, events []model.ResourceEvent) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&events).Error
}

// Appendices

func (s *Store) GetAppendix(ctx context.Context, id uint) (*model.Appendix, error) {
	var appendix model.Appendix
	if err := s.db.WithContext(ctx).First(&appendix, id).Error; err != nil {
		return nil, wrapNotFound(err, "appendix %d", id)
	}
	return &appendix, nil
}

// NextAppendixNumber serializes on the contract row so concurrent approvals
// cannot allocate duplicate or gapped numbers.
func (s *Store) NextAppendixNumber(ctx context.Context, contractID uint) (int, error) {
	var next int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contract model.Contract
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&contract, contractID).Error; err != nil {
			return wrapNotFound(err, "contract %d", contractID)
		}
		var max int
		if err := tx.Raw(`
			SELECT COALESCE(MAX(number), 0) FROM contract_appendices WHERE contract_id = ?
		`, contractID).Scan(&max).Error; err != nil {
			return err
		}
		next = max + 1
		return nil
	})
	return next, err
}

func (s *Store) CreateAppendix(ctx context.Context, a *model.Appendix) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) SaveAppendix(ctx context.Context, a *model.Appendix) error {
	return s.db.WithContext(ctx).Save(a).Error
}

// History

func (s *Store) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListHistory(ctx context.Context, contractID *uint, crID *uint) ([]model.HistoryEntry, error) {
	query := s.db.WithContext(ctx).Order("id")
	if contractID != nil {
		query = query.Where("contract_id = ?", *contractID)
	}
	if crID != nil {
		query = query.Where("change_request_id = ?", *crID)
	}
	var entries []model.HistoryEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Attachments

func (s *Store) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *Store) GetAttachment(ctx context.Context, id uint) (*model.Attachment, error) {
	var attachment model.Attachment
	if err := s.db.WithContext(ctx).First(&attachment, id).Error; err != nil {
		return nil, wrapNotFound(err, "attachment %d", id)
	}
	return &attachment, nil
}

func (s *Store) ListAttachments(ctx context.Context, contractID *uint, crID *uint) ([]model.Attachment, error) {
	query := s.db.WithContext(ctx).Order("id")
	if contractID != nil {
		query = query.Where("contract_id = ?", *contractID)
	}
	if crID != nil {
		query = query.Where("change_request_id = ?", *crID)
	}
	var attachments []model.Attachment
	if err := query.Find(&attachments).Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

func (s *Store) DeleteAttachment(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&model.Attachment{}, id).Error
}

// Atomically runs fn inside one database transaction; nested transition
// calls join it via savepoints.
func (s *Store) Atomically(ctx context.Context, fn func(service.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func wrapNotFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: "+format, append([]interface{}{service.ErrNotFound}, args...)...)
	}
	return err
}
