package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/landbridge/contracts-service/internal/model"
)

// LedgerExporter turns a contract's ledger into a downloadable workbook.
type LedgerExporter interface {
	Generate(contract *model.Contract, rows []model.BillingDetail) ([]byte, error)
}

// OverdueNotice is a read-only derived view of unpaid rows past their date.
type OverdueNotice struct {
	Rows  []model.BillingDetail
	Total float64
	Count int
}

// BillingService derives and annotates the billing ledger. Amounts and dates
// are never edited here; the only stored mutation is the paid flag.
type BillingService struct {
	store Store
	recon *Reconstructor
	excel LedgerExporter
	log   zerolog.Logger
}

func NewBillingService(store Store, recon *Reconstructor, excel LedgerExporter, log zerolog.Logger) *BillingService {
	return &BillingService{store: store, recon: recon, excel: excel, log: log}
}

// Ledger returns the contract's billing rows: the baseline+adjustment fold
// for Retainer contracts, the milestone derivation for Fixed Price.
func (s *BillingService) Ledger(ctx context.Context, contractID uint) (*model.Contract, []model.BillingDetail, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	if contract.IsRetainer() && contract.BaselineFrozen {
		snap, err := s.recon.CurrentState(ctx, contractID)
		if err != nil {
			return nil, nil, err
		}
		return contract, snap.Billing, nil
	}
	rows, err := s.store.ListBillingDetails(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}
	out := make([]model.BillingDetail, 0, len(rows))
	for _, row := range rows {
		if !row.Baseline {
			out = append(out, row)
		}
	}
	sortLedger(out)
	return contract, out, nil
}

// SetPaid flips the paid flag on one ledger row. Permitted only for the
// contract assignee or a Sales Manager, and only while the contract is
// Active. Amounts and dates are untouched.
func (s *BillingService) SetPaid(ctx context.Context, actor model.Principal, contractID, rowID uint, paid bool) (*model.BillingDetail, error) {
	contract, err := s.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !actor.IsSalesManager() && actor.UserID != contract.AssigneeID {
		return nil, fmt.Errorf("%w: only the assignee or a Sales Manager can mark payments", ErrPermissionDenied)
	}
	if contract.Status != model.ContractStatusActive {
		return nil, fmt.Errorf("%w: payments can only be marked on Active contracts", ErrInvalidInput)
	}
	row, err := s.store.GetBillingDetail(ctx, rowID)
	if err != nil {
		return nil, err
	}
	if row.ContractID != contract.ID {
		return nil, fmt.Errorf("%w: billing row %d does not belong to contract %s", ErrInvalidInput, rowID, contract.Code)
	}
	if row.IsPaid == paid {
		return row, nil
	}
	row.IsPaid = paid
	if err := s.store.SaveBillingDetail(ctx, row); err != nil {
		return nil, err
	}
	s.log.Info().Uint("contract_id", contract.ID).Uint("billing_id", row.ID).Bool("paid", paid).Msg("billing row marked")
	return row, nil
}

// Overdue reports unpaid rows dated before today. Derived, never stored.
func (s *BillingService) Overdue(ctx context.Context, contractID uint, today time.Time) (*OverdueNotice, error) {
	_, rows, err := s.Ledger(ctx, contractID)
	if err != nil {
		return nil, err
	}
	notice := &OverdueNotice{}
	for _, row := range rows {
		if row.IsPaid || !row.PaymentDate.Before(today) {
			continue
		}
		notice.Rows = append(notice.Rows, row)
		notice.Total += row.Amount
		notice.Count++
	}
	return notice, nil
}

// Export renders the ledger as a workbook for download.
func (s *BillingService) Export(ctx context.Context, contractID uint) (string, []byte, error) {
	contract, rows, err := s.Ledger(ctx, contractID)
	if err != nil {
		return "", nil, err
	}
	content, err := s.excel.Generate(contract, rows)
	if err != nil {
		return "", nil, err
	}
	name := fmt.Sprintf("billing-%s-%s.xlsx", contract.Code, time.Now().Format("20060102"))
	return name, content, nil
}
