package model

import "time"

type BillingType string

const (
	BillingTypeMonthly BillingType = "MONTHLY"
	BillingTypeHourly  BillingType = "HOURLY"
)

// EngagedEngineer is one staffed resource on a Retainer SOW. Rows with
// Baseline set belong to the frozen activation snapshot; rows without it are
// the editable working set of a contract still in a draft state.
type EngagedEngineer struct {
	ID         uint `gorm:"primaryKey"`
	ContractID uint `gorm:"index"`
	Baseline   bool `gorm:"index"`

	Role        string      `gorm:"size:64"`
	Level       string      `gorm:"size:64"`
	BillingType BillingType `gorm:"size:16"`

	// Monthly billing
	Rating        float64
	MonthlySalary float64

	// Hourly billing
	HourlyRate float64
	Hours      float64

	StartDate time.Time
	EndDate   *time.Time
}

func (EngagedEngineer) TableName() string { return "engaged_engineers" }

// Subtotal is the engineer's billed amount under its billing type.
func (e *EngagedEngineer) Subtotal() float64 {
	if e.BillingType == BillingTypeHourly {
		return e.HourlyRate * e.Hours
	}
	return e.MonthlySalary
}

// BillingDetail is one ledger row. Fixed-Price rows are absolute (derived from
// a milestone); Retainer rows are either frozen baseline rows or signed
// adjustments appended at change-request approval (SourceCRID set).
type BillingDetail struct {
	ID         uint `gorm:"primaryKey"`
	ContractID uint `gorm:"index"`
	Baseline   bool `gorm:"index"`

	BillingName string `gorm:"size:255"`
	Milestone   string `gorm:"size:255"`
	Percentage  *float64

	PaymentDate time.Time
	Amount      float64
	Note        string `gorm:"type:text"`
	IsPaid      bool

	SourceCRID *uint `gorm:"index"`

	CreatedAt time.Time
}

func (BillingDetail) TableName() string { return "billing_details" }
