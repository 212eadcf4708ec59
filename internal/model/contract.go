package model

import (
	"fmt"
	"strings"
	"time"
)

type ContractKind string

const (
	ContractKindMSA ContractKind = "MSA"
	ContractKindSOW ContractKind = "SOW"
)

type EngagementType string

const (
	EngagementFixedPrice EngagementType = "FIXED_PRICE"
	EngagementRetainer   EngagementType = "RETAINER"
)

type ContractStatus string

const (
	ContractStatusDraft             ContractStatus = "DRAFT"
	ContractStatusUnderReview       ContractStatus = "UNDER_REVIEW"
	ContractStatusClientUnderReview ContractStatus = "CLIENT_UNDER_REVIEW"
	ContractStatusRequestForChange  ContractStatus = "REQUEST_FOR_CHANGE"
	ContractStatusActive            ContractStatus = "ACTIVE"
	ContractStatusTerminated        ContractStatus = "TERMINATED"
)

// Editable reports whether field-level mutation of the contract is permitted.
func (s ContractStatus) Editable() bool {
	return s == ContractStatusDraft || s == ContractStatusRequestForChange
}

func (s ContractStatus) Terminal() bool {
	return s == ContractStatusTerminated
}

// ParseContractStatus normalizes the status spellings found in legacy exports
// ("Under Review", "Under_Review", "Internal Review", ...) to one canonical
// value. Aliases are accepted on input only; the canonical form is always what
// gets persisted and emitted.
func ParseContractStatus(raw string) (ContractStatus, error) {
	switch normalizeStatus(raw) {
	case "draft":
		return ContractStatusDraft, nil
	case "under review", "internal review", "under internal review", "pending":
		return ContractStatusUnderReview, nil
	case "client under review", "client review":
		return ContractStatusClientUnderReview, nil
	case "request for change", "requires revision":
		return ContractStatusRequestForChange, nil
	case "active", "approved":
		return ContractStatusActive, nil
	case "terminated", "cancelled":
		return ContractStatusTerminated, nil
	default:
		return "", fmt.Errorf("unknown contract status %q", raw)
	}
}

func normalizeStatus(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Contract is an MSA or SOW commercial agreement. SOW contracts carry an
// engagement type and a parent MSA reference.
type Contract struct {
	ID             uint           `gorm:"primaryKey"`
	Code           string         `gorm:"uniqueIndex;size:50"`
	Kind           ContractKind   `gorm:"size:10"`
	ClientID       uint           `gorm:"index"`
	Name           string         `gorm:"size:255"`
	Status         ContractStatus `gorm:"size:50"`
	EngagementType EngagementType `gorm:"size:20"`
	ParentMSAID    *uint
	ProjectName    string `gorm:"size:255"`
	Scope          string `gorm:"type:text"`

	EffectiveStart time.Time
	EffectiveEnd   time.Time
	Value          float64

	// Commercial terms
	Currency       string `gorm:"size:16"`
	PaymentTerms   string `gorm:"size:128"`
	InvoicingCycle string `gorm:"size:64"`
	BillingDay     string `gorm:"size:64"`
	TaxWithholding string `gorm:"size:16"`

	// Legal / compliance
	IPOwnership  string `gorm:"size:128"`
	GoverningLaw string `gorm:"size:64"`

	VendorContactName  string `gorm:"size:255"`
	VendorContactEmail string `gorm:"size:255"`

	AssigneeID   uint
	ReviewerID   *uint
	ReviewAction string `gorm:"size:32"`
	ReviewNotes  string `gorm:"type:text"`

	// Set when the resource/billing snapshot has been frozen on first
	// activation of a Retainer contract.
	BaselineFrozen bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Contract) TableName() string { return "contracts" }

func (c *Contract) IsRetainer() bool {
	return c.Kind == ContractKindSOW && c.EngagementType == EngagementRetainer
}

func (c *Contract) IsFixedPrice() bool {
	return c.Kind == ContractKindSOW && c.EngagementType == EngagementFixedPrice
}

// Milestone is a Fixed-Price delivery milestone. Billing rows are derived from
// milestones, never stored as independent truth.
type Milestone struct {
	ID                uint `gorm:"primaryKey"`
	ContractID        uint `gorm:"index"`
	Name              string `gorm:"size:255"`
	PaymentPercentage float64
	PlannedEnd        time.Time
	DeliveryNote      string `gorm:"type:text"`
	Position          int
}

func (Milestone) TableName() string { return "milestones" }
