package model

import (
	"fmt"
	"time"
)

type ChangeRequestStatus string

const (
	ChangeRequestStatusDraft               ChangeRequestStatus = "DRAFT"
	ChangeRequestStatusUnderInternalReview ChangeRequestStatus = "UNDER_INTERNAL_REVIEW"
	ChangeRequestStatusClientUnderReview   ChangeRequestStatus = "CLIENT_UNDER_REVIEW"
	ChangeRequestStatusProcessing          ChangeRequestStatus = "PROCESSING"
	ChangeRequestStatusApproved            ChangeRequestStatus = "APPROVED"
	ChangeRequestStatusRejected            ChangeRequestStatus = "REJECTED"
)

// Editable reports whether the change request's proposed deltas may still be
// modified. Processing is the revision loop entered after REQUEST_REVISION.
func (s ChangeRequestStatus) Editable() bool {
	return s == ChangeRequestStatusDraft || s == ChangeRequestStatusProcessing
}

func (s ChangeRequestStatus) Terminal() bool {
	return s == ChangeRequestStatusApproved || s == ChangeRequestStatusRejected
}

// ParseChangeRequestStatus accepts the legacy spellings alongside the
// canonical values.
func ParseChangeRequestStatus(raw string) (ChangeRequestStatus, error) {
	switch normalizeStatus(raw) {
	case "draft":
		return ChangeRequestStatusDraft, nil
	case "under internal review", "under review", "internal review":
		return ChangeRequestStatusUnderInternalReview, nil
	case "client under review", "client review":
		return ChangeRequestStatusClientUnderReview, nil
	case "processing", "pending", "requires revision":
		return ChangeRequestStatusProcessing, nil
	case "approved", "active":
		return ChangeRequestStatusApproved, nil
	case "rejected", "terminated":
		return ChangeRequestStatusRejected, nil
	default:
		return "", fmt.Errorf("unknown change request status %q", raw)
	}
}

type ChangeRequestType string

const (
	// MSA and Fixed-Price SOW
	CRTypeAddScope    ChangeRequestType = "ADD_SCOPE"
	CRTypeRemoveScope ChangeRequestType = "REMOVE_SCOPE"
	CRTypeOther       ChangeRequestType = "OTHER"

	// Fixed-Price SOW only
	CRTypeExtendSchedule   ChangeRequestType = "EXTEND_SCHEDULE"
	CRTypeRateChange       ChangeRequestType = "RATE_CHANGE"
	CRTypeIncreaseResource ChangeRequestType = "INCREASE_RESOURCE"

	// Retainer SOW only
	CRTypeResourceChange  ChangeRequestType = "RESOURCE_CHANGE"
	CRTypeScheduleChange  ChangeRequestType = "SCHEDULE_CHANGE"
	CRTypeScopeAdjustment ChangeRequestType = "SCOPE_ADJUSTMENT"
)

// ChangeRequestTypesFor returns the type taxonomy for a contract kind and, for
// SOW contracts, its engagement type.
func ChangeRequestTypesFor(kind ContractKind, engagement EngagementType) []ChangeRequestType {
	if kind == ContractKindMSA {
		return []ChangeRequestType{CRTypeAddScope, CRTypeRemoveScope, CRTypeOther}
	}
	switch engagement {
	case EngagementFixedPrice:
		return []ChangeRequestType{
			CRTypeExtendSchedule, CRTypeRateChange, CRTypeIncreaseResource,
			CRTypeAddScope, CRTypeRemoveScope, CRTypeOther,
		}
	case EngagementRetainer:
		return []ChangeRequestType{CRTypeResourceChange, CRTypeScheduleChange, CRTypeScopeAdjustment}
	default:
		return nil
	}
}

func ValidChangeRequestType(t ChangeRequestType, kind ContractKind, engagement EngagementType) bool {
	for _, allowed := range ChangeRequestTypesFor(kind, engagement) {
		if t == allowed {
			return true
		}
	}
	return false
}

// ChangeRequest is a proposed amendment to a contract, subject to its own
// review workflow. Rejection and termination are soft: a status transition,
// never a deletion.
type ChangeRequest struct {
	ID         uint                `gorm:"primaryKey"`
	Code       string              `gorm:"uniqueIndex;size:50"`
	ContractID uint                `gorm:"index"`
	Type       ChangeRequestType   `gorm:"size:50"`
	Status     ChangeRequestStatus `gorm:"size:50"`

	Title   string `gorm:"size:255"`
	Summary string `gorm:"type:text"`
	Reason  string `gorm:"type:text"`

	EffectiveFrom  time.Time
	EffectiveUntil *time.Time

	// Impact analysis, Fixed-Price SOW only.
	DevHours       *int
	TestHours      *int
	NewEndDate     *time.Time
	DelayDays      *int
	AdditionalCost *float64

	CreatedBy          uint
	InternalReviewerID *uint
	ReviewNotes        string `gorm:"type:text"`

	AppendixID *uint
	ApprovedBy *uint
	ApprovedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ChangeRequest) TableName() string { return "change_requests" }
