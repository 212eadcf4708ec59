package model

import "time"

type ResourceAction string

const (
	ResourceActionAdd    ResourceAction = "ADD"
	ResourceActionRemove ResourceAction = "REMOVE"
	ResourceActionModify ResourceAction = "MODIFY"
)

// ResourceDelta is one proposed engineer change carried by a change request
// before approval. Old/new pairs are populated per changed field; nil means
// the field is untouched by the delta.
type ResourceDelta struct {
	ID              uint           `gorm:"primaryKey"`
	ChangeRequestID uint           `gorm:"index"`
	Action          ResourceAction `gorm:"size:10"`
	Position        int

	EngineerID *uint

	Role        string      `gorm:"size:64"`
	Level       string      `gorm:"size:64"`
	BillingType BillingType `gorm:"size:16"`

	RatingOld *float64
	RatingNew *float64
	RateOld   *float64
	RateNew   *float64
	HoursOld  *float64
	HoursNew  *float64

	StartDateOld *time.Time
	StartDateNew *time.Time
	EndDateOld   *time.Time
	EndDateNew   *time.Time

	EffectiveFrom time.Time
}

func (ResourceDelta) TableName() string { return "resource_deltas" }

// BillingDelta is one proposed signed billing adjustment on a Retainer change
// request.
type BillingDelta struct {
	ID              uint `gorm:"primaryKey"`
	ChangeRequestID uint `gorm:"index"`
	Position        int

	PaymentDate time.Time
	Amount      float64
	Note        string `gorm:"type:text"`
}

func (BillingDelta) TableName() string { return "billing_deltas" }

// ResourceEvent is the immutable record of one applied engineer delta. The
// ordered event sequence plus the baseline snapshot is the sole source of
// truth for a Retainer contract's current staffing.
type ResourceEvent struct {
	ID              uint           `gorm:"primaryKey"`
	ContractID      uint           `gorm:"index"`
	ChangeRequestID uint           `gorm:"index"`
	AppendixID      uint
	Seq             int
	Action          ResourceAction `gorm:"size:10"`

	EngineerID *uint

	Role        string      `gorm:"size:64"`
	Level       string      `gorm:"size:64"`
	BillingType BillingType `gorm:"size:16"`

	RatingOld *float64
	RatingNew *float64
	RateOld   *float64
	RateNew   *float64
	HoursOld  *float64
	HoursNew  *float64

	StartDateOld *time.Time
	StartDateNew *time.Time
	EndDateOld   *time.Time
	EndDateNew   *time.Time

	EffectiveFrom time.Time
	CreatedAt     time.Time
}

func (ResourceEvent) TableName() string { return "resource_events" }
