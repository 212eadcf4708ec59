package model

import "time"

type HistoryAction string

const (
	HistoryCreated   HistoryAction = "CREATED"
	HistoryUpdated   HistoryAction = "UPDATED"
	HistorySubmitted HistoryAction = "SUBMITTED"
	HistoryReviewed  HistoryAction = "REVIEWED"
	HistoryApproved  HistoryAction = "APPROVED"
	HistoryRejected  HistoryAction = "REJECTED"
	HistoryActivated HistoryAction = "ACTIVATED"
	HistoryTerminated HistoryAction = "TERMINATED"
)

// HistoryEntry records one lifecycle fact on a contract or change request.
type HistoryEntry struct {
	ID              uint `gorm:"primaryKey"`
	ContractID      *uint `gorm:"index"`
	ChangeRequestID *uint `gorm:"index"`
	Action          HistoryAction `gorm:"size:32"`
	Detail          string        `gorm:"type:text"`
	ActorID         uint
	CreatedAt       time.Time
}

func (HistoryEntry) TableName() string { return "history_entries" }
