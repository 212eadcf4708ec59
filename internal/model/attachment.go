package model

import "time"

// Attachment links an uploaded document to a contract or change request. The
// object itself lives in the attachment store under Key; upload and delete are
// outside the transactional boundary of status transitions.
type Attachment struct {
	ID              uint   `gorm:"primaryKey"`
	ContractID      *uint  `gorm:"index"`
	ChangeRequestID *uint  `gorm:"index"`
	FileName        string `gorm:"size:255"`
	Key             string `gorm:"size:255;uniqueIndex"`
	ContentType     string `gorm:"size:128"`
	UploadedBy      uint
	CreatedAt       time.Time
}

func (Attachment) TableName() string { return "attachments" }
