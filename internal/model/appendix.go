package model

import "time"

// Appendix is the immutable artifact documenting one approved change request
// on a Retainer contract. Numbers are sequential per contract (PL-001,
// PL-002, ...) and allocated inside the approval transaction.
type Appendix struct {
	ID              uint   `gorm:"primaryKey"`
	ContractID      uint   `gorm:"index"`
	ChangeRequestID uint   `gorm:"uniqueIndex"`
	Number          int
	Code            string `gorm:"size:50"`
	Title           string `gorm:"size:255"`
	Summary         string `gorm:"type:text"`
	PDFKey          string `gorm:"size:500"`
	SignedAt        *time.Time
	CreatedAt       time.Time
}

func (Appendix) TableName() string { return "contract_appendices" }
