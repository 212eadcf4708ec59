package auth

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/landbridge/contracts-service/internal/model"
	"github.com/landbridge/contracts-service/internal/service"
)

// Directory resolves user ids against the users table. It backs the role
// checks the state machines perform before any transition.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Resolve(ctx context.Context, userID uint) (model.Principal, error) {
	var row struct {
		ID       uint
		Role     string
		FullName string
		Email    string
	}
	err := d.db.WithContext(ctx).Raw(`
		SELECT id, role, full_name, email
		FROM users
		WHERE id = ?
	`, userID).Scan(&row).Error
	if err != nil {
		return model.Principal{}, err
	}
	if row.ID == 0 {
		return model.Principal{}, fmt.Errorf("%w: user %d", service.ErrNotFound, userID)
	}
	role, err := ParseRole(row.Role)
	if err != nil {
		return model.Principal{}, err
	}
	return model.Principal{
		UserID:   row.ID,
		Role:     role,
		FullName: row.FullName,
		Email:    row.Email,
	}, nil
}
