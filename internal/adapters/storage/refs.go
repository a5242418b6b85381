package storage

import (
	"time"

	"gorm.io/gorm"

	"fellowship/internal/domain/apperr"
)

// RequireRow returns missing when no row in table has the given id. It is
// meant to run inside the caller's transaction so the check and the write
// that depends on it see the same snapshot.
// PRE: table is a trusted identifier, never user input
func RequireRow(tx *gorm.DB, table, id string, missing *apperr.Error) error {
	if id == "" {
		return missing
	}
	var n int64
	if err := tx.Table(table).Where("id = ?", id).Count(&n).Error; err != nil {
		return TranslateError(err, nil, nil)
	}
	if n == 0 {
		return missing
	}
	return nil
}

// UTC normalises an optional timestamp so stored values share one offset.
func UTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
