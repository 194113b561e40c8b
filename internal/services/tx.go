package services

import (
	"context"

	"gorm.io/gorm"
)

// runInTx runs fn inside a database transaction. A nil db runs fn without
// one, which keeps multi-step operations exercisable against fake repos.
func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}
