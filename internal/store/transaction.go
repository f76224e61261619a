package store

import (
	"context"

	"gorm.io/gorm"
)

// DoInTx runs fn inside one database transaction, rolling back on error.
func DoInTx(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	err := fn(tx)
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// DoInTxContext is DoInTx bound to ctx, so cancelling the request aborts
// the transaction instead of leaving it open.
func DoInTxContext(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return DoInTx(db.WithContext(ctx), fn)
}
