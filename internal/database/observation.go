package database

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/CRTYPUBG/trendcord/internal/models"
)

// RecordObservation persists one checker observation atomically: the
// tracked product row, a price history entry, and optionally an outbox
// event. Either everything commits or nothing does, which is what lets
// the relay publish without ever emitting an event for a lost write.
func (db *DB) RecordObservation(ctx context.Context, snap *models.ProductSnapshot, event *OutboxEvent) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := db.UpsertPriceTx(ctx, tx, snap); err != nil {
			return err
		}
		if snap.CurrentPrice != nil {
			if err := db.AppendPriceHistoryTx(ctx, tx, snap.ProductID, *snap.CurrentPrice, snap.Availability); err != nil {
				return err
			}
		}
		if event != nil {
			return NewOutboxRepository(db).InsertWithTx(ctx, tx, event)
		}
		return nil
	})
}
