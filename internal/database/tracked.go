package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/CRTYPUBG/trendcord/internal/models"
)

// TrackedProduct is a product the checker watches for price changes.
type TrackedProduct struct {
	ProductID     string              `db:"product_id"`
	Name          string              `db:"name"`
	URL           string              `db:"url"`
	ImageURL      string              `db:"image_url"`
	CurrentPrice  *float64            `db:"current_price"`
	OriginalPrice *float64            `db:"original_price"`
	Availability  models.Availability `db:"availability"`
	Source        models.Source       `db:"source"`
	AddedBy       string              `db:"added_by"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

// PricePoint is one row of a product's price history.
type PricePoint struct {
	ProductID    string              `db:"product_id"`
	Price        float64             `db:"price"`
	Availability models.Availability `db:"availability"`
	RecordedAt   time.Time           `db:"recorded_at"`
}

// InsertTrackedProduct inserts a product or refreshes it when already tracked.
func (db *DB) InsertTrackedProduct(ctx context.Context, p *TrackedProduct) error {
	query := `
		INSERT INTO tracked_product (
			product_id, name, url, image_url, current_price,
			original_price, availability, source, added_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			image_url = EXCLUDED.image_url,
			current_price = EXCLUDED.current_price,
			original_price = EXCLUDED.original_price,
			availability = EXCLUDED.availability,
			source = EXCLUDED.source,
			updated_at = CURRENT_TIMESTAMP
		RETURNING created_at, updated_at`

	err := db.pool.QueryRow(ctx, query,
		p.ProductID, p.Name, p.URL, p.ImageURL, p.CurrentPrice,
		p.OriginalPrice, p.Availability, p.Source, p.AddedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert tracked product: %w", err)
	}
	return nil
}

// GetTrackedProduct returns one tracked product, or nil when not tracked.
func (db *DB) GetTrackedProduct(ctx context.Context, productID string) (*TrackedProduct, error) {
	query := `
		SELECT product_id, name, url, image_url, current_price,
			   original_price, availability, source, added_by, created_at, updated_at
		FROM tracked_product
		WHERE product_id = $1`

	p := &TrackedProduct{}
	err := db.pool.QueryRow(ctx, query, productID).Scan(
		&p.ProductID, &p.Name, &p.URL, &p.ImageURL, &p.CurrentPrice,
		&p.OriginalPrice, &p.Availability, &p.Source, &p.AddedBy, &p.CreatedAt, &p.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked product: %w", err)
	}
	return p, nil
}

// ListTrackedProducts returns all tracked products, oldest first.
func (db *DB) ListTrackedProducts(ctx context.Context) ([]*TrackedProduct, error) {
	query := `
		SELECT product_id, name, url, image_url, current_price,
			   original_price, availability, source, added_by, created_at, updated_at
		FROM tracked_product
		ORDER BY created_at ASC`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked products: %w", err)
	}
	defer rows.Close()

	var products []*TrackedProduct
	for rows.Next() {
		p := &TrackedProduct{}
		err := rows.Scan(
			&p.ProductID, &p.Name, &p.URL, &p.ImageURL, &p.CurrentPrice,
			&p.OriginalPrice, &p.Availability, &p.Source, &p.AddedBy, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return products, nil
}

// DeleteTrackedProduct stops tracking a product. History rows cascade.
func (db *DB) DeleteTrackedProduct(ctx context.Context, productID string) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		"DELETE FROM tracked_product WHERE product_id = $1", productID)
	if err != nil {
		return false, fmt.Errorf("failed to delete tracked product: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertPriceTx refreshes the stored state of a tracked product inside
// the caller's transaction.
func (db *DB) UpsertPriceTx(ctx context.Context, tx pgx.Tx, snap *models.ProductSnapshot) error {
	query := `
		UPDATE tracked_product SET
			name = COALESCE(NULLIF($2, ''), name),
			image_url = COALESCE(NULLIF($3, ''), image_url),
			current_price = $4,
			original_price = $5,
			availability = $6,
			source = $7,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = $1`

	_, err := tx.Exec(ctx, query,
		snap.ProductID, snap.Name, snap.ImageURL,
		snap.CurrentPrice, snap.OriginalPrice, snap.Availability, snap.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to update tracked price: %w", err)
	}
	return nil
}

// AppendPriceHistoryTx records a price observation inside the caller's
// transaction.
func (db *DB) AppendPriceHistoryTx(ctx context.Context, tx pgx.Tx, productID string, price float64, availability models.Availability) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO price_history (product_id, price, availability) VALUES ($1, $2, $3)`,
		productID, price, availability,
	)
	if err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	return nil
}

// GetPriceHistory returns the most recent price points, newest first.
func (db *DB) GetPriceHistory(ctx context.Context, productID string, limit int) ([]*PricePoint, error) {
	query := `
		SELECT product_id, price, availability, recorded_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []*PricePoint
	for rows.Next() {
		pt := &PricePoint{}
		if err := rows.Scan(&pt.ProductID, &pt.Price, &pt.Availability, &pt.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		points = append(points, pt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return points, nil
}
