package checker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRTYPUBG/trendcord/internal/database"
	"github.com/CRTYPUBG/trendcord/internal/models"
)

type recorded struct {
	snap  *models.ProductSnapshot
	event *database.OutboxEvent
}

type stubStore struct {
	products []*database.TrackedProduct
	listErr  error
	saveErr  error
	saved    []recorded
}

func (s *stubStore) ListTrackedProducts(context.Context) ([]*database.TrackedProduct, error) {
	return s.products, s.listErr
}

func (s *stubStore) RecordObservation(_ context.Context, snap *models.ProductSnapshot, event *database.OutboxEvent) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, recorded{snap: snap, event: event})
	return nil
}

type stubLookup struct {
	snapshots map[string]*models.ProductSnapshot
}

func (s *stubLookup) GetProductInfo(_ context.Context, input string) *models.ProductSnapshot {
	if snap, ok := s.snapshots[input]; ok {
		return snap
	}
	snap := models.NewSnapshot(input, "")
	snap.Error = "lookup failed"
	return snap
}

func newTestChecker(store Store, lookup Lookup) *Checker {
	c := New(store, lookup, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetProductDelay(0)
	return c
}

func tracked(id string, price float64, availability models.Availability) *database.TrackedProduct {
	return &database.TrackedProduct{
		ProductID:    id,
		Name:         "Ürün " + id,
		URL:          "https://www.trendyol.com/sr?pi=" + id,
		CurrentPrice: models.FloatPtr(price),
		Availability: availability,
	}
}

func successSnap(id string, price float64) *models.ProductSnapshot {
	snap := models.NewSnapshot(id, "https://www.trendyol.com/sr?pi="+id)
	snap.Name = "Ürün " + id
	snap.CurrentPrice = models.FloatPtr(price)
	snap.OriginalPrice = models.FloatPtr(price)
	snap.Availability = models.AvailabilityInStock
	snap.Source = models.SourceScraping
	snap.Success = true
	return snap
}

func TestRunOnceNoChange(t *testing.T) {
	store := &stubStore{products: []*database.TrackedProduct{tracked("1", 100, models.AvailabilityInStock)}}
	lookup := &stubLookup{snapshots: map[string]*models.ProductSnapshot{"1": successSnap("1", 100)}}

	require.NoError(t, newTestChecker(store, lookup).RunOnce(context.Background()))

	require.Len(t, store.saved, 1)
	assert.Nil(t, store.saved[0].event)
}

func TestRunOncePriceDrop(t *testing.T) {
	store := &stubStore{products: []*database.TrackedProduct{tracked("1", 100, models.AvailabilityInStock)}}
	lookup := &stubLookup{snapshots: map[string]*models.ProductSnapshot{"1": successSnap("1", 80)}}

	require.NoError(t, newTestChecker(store, lookup).RunOnce(context.Background()))

	require.Len(t, store.saved, 1)
	event := store.saved[0].event
	require.NotNil(t, event)
	assert.Equal(t, database.EventPriceDropped, event.EventType)
	assert.Equal(t, "1", event.AggregateID)

	var payload database.PriceChangeEvent
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, 100.0, payload.OldPrice)
	assert.Equal(t, 80.0, payload.NewPrice)
}

func TestRunOncePriceIncrease(t *testing.T) {
	store := &stubStore{products: []*database.TrackedProduct{tracked("1", 100, models.AvailabilityInStock)}}
	lookup := &stubLookup{snapshots: map[string]*models.ProductSnapshot{"1": successSnap("1", 120)}}

	require.NoError(t, newTestChecker(store, lookup).RunOnce(context.Background()))

	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].event)
	assert.Equal(t, database.EventPriceChanged, store.saved[0].event.EventType)
}

func TestRunOnceSoldOutTransition(t *testing.T) {
	store := &stubStore{products: []*database.TrackedProduct{tracked("1", 100, models.AvailabilityInStock)}}

	soldOut := models.NewSnapshot("1", "https://www.trendyol.com/sr?pi=1")
	soldOut.Name = "Ürün 1"
	soldOut.Availability = models.AvailabilitySoldOut
	lookup := &stubLookup{snapshots: map[string]*models.ProductSnapshot{"1": soldOut}}

	require.NoError(t, newTestChecker(store, lookup).RunOnce(context.Background()))

	require.Len(t, store.saved, 1)
	require.NotNil(t, store.saved[0].event)
	assert.Equal(t, database.EventProductSoldOut, store.saved[0].event.EventType)
}

func TestRunOnceSkipsFailedLookups(t *testing.T) {
	store := &stubStore{products: []*database.TrackedProduct{
		tracked("1", 100, models.AvailabilityInStock),
		tracked("2", 200, models.AvailabilityInStock),
	}}
	// Product 1 has no stubbed snapshot so its lookup fails.
	lookup := &stubLookup{snapshots: map[string]*models.ProductSnapshot{"2": successSnap("2", 180)}}

	require.NoError(t, newTestChecker(store, lookup).RunOnce(context.Background()))

	require.Len(t, store.saved, 1)
	assert.Equal(t, "2", store.saved[0].snap.ProductID)
}

func TestRunOnceListFailure(t *testing.T) {
	store := &stubStore{listErr: errors.New("db down")}
	err := newTestChecker(store, &stubLookup{}).RunOnce(context.Background())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		old  *database.TrackedProduct
		snap *models.ProductSnapshot
		want string
	}{
		{
			name: "drop",
			old:  tracked("1", 100, models.AvailabilityInStock),
			snap: successSnap("1", 90),
			want: database.EventPriceDropped,
		},
		{
			name: "increase",
			old:  tracked("1", 100, models.AvailabilityInStock),
			snap: successSnap("1", 110),
			want: database.EventPriceChanged,
		},
		{
			name: "unchanged",
			old:  tracked("1", 100, models.AvailabilityInStock),
			snap: successSnap("1", 100),
			want: "",
		},
		{
			name: "already sold out stays quiet",
			old:  tracked("1", 100, models.AvailabilitySoldOut),
			snap: func() *models.ProductSnapshot {
				s := successSnap("1", 100)
				s.Availability = models.AvailabilitySoldOut
				return s
			}(),
			want: "",
		},
		{
			name: "no previous price",
			old: &database.TrackedProduct{
				ProductID:    "1",
				Availability: models.AvailabilityInStock,
			},
			snap: successSnap("1", 50),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.old, tt.snap))
		})
	}
}
