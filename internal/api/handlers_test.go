package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRTYPUBG/trendcord/internal/database"
	"github.com/CRTYPUBG/trendcord/internal/models"
	"github.com/CRTYPUBG/trendcord/internal/monitor"
	"github.com/CRTYPUBG/trendcord/internal/resolver"
)

type stubService struct {
	snapshot *models.ProductSnapshot
}

func (s *stubService) Resolve(_ context.Context, input string) (*models.ProductReference, error) {
	if input == "unresolvable" {
		return nil, resolver.ErrNotResolvable
	}
	return &models.ProductReference{
		Raw:          input,
		ProductID:    "123456789",
		CanonicalURL: "https://www.trendyol.com/sr?pi=123456789",
	}, nil
}

func (s *stubService) GetProductInfo(context.Context, string) *models.ProductSnapshot {
	return s.snapshot
}

type stubStore struct {
	products map[string]*database.TrackedProduct
	history  []*database.PricePoint
}

func newStubStore() *stubStore {
	return &stubStore{products: map[string]*database.TrackedProduct{}}
}

func (s *stubStore) InsertTrackedProduct(_ context.Context, p *database.TrackedProduct) error {
	s.products[p.ProductID] = p
	return nil
}

func (s *stubStore) GetTrackedProduct(_ context.Context, id string) (*database.TrackedProduct, error) {
	return s.products[id], nil
}

func (s *stubStore) ListTrackedProducts(context.Context) ([]*database.TrackedProduct, error) {
	var out []*database.TrackedProduct
	for _, p := range s.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubStore) DeleteTrackedProduct(_ context.Context, id string) (bool, error) {
	if _, ok := s.products[id]; !ok {
		return false, nil
	}
	delete(s.products, id)
	return true, nil
}

func (s *stubStore) GetPriceHistory(context.Context, string, int) ([]*database.PricePoint, error) {
	return s.history, nil
}

type stubMonitor struct {
	mu      sync.Mutex
	running bool
	snap    *monitor.Snapshot
	checks  int
}

func (m *stubMonitor) RunCheck(context.Context) (*monitor.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks++
	return &monitor.Delta{}, nil
}

func (m *stubMonitor) LastSnapshot() (*monitor.Snapshot, error) { return m.snap, nil }

func (m *stubMonitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func successSnapshot() *models.ProductSnapshot {
	snap := models.NewSnapshot("123456789", "https://www.trendyol.com/sr?pi=123456789")
	snap.Name = "Test Item"
	snap.CurrentPrice = models.FloatPtr(149.90)
	snap.OriginalPrice = models.FloatPtr(149.90)
	snap.Availability = models.AvailabilityInStock
	snap.Source = models.SourceScraping
	snap.Success = true
	return snap
}

func newTestServer(service ProductService, store ProductStore, mon StructureMonitor) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptest.NewServer(NewRouter(NewHandlers(service, store, mon, nil, logger)))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestLookupEndpoint(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/products/lookup", LookupRequest{Reference: "123456789"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap models.ProductSnapshot
	decodeBody(t, resp, &snap)

	assert.Equal(t, "Test Item", snap.Name)
	require.NotNil(t, snap.CurrentPrice)
	assert.Equal(t, 149.90, *snap.CurrentPrice)
}

func TestLookupMissingReference(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/products/lookup", LookupRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLookupFailedAcquisition(t *testing.T) {
	failed := models.NewSnapshot("123456789", "")
	failed.Error = "all acquisition stages failed"
	srv := newTestServer(&stubService{snapshot: failed}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/products/lookup", LookupRequest{Reference: "123456789"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestResolveEndpoint(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/products/resolve", LookupRequest{Reference: "123456789"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ref models.ProductReference
	decodeBody(t, resp, &ref)
	assert.Equal(t, "123456789", ref.ProductID)
	assert.Equal(t, "https://www.trendyol.com/sr?pi=123456789", ref.CanonicalURL)
}

func TestResolveUnresolvable(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/products/resolve", LookupRequest{Reference: "unresolvable"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestTrackAndUntrackProduct(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, store, &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/products/", TrackRequest{Reference: "123456789", AddedBy: "tester"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var product database.TrackedProduct
	decodeBody(t, resp, &product)
	assert.Equal(t, "123456789", product.ProductID)
	assert.Equal(t, "tester", product.AddedBy)
	assert.Contains(t, store.products, "123456789")

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/products/123456789", nil)
	require.NoError(t, err)
	deleteResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer deleteResp.Body.Close()
	assert.Equal(t, http.StatusOK, deleteResp.StatusCode)
	assert.NotContains(t, store.products, "123456789")
}

func TestUntrackUnknownProduct(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/products/999", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPriceHistoryEndpoint(t *testing.T) {
	store := newStubStore()
	store.products["123456789"] = &database.TrackedProduct{ProductID: "123456789"}
	store.history = []*database.PricePoint{
		{ProductID: "123456789", Price: 149.90},
		{ProductID: "123456789", Price: 139.90},
	}
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, store, &stubMonitor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products/123456789/history")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var points []*database.PricePoint
	decodeBody(t, resp, &points)
	assert.Len(t, points, 2)
}

func TestPriceHistoryUnknownProduct(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/products/999/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStructureEndpoint(t *testing.T) {
	mon := &stubMonitor{snap: &monitor.Snapshot{PriceSelectors: []string{"span.prc-dsc"}}}
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), mon)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/monitor/structure")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var snap monitor.Snapshot
	decodeBody(t, resp, &snap)
	assert.Equal(t, []string{"span.prc-dsc"}, snap.PriceSelectors)
}

func TestStructureEndpointNoSnapshot(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/monitor/structure")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerCheck(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/monitor/check", struct{}{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestTriggerCheckConflict(t *testing.T) {
	mon := &stubMonitor{running: true}
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), mon)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/monitor/check", struct{}{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&stubService{snapshot: successSnapshot()}, newStubStore(), &stubMonitor{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	decodeBody(t, resp, &health)
	assert.Equal(t, "ok", health["status"])
}
