package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PosTrack/internal/observability"
	"PosTrack/internal/persistence"
	"PosTrack/internal/query"
	"PosTrack/internal/server"
	"PosTrack/internal/syncer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	accounts map[string]persistence.Account
}

func (f *fakeAccounts) GetAccount(_ context.Context, name string) (persistence.Account, error) {
	acct, ok := f.accounts[name]
	if !ok {
		return persistence.Account{}, persistence.ErrNotFound
	}
	return acct, nil
}

type fakeSyncer struct {
	summary syncer.Summary
	err     error
	calls   int
}

func (f *fakeSyncer) SyncAccount(_ context.Context, acct persistence.Account, trigger string) (syncer.Summary, error) {
	f.calls++
	f.summary.Account = acct.Name
	return f.summary, f.err
}

type fakeReader struct {
	positions []query.PositionSummary
	detail    *query.PositionDetail
	snapshots []query.SnapshotResponse
}

func (f *fakeReader) ListPositions(context.Context, string, query.StatusFilter, int) ([]query.PositionSummary, error) {
	return f.positions, nil
}

func (f *fakeReader) GetPosition(_ context.Context, id uuid.UUID) (*query.PositionDetail, error) {
	if f.detail == nil || f.detail.ID != id {
		return nil, persistence.ErrNotFound
	}
	return f.detail, nil
}

func (f *fakeReader) ListSnapshots(context.Context, string, int) ([]query.SnapshotResponse, error) {
	return f.snapshots, nil
}

func newTestServer(reader *fakeReader, accounts *fakeAccounts, sync *fakeSyncer) http.Handler {
	health := observability.NewHealthChecker("postgres")
	health.SetReady("postgres", true)
	return server.New(reader, accounts, sync, health, nil, zerolog.Nop()).Router()
}

func TestManualSync_RunsAndReturnsSummary(t *testing.T) {
	accounts := &fakeAccounts{accounts: map[string]persistence.Account{
		"acct-1": {Name: "acct-1", APIKey: "k", APISecret: "s"},
	}}
	sync := &fakeSyncer{summary: syncer.Summary{TradesIngested: 3, PositionsTouched: 2}}
	srv := newTestServer(&fakeReader{}, accounts, sync)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/manual?account=acct-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, sync.calls)

	var got syncer.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "acct-1", got.Account)
	require.Equal(t, 3, got.TradesIngested)
}

func TestManualSync_UnknownAccount(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeAccounts{}, &fakeSyncer{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/manual?account=ghost", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualSync_MissingAccountParam(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeAccounts{}, &fakeSyncer{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/manual", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositions_EmptyIsAnEmptyArray(t *testing.T) {
	srv := newTestServer(&fakeReader{}, &fakeAccounts{}, &fakeSyncer{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions?account=acct-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"positions": []}`, rec.Body.String())
}

func TestGetPosition_FoundAndNotFound(t *testing.T) {
	id := uuid.New()
	detail := &query.PositionDetail{
		PositionSummary: query.PositionSummary{
			ID:           id,
			Account:      "acct-1",
			Symbol:       "BTCUSDT",
			Side:         "LONG",
			Status:       "CLOSED",
			OpenedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			AvgOpenPrice: decimal.NewFromInt(100),
			RealizedPnl:  decimal.NewFromInt(100),
		},
	}
	srv := newTestServer(&fakeReader{detail: detail}, &fakeAccounts{}, &fakeSyncer{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got query.PositionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "BTCUSDT", got.Symbol)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/positions/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	health := observability.NewHealthChecker("postgres", "nats")
	health.SetReady("postgres", true)
	srv := server.New(&fakeReader{}, &fakeAccounts{}, &fakeSyncer{}, health, nil, zerolog.Nop()).Router()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, "nats still down")

	health.SetReady("nats", true)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
