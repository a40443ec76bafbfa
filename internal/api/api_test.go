package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/falcon/internal/data"
	"github.com/technosupport/falcon/internal/dispatch"
)

func newRiskMachine(t *testing.T) *dispatch.RiskMachine {
	t.Helper()
	m := dispatch.NewRiskMachine(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	router := NewRouter(
		NewEventHandler(data.EventModel{DB: db}),
		NewRiskHandler(newRiskMachine(t)),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventHandler_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"event_id", "event_type_id", "object_id", "name", "map_x", "map_y",
		"area_id", "occurred_at", "img_path",
	}).AddRow(int64(1), 3, "17181357721913", "BIRD", 480, 72, 1, at, "/crops/img.jpg")
	mock.ExpectQuery("SELECT").WithArgs(5).WillReturnRows(rows)

	router := NewRouter(
		NewEventHandler(data.EventModel{DB: db}),
		NewRiskHandler(newRiskMachine(t)),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []struct {
			ObjectID   string `json:"object_id"`
			Class      string `json:"class"`
			Kind       int    `json:"kind"`
			OccurredAt string `json:"occurred_at"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "17181357721913", body.Events[0].ObjectID)
	assert.Equal(t, "BIRD", body.Events[0].Class)
	assert.Equal(t, 3, body.Events[0].Kind)
	assert.Equal(t, "2026-08-24T12:00:00Z", body.Events[0].OccurredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiskHandler_Get(t *testing.T) {
	m := newRiskMachine(t)
	m.ProposeRunway("A", dispatch.RunwayWarning)
	m.Snapshot()

	router := NewRouter(NewEventHandler(data.EventModel{}), NewRiskHandler(m))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/risk", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BR_LOW", body["bird_risk"])
	assert.Equal(t, "WARNING", body["runway_a"])
	assert.Equal(t, "B_ONLY", body["availability"])
}
