package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/renewcast/internal/contracts"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveRunLabelsStage(t *testing.T) {
	r := New()

	r.ObserveRun(contracts.Solar, time.Second, nil)
	r.ObserveRun(contracts.Solar, time.Second, &contracts.IngestionError{SiteID: 1})
	r.ObserveRun(contracts.Wind, time.Second, errors.New("site not found"))

	body := scrape(t, r)
	assert.Contains(t, body, `renewcast_pipeline_runs_total{generation_type="solar",outcome="success",stage="none"} 1`)
	assert.Contains(t, body, `renewcast_pipeline_runs_total{generation_type="solar",outcome="error",stage="ingestion"} 1`)
	assert.Contains(t, body, `renewcast_pipeline_runs_total{generation_type="wind",outcome="error",stage="other"} 1`)
	assert.Contains(t, body, `renewcast_pipeline_run_duration_seconds_count{generation_type="solar"} 2`)
}

func TestAddPersisted(t *testing.T) {
	r := New()
	r.AddPersisted(contracts.Wind, contracts.PersistCounts{HourlyCreated: 24, DailyCreated: 1})
	r.AddPersisted(contracts.Wind, contracts.PersistCounts{HourlyUpdated: 24, DailyUpdated: 1})

	body := scrape(t, r)
	assert.Contains(t, body, `renewcast_records_upserted_total{action="created",generation_type="wind",table="hourly"} 24`)
	assert.Contains(t, body, `renewcast_records_upserted_total{action="updated",generation_type="wind",table="hourly"} 24`)
	assert.Contains(t, body, `renewcast_records_upserted_total{action="updated",generation_type="wind",table="daily"} 1`)
}

func TestObserveSweep(t *testing.T) {
	r := New()
	r.ObserveSweep(contracts.Solar, 3, 1)

	body := scrape(t, r)
	assert.Contains(t, body, `renewcast_sweep_sites{generation_type="solar",outcome="success"} 3`)
	assert.Contains(t, body, `renewcast_sweep_sites{generation_type="solar",outcome="error"} 1`)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveRun(contracts.Solar, time.Second, nil)
	r.AddPersisted(contracts.Solar, contracts.PersistCounts{})
	r.ObserveSweep(contracts.Solar, 1, 0)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
