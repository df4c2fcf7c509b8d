package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosane/adapters/extract"
	"gosane/adapters/fftconv"
	"gosane/adapters/memory"
	"gosane/app"
	"gosane/domain/deconv"
	"gosane/internal/testkit"
)

func testServer(t *testing.T) (*Server, *testkit.MapStore) {
	t.Helper()
	logger := log.New(io.Discard)
	store := testkit.NewMapStore()
	broadcaster := NewBroadcaster()
	svc := app.NewRunService(
		app.NewDeconvolver(fftconv.New(), extract.NewExtractor(), logger),
		store,
		memory.NewRunRepository(),
		broadcaster,
		logger,
	)
	return NewServer(svc, broadcaster, logger), store
}

func putTestImages(t *testing.T, store *testkit.MapStore) {
	t.Helper()
	side := 64
	psf := testkit.GaussianPSF(side, 4)
	c := fftconv.New()
	spec, err := c.Precompute(psf, deconv.ConvLinear, side)
	require.NoError(t, err)
	dirty, err := c.Convolve(testkit.Delta(side, 32, 32, 1), spec)
	require.NoError(t, err)
	testkit.AddNoise(dirty, 0.01, 4)

	store.Put("dirty", dirty)
	store.Put("psf", psf)
}

func submitRun(t *testing.T, router http.Handler) deconv.RunID {
	t.Helper()
	body, err := json.Marshal(app.RunRequest{Dirty: "dirty", PSF: "psf"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run deconv.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
	require.NotEmpty(t, run.ID)
	return run.ID
}

func waitTerminal(t *testing.T, router http.Handler, id deconv.RunID) *deconv.Run {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+id.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var run deconv.Run
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&run))
		if run.Status.Terminal() {
			return &run
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("run did not reach a terminal status")
	return nil
}

func TestSubmitAndTrackRun(t *testing.T) {
	server, store := testServer(t)
	putTestImages(t, store)
	router := server.Router()

	id := submitRun(t, router)
	run := waitTerminal(t, router, id)
	assert.NotEqual(t, deconv.StatusFailed, run.Status)
	assert.NotEmpty(t, run.Iterations)

	// The run shows up in the listing.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []deconv.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestSubmitValidation(t *testing.T) {
	server, _ := testServer(t)
	router := server.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", bytes.NewReader([]byte(`not json`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUnknownRun(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/does-not-exist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	server, _ := testServer(t)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunReport(t *testing.T) {
	server, store := testServer(t)
	putTestImages(t, store)
	router := server.Router()

	id := submitRun(t, router)
	waitTerminal(t, router, id)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/"+id.String()+"/report", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Deconvolution run")
	assert.Contains(t, rec.Body.String(), "<table>")
}

func TestBroadcasterDeliversEvents(t *testing.T) {
	b := NewBroadcaster()
	run := deconv.NewRun("d", "p", deconv.DefaultParams())

	events, cancel := b.Subscribe(run.ID)
	defer cancel()

	b.RunStarted(run)
	b.MajorIteration(run.ID, deconv.IterationMetrics{MajorIter: 1})
	b.RunFinished(run.ID, deconv.StatusCompleted, "")

	types := []EventType{}
	timeout := time.After(time.Second)
	for len(types) < 3 {
		select {
		case e := <-events:
			types = append(types, e.EventType)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, []EventType{EventRunStarted, EventMajorIteration, EventRunFinished}, types)
}

func TestSSEEndpointStreamsUntilFinish(t *testing.T) {
	server, store := testServer(t)
	putTestImages(t, store)
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	id := submitRun(t, router)

	ctx, cancelCtx := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelCtx()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/runs/"+id.String()+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// The stream closes itself once the run finishes; reading to EOF is the
	// success signal even if every event raced past before we subscribed.
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
}
