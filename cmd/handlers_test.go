package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seven320/pose-net-correction/internal/config"
	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/render"
	"github.com/seven320/pose-net-correction/internal/settings"
	"github.com/seven320/pose-net-correction/internal/source"
)

type memStore struct {
	mu        sync.Mutex
	down      bool
	snapshots []model.Snapshot
	alerts    []model.AlertEvent
	// stall, when set, holds every snapshot write until it is closed
	stall chan struct{}
}

func (m *memStore) Check(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	return nil
}

func (m *memStore) Stop() error { return nil }

func (m *memStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	if m.stall != nil {
		select {
		case <-m.stall:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memStore) SaveAlert(_ context.Context, ev model.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append([]model.AlertEvent{ev}, m.alerts...)
	return nil
}

func (m *memStore) FetchLatest(context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return nil, nil
	}
	snap := m.snapshots[len(m.snapshots)-1]
	return &snap, nil
}

func (m *memStore) RecentAlerts(_ context.Context, limit int) ([]model.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	return append([]model.AlertEvent(nil), m.alerts[:limit]...), nil
}

const testWindow = 3

func newTestApp(t *testing.T) (*app, *memStore, http.Handler) {
	t.Helper()
	return newTestAppWithStore(t, &memStore{})
}

func newTestAppWithStore(t *testing.T, store *memStore) (*app, *memStore, http.Handler) {
	t.Helper()
	cfg := config.Config{
		WindowFrames: testWindow,
		HistoryLimit: 50,
		Margin:       5,
		MinEyeScore:  0.5,
		QueueSize:    64,
		AlertSound:   "bell.mp3",
	}
	service := newApp(cfg, store, source.NewPushSource(cfg.QueueSize))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.driver.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
		service.writer.Close()
	})

	select {
	case <-service.driver.Running():
	case <-time.After(time.Second):
		t.Fatal("frame loop did not start")
	}
	return service, store, service.router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func frameJSON(t *testing.T, dist float64) string {
	t.Helper()
	f := model.Frame{Poses: []model.Pose{{
		Score: 0.9,
		Keypoints: []model.Keypoint{
			{Position: model.Position{X: 10, Y: 40}, Score: 0.9},
			{Position: model.Position{X: 0, Y: 0}, Score: 0.9},
			{Position: model.Position{X: dist, Y: 0}, Score: 0.9},
		},
	}}}
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(f))
	return buf.String()
}

func pushWindow(t *testing.T, a *app, h http.Handler, dist float64) {
	t.Helper()
	before := a.driver.Latest().Windows
	for i := 0; i < testWindow; i++ {
		rec := do(t, h, http.MethodPost, "/frames", frameJSON(t, dist))
		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	}
	require.Eventually(t, func() bool { return a.driver.Latest().Windows == before+1 }, time.Second, 5*time.Millisecond)
}

func TestFramesToSnapshotAndChart(t *testing.T) {
	a, store, h := newTestApp(t)

	pushWindow(t, a, h, 60)

	rec := do(t, h, http.MethodGet, "/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, []int{60}, snap.History)
	assert.Equal(t, model.AlertInactive, snap.State)

	rec = do(t, h, http.MethodGet, "/chart", "")
	var chart render.Chart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	require.Len(t, chart.Datasets, 1)
	assert.Equal(t, []float64{60}, chart.Datasets[0].Data)

	require.Eventually(t, func() bool {
		return do(t, h, http.MethodGet, "/latest", "").Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
	store.mu.Lock()
	assert.Len(t, store.snapshots, 1)
	store.mu.Unlock()
}

func TestStartArmsAndAlerts(t *testing.T) {
	a, store, h := newTestApp(t)

	rec := do(t, h, http.MethodPost, "/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	pushWindow(t, a, h, 50)

	rec = do(t, h, http.MethodPost, "/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var armed armResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &armed))
	assert.Equal(t, 55.0, armed.Baseline)

	pushWindow(t, a, h, 70)

	var events []model.AlertEvent
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/alerts?limit=5", "")
		return rec.Code == http.StatusOK && json.Unmarshal(rec.Body.Bytes(), &events) == nil && len(events) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 70, events[0].Value)
	assert.Equal(t, "bell.mp3", events[0].Sound)

	store.mu.Lock()
	assert.Len(t, store.alerts, 1)
	store.mu.Unlock()

	rec = do(t, h, http.MethodGet, "/chart", "")
	var chart render.Chart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	require.Len(t, chart.Datasets, 2)
	assert.Equal(t, []float64{55, 55}, chart.Datasets[1].Data)
}

func TestFramesRejectsBadInput(t *testing.T) {
	_, _, h := newTestApp(t)

	rec := do(t, h, http.MethodPost, "/frames", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/frames", `{"poses":[],"camera":"front"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/frames", `{"poses":[{"score":1.7,"keypoints":[]}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/frames", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSettingsAndOverlay(t *testing.T) {
	_, _, h := newTestApp(t)

	rec := do(t, h, http.MethodGet, "/settings", "")
	var p settings.Panel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, settings.Default(), p)

	p.Output.ShowSkeleton = false
	p.Output.ShowBoundingBox = false
	body, err := json.Marshal(p)
	require.NoError(t, err)
	rec = do(t, h, http.MethodPut, "/settings", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/settings", `{"algorithm":"dance","detection":{},"output":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/overlay", frameJSON(t, 30))
	require.Equal(t, http.StatusOK, rec.Code)
	var f render.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	require.Len(t, f.Poses, 1)
	assert.Len(t, f.Poses[0].Keypoints, 3)
	assert.Nil(t, f.Poses[0].Box)
}

func TestHealthAndMetrics(t *testing.T) {
	a, store, h := newTestApp(t)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	store.mu.Lock()
	store.down = true
	store.mu.Unlock()
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/health", "").Code)

	pushWindow(t, a, h, 40)
	// metrics are observed right after the snapshot is stored
	require.Eventually(t, func() bool {
		body := do(t, h, http.MethodGet, "/metrics", "").Body.String()
		return strings.Contains(body, "frames_total 3") && strings.Contains(body, "eye_distance_smoothed 40")
	}, time.Second, 5*time.Millisecond)
}

func TestLatestWithoutData(t *testing.T) {
	_, _, h := newTestApp(t)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/latest", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/alerts?limit=x", "").Code)
}

func TestStalledStoreDoesNotBlockFrames(t *testing.T) {
	stall := make(chan struct{})
	a, store, h := newTestAppWithStore(t, &memStore{stall: stall})
	// registered after the app so it runs before the writer is drained
	t.Cleanup(func() { close(stall) })

	pushWindow(t, a, h, 40)
	pushWindow(t, a, h, 44)

	assert.Equal(t, []int{40, 44}, a.driver.Latest().History)
	store.mu.Lock()
	assert.Empty(t, store.snapshots)
	store.mu.Unlock()
}
