package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/dates"
	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/extraction"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)

type fakeModel struct {
	status  ondevice.Status
	initErr error
	inits   int
}

func (f *fakeModel) Status() ondevice.Status { return f.status }

func (f *fakeModel) Initialize(context.Context) error {
	f.inits++
	if f.initErr != nil {
		return f.initErr
	}
	f.status = ondevice.Status{Ready: true, DownloadProgress: 1}
	return nil
}

type fixture struct {
	server *Server
	store  *store.SQLiteStore
}

func setupTestServer(t *testing.T, model Model) fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := func() time.Time { return testNow }
	orch, err := extraction.NewOrchestrator(extraction.ModeLocal, extraction.NewClassifier(dates.NewResolver(clock)))
	require.NoError(t, err)
	svc := notes.NewService(st, orch, notes.WithClock(clock))

	server, err := NewServer(svc, st, model, zap.NewNop(), &Config{Host: "localhost", Port: 0, Version: "test"})
	require.NoError(t, err)
	return fixture{server: server, store: st}
}

func (f fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewServer(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	svc := notes.NewService(st, nil)

	t.Run("defaults", func(t *testing.T) {
		s, err := NewServer(svc, st, nil, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8787, s.config.Port)
		assert.Equal(t, 10*time.Minute, s.config.InitTimeout)
	})

	tests := []struct {
		name    string
		np      NoteProcessor
		st      EntityStore
		logger  *zap.Logger
		wantErr string
	}{
		{"nil processor", nil, st, zap.NewNop(), "note processor"},
		{"nil store", svc, nil, zap.NewNop(), "store"},
		{"nil logger", svc, st, nil, "logger is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.np, tt.st, nil, tt.logger, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	f := setupTestServer(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok", Version: "test"}, decode[HealthResponse](t, rec))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestNotesAndEntities(t *testing.T) {
	f := setupTestServer(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/notes", CreateNoteRequest{Text: "Buy milk and eggs. Dentist tomorrow at 3pm"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[notes.Outcome](t, rec)
	require.Len(t, out.Entities, 2)
	shoppingID := out.Entities[0].ID

	rec = f.do(t, http.MethodGet, "/api/v1/entities?type=shopping", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[EntitiesResponse](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, []string{"milk", "eggs"}, list.Entities[0].Shopping.Items)

	rec = f.do(t, http.MethodGet, "/api/v1/entities/upcoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	upcoming := decode[EntitiesResponse](t, rec)
	require.Equal(t, 1, upcoming.Count)
	assert.Equal(t, entity.TypeEvent, upcoming.Entities[0].Type)

	// Both entities carry the full transcript.
	rec = f.do(t, http.MethodGet, "/api/v1/entities/search?q=milk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[EntitiesResponse](t, rec).Count)
	rec = f.do(t, http.MethodGet, "/api/v1/entities/search?q=dentist", nil)
	assert.Equal(t, 2, decode[EntitiesResponse](t, rec).Count)
	rec = f.do(t, http.MethodGet, "/api/v1/entities/search?q=plumber", nil)
	assert.Equal(t, 0, decode[EntitiesResponse](t, rec).Count)

	rec = f.do(t, http.MethodGet, "/api/v1/voice-notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	vns := decode[VoiceNotesResponse](t, rec)
	require.Equal(t, 1, vns.Count)
	assert.Equal(t, out.VoiceNote.ID, vns.VoiceNotes[0].ID)

	rec = f.do(t, http.MethodPost, "/api/v1/entities/"+shoppingID+"/complete", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/entities/"+shoppingID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "That item is already completed or cancelled.", decode[ErrorResponse](t, rec).Message)

	rec = f.do(t, http.MethodGet, "/api/v1/entities?status=active", nil)
	assert.Equal(t, 1, decode[EntitiesResponse](t, rec).Count)

	rec = f.do(t, http.MethodDelete, "/api/v1/entities/"+shoppingID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/entities/"+shoppingID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	f := setupTestServer(t, nil)
	tests := []struct {
		name    string
		method  string
		target  string
		body    any
		code    int
		message string
	}{
		{"short note", http.MethodPost, "/api/v1/notes", CreateNoteRequest{Text: " hi "}, http.StatusBadRequest, "Please enter at least 3 characters."},
		{"unknown type", http.MethodGet, "/api/v1/entities?type=spaceship", nil, http.StatusBadRequest, ""},
		{"unknown status", http.MethodGet, "/api/v1/entities?status=paused", nil, http.StatusBadRequest, ""},
		{"bad limit", http.MethodGet, "/api/v1/entities/upcoming?limit=-1", nil, http.StatusBadRequest, ""},
		{"search without query", http.MethodGet, "/api/v1/entities/search", nil, http.StatusBadRequest, ""},
		{"complete missing", http.MethodPost, "/api/v1/entities/ent_missing/complete", nil, http.StatusNotFound, "That item no longer exists."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
		})
	}
}

func TestModelEndpoints(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		f := setupTestServer(t, nil)
		rec := f.do(t, http.MethodGet, "/api/v1/model/status", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "The on-device model is not configured.", decode[ErrorResponse](t, rec).Message)
	})

	t.Run("init", func(t *testing.T) {
		model := &fakeModel{}
		f := setupTestServer(t, model)

		rec := f.do(t, http.MethodGet, "/api/v1/model/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decode[ondevice.Status](t, rec).Ready)

		rec = f.do(t, http.MethodPost, "/api/v1/model/init", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[ondevice.Status](t, rec).Ready)
		assert.Equal(t, 1, model.inits)
	})

	t.Run("download failure", func(t *testing.T) {
		model := &fakeModel{initErr: errors.Join(ondevice.ErrModelDownloadFailed, errors.New("404"))}
		f := setupTestServer(t, model)
		rec := f.do(t, http.MethodPost, "/api/v1/model/init", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "The on-device model could not be downloaded. Check your connection and retry.",
			decode[ErrorResponse](t, rec).Message)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupTestServer(t, nil)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/notes", CreateNoteRequest{Text: "buy milk and eggs"}).Code)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `voxnotes_active_entities{type="shopping"} 1`)
	assert.Contains(t, body, `voxnotes_active_entities{type="todo"} 0`)
	assert.Contains(t, body, "voxnotes_store_up 1")
}

func TestEntityCollector_StoreDown(t *testing.T) {
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	rec := httptest.NewRecorder()
	s, err := NewServer(notes.NewService(st, nil), st, nil, zap.NewNop(), nil)
	require.NoError(t, err)
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "voxnotes_store_up 0"))
}

func TestMiddleware_RecoversFromPanic(t *testing.T) {
	f := setupTestServer(t, nil)
	f.server.echo.GET("/panic", func(c echo.Context) error { panic("test panic") })

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		f.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	f := setupTestServer(t, nil)
	errChan := make(chan error, 1)
	go func() { errChan <- f.server.Start() }()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, f.server.Shutdown(ctx))

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
