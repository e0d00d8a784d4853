package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
	"github.com/civicgrid/complaint-service/internal/engine"
)

type mockEscalationService struct {
	escalateErr error
	lastCall    []string
	stats       *database.EscalationStats
	report      *database.SLAComplianceReport
}

func (m *mockEscalationService) ManualEscalate(ctx context.Context, complaintID, targetAuthorityID, reason, actorID string) error {
	m.lastCall = []string{complaintID, targetAuthorityID, reason, actorID}
	return m.escalateErr
}

func (m *mockEscalationService) GetEscalationStats(ctx context.Context) (*database.EscalationStats, error) {
	if m.stats == nil {
		return &database.EscalationStats{}, nil
	}
	return m.stats, nil
}

func (m *mockEscalationService) GetSLAComplianceReport(ctx context.Context) (*database.SLAComplianceReport, error) {
	if m.report == nil {
		return &database.SLAComplianceReport{}, nil
	}
	return m.report, nil
}

func (m *mockEscalationService) Running() bool { return true }

type mockComplaintReader struct {
	complaints map[string]*database.Complaint
}

func (m *mockComplaintReader) GetByTrackingCode(ctx context.Context, code string) (*database.Complaint, error) {
	c, ok := m.complaints[code]
	if !ok {
		return nil, fmt.Errorf("tracking code %s: %w", code, database.ErrNotFound)
	}
	return c, nil
}

type mockHistoryReader struct {
	entries []*database.StatusHistoryEntry
}

func (m *mockHistoryReader) ListForComplaint(ctx context.Context, complaintID string) ([]*database.StatusHistoryEntry, error) {
	return m.entries, nil
}

type mockNotificationStore struct {
	notifications []*database.Notification
	markReadErr   error
	lastUnread    bool
	lastLimit     int
}

func (m *mockNotificationStore) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*database.Notification, error) {
	m.lastUnread = unreadOnly
	m.lastLimit = limit
	return m.notifications, nil
}

func (m *mockNotificationStore) MarkRead(ctx context.Context, id string) error {
	return m.markReadErr
}

type handlerFixture struct {
	escalation    *mockEscalationService
	complaints    *mockComplaintReader
	history       *mockHistoryReader
	notifications *mockNotificationStore
	router        *mux.Router
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		escalation:    &mockEscalationService{},
		complaints:    &mockComplaintReader{complaints: map[string]*database.Complaint{}},
		history:       &mockHistoryReader{},
		notifications: &mockNotificationStore{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHTTPHandler(&config.Config{}, logger, f.escalation, f.complaints, f.history, f.notifications, nil)

	f.router = mux.NewRouter()
	h.RegisterRoutes(f.router)
	return f
}

func (f *handlerFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	f := newHandlerFixture()

	rec := f.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["engine_running"])
}

func TestManualEscalateEndpoint(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newHandlerFixture()

		rec := f.do(http.MethodPost, "/api/v1/complaints/c-1/escalate", ManualEscalateRequest{
			TargetAuthorityID: "auth-2",
			Reason:            "stuck for weeks",
			ActorID:           "admin-1",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"c-1", "auth-2", "stuck for weeks", "admin-1"}, f.escalation.lastCall)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, database.StatusEscalated, body["status"])
	})

	t.Run("Invalid Body", func(t *testing.T) {
		f := newHandlerFixture()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/complaints/c-1/escalate", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Validation Error Maps To 400", func(t *testing.T) {
		f := newHandlerFixture()
		f.escalation.escalateErr = fmt.Errorf("%w: actor id is required", engine.ErrValidation)

		rec := f.do(http.MethodPost, "/api/v1/complaints/c-1/escalate", ManualEscalateRequest{TargetAuthorityID: "auth-2"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Not Found Maps To 404", func(t *testing.T) {
		f := newHandlerFixture()
		f.escalation.escalateErr = fmt.Errorf("complaint c-1: %w", engine.ErrNotFound)

		rec := f.do(http.MethodPost, "/api/v1/complaints/c-1/escalate", ManualEscalateRequest{TargetAuthorityID: "auth-2", ActorID: "admin-1"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("Storage Error Maps To 500", func(t *testing.T) {
		f := newHandlerFixture()
		f.escalation.escalateErr = fmt.Errorf("%w: connection reset", engine.ErrStorage)

		rec := f.do(http.MethodPost, "/api/v1/complaints/c-1/escalate", ManualEscalateRequest{TargetAuthorityID: "auth-2", ActorID: "admin-1"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestTrackComplaint(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		f := newHandlerFixture()
		f.complaints.complaints["TRK-42"] = &database.Complaint{
			ID:           "c-42",
			TrackingCode: "TRK-42",
			Status:       database.StatusEscalated,
			Severity:     database.SeverityHigh,
			CategoryName: "Road Maintenance",
			UpdatedAt:    time.Now(),
		}
		old := database.StatusAssigned
		f.history.entries = []*database.StatusHistoryEntry{
			{ComplaintID: "c-42", OldStatus: &old, NewStatus: database.StatusEscalated},
		}

		rec := f.do(http.MethodGet, "/api/v1/track/TRK-42", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body TrackResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "TRK-42", body.TrackingCode)
		assert.Equal(t, database.StatusEscalated, body.Status)
		assert.Len(t, body.History, 1)
	})

	t.Run("Unknown Code", func(t *testing.T) {
		f := newHandlerFixture()
		rec := f.do(http.MethodGet, "/api/v1/track/TRK-NOPE", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListNotifications(t *testing.T) {
	f := newHandlerFixture()
	f.notifications.notifications = []*database.Notification{
		{ID: "n-1", UserID: "user-1", Title: "Your complaint has been escalated"},
	}

	rec := f.do(http.MethodGet, "/api/v1/users/user-1/notifications?unread=true&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.notifications.lastUnread)
	assert.Equal(t, 10, f.notifications.lastLimit)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.JSONEq(t, "1", string(body["count"]))
}

func TestListNotifications_InvalidLimit(t *testing.T) {
	f := newHandlerFixture()
	rec := f.do(http.MethodGet, "/api/v1/users/user-1/notifications?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNotifications_LimitIsClamped(t *testing.T) {
	f := newHandlerFixture()
	rec := f.do(http.MethodGet, "/api/v1/users/user-1/notifications?limit=1000000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxNotificationPageSize, f.notifications.lastLimit)
}

func TestMarkNotificationRead(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newHandlerFixture()
		rec := f.do(http.MethodPost, "/api/v1/notifications/n-1/read", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Unknown Notification", func(t *testing.T) {
		f := newHandlerFixture()
		f.notifications.markReadErr = fmt.Errorf("notification n-1: %w", database.ErrNotFound)
		rec := f.do(http.MethodPost, "/api/v1/notifications/n-1/read", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetEscalationStats(t *testing.T) {
	f := newHandlerFixture()
	f.escalation.stats = &database.EscalationStats{Today: 3, Total: 42}

	rec := f.do(http.MethodGet, "/api/v1/escalations/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats database.EscalationStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Today)
	assert.Equal(t, 42, stats.Total)
}
