package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func runAudit(t *testing.T, method, path string, rec AuditRecorder) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	req = req.WithContext(auth.WithUser(req.Context(), "alice", []string{auth.RoleClinician}))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-1")

	err := Audit(logger, rec)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &buf
}

func TestAudit_Export(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, http.MethodGet, "/admin/episodes/12/export", rec)

	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.Action != "export" || entry.Entity != "episodes" || entry.EntityID != "12" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.UserID != "alice" || entry.RequestID != "req-1" || entry.StatusCode != http.StatusOK {
		t.Errorf("unexpected attribution: %+v", entry)
	}
}

func TestAudit_ImportAndCopy(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, http.MethodPost, "/admin/import/patient", rec)
	if got := rec.last().Action; got != "import" {
		t.Errorf("expected import, got %s", got)
	}

	runAudit(t, http.MethodPost, "/api/v1/episodes/3/copy-to-category/icu", rec)
	if got := rec.last(); got.Action != "copy" || got.EntityID != "3" {
		t.Errorf("unexpected copy entry: %+v", got)
	}
}

func TestAudit_SkipsNonAuditablePaths(t *testing.T) {
	rec := &mockRecorder{}
	buf := runAudit(t, http.MethodGet, "/health", rec)
	if rec.count() != 0 {
		t.Errorf("expected no entries for /health, got %d", rec.count())
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output, got %s", buf.String())
	}
}

func TestAudit_RecorderErrorDoesNotBreakRequest(t *testing.T) {
	rec := &mockRecorder{err: errors.New("db down")}
	buf := runAudit(t, http.MethodGet, "/api/v1/patients/5", rec)
	if !strings.Contains(buf.String(), "failed to record audit entry") {
		t.Errorf("expected recorder failure to be logged, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"type":"phi_access"`) {
		t.Errorf("expected phi_access event, got %s", buf.String())
	}
}

func TestPathSegments(t *testing.T) {
	tests := map[string][]string{
		"/admin/episodes/12/export": {"episodes", "12", "export"},
		"/api/v1/patients":          {"patients"},
		"/admin/":                   nil,
	}
	for path, want := range tests {
		got := pathSegments(path)
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Errorf("pathSegments(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestAuditAction(t *testing.T) {
	tests := []struct {
		method   string
		segments []string
		want     string
	}{
		{http.MethodGet, []string{"patients", "1"}, "read"},
		{http.MethodGet, []string{"patients", "1", "export"}, "export"},
		{http.MethodPost, []string{"import", "episode"}, "import"},
		{http.MethodPost, []string{"episodes", "1", "copy-to-category", "icu"}, "copy"},
		{http.MethodPost, []string{"episodes"}, "create"},
		{http.MethodDelete, []string{"episodes", "1"}, "delete"},
	}
	for _, tt := range tests {
		if got := auditAction(tt.method, tt.segments); got != tt.want {
			t.Errorf("auditAction(%s, %v) = %s, want %s", tt.method, tt.segments, got, tt.want)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	f := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	if err := f.RecordAccess(AuditEntry{Action: "export"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != "export" {
		t.Errorf("expected export, got %s", got.Action)
	}
}
