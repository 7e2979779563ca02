package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

var testFlashSecret = strings.Repeat("s", 32)

func lastCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			found = ck
		}
	}
	return found
}

func queueFlashes(t *testing.T, secret string, msgs ...string) *http.Cookie {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/admin/import/episode", nil), rec)
	err := Flashes("test_flash", secret)(func(c echo.Context) error {
		for _, m := range msgs {
			AddFlash(c, FlashSuccess, m)
		}
		return c.Redirect(http.StatusSeeOther, "/admin/episodes")
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ck := lastCookie(rec, "test_flash")
	if ck == nil || ck.Value == "" {
		t.Fatalf("expected flash cookie, got %v", rec.Result().Cookies())
	}
	return ck
}

func popWith(t *testing.T, secret string, ck *http.Cookie) ([]Flash, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/episodes", nil)
	req.AddCookie(ck)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	var msgs []Flash
	err := Flashes("test_flash", secret)(func(c echo.Context) error {
		msgs = PopFlashes(c)
		if again := PopFlashes(c); len(again) != 0 {
			t.Errorf("expected flashes to be cleared, got %v", again)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return msgs, rec
}

func TestFlash_RoundTripThroughSignedCookie(t *testing.T) {
	ck := queueFlashes(t, testFlashSecret, "Imported Ann Lee", "2 sections skipped")

	msgs, rec := popWith(t, testFlashSecret, ck)
	if len(msgs) != 2 || msgs[0] != (Flash{Level: FlashSuccess, Message: "Imported Ann Lee"}) {
		t.Fatalf("unexpected flashes: %+v", msgs)
	}

	cleared := lastCookie(rec, "test_flash")
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("expected the cookie to be expired, got %v", cleared)
	}
}

func TestFlash_RejectsCookieSignedWithAnotherSecret(t *testing.T) {
	ck := queueFlashes(t, strings.Repeat("x", 32), "Imported Ann Lee")

	if msgs, _ := popWith(t, testFlashSecret, ck); len(msgs) != 0 {
		t.Errorf("expected no flashes, got %v", msgs)
	}
}

func TestFlash_IgnoresForgedCookie(t *testing.T) {
	forged := base64.RawURLEncoding.EncodeToString([]byte(`[{"level":"success","message":"Imported Eve"}]`))
	for _, value := range []string{forged, "%%%not-base64"} {
		msgs, _ := popWith(t, testFlashSecret, &http.Cookie{Name: "test_flash", Value: value})
		if len(msgs) != 0 {
			t.Errorf("cookie %q: expected no flashes, got %v", value, msgs)
		}
	}
}

func TestFlash_WorksWithoutMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/admin/import/patient", nil), rec)
	AddFlash(c, FlashError, "Cannot find patient with ID: 4")

	req := httptest.NewRequest(http.MethodGet, "/admin/patients", nil)
	req.AddCookie(lastCookie(rec, DefaultFlashCookie))
	c = echo.New().NewContext(req, httptest.NewRecorder())

	msgs := PopFlashes(c)
	if len(msgs) != 1 || msgs[0].Level != FlashError {
		t.Errorf("unexpected flashes: %+v", msgs)
	}
}
