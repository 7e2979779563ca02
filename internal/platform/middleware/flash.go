package middleware

import (
	"encoding/gob"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
)

const (
	DefaultFlashCookie = "tracker_flash"

	flashCookieKey = "flash_cookie"

	// flashMaxAge bounds how long an unread message survives, in seconds.
	flashMaxAge = 600
)

const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-shot message shown on the next admin page view.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func init() {
	gob.Register(Flash{})
}

// processStore serves contexts that never passed through Flashes. Its key
// lives only as long as the process.
var processStore = NewFlashStore("")

// NewFlashStore returns a cookie store signed with secret. An empty secret
// gets a random key, so messages do not survive a restart.
func NewFlashStore(secret string) *sessions.CookieStore {
	key := []byte(secret)
	if len(key) == 0 {
		key = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(key)
	store.MaxAge(flashMaxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// Flashes installs the signed session store that carries flash messages
// between a redirect and the page it lands on.
func Flashes(cookie, secret string) echo.MiddlewareFunc {
	if cookie == "" {
		cookie = DefaultFlashCookie
	}
	withStore := session.Middleware(NewFlashStore(secret))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return withStore(func(c echo.Context) error {
			c.Set(flashCookieKey, cookie)
			return next(c)
		})
	}
}

func flashSession(c echo.Context) *sessions.Session {
	name, ok := c.Get(flashCookieKey).(string)
	if !ok || name == "" {
		name = DefaultFlashCookie
	}
	// A tampered or expired cookie still yields an empty session.
	sess, err := session.Get(name, c)
	if sess == nil && err != nil {
		sess, _ = processStore.Get(c.Request(), name)
	}
	return sess
}

// AddFlash queues a message for the next page view.
func AddFlash(c echo.Context, level, message string) {
	sess := flashSession(c)
	if sess == nil {
		return
	}
	sess.Options.MaxAge = flashMaxAge
	sess.AddFlash(Flash{Level: level, Message: message})
	_ = sess.Save(c.Request(), c.Response())
}

// PopFlashes returns queued messages and clears them.
func PopFlashes(c echo.Context) []Flash {
	sess := flashSession(c)
	if sess == nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	msgs := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			msgs = append(msgs, f)
		}
	}
	sess.Options.MaxAge = -1
	_ = sess.Save(c.Request(), c.Response())
	return msgs
}
