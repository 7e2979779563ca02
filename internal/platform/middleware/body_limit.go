package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	importPrefix      = "/admin/import/"
	fallbackBodyLimit = 1 << 20
)

// BodyLimit caps request bodies: uploadLimit for document imports under
// /admin/import/, defaultLimit for everything else. Sizes read like "512K",
// "1M", "10MB" or a bare byte count; anything unparseable means 1 MB.
func BodyLimit(defaultLimit, uploadLimit string) echo.MiddlewareFunc {
	limits := bodyLimits{
		standard: parseLimit(defaultLimit),
		upload:   parseLimit(uploadLimit),
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := limits.forRequest(req)
			if req.ContentLength > limit {
				return tooLarge(limit)
			}
			// Content-Length can be missing or lie, so count while reading.
			req.Body = &cappedBody{ReadCloser: req.Body, limit: limit, left: limit}
			return next(c)
		}
	}
}

type bodyLimits struct {
	standard int64
	upload   int64
}

func (l bodyLimits) forRequest(req *http.Request) int64 {
	if req.Method == http.MethodPost && strings.HasPrefix(req.URL.Path, importPrefix) {
		return l.upload
	}
	return l.standard
}

func tooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}

// cappedBody fails every read once more than limit bytes have been seen.
type cappedBody struct {
	io.ReadCloser
	limit int64
	left  int64
	over  bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.over {
		return 0, tooLarge(b.limit)
	}
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.over = true
		return 0, tooLarge(b.limit)
	}
	return n, err
}

func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")

	multiplier := int64(1)
	if s != "" {
		switch s[len(s)-1] {
		case 'K':
			multiplier = 1 << 10
		case 'M':
			multiplier = 1 << 20
		case 'G':
			multiplier = 1 << 30
		}
		if multiplier > 1 {
			s = s[:len(s)-1]
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return fallbackBodyLimit
	}
	return n * multiplier
}
