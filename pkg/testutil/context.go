package testutil

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/Khrees2412/provepoc/pkg/requestcontext"
)

// WithClientIP sets the client address the metadata middleware would have
// resolved, for handlers tested without the full router.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientIP(req.Context(), ip))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
