package server

import (
	"log"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/devwelkin/hermes-files/internal/request"
	"github.com/devwelkin/hermes-files/internal/response"
)

// WithAccessLog wraps next so every request is logged with its status,
// body size and duration.
func WithAccessLog(logger *log.Logger, next Handler) Handler {
	return func(w *response.Writer, req *request.Request) *HandlerError {
		start := time.Now()
		herr := next(w, req)

		status := w.Status()
		if herr != nil && !w.Started() {
			status = herr.StatusCode
		}
		logger.Printf("%s %s -> %d (%s) in %s",
			req.Method(), req.Target(), status,
			humanize.Bytes(uint64(w.BodyBytes())), time.Since(start).Round(time.Microsecond))
		return herr
	}
}
