package middleware

import (
	"net/http"
	"time"

	"sostrack/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const internalErrorDetail = "the request could not be completed; nothing further was applied"

// requestEvent decorates e with the fields every request log line carries:
// the request id assigned by RequestID, the matched route and the trace id
// when the request is sampled.
func requestEvent(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	e = e.Str(RequestIDKey, c.GetString(RequestIDKey)).
		Str("method", c.Request.Method).
		Str("route", c.FullPath())
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		e = e.Str("trace_id", sc.TraceID().String())
	}
	return e
}

// ErrorHandler turns errors that handlers passed to c.Error (everything the
// domain error mapping does not recognize) into a 500 envelope. Store and
// driver messages only reach the log.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		requestEvent(c, log.Error()).
			Err(c.Errors.Last().Err).
			Int("errors", len(c.Errors)).
			Msg("request failed")
		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New(internalErrorDetail))
	}
}

// Recovery converts a panic into the same 500 envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestEvent(c, log.Error()).
					Interface("panic", r).
					Msg("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New(internalErrorDetail))
			}
		}()
		c.Next()
	}
}

// Logger writes one line per request. 5xx log at error, rejected mutations
// (409, 422) at warn, the rest at info.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var e *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			e = log.Error()
		case status == http.StatusConflict, status == http.StatusUnprocessableEntity:
			e = log.Warn()
		default:
			e = log.Info()
		}
		requestEvent(c, e).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
