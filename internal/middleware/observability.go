package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"boutique_back_end/internal/observability"
)

const headerRequestID = "X-Request-ID"

// Observability extrait le contexte de trace W3C, attache un logger par requête
// (request_id, trace_id) puis journalise et mesure la requête.
func Observability(base *zap.Logger, metrics *observability.Metrics) gin.HandlerFunc {
	prop := otel.GetTextMapPropagator()

	return func(c *gin.Context) {
		start := time.Now()
		ctx := prop.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)

		fields := []zap.Field{zap.String("request_id", rid)}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()), zap.String("span_id", sc.SpanID().String()))
		}
		log := base.With(fields...)
		c.Request = c.Request.WithContext(observability.ContextWithLogger(ctx, log))

		c.Next()

		// route gabarit (/api/products/:id/:slug) pour garder une cardinalité faible
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status), latency.Seconds())

		entry := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("latency_ms", latency.Milliseconds()),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			entry = append(entry, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			log.Error("HTTP request", entry...)
		case status >= 400:
			log.Warn("HTTP request", entry...)
		default:
			log.Info("HTTP request", entry...)
		}
	}
}
