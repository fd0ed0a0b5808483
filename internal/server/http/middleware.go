package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/notflix/aiservice/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	headerAPIKey    = "X-API-Key"
)

// requestIDMiddleware echoes or generates a request id and binds a logger
// carrying it to the request context.
func requestIDMiddleware(base *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id := ctx.Header(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.SetHeader(headerRequestID, id)

		l := base.With("request_id", id, "endpoint", ctx.Operation().OperationID)
		next(huma.WithContext(ctx, logger.WithContext(ctx.Context(), l)))
	}
}

// apiKeyMiddleware rejects requests whose X-API-Key does not match. Health is
// always reachable.
func apiKeyMiddleware(api huma.API, key func() string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		want := key()
		if want == "" || ctx.Operation().OperationID == operationHealth {
			next(ctx)
			return
		}

		got := ctx.Header(headerAPIKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			logger.FromContext(ctx.Context()).Warn("Rejected request with invalid API key")
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "Could not validate API Key")
			return
		}
		next(ctx)
	}
}
