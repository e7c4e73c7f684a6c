package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"meet-in-the-middle-api/internal/model"
)

// Verifier turns a bearer token into the caller's identity.
type Verifier interface {
	Verify(raw string) (model.Identity, error)
}

type ctxKey string

const identityKey ctxKey = "identity"

func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// IdentityFrom returns the identity RequireAuth stored on the request.
func IdentityFrom(c *gin.Context) (model.Identity, bool) {
	return IdentityFromContext(c.Request.Context())
}

func bearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// abort ends the request with the API's error envelope.
func abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"status": "error", "message": msg, "data": nil})
}

// RequireAuth rejects requests without a valid "Authorization: Bearer <jwt>".
func RequireAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c.GetHeader("Authorization"))
		if raw == "" {
			abort(c, http.StatusUnauthorized, "no token")
			return
		}
		id, err := v.Verify(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, "bad token")
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// UnaryAuth is the gRPC counterpart of RequireAuth. Methods in open skip it.
func UnaryAuth(v Verifier, open map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if open[info.FullMethod] {
			return next(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		raw := ""
		if vals := md.Get("authorization"); len(vals) > 0 {
			raw = bearer(vals[0])
		}
		if raw == "" {
			return nil, status.Error(codes.Unauthenticated, "no token")
		}

		id, err := v.Verify(raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "bad token")
		}
		return next(WithIdentity(ctx, id), req)
	}
}
