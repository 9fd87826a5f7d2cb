package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/offline-pos/pkg/logger"
)

// OperatorHeader names the signed-in cashier or manager at the register.
const OperatorHeader = "X-POS-Operator"

type contextKey string

const ctxOperator contextKey = "operator"

func OperatorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOperator).(string); ok {
		return v
	}
	return ""
}

// WithOperator injects the operator identifier into the context.
func WithOperator(ctx context.Context, operator string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOperator, operator)
}

// Operator copies the operator header into the request context and log fields.
func Operator(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := strings.TrimSpace(r.Header.Get(OperatorHeader))
			if op == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := WithOperator(r.Context(), op)
			if logg != nil {
				ctx = logg.WithField(ctx, "operator", op)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
