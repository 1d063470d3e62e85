package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/httputil"
)

type contextKey string

const UserKey contextKey = "user_id"

// TokenValidator decouples the middleware from the user package.
type TokenValidator interface {
	ValidateToken(tokenString string) (uuid.UUID, error)
}

type AuthMiddleware struct {
	validator  TokenValidator
	cookieName string
	log        *zap.Logger
}

func NewAuthMiddleware(v TokenValidator, cookieName string, log *zap.Logger) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthMiddleware{validator: v, cookieName: cookieName, log: log}
}

// ExtractToken looks in the Authorization header, then the token cookie, then the
// token query parameter.
func ExtractToken(r *http.Request, cookieName string) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if tok := strings.TrimSpace(parts[1]); tok != "" {
				return tok
			}
		}
	}

	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	return r.URL.Query().Get("token")
}

// Authenticate resolves the identity on r, or returns an Unauthenticated error naming
// the reason.
func (am *AuthMiddleware) Authenticate(r *http.Request) (uuid.UUID, error) {
	tokenString := ExtractToken(r, am.cookieName)
	if tokenString == "" {
		return uuid.Nil, apperr.ErrTokenMissing
	}
	return am.validator.ValidateToken(tokenString)
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := am.Authenticate(r)
		if err != nil {
			httputil.WriteError(w, am.log, err)
			return
		}

		ctx := WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, UserKey, id)
}

// UserIDFrom returns the identity injected by Handle.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(UserKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// MustUserID is for handlers mounted behind Handle.
func MustUserID(ctx context.Context) uuid.UUID {
	id, _ := UserIDFrom(ctx)
	return id
}
