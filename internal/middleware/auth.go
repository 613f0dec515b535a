package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// TokenTTL is the lifetime of a bearer token.
const TokenTTL = 30 * 24 * time.Hour

// SessionReader resolves the user of a session cookie.
type SessionReader interface {
	GetSessionUserID(w http.ResponseWriter, r *http.Request) (string, error)
}

func GenerateToken(userID, email, secret string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"exp":     now.Add(TokenTTL).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a bearer token and returns its user id.
func ParseToken(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", errors.New("invalid user id in token")
	}
	return userID, nil
}

// AuthMiddleware requires a bearer token or, when sessions is not nil, a
// session cookie. The user id ends up in the request context.
func AuthMiddleware(secret string, sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string

			header := r.Header.Get("Authorization")
			switch {
			case header != "":
				tokenStr := strings.TrimPrefix(header, "Bearer ")
				if tokenStr == header {
					writeError(w, http.StatusUnauthorized, "invalid authorization format")
					return
				}
				id, err := ParseToken(tokenStr, secret)
				if err != nil {
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				userID = id

			case sessions != nil:
				id, err := sessions.GetSessionUserID(w, r)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "not logged in")
					return
				}
				userID = id

			default:
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext returns the user id stored by AuthMiddleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
