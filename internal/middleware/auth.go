package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"donation-service/pkg/response"
	"donation-service/pkg/xerrors"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	ContextUserID contextKey = "userID"
	ContextEmail  contextKey = "email"
)

// Claims carried by user tokens. The user id lives in "id"; "sub" is
// accepted as a fallback.
type Claims struct {
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) SubjectID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Verifier checks HS256 user tokens.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

func (v *Verifier) ParseAndValidate(tokenStr string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, xerrors.ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := new(Claims)
	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, xerrors.ErrExpiredToken
		}
		return nil, xerrors.ErrInvalidToken
	}
	if !token.Valid || claims.SubjectID() == "" {
		return nil, xerrors.ErrInvalidToken
	}
	return claims, nil
}

func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's id in the request context.
func RequireAuth(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "No token provided")
				return
			}

			claims, err := v.ParseAndValidate(token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, xerrors.ErrExpiredToken) {
					msg = "Token expired"
				}
				response.Error(w, http.StatusUnauthorized, msg)
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, claims.SubjectID())
			if claims.Email != "" {
				ctx = context.WithValue(ctx, ContextEmail, claims.Email)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok && val != ""
}
