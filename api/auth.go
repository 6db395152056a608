package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

type contextKey string

const adminSubjectKey contextKey = "admin_subject"

// AdminRole is the role claim the admin routes require
const AdminRole = "admin"

// AdminAuth accepts HS256 bearer tokens signed with secret whose role claim
// is admin
func AdminAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format")
				return
			}

			subject, err := validateAdminToken(parts[1], secret)
			if err != nil {
				log.WithError(err).Debug("Rejected admin token")
				writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), adminSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validateAdminToken(tokenString string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("admin authentication is not configured")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	if role, _ := claims["role"].(string); role != AdminRole {
		return "", fmt.Errorf("role %q is not allowed", role)
	}
	subject, err := claims.GetSubject()
	if err != nil {
		return "", err
	}
	return subject, nil
}

// AdminSubject returns the authenticated admin's subject claim
func AdminSubject(ctx context.Context) string {
	subject, _ := ctx.Value(adminSubjectKey).(string)
	return subject
}
