package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// deviceContextKey is the context key for the authenticated device.
type deviceContextKey string

const deviceIDKey deviceContextKey = "device_id"

// deviceTokenTTL is the lifetime of a device JWT token (30 days).
const deviceTokenTTL = 30 * 24 * time.Hour

// DeviceClaims holds the JWT claims for a paired mobile device.
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// GenerateDeviceToken creates a signed JWT for a paired device.
func GenerateDeviceToken(secret []byte, deviceID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(deviceTokenTTL)

	claims := DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "callbridge",
			Subject:   deviceID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// RequireDeviceAuth returns middleware that validates JWT bearer tokens on
// bridge endpoints. On success it stores the device ID in the request context.
func RequireDeviceAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims := &DeviceClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				slog.Debug("device auth: invalid jwt", "error", err)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if claims.DeviceID == "" {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			ctx := context.WithValue(r.Context(), deviceIDKey, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceIDFromContext retrieves the authenticated device ID from the request
// context. Returns "" if not set.
func DeviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDKey).(string)
	return id
}
