package middlewares

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"loomtrade/internal/repositories"
	"loomtrade/internal/services"
	"loomtrade/internal/utils"
)

type ctxKey string

const (
	UserIDKey   ctxKey = "userID"
	DeviceIDKey ctxKey = "deviceID"
)

// AuthMiddleware guards protected routes: the token must be valid, the
// account active, and the request's device registered for that account.
type AuthMiddleware struct {
	userRepo      repositories.UserRepository
	deviceService services.DeviceService
}

func NewAuthMiddleware(userRepo repositories.UserRepository, deviceService services.DeviceService) *AuthMiddleware {
	return &AuthMiddleware{userRepo: userRepo, deviceService: deviceService}
}

func (m *AuthMiddleware) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Missing token", http.StatusUnauthorized)
			return
		}
		const prefix = "Bearer "
		if len(tokenString) <= len(prefix) || tokenString[:len(prefix)] != prefix {
			http.Error(w, "Invalid token format", http.StatusUnauthorized)
			return
		}

		claims, err := utils.ParseJWT(tokenString[len(prefix):])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		userID, err := primitive.ObjectIDFromHex(claims.ID)
		if err != nil {
			http.Error(w, "Invalid token payload", http.StatusUnauthorized)
			return
		}

		user, err := m.userRepo.FindByID(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Str("user_id", claims.ID).Msg("Error loading user for auth")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}
		if !user.IsActive {
			http.Error(w, "Account inactive", http.StatusForbidden)
			return
		}

		// The session is bound to a device: take it from the token, or fall
		// back to the header for tokens issued without one.
		deviceID := claims.DeviceID
		if deviceID == "" {
			deviceID = r.Header.Get("X-Device-Id")
		}
		if deviceID == "" {
			http.Error(w, "Device id required in 'X-Device-Id' header", http.StatusBadRequest)
			return
		}

		registered, err := m.deviceService.IsRegistered(r.Context(), userID, deviceID)
		if err != nil {
			log.Error().Err(err).Str("user_id", claims.ID).Msg("Error checking device registration")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !registered {
			http.Error(w, "Device not registered for this user", http.StatusUnauthorized)
			return
		}

		// Best effort; a failed touch never aborts the request.
		if err := m.deviceService.Touch(r.Context(), userID, deviceID, r.UserAgent(), r.RemoteAddr); err != nil {
			log.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to touch device lastSeen")
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.ID)
		ctx = context.WithValue(ctx, DeviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
