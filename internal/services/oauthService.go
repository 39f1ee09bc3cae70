package services

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"

	"loomtrade/internal/config"
	"loomtrade/internal/repositories"
	"loomtrade/internal/utils"
)

const sessionMaxAge = 86400 * 30

// OAuthService handles the social login path: provider-verified emails map
// onto active accounts directly, no OTP round trip.
type OAuthService interface {
	HandleLogin(ctx context.Context, u goth.User) (string, error)
}

type oauthService struct {
	userRepo repositories.UserRepository
	policy   config.AuthPolicy
}

func NewOAuthService(userRepo repositories.UserRepository, policy config.AuthPolicy) OAuthService {
	return &oauthService{userRepo: userRepo, policy: policy}
}

func InitializeGoth() {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	callbackURL := os.Getenv("GOOGLE_CALLBACK_URL")
	if callbackURL == "" {
		callbackURL = "http://localhost:8080/api/auth/google/callback"
	}

	store := sessions.NewCookieStore([]byte(os.Getenv("SESSION_KEY")))
	store.MaxAge(sessionMaxAge)
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode

	gothic.Store = store

	goth.UseProviders(
		google.New(clientID, clientSecret, callbackURL),
	)
	log.Info().Msg("Goth providers initialized")
}

func (a *oauthService) HandleLogin(ctx context.Context, u goth.User) (string, error) {
	if u.Email == "" {
		log.Error().Str("provider", u.Provider).Msg("Provider user data has no email")
		return "", errors.New("missing email")
	}

	fullName := u.Name
	if fullName == "" {
		fullName = u.NickName
	}

	update := bson.M{"is_active": true}
	if fullName != "" {
		update["full_name"] = fullName
	}
	if u.AvatarURL != "" {
		update["image"] = u.AvatarURL
	}

	user, err := a.userRepo.UpsertByEmail(ctx, u.Email, update)
	if err != nil {
		log.Error().Err(err).Str("email", u.Email).Msg("Error upserting user from provider login")
		return "", errors.New("error upserting user")
	}

	// Social logins come from browsers with no device context; the auth
	// middleware resolves the device from the X-Device-Id header instead.
	token, err := utils.GenerateJWT(user.ID, "", a.policy.TokenTTL)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Error generating JWT for user")
		return "", errors.New("error generating JWT")
	}

	return token, nil
}
