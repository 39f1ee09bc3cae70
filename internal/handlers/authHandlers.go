package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/markbates/goth/gothic"
	"github.com/rs/zerolog/log"

	"loomtrade/internal/apperrors"
	"loomtrade/internal/models"
	"loomtrade/internal/services"
)

var countryCodeRe = regexp.MustCompile(`^\+\d{1,4}$`)

// deviceContextRequest is the closed shape clients use to describe the
// device they are authenticating from.
type deviceContextRequest struct {
	DeviceID      string `json:"device_id,omitempty"`
	Type          string `json:"type,omitempty"`
	Platform      string `json:"platform,omitempty"`
	CompanyBrand  string `json:"company_brand,omitempty"`
	CompanyDevice string `json:"company_device,omitempty"`
	CompanyModel  string `json:"company_model,omitempty"`
	AppVersion    string `json:"app_version,omitempty"`
	Name          string `json:"name,omitempty"`
}

func (d deviceContextRequest) toMeta(r *http.Request) models.DeviceMeta {
	return models.DeviceMeta{
		DeviceID:      d.DeviceID,
		Type:          d.Type,
		Platform:      d.Platform,
		CompanyBrand:  d.CompanyBrand,
		CompanyDevice: d.CompanyDevice,
		CompanyModel:  d.CompanyModel,
		AppVersion:    d.AppVersion,
		Name:          d.Name,
		UserAgent:     r.UserAgent(),
		IP:            r.RemoteAddr,
	}
}

type signupRequest struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	deviceContextRequest
}

type sendOTPRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	deviceContextRequest
}

type verifyOTPRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
	OTP         string `json:"otp"`
	deviceContextRequest
}

type resendOTPRequest struct {
	Phone       string `json:"phone"`
	CountryCode string `json:"country_code"`
}

type AuthHandler struct {
	authService  services.AuthService
	oauthService services.OAuthService
	otpLength    int
}

func NewAuthHandler(authService services.AuthService, oauthService services.OAuthService, otpLength int) *AuthHandler {
	return &AuthHandler{authService: authService, oauthService: oauthService, otpLength: otpLength}
}

func validatePhoneKey(phone, countryCode string) string {
	if len(phone) < 10 {
		return "Phone number must be at least 10 digits"
	}
	if !countryCodeRe.MatchString(countryCode) {
		return "Invalid country code format (e.g., +91)"
	}
	return ""
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Error encoding JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondAuthError maps business-rule failures onto HTTP statuses. Anything
// unrecognized is an internal error.
func respondAuthError(w http.ResponseWriter, err error) {
	if rl, ok := apperrors.IsRateLimited(err); ok {
		w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"message":     rl.Error(),
			"retry_after": rl.RetryAfterSeconds,
		})
		return
	}
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		respondError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, apperrors.ErrConflict):
		respondError(w, http.StatusConflict, "An account with this phone number already exists")
	case errors.Is(err, apperrors.ErrDeviceLimitReached):
		respondError(w, http.StatusForbidden, "Device limit reached for this account")
	case errors.Is(err, apperrors.ErrInvalidOTP):
		respondError(w, http.StatusUnauthorized, "Invalid or expired OTP")
	case errors.Is(err, apperrors.ErrSendFailed):
		respondError(w, http.StatusInternalServerError, "Failed to send OTP")
	default:
		log.Error().Err(err).Msg("Unexpected error in auth flow")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (a *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FullName == "" {
		respondError(w, http.StatusBadRequest, "Full name is required")
		return
	}
	if msg := validatePhoneKey(req.Phone, req.CountryCode); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	err := a.authService.Signup(r.Context(), req.FullName, req.Phone, req.CountryCode, req.toMeta(r))
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": "OTP sent for verification",
		"phone":   req.Phone,
	})
}

func (a *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validatePhoneKey(req.Phone, req.CountryCode); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	err := a.authService.SendLoginOTP(r.Context(), req.Phone, req.CountryCode, req.toMeta(r))
	if err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

func (a *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validatePhoneKey(req.Phone, req.CountryCode); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}
	if len(req.OTP) != a.otpLength {
		respondError(w, http.StatusBadRequest, "OTP must be exactly "+strconv.Itoa(a.otpLength)+" digits")
		return
	}

	result, err := a.authService.VerifyOTP(r.Context(), req.Phone, req.CountryCode, req.OTP, req.toMeta(r))
	if err != nil {
		respondAuthError(w, err)
		return
	}

	resp := map[string]interface{}{
		"token":        result.Token,
		"account_id":   result.User.ID.Hex(),
		"device_id":    result.DeviceID,
		"full_name":    result.User.FullName,
		"phone":        result.User.Phone,
		"country_code": result.User.CountryCode,
	}
	if result.User.Image != "" {
		resp["image"] = result.User.Image
	}
	if result.User.DOB != nil {
		resp["dob"] = result.User.DOB
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *AuthHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validatePhoneKey(req.Phone, req.CountryCode); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := a.authService.ResendOTP(r.Context(), req.Phone, req.CountryCode); err != nil {
		respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "OTP resent"})
}

func (a *AuthHandler) ProviderAuth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	provider := vars["provider"]

	if provider == "" {
		log.Error().Msg("Provider not specified in URL")
		respondError(w, http.StatusBadRequest, "Provider not specified")
		return
	}

	log.Info().Str("provider", provider).Msg("Initiating authentication with provider")

	gothic.BeginAuthHandler(w, r)
}

func (a *AuthHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	providerUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		log.Error().Err(err).Msg("Error completing user authentication")
		respondError(w, http.StatusBadRequest, "Authentication failed")
		return
	}

	token, err := a.oauthService.HandleLogin(r.Context(), providerUser)
	if err != nil {
		log.Error().Err(err).Msg("Error handling login after provider authentication")
		respondError(w, http.StatusInternalServerError, "Authentication failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}
