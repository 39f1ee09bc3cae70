package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"loomtrade/internal/apperrors"
	"loomtrade/internal/models"
	"loomtrade/internal/services"
)

// stubAuthService satisfies services.AuthService with canned outcomes so the
// handler's decode/validate/status mapping can be tested in isolation.
type stubAuthService struct {
	signupErr  error
	sendErr    error
	resendErr  error
	verifyErr  error
	verifyOut  *services.AuthResult
	lastDevice models.DeviceMeta
}

func (s *stubAuthService) Signup(ctx context.Context, fullName, phone, countryCode string, device models.DeviceMeta) error {
	s.lastDevice = device
	return s.signupErr
}

func (s *stubAuthService) SendLoginOTP(ctx context.Context, phone, countryCode string, device models.DeviceMeta) error {
	s.lastDevice = device
	return s.sendErr
}

func (s *stubAuthService) VerifyOTP(ctx context.Context, phone, countryCode, code string, hints models.DeviceMeta) (*services.AuthResult, error) {
	s.lastDevice = hints
	return s.verifyOut, s.verifyErr
}

func (s *stubAuthService) ResendOTP(ctx context.Context, phone, countryCode string) error {
	return s.resendErr
}

func postJSON(t *testing.T, handler http.HandlerFunc, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestSignupAccepted(t *testing.T) {
	stub := &stubAuthService{}
	h := NewAuthHandler(stub, nil, 6)

	rr := postJSON(t, h.Signup, map[string]interface{}{
		"full_name":    "Asha",
		"phone":        "9998887777",
		"country_code": "+91",
		"device_id":    "dev-1",
		"type":         "mobile",
	})

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "9998887777", decodeBody(t, rr)["phone"])
	assert.Equal(t, "dev-1", stub.lastDevice.DeviceID)
	assert.Equal(t, "mobile", stub.lastDevice.Type)
}

func TestSignupValidation(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, nil, 6)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing full name", map[string]interface{}{"phone": "9998887777", "country_code": "+91"}},
		{"short phone", map[string]interface{}{"full_name": "Asha", "phone": "12345", "country_code": "+91"}},
		{"bad country code", map[string]interface{}{"full_name": "Asha", "phone": "9998887777", "country_code": "91"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postJSON(t, h.Signup, tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestSignupConflict(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{signupErr: apperrors.ErrConflict}, nil, 6)

	rr := postJSON(t, h.Signup, map[string]interface{}{
		"full_name":    "Asha",
		"phone":        "9998887777",
		"country_code": "+91",
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestSignupRateLimited(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{signupErr: apperrors.NewRateLimit(42)}, nil, 6)

	rr := postJSON(t, h.Signup, map[string]interface{}{
		"full_name":    "Asha",
		"phone":        "9998887777",
		"country_code": "+91",
	})

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))
	assert.Equal(t, float64(42), decodeBody(t, rr)["retry_after"])
}

func TestSendOTPStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"unknown account", apperrors.ErrNotFound, http.StatusNotFound},
		{"device limit", apperrors.ErrDeviceLimitReached, http.StatusForbidden},
		{"sms failure", apperrors.ErrSendFailed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAuthHandler(&stubAuthService{sendErr: tc.err}, nil, 6)
			rr := postJSON(t, h.SendOTP, map[string]interface{}{
				"phone":        "9998887777",
				"country_code": "+91",
			})
			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestVerifyOTPSuccess(t *testing.T) {
	userID := primitive.NewObjectID()
	stub := &stubAuthService{verifyOut: &services.AuthResult{
		Token:    "signed-token",
		DeviceID: "dev-1",
		User: &models.User{
			ID:          userID,
			FullName:    "Asha",
			Phone:       "9998887777",
			CountryCode: "+91",
			IsActive:    true,
		},
	}}
	h := NewAuthHandler(stub, nil, 6)

	rr := postJSON(t, h.VerifyOTP, map[string]interface{}{
		"phone":        "9998887777",
		"country_code": "+91",
		"otp":          "482913",
	})

	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "signed-token", body["token"])
	assert.Equal(t, userID.Hex(), body["account_id"])
	assert.Equal(t, "dev-1", body["device_id"])
	assert.NotContains(t, body, "image")
}

func TestVerifyOTPWrongLength(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{}, nil, 6)

	rr := postJSON(t, h.VerifyOTP, map[string]interface{}{
		"phone":        "9998887777",
		"country_code": "+91",
		"otp":          "1234",
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVerifyOTPInvalid(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{verifyErr: apperrors.ErrInvalidOTP}, nil, 6)

	rr := postJSON(t, h.VerifyOTP, map[string]interface{}{
		"phone":        "9998887777",
		"country_code": "+91",
		"otp":          "482913",
	})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestResendOTPNotFound(t *testing.T) {
	h := NewAuthHandler(&stubAuthService{resendErr: apperrors.ErrNotFound}, nil, 6)

	rr := postJSON(t, h.ResendOTP, map[string]interface{}{
		"phone":        "9998887777",
		"country_code": "+91",
	})

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
