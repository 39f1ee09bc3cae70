package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"loomtrade/internal/apperrors"
	"loomtrade/internal/config"
	"loomtrade/internal/metrics"
	"loomtrade/internal/models"
	"loomtrade/internal/repositories"
	"loomtrade/internal/utils"
)

// AuthResult is what a successful verification hands back to the transport
// layer: the session token and the account it now belongs to.
type AuthResult struct {
	Token    string
	DeviceID string
	User     *models.User
}

// AuthService drives an identity through NoAccount -> Pending -> Active,
// tying OTP issuance, verification, device registration and token issuance
// together.
type AuthService interface {
	Signup(ctx context.Context, fullName, phone, countryCode string, device models.DeviceMeta) error
	SendLoginOTP(ctx context.Context, phone, countryCode string, device models.DeviceMeta) error
	VerifyOTP(ctx context.Context, phone, countryCode, code string, hints models.DeviceMeta) (*AuthResult, error)
	ResendOTP(ctx context.Context, phone, countryCode string) error
}

type authService struct {
	userRepo      repositories.UserRepository
	otpService    OTPService
	deviceService DeviceService
	smsSender     SMSSender
	policy        config.AuthPolicy
	keyLocks      *utils.KeyedMutex
}

func NewAuthService(userRepo repositories.UserRepository, otpService OTPService, deviceService DeviceService, smsSender SMSSender, policy config.AuthPolicy) AuthService {
	return &authService{
		userRepo:      userRepo,
		otpService:    otpService,
		deviceService: deviceService,
		smsSender:     smsSender,
		policy:        policy,
		keyLocks:      utils.NewKeyedMutex(),
	}
}

// Signup starts a registration. The account is created pending and the device
// snapshot only lives in the OTP record until the identity is confirmed, so
// unverified identities never grow a device list.
func (s *authService) Signup(ctx context.Context, fullName, phone, countryCode string, device models.DeviceMeta) error {
	if err := s.ensurePendingAccount(ctx, fullName, phone, countryCode); err != nil {
		return err
	}

	_, code, err := s.otpService.Issue(ctx, phone, countryCode, IssueOptions{
		Purpose:         models.OTPPurposeSignup,
		PendingFullName: fullName,
		DeviceMeta:      device,
	})
	if err != nil {
		return err
	}

	metrics.SignupsTotal.Inc()
	return s.dispatchSMS(ctx, phone, countryCode, code)
}

// ensurePendingAccount creates the pending row exactly once. Concurrent first
// signups for the same phone serialize on the key lock; losing a duplicate-key
// race to another instance just means the row exists now.
func (s *authService) ensurePendingAccount(ctx context.Context, fullName, phone, countryCode string) error {
	unlock := s.keyLocks.Lock("signup:" + countryCode + phone)
	defer unlock()

	user, err := s.userRepo.FindByPhone(ctx, phone, countryCode)
	if err != nil {
		return err
	}
	if user != nil {
		if user.IsActive {
			return apperrors.ErrConflict
		}
		return nil
	}

	pending := &models.User{
		FullName:    fullName,
		Phone:       phone,
		CountryCode: countryCode,
		IsActive:    false,
	}
	if _, err := s.userRepo.Create(ctx, pending); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, ferr := s.userRepo.FindByPhone(ctx, phone, countryCode)
			if ferr != nil {
				return ferr
			}
			if existing != nil {
				if existing.IsActive {
					return apperrors.ErrConflict
				}
				return nil
			}
		}
		return err
	}
	return nil
}

// SendLoginOTP issues a login code for an existing account. A new device on
// an account that is already at its total cap is rejected up front rather
// than silently evicting a device on every login attempt.
func (s *authService) SendLoginOTP(ctx context.Context, phone, countryCode string, device models.DeviceMeta) error {
	user, err := s.userRepo.FindByPhone(ctx, phone, countryCode)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrNotFound
	}

	incomingIsNew := device.DeviceID == ""
	if !incomingIsNew {
		registered, err := s.deviceService.IsRegistered(ctx, user.ID, device.DeviceID)
		if err != nil {
			return err
		}
		incomingIsNew = !registered
	}
	if incomingIsNew {
		count, err := s.deviceService.Count(ctx, user.ID)
		if err != nil {
			return err
		}
		if count >= int64(s.policy.TotalDeviceCap) {
			return apperrors.ErrDeviceLimitReached
		}
	}

	_, code, err := s.otpService.Issue(ctx, phone, countryCode, IssueOptions{
		Purpose:    models.OTPPurposeLogin,
		DeviceMeta: device,
	})
	if err != nil {
		return err
	}

	return s.dispatchSMS(ctx, phone, countryCode, code)
}

// VerifyOTP validates the code, transitions the account, registers the
// device captured at send time and issues a token bound to it.
func (s *authService) VerifyOTP(ctx context.Context, phone, countryCode, code string, hints models.DeviceMeta) (*AuthResult, error) {
	record, err := s.otpService.Verify(ctx, phone, countryCode, code, hints)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByPhone(ctx, phone, countryCode)
	if err != nil {
		return nil, err
	}

	switch {
	case user == nil && record.Purpose == models.OTPPurposeSignup:
		fullName := record.PendingFullName
		created, err := s.userRepo.Create(ctx, &models.User{
			FullName:    fullName,
			Phone:       phone,
			CountryCode: countryCode,
			IsActive:    true,
		})
		if err != nil {
			return nil, err
		}
		user = created
		metrics.AccountsActivatedTotal.Inc()

	case user == nil:
		// A login record for an account that vanished mid-flow.
		return nil, apperrors.ErrInvalidOTP

	case !user.IsActive:
		// First successful verification activates a pending account no
		// matter the code's purpose; a resend re-issues under login, and a
		// pending user must not be stranded behind the active-account guard.
		if err := s.userRepo.Activate(ctx, user.ID); err != nil {
			return nil, err
		}
		user.IsActive = true
		if record.PendingFullName != "" && user.FullName == "" {
			user.FullName = record.PendingFullName
		}
		metrics.AccountsActivatedTotal.Inc()
	}

	// Prefer the device snapshot captured at send time; fall back to the
	// hints the client supplied now.
	meta := record.DeviceMeta
	if meta.IsZero() {
		meta = hints
	}
	deviceID, _, err := s.deviceService.RegisterOrTouch(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	if err := s.otpService.Clear(ctx, phone, countryCode); err != nil {
		return nil, err
	}

	token, err := utils.GenerateJWT(user.ID, deviceID, s.policy.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &AuthResult{Token: token, DeviceID: deviceID, User: user}, nil
}

// ResendOTP re-issues a login code without changing the stored device
// context, under the same rate policy.
func (s *authService) ResendOTP(ctx context.Context, phone, countryCode string) error {
	user, err := s.userRepo.FindByPhone(ctx, phone, countryCode)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.ErrNotFound
	}

	_, code, err := s.otpService.Issue(ctx, phone, countryCode, IssueOptions{
		Purpose: models.OTPPurposeLogin,
	})
	if err != nil {
		return err
	}

	return s.dispatchSMS(ctx, phone, countryCode, code)
}

// dispatchSMS hands the plaintext code to the vendor. A failure here leaves
// the stored code valid until expiry or a later resend overwrites it.
func (s *authService) dispatchSMS(ctx context.Context, phone, countryCode, code string) error {
	fullPhone := countryCode + phone
	if err := s.smsSender.Send(ctx, fullPhone, code); err != nil {
		metrics.SMSSendFailuresTotal.Inc()
		log.Error().Err(err).Str("to", fullPhone).Msg("SMS dispatch failed after OTP was stored")
		return fmt.Errorf("%w: %v", apperrors.ErrSendFailed, err)
	}
	return nil
}
