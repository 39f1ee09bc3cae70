package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"loomtrade/internal/apperrors"
	"loomtrade/internal/config"
	"loomtrade/internal/metrics"
	"loomtrade/internal/models"
	"loomtrade/internal/repositories"
	"loomtrade/internal/utils"
)

// IssueOptions carry the send-time context for an OTP issuance.
type IssueOptions struct {
	Purpose         string
	PendingFullName string
	DeviceMeta      models.DeviceMeta
}

type OTPService interface {
	// Issue enforces the rate policy and upserts a fresh code for the key,
	// returning the stored record and the plaintext code for the SMS sender.
	Issue(ctx context.Context, phone, countryCode string, opts IssueOptions) (*models.OTP, string, error)
	// Verify checks a submitted code against the live record, honoring any
	// device hints. Returns the record on success so the caller can read the
	// purpose, pending name and device snapshot.
	Verify(ctx context.Context, phone, countryCode, code string, hints models.DeviceMeta) (*models.OTP, error)
	// Clear deletes the record for the key. Idempotent.
	Clear(ctx context.Context, phone, countryCode string) error
	// ReapExpired removes records past their expiry (safety net behind the
	// store's TTL index).
	ReapExpired(ctx context.Context) error
}

type otpService struct {
	userRepo repositories.UserRepository
	otpRepo  repositories.OTPRepository
	policy   config.AuthPolicy
	keyLocks *utils.KeyedMutex
	now      func() time.Time
}

func NewOTPService(userRepo repositories.UserRepository, otpRepo repositories.OTPRepository, policy config.AuthPolicy) OTPService {
	return &otpService{
		userRepo: userRepo,
		otpRepo:  otpRepo,
		policy:   policy,
		keyLocks: utils.NewKeyedMutex(),
		now:      time.Now,
	}
}

func (s *otpService) Issue(ctx context.Context, phone, countryCode string, opts IssueOptions) (*models.OTP, string, error) {
	if opts.Purpose != models.OTPPurposeSignup {
		user, err := s.userRepo.FindByPhone(ctx, phone, countryCode)
		if err != nil {
			return nil, "", err
		}
		if user == nil {
			return nil, "", apperrors.ErrNotFound
		}
	}

	// The cooldown/window read and the subsequent write must not interleave
	// with a concurrent Issue for the same key.
	unlock := s.keyLocks.Lock("otp:" + countryCode + phone)
	defer unlock()

	now := s.now()

	existing, err := s.otpRepo.FindByKey(ctx, phone, countryCode)
	if err != nil {
		return nil, "", err
	}

	if existing != nil && !existing.SentAt.IsZero() {
		if elapsed := now.Sub(existing.SentAt); elapsed < s.policy.Cooldown {
			metrics.OTPRateLimitedTotal.Inc()
			retry := int(math.Ceil((s.policy.Cooldown - elapsed).Seconds()))
			return nil, "", apperrors.NewRateLimit(retry)
		}
	}

	windowStart := now
	sendCount := 1
	if existing != nil && !existing.WindowStart.IsZero() && now.Sub(existing.WindowStart) <= s.policy.Window {
		if existing.SendCount >= s.policy.MaxPerWindow {
			metrics.OTPRateLimitedTotal.Inc()
			retry := int(math.Ceil((s.policy.Window - now.Sub(existing.WindowStart)).Seconds()))
			return nil, "", apperrors.NewRateLimit(retry)
		}
		windowStart = existing.WindowStart
		sendCount = existing.SendCount + 1
	}

	// A resend without device context keeps the snapshot captured on the
	// original send, and a login-purpose send never blanks a pending name
	// still waiting on its signup verification.
	deviceMeta := opts.DeviceMeta
	if deviceMeta.IsZero() && existing != nil {
		deviceMeta = existing.DeviceMeta
	}
	pendingFullName := opts.PendingFullName
	if pendingFullName == "" && existing != nil {
		pendingFullName = existing.PendingFullName
	}

	code, err := utils.GenerateSecureOTP(s.policy.OTPLength)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	codeHash, err := utils.HashOTP(code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash OTP: %w", err)
	}

	record := &models.OTP{
		Phone:           phone,
		CountryCode:     countryCode,
		CodeHash:        codeHash,
		Purpose:         opts.Purpose,
		PendingFullName: pendingFullName,
		DeviceMeta:      deviceMeta,
		Expiry:          now.Add(s.policy.OTPTTL),
		SentAt:          now,
		SendCount:       sendCount,
		WindowStart:     windowStart,
	}

	saved, err := s.otpRepo.Upsert(ctx, record)
	if err != nil {
		return nil, "", err
	}

	metrics.OTPIssuedTotal.WithLabelValues(opts.Purpose).Inc()
	return saved, code, nil
}

func (s *otpService) Verify(ctx context.Context, phone, countryCode, code string, hints models.DeviceMeta) (*models.OTP, error) {
	otp, err := s.otpRepo.FindByKeyAndHints(ctx, phone, countryCode, hints)
	if err != nil {
		return nil, err
	}
	if otp == nil || otp.Status != models.OTPStatusPending {
		metrics.OTPVerifyTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrInvalidOTP
	}

	now := s.now()
	if otp.IsExpired(now) {
		if err := s.otpRepo.MarkStatus(ctx, otp.ID, models.OTPStatusExpired); err != nil {
			log.Error().Err(err).Str("phone", phone).Msg("Failed to mark OTP expired")
		}
		metrics.OTPVerifyTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrInvalidOTP
	}

	if !utils.CompareOTP(otp.CodeHash, code) {
		metrics.OTPVerifyTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.ErrInvalidOTP
	}

	// Audit marker only; the orchestrator's Clear is what prevents replay.
	if err := s.otpRepo.MarkStatus(ctx, otp.ID, models.OTPStatusUsed); err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("Failed to mark OTP used")
	}

	metrics.OTPVerifyTotal.WithLabelValues("success").Inc()
	return otp, nil
}

func (s *otpService) Clear(ctx context.Context, phone, countryCode string) error {
	return s.otpRepo.DeleteByKey(ctx, phone, countryCode)
}

func (s *otpService) ReapExpired(ctx context.Context) error {
	return s.otpRepo.DeleteExpired(ctx)
}
