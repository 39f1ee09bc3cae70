package config

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	_ "github.com/joho/godotenv/autoload"
)

// AuthPolicy holds the OTP and device policy knobs. These are policy, not
// protocol, so every value can be overridden from the environment.
type AuthPolicy struct {
	OTPLength       int
	OTPTTL          time.Duration
	Cooldown        time.Duration
	Window          time.Duration
	MaxPerWindow    int
	MobileDeviceCap int
	LaptopDeviceCap int
	TotalDeviceCap  int
	TokenTTL        time.Duration
}

// DefaultAuthPolicy mirrors the production reference values.
func DefaultAuthPolicy() AuthPolicy {
	return AuthPolicy{
		OTPLength:       6,
		OTPTTL:          5 * time.Minute,
		Cooldown:        60 * time.Second,
		Window:          time.Hour,
		MaxPerWindow:    5,
		MobileDeviceCap: 2,
		LaptopDeviceCap: 1,
		TotalDeviceCap:  3,
		TokenTTL:        30 * 24 * time.Hour,
	}
}

// LoadAuthPolicy reads policy overrides from the environment, falling back to
// the defaults for anything unset or unparsable.
func LoadAuthPolicy() AuthPolicy {
	p := DefaultAuthPolicy()
	p.OTPLength = envInt("OTP_LENGTH", p.OTPLength)
	p.OTPTTL = envDuration("OTP_TTL", p.OTPTTL)
	p.Cooldown = envDuration("OTP_COOLDOWN", p.Cooldown)
	p.Window = envDuration("OTP_WINDOW", p.Window)
	p.MaxPerWindow = envInt("OTP_MAX_PER_WINDOW", p.MaxPerWindow)
	p.MobileDeviceCap = envInt("DEVICE_MOBILE_CAP", p.MobileDeviceCap)
	p.LaptopDeviceCap = envInt("DEVICE_LAPTOP_CAP", p.LaptopDeviceCap)
	p.TotalDeviceCap = envInt("DEVICE_TOTAL_CAP", p.TotalDeviceCap)
	p.TokenTTL = envDuration("TOKEN_TTL", p.TokenTTL)
	return p
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return v
}
