package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// SMSSender is the contract the OTP flow expects from an SMS vendor. A send
// failure after the code is stored surfaces to the caller but never rolls the
// stored code back; resending is the recovery path.
type SMSSender interface {
	Send(ctx context.Context, fullPhone, code string) error
}

type consoleSMSSender struct{}

// NewSMSSenderFromEnv picks the sender implementation from SMS_SERVICE.
// Only console mode ships; real vendors plug in behind the same interface.
func NewSMSSenderFromEnv() (SMSSender, error) {
	mode := strings.ToLower(os.Getenv("SMS_SERVICE"))
	switch mode {
	case "", "console":
		return &consoleSMSSender{}, nil
	default:
		return nil, fmt.Errorf("unsupported SMS_SERVICE %q", mode)
	}
}

func (s *consoleSMSSender) Send(ctx context.Context, fullPhone, code string) error {
	log.Info().Str("to", fullPhone).Str("otp", code).Msg("SMS OTP (console mode)")
	return nil
}
