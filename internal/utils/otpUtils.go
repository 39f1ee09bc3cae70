package utils

import (
	"crypto/rand"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func GenerateSecureOTP(length int) (string, error) {
	const otpChars = "0123456789"
	buffer := make([]byte, length)
	_, err := rand.Read(buffer)
	if err != nil {
		return "", err
	}

	otpCharsLength := len(otpChars)
	for i := 0; i < length; i++ {
		buffer[i] = otpChars[int(buffer[i])%otpCharsLength]
	}

	return string(buffer), nil
}

// HashOTP hashes a code for storage so a leaked record does not leak a live
// code.
func HashOTP(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareOTP reports whether code matches the stored hash.
func CompareOTP(hash, code string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}

// NewDeviceID generates an identifier for clients that did not supply one.
func NewDeviceID() string {
	return uuid.NewString()
}
