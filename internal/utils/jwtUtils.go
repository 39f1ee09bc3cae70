package utils

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Claims bind a session to both an account and a registered device.
type Claims struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid or expired token")

func jwtKey() ([]byte, error) {
	key := []byte(os.Getenv("JWT_SECRET"))
	if len(key) == 0 {
		return nil, errors.New("JWT_SECRET is not set in environment")
	}
	return key, nil
}

// GenerateJWT signs a session token carrying the account id and the device it
// was issued to.
func GenerateJWT(id primitive.ObjectID, deviceID string, ttl time.Duration) (string, error) {
	key, err := jwtKey()
	if err != nil {
		return "", err
	}

	claims := &Claims{
		ID:       id.Hex(),
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ParseJWT validates a token and returns its claims.
func ParseJWT(tokenString string) (*Claims, error) {
	key, err := jwtKey()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
