package auth

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const insecureSecret = "!!REPLACE_THIS_WITH_A_STRONG_SECRET_KEY!!"

var jwtSecret = []byte(insecureSecret)

// Claims defines the structure of the JWT payload. Account is the ledger
// address every operation made with the token is executed as.
type Claims struct {
	UserID   uuid.UUID      `json:"user_id"`
	Username string         `json:"username"`
	Account  common.Address `json:"account"`
	jwt.RegisteredClaims
}

// SetSecret sets the HMAC key used to sign and verify tokens.
func SetSecret(secret string) {
	if secret == "" {
		log.Warn("JWT_SECRET not set. Using default insecure secret.")
		secret = insecureSecret
	}
	jwtSecret = []byte(secret)
}

// GenerateJWT creates a new JWT for a given user.
func GenerateJWT(userID uuid.UUID, username string, account common.Address) (string, error) {
	// Token expires in 24 hours
	expirationTime := time.Now().Add(24 * time.Hour)

	claims := &Claims{
		UserID:   userID,
		Username: username,
		Account:  account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "dexsettle",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateJWT validates a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Ensure the signing method is HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err // Handles expiration, invalid signature, etc.
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
