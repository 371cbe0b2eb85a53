package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateJWT issues a token carrying the authenticated user and the
// organization it acts within. The identity provider itself is external;
// this is only the boundary contract.
func GenerateJWT(secret []byte, userID uint64, organizationID uint64) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"org_id":  organizationID,
		"exp":     time.Now().Add(time.Hour * 24 * 3).Unix(), // expires in 3 days
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func VerifyJWT(secret []byte, tokenString string) (*jwt.Token, error) {
	// parse token
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	// isValid
	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	return jwtToken, nil
}

// GetDataFromToken extracts the user and organization ids from a parsed token
func GetDataFromToken(token *jwt.Token) (uint64, uint64, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, 0, errors.New("invalid token claims")
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, 0, errors.New("user_id not found in token")
	}

	orgIDFloat, ok := claims["org_id"].(float64)
	if !ok {
		return 0, 0, errors.New("org_id not found in token")
	}

	return uint64(userIDFloat), uint64(orgIDFloat), nil
}
