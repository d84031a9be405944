package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"compass/internal/model"
	"compass/pkg/apierror"
)

const accessTokenType = "access"

// TokenService verifies the HMAC access tokens issued by the accounts
// service. IssueAccessToken exists for tooling and tests.
type TokenService struct {
	jwtSecret []byte
}

func NewTokenService(jwtSecret string) (*TokenService, error) {
	if strings.TrimSpace(jwtSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenService{jwtSecret: []byte(jwtSecret)}, nil
}

func (s *TokenService) IssueAccessToken(userID string, username string, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	return s.signToken(jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"role":     role,
		"typ":      accessTokenType,
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	})
}

func (s *TokenService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.Unauthorized("invalid token signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrTokenExpired
		}
		return nil, apierror.Unauthorized("invalid token")
	}
	if !parsed.Valid {
		return nil, apierror.Unauthorized("invalid token")
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.Unauthorized("invalid token claims")
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, apierror.Unauthorized("invalid token type")
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Username, _ = claimsMap["username"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.Unauthorized("invalid token subject")
	}

	return claims, nil
}

func (s *TokenService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
