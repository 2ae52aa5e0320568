package service

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/domain"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

// AuthService verifies access tokens issued by the external identity
// service. Issuance and credential handling live elsewhere; this side only
// validates and extracts the actor.
type AuthService interface {
	ValidateToken(ctx context.Context, token string) (domain.Actor, error)
}

type accessClaims struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

type authService struct {
	cfg config.JWTConfig
	log logger.Logger
}

func NewAuthService(cfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{cfg: cfg, log: log}
}

func (s *authService) ValidateToken(_ context.Context, token string) (domain.Actor, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.Unauthorized("unexpected signing method")
		}
		return []byte(s.cfg.AccessSecret), nil
	}, jwt.WithIssuer(s.cfg.Issuer))
	if err != nil || !parsed.Valid {
		return domain.Actor{}, apperrors.Unauthorized("invalid or expired token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Actor{}, apperrors.Unauthorized("invalid token subject")
	}

	return domain.Actor{
		ID:          userID,
		Username:    claims.Username,
		DisplayName: claims.DisplayName,
	}, nil
}
