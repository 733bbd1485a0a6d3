package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"kashikari-backend/internal/platform/line"
)

var ErrAuthenticationFailed = errors.New("authentication failed")

// ProfileResolver はアクセストークンをユーザー情報へ解決する（LINEプロフィールAPI）。
type ProfileResolver interface {
	GetByAccessToken(ctx context.Context, accessToken string) (*line.Profile, error)
}

type Service struct {
	profiles ProfileResolver
	secret   []byte
	ttl      time.Duration
}

func NewService(profiles ProfileResolver, secret []byte, ttl time.Duration) *Service {
	return &Service{profiles: profiles, secret: secret, ttl: ttl}
}

// Login はLINEのアクセストークンを検証し、セッション用JWTを発行する。
// プロフィール解決を毎リクエスト行わずに済むよう、表示名もクレームに含める。
func (s *Service) Login(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", ErrAuthenticationFailed
	}

	prof, err := s.profiles.GetByAccessToken(ctx, accessToken)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  prof.UserID,
		"name": prof.DisplayName,
		"exp":  time.Now().Add(s.ttl).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}
