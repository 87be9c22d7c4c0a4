package auth

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Credential 访问凭证，RefreshToken 可以为空
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// ParseExpiry 读取 JWT 的 exp，不校验签名
func ParseExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, errors.Mark(errors.Wrap(err, "auth: parse token"), ErrNoExpiry)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrap(err, "auth: read exp"), ErrNoExpiry)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
