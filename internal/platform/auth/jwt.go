package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService 签发和校验管理接口使用的 token
type TokenService interface {
	Sign(subject string, role string) (string, time.Time, error)
	Verify(token string) (Identity, error)
}

type hs256Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	switch {
	case secret == "":
		return nil, errors.New("jwt secret is empty")
	case issuer == "":
		return nil, errors.New("jwt issuer is empty")
	case ttl <= 0:
		return nil, errors.New("jwt ttl must be > 0")
	}
	return &hs256Service{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Sign 返回 token 和它的过期时间
func (h *hs256Service) Sign(subject string, role string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	now := h.now()
	exp := now.Add(h.ttl)
	claims := jwtClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (h *hs256Service) Verify(tokenString string) (Identity, error) {
	var parsed jwtClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &parsed, func(*jwt.Token) (any, error) {
		return h.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: parsed.Subject, Role: parsed.Role}, nil
}
