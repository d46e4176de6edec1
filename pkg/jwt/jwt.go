package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrTokenExpired = errors.New("token expired")

type JWT struct {
	secret []byte
	ttl    time.Duration
}

type option func(*JWT)

// TTL sets how long created tokens stay valid. Zero means no expiry.
func TTL(ttl time.Duration) option {
	return func(j *JWT) {
		j.ttl = ttl
	}
}

func New(secret []byte, options ...option) *JWT {
	j := &JWT{secret: secret}
	for _, opt := range options {
		opt(j)
	}
	return j
}

// Create signs a token carrying value under key.
func (j *JWT) Create(key, value string) (string, error) {
	claims := jwt.MapClaims{key: value}
	if j.ttl > 0 {
		claims["exp"] = time.Now().Add(j.ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and returns the value stored under key.
func (j *JWT) Verify(signedToken, key string) (string, bool, error) {
	token, err := jwt.Parse(signedToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		var vErr *jwt.ValidationError
		if errors.As(err, &vErr) && vErr.Errors&jwt.ValidationErrorExpired != 0 {
			return "", false, ErrTokenExpired
		}
		return "", false, fmt.Errorf("failed parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", false, nil
	}
	value, ok := claims[key].(string)
	if !ok || value == "" {
		return "", false, nil
	}
	return value, true, nil
}
