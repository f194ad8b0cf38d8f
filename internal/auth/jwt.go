package auth

import (
	"errors"
	"time"

	"prep/internal/interview"

	"github.com/golang-jwt/jwt/v5"
)

type JWT struct {
	secret []byte
	ttl    time.Duration
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret), ttl: 7 * 24 * time.Hour}
}

// Sign issues a token for owner. Production tokens come from the identity
// provider; this is used by tests and the CLI.
func (j *JWT) Sign(owner interview.Owner) (string, error) {
	claims := jwt.MapClaims{
		"sub":   owner.ID,
		"email": owner.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(j.ttl).Unix(),
	}
	if owner.Name != "" {
		claims["name"] = owner.Name
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

func (j *JWT) Verify(tokenStr string) (interview.Owner, error) {
	t, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !t.Valid {
		return interview.Owner{}, errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return interview.Owner{}, errors.New("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return interview.Owner{}, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return interview.Owner{}, errors.New("missing email")
	}
	name, _ := claims["name"].(string)
	return interview.Owner{ID: sub, Email: email, Name: name}, nil
}
