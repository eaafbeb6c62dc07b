package deeplink

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Contact links are handed out in match introductions. When the matched
// user has a public handle the link is just the transport's handle URL;
// otherwise we mint a signed token so the counterpart can be resolved
// without exposing the raw numeric ID.
type Signer struct {
	secret  []byte
	baseURL string
}

func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: baseURL}
}

type contactClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"user_id"`
}

func (s *Signer) ContactLink(handle string, userID int64) (string, error) {
	if handle != "" {
		return "https://t.me/" + handle, nil
	}

	claims := contactClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
		},
		UserID: userID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/contact/%s", s.baseURL, token), nil
}

// Resolve validates a contact token and returns the user ID it points at.
func (s *Signer) Resolve(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &contactClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid contact token")
	}

	claims, ok := parsed.Claims.(*contactClaims)
	if !ok {
		return 0, errors.New("could not parse claims")
	}
	return claims.UserID, nil
}
