package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Abraxas-365/authlink/pkg/kernel"
)

// TokenCodec issues and parses HS256 access tokens.
type TokenCodec struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
}

func NewTokenCodec(secretKey, issuer string, ttl time.Duration) *TokenCodec {
	if ttl == 0 {
		ttl = time.Hour
	}
	if issuer == "" {
		issuer = "authlink"
	}
	return &TokenCodec{secretKey: []byte(secretKey), issuer: issuer, ttl: ttl}
}

// AccessTokenClaims is the payload of an access token.
type AccessTokenClaims struct {
	RecipeUserID kernel.RecipeUserID `json:"rsub"`
	TenantID     kernel.TenantID     `json:"tid"`
	Handle       string              `json:"sh"`
	jwt.RegisteredClaims
}

func (c *TokenCodec) TTL() time.Duration { return c.ttl }

func (c *TokenCodec) Issue(doc *Document) (string, error) {
	claims := AccessTokenClaims{
		RecipeUserID: doc.RecipeUserID,
		TenantID:     doc.TenantID,
		Handle:       doc.Handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   doc.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(doc.ExpiresAt),
			NotBefore: jwt.NewNumericDate(doc.CreatedAt),
			IssuedAt:  jwt.NewNumericDate(doc.CreatedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secretKey)
	if err != nil {
		return "", ErrTokenGeneration(err)
	}
	return signed, nil
}

// Parse validates the signature, issuer and expiry.
func (c *TokenCodec) Parse(token string) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secretKey, nil
	}, jwt.WithIssuer(c.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrUnauthorised().WithDetail("reason", err.Error())
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid || claims.Handle == "" {
		return nil, ErrUnauthorised().WithDetail("reason", "invalid claims")
	}
	return claims, nil
}
