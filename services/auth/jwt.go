// Package authsvc verifies the bearer tokens presented to the API.
package authsvc

import (
	"context"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/identity"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	IsAdmin bool     `json:"is_admin,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// JWTVerifier verifies HS256 tokens signed with the app's secret key.
type JWTVerifier struct {
	key      []byte
	issuer   string
	audience string
}

var _ identity.Verifier = (*JWTVerifier)(nil)

func NewJWTVerifier(conf *core.Config) *JWTVerifier {
	return &JWTVerifier{
		key:      []byte(conf.SecretKey),
		issuer:   conf.Auth.Issuer,
		audience: conf.Auth.Audience,
	}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, identity.ErrNoToken
	}

	claims := new(Claims)
	tok, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil || !tok.Valid {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return identity.Identity{}, identity.ErrInvalidToken
	}
	if claims.Subject == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}

	return identity.Identity{
		Subject: claims.Subject,
		Name:    claims.Name,
		Email:   claims.Email,
		Phone:   claims.Phone,
		IsAdmin: claims.IsAdmin,
		Roles:   claims.Roles,
		Token:   token,
	}, nil
}

// GenerateToken signs a token asserting idt, valid for ttl.
func (v *JWTVerifier) GenerateToken(idt identity.Identity, ttl time.Duration) (string, error) {
	now := jwt.TimeFunc()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    v.issuer,
			Subject:   idt.Subject,
			Audience:  v.audience,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:    idt.Name,
		Email:   idt.Email,
		Phone:   idt.Phone,
		IsAdmin: idt.IsAdmin,
		Roles:   idt.Roles,
	}

	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}
