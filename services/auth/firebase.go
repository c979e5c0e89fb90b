package authsvc

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/identity"
)

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens. Roles and the admin flag come from custom claims.
type FirebaseVerifier struct {
	client idTokenVerifier
}

var _ identity.Verifier = (*FirebaseVerifier)(nil)

func NewFirebaseVerifier(ctx context.Context, conf *core.Config) (*FirebaseVerifier, error) {
	var opts []option.ClientOption
	if conf.Auth.FirebaseCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(conf.Auth.FirebaseCredentials))
	}
	var fbConf *firebase.Config
	if conf.Auth.FirebaseProjectID != "" {
		fbConf = &firebase.Config{ProjectID: conf.Auth.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConf, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase app")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase auth client")
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, token string) (identity.Identity, error) {
	if token == "" {
		return identity.Identity{}, identity.ErrNoToken
	}
	tok, err := v.client.VerifyIDToken(ctx, token)
	if err != nil || tok.UID == "" {
		return identity.Identity{}, identity.ErrInvalidToken
	}

	idt := identity.Identity{
		Subject: tok.UID,
		Name:    stringClaim(tok.Claims, "name"),
		Email:   stringClaim(tok.Claims, "email"),
		Phone:   stringClaim(tok.Claims, "phone_number"),
		Token:   token,
	}
	idt.IsAdmin, _ = tok.Claims["admin"].(bool)
	if roles, ok := tok.Claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				idt.Roles = append(idt.Roles, s)
			}
		}
	}
	return idt, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}

// NewVerifier returns the verifier of the configured provider: "jwt" (default) or "firebase".
func NewVerifier(ctx context.Context, conf *core.Config) (identity.Verifier, error) {
	switch conf.Auth.Provider {
	case "", "jwt":
		return NewJWTVerifier(conf), nil
	case "firebase":
		return NewFirebaseVerifier(ctx, conf)
	default:
		return nil, errors.Errorf("unknown auth provider %q", conf.Auth.Provider)
	}
}
