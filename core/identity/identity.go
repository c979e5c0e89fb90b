package identity

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Roles
const (
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"
	RoleAccountant = "admin:accountant"
	RoleStudent    = "student:"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrNoToken      = errors.New("missing token")
)

// Identity is a dashboard user, as asserted by the identity provider.
type Identity struct {
	Subject string   `json:"sub"`
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	IsAdmin bool     `json:"is_admin,omitempty"`
	Roles   []string `json:"roles,omitempty"`

	// Token is the raw bearer credential the identity was read from.
	// It is forwarded to the backend API, never logged.
	Token string `json:"-"`
}

// HasAnyRole reports whether the identity holds one of roles. No roles means any identity matches.
func (idt Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	held := append([]string(nil), idt.Roles...)
	sort.Strings(held)
	for _, role := range roles {
		if i := sort.SearchStrings(held, role); i < len(held) && held[i] == role {
			return true
		}
	}
	return false
}

// Verifier checks a raw bearer token and returns the identity it asserts.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type ctxKey struct{}

func NewContext(ctx context.Context, idt Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, idt)
}

func FromContext(ctx context.Context) (Identity, bool) {
	idt, ok := ctx.Value(ctxKey{}).(Identity)
	return idt, ok
}
