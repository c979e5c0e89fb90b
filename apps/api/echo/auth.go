package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nexaric/portal/core/identity"
)

const contextIdentityKey = "identity"

// authMiddleware authenticates Bearer tokens with v and stores the identity in the context.
func authMiddleware(v identity.Verifier) echo.MiddlewareFunc {
	keyAuth := middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(token string, ctx echo.Context) (bool, error) {
			req := ctx.Request()
			idt, err := v.Verify(req.Context(), token)
			if err != nil {
				return false, err
			}
			ctx.Set(contextIdentityKey, idt)
			ctx.SetRequest(req.WithContext(identity.NewContext(req.Context(), idt)))
			return true, nil
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := keyAuth(next)
		return func(ctx echo.Context) error {
			err := h(ctx)
			if err == nil {
				return nil
			}
			if _, authed := ctx.Get(contextIdentityKey).(identity.Identity); authed {
				return err // raised past authentication
			}
			if herr, ok := err.(*echo.HTTPError); ok {
				switch herr.Code {
				case http.StatusBadRequest:
					return errMissingToken
				case http.StatusUnauthorized:
					return errInvalidToken
				}
			}
			return err
		}
	}
}

func getContextIdentity(ctx echo.Context) (identity.Identity, error) {
	if idt, ok := ctx.Get(contextIdentityKey).(identity.Identity); ok {
		return idt, nil
	}
	return identity.Identity{}, errUnauthorized
}

// contextIdentity returns the authenticated identity, zero when there is none.
func contextIdentity(ctx echo.Context) identity.Identity {
	idt, _ := getContextIdentity(ctx)
	return idt
}
