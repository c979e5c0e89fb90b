package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

var (
	errMissingToken  = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed token")
	errInvalidToken  = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
	errBusy          = echo.NewHTTPError(http.StatusConflict, "a payment is already in progress")
	errSettled       = echo.NewHTTPError(http.StatusConflict, "payment already settled")
	errNoSession     = echo.NewHTTPError(http.StatusNotFound, "checkout session not found")
)

// kindStatus is the response code of a handshake that failed with kind.
func kindStatus(kind payment.Kind) int {
	switch kind {
	case payment.KindUserCancelled:
		return http.StatusOK
	case payment.KindGatewayUnavailable:
		return http.StatusServiceUnavailable
	case payment.KindOrderCreationFailed, payment.KindVerificationFailed:
		return http.StatusBadGateway
	case payment.KindGatewayFailure:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// mapDomainError maps the sentinel errors of the core packages to HTTP errors.
func mapDomainError(err error) error {
	switch errors.Cause(err) {
	case payment.ErrBusy:
		return errBusy
	case payment.ErrSettled:
		return errSettled
	case payment.ErrSessionNotFound:
		return errNoSession
	case payment.ErrNoHandshake, core.ErrNotFound:
		return errHttpNotFound
	}
	return err
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		err = mapDomainError(err)
		var perr *payment.Error

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if errors.As(err, &perr) {
				code = kindStatus(perr.Kind)
				message = perr.View()
				if perr.Kind == payment.KindUnexpected {
					logger.Error(err.Error(), err, contextIdentity(ctx))
				}
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), contextIdentity(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError && perr == nil {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
