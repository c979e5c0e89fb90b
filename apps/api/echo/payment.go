package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/identity"
	"github.com/nexaric/portal/core/payment"
)

var errInvalidBody = core.NewValidationError(errors.New("invalid request body"))

type (
	paymentApi struct {
		svc *payment.Service
	}

	// failureRequest is the widget's payment.failed response, as the browser received it.
	failureRequest struct {
		Error payment.GatewayFailure `json:"error"`
	}

	// settleResponse reports how a handshake ended.
	settleResponse struct {
		Receipt payment.Receipt    `json:"receipt"`
		Error   *payment.ErrorView `json:"error,omitempty"`
	}
)

func registerPaymentAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *payment.Service) {
	api := paymentApi{svc: svc}

	pg := g.Group("/payments", auth)
	pg.POST("", api.initiate)
	pg.GET("/status", api.status)

	cg := pg.Group("/checkout/:session")
	cg.GET("", api.options)
	cg.POST("/authorized", api.authorized)
	cg.POST("/failed", api.failed)
	cg.POST("/dismissed", api.dismissed)

	// ledger
	ledger := adminMiddleware(identity.RoleAdminOwner, identity.RoleAccountant)
	pg.GET("", api.query, ledger)
	pg.GET("/:id", api.retrieve, ledger)
}

// Handlers

func (api *paymentApi) initiate(ctx echo.Context) error {
	idt, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	var data payment.Request
	if err = ctx.Bind(&data); err != nil {
		return errInvalidBody
	}

	checkout, err := api.svc.Initiate(ctx.Request().Context(), idt, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, checkout)
}

func (api *paymentApi) status(ctx echo.Context) error {
	idt, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.Status(idt))
}

func (api *paymentApi) options(ctx echo.Context) error {
	idt, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	opts, err := api.svc.Options(idt, ctx.Param("session"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, opts)
}

func (api *paymentApi) authorized(ctx echo.Context) error {
	idt, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	var data payment.Authorization
	if err = ctx.Bind(&data); err != nil {
		return errInvalidBody
	}

	receipt, err := api.svc.Authorize(ctx.Request().Context(), idt, ctx.Param("session"), data)
	return settled(ctx, receipt, err)
}

func (api *paymentApi) failed(ctx echo.Context) error {
	idt, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	var data failureRequest
	if err = ctx.Bind(&data); err != nil {
		return errInvalidBody
	}

	receipt, err := api.svc.Fail(ctx.Request().Context(), idt, ctx.Param("session"), data.Error)
	return settled(ctx, receipt, err)
}

func (api *paymentApi) dismissed(ctx echo.Context) error {
	idt, err := getContextIdentity(ctx)
	if err != nil {
		return err
	}

	receipt, err := api.svc.Dismiss(ctx.Request().Context(), idt, ctx.Param("session"))
	return settled(ctx, receipt, err)
}

func (api *paymentApi) query(ctx echo.Context) error {
	filter, err := bindAttemptFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	atts, err := api.svc.QueryAttempts(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying payment attempts")
	}
	if atts == nil {
		atts = []payment.Attempt{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	att, err := api.svc.GetAttempt(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

// settled writes the outcome of a widget callback. Handshake failures carry the receipt along.
func settled(ctx echo.Context, receipt payment.Receipt, err error) error {
	if err == nil {
		return ctx.JSON(http.StatusOK, settleResponse{Receipt: receipt})
	}

	var perr *payment.Error
	if !errors.As(err, &perr) {
		return err
	}
	return ctx.JSON(kindStatus(perr.Kind), settleResponse{Receipt: receipt, Error: perr.View()})
}
