package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindAttemptFilter reads ?search=&payer=&state=&kind=&created_from=&created_to=.
// state and kind repeat; times are RFC 3339.
func bindAttemptFilter(ctx echo.Context) (payment.AttemptFilter, error) {
	q := ctx.QueryParams()
	filter := payment.AttemptFilter{
		Search:  core.CleanString(q.Get("search")),
		PayerID: core.CleanString(q.Get("payer")),
	}

	for _, s := range q["state"] {
		st, err := payment.ParseState(strings.ToLower(core.CleanString(s)))
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "state", Error: "unknown state " + s})
		}
		filter.States = append(filter.States, st)
	}
	for _, s := range q["kind"] {
		k, err := payment.ParseKind(strings.ToLower(core.CleanString(s)))
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "kind", Error: "unknown kind " + s})
		}
		filter.Kinds = append(filter.Kinds, k)
	}

	var err error
	if filter.CreatedFrom, err = parseTimeParam(q.Get("created_from")); err != nil {
		return filter, core.NewValidationError(errors.Wrap(err, "created_from"), core.FieldError{Field: "created_from", Error: "must be an RFC 3339 time"})
	}
	if filter.CreatedTo, err = parseTimeParam(q.Get("created_to")); err != nil {
		return filter, core.NewValidationError(errors.Wrap(err, "created_to"), core.FieldError{Field: "created_to", Error: "must be an RFC 3339 time"})
	}
	return filter, nil
}

func parseTimeParam(s string) (time.Time, error) {
	if s = core.CleanString(s); s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
