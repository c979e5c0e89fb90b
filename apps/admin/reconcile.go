package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

var nowFunc = time.Now // mockable

// reconcile lists the attempts paid at the gateway whose verification failed,
// oldest first, so they can be checked against the gateway dashboard.
func (cli *commandLine) reconcile(since time.Duration, payerID string) error {
	filter := payment.AttemptFilter{
		PayerID:     payerID,
		Kinds:       []payment.Kind{payment.KindVerificationFailed},
		CreatedFrom: nowFunc().UTC().Add(-since),
	}
	atts, err := cli.repo.QueryAttempts(context.Background(), filter, core.DBOrdering{Field: "created_at", Ascending: true})
	if err != nil {
		return err
	}
	if len(atts) == 0 {
		fmt.Fprintf(cli.out, "no failed verification since %s\n", filter.CreatedFrom.Format(time.RFC3339))
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ATTEMPT\tPAYER\tORDER\tPAYMENT\tAMOUNT\tCREATED\tMESSAGE")
	for _, att := range atts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\t%s\t%s\n",
			att.ID, att.PayerID, att.OrderID.String, att.PaymentID.String,
			att.Amount.StringFixed(2), att.Currency, att.CreatedAt.Format(time.RFC3339), att.Message.String)
	}
	return w.Flush()
}
