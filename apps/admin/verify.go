package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexaric/portal/core/payment"
)

// verify resubmits a failed attempt's payment to the backend. A confirmed payment marks the attempt succeeded.
func (cli *commandLine) verify(attemptID, signature, token string) error {
	ctx := context.Background()
	att, err := cli.repo.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if att.State == payment.StateSucceeded {
		return errors.Errorf("attempt %s already succeeded", att.ID)
	}
	if !att.OrderID.Valid || !att.PaymentID.Valid {
		return errors.Errorf("attempt %s has no gateway payment to verify", att.ID)
	}

	res := payment.Result{
		Authorization: payment.Authorization{
			OrderID:   att.OrderID.String,
			PaymentID: att.PaymentID.String,
			Signature: signature,
		},
		Request: payment.Request{
			Amount:   att.Amount,
			Currency: att.Currency,
			PayerID:  att.PayerID,
			Purpose:  att.Purpose,
			FeeID:    att.FeeID.String,
			Discount: att.Discount,
			Fine:     att.Fine,
		},
	}
	outcome, err := cli.backend.VerifyPayment(ctx, token, res)
	if err != nil {
		return errors.Wrap(err, "verifying payment")
	}
	if !outcome.Success {
		return errors.Errorf("payment %s not verified: %s", att.PaymentID.String, outcome.Message)
	}

	att.State = payment.StateSucceeded
	att.ErrorKind = null.String{}
	att.ErrorCode = null.String{}
	att.Message = null.StringFrom(outcome.Message)
	att.UpdatedAt = nowFunc().UTC()
	if err = cli.repo.SaveAttempt(ctx, att); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "payment %s verified; attempt %s marked succeeded\n", att.PaymentID.String, att.ID)
	return nil
}
