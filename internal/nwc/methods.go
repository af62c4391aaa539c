package nwc

import (
	"context"
	"encoding/json"
	"fmt"
)

// NIP-47 method names. Only these four are supported.
const (
	MethodGetBalance       = "get_balance"
	MethodMakeInvoice      = "make_invoice"
	MethodPayInvoice       = "pay_invoice"
	MethodListTransactions = "list_transactions"
)

// All wallet-side amounts are millisats; the ledger works in sats.

type PayInvoiceResult struct {
	Preimage     string `json:"preimage"`
	FeesPaidMsat int64  `json:"fees_paid"`
}

type MakeInvoiceResult struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
}

type BalanceResult struct {
	BalanceMsat int64 `json:"balance"`
}

type Transaction struct {
	Type        string `json:"type"` // incoming / outgoing
	Invoice     string `json:"invoice,omitempty"`
	Description string `json:"description,omitempty"`
	PaymentHash string `json:"payment_hash,omitempty"`
	Preimage    string `json:"preimage,omitempty"`
	AmountMsat  int64  `json:"amount"`
	FeesMsat    int64  `json:"fees_paid,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	SettledAt   int64  `json:"settled_at,omitempty"`
}

// PayInvoice asks the wallet to pay a BOLT11 invoice. The invoice string is
// opaque to this client. amountMsat overrides the invoice amount when set
// (zero-amount invoices).
func (c *Client) PayInvoice(ctx context.Context, invoice string, amountMsat *int64) (*PayInvoiceResult, error) {
	params := map[string]any{"invoice": invoice}
	if amountMsat != nil {
		params["amount"] = *amountMsat
	}
	raw, err := c.Request(ctx, MethodPayInvoice, params)
	if err != nil {
		return nil, err
	}
	var res PayInvoiceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("nwc: parse pay_invoice result: %w", err)
	}
	return &res, nil
}

func (c *Client) MakeInvoice(ctx context.Context, amountMsat int64, description string) (*MakeInvoiceResult, error) {
	raw, err := c.Request(ctx, MethodMakeInvoice, map[string]any{
		"amount":      amountMsat,
		"description": description,
	})
	if err != nil {
		return nil, err
	}
	var res MakeInvoiceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("nwc: parse make_invoice result: %w", err)
	}
	return &res, nil
}

func (c *Client) GetBalance(ctx context.Context) (*BalanceResult, error) {
	raw, err := c.Request(ctx, MethodGetBalance, map[string]any{})
	if err != nil {
		return nil, err
	}
	var res BalanceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("nwc: parse get_balance result: %w", err)
	}
	return &res, nil
}

func (c *Client) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	raw, err := c.Request(ctx, MethodListTransactions, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	var res struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("nwc: parse list_transactions result: %w", err)
	}
	return res.Transactions, nil
}
