// Package derive computes the money figures of a purchase or sale form.
//
// Everything here is pure: the same inputs always produce the same result and
// nothing is cached between calls. Forms call Compute after every field change
// with the full set of inputs, so there is no incremental state that can drift.
package derive

import (
	"github.com/shopspring/decimal"

	"bizbook/core/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Inputs are the already-coerced numeric fields of a transaction form.
//
// FreightTax is a flat amount in every flow. Purchases and sales used to
// disagree on this (flat vs. percentage of freight); the flat policy is the
// single one supported.
type Inputs struct {
	UnitPrice     decimal.Decimal
	Quantity      decimal.Decimal
	TaxRate       decimal.Decimal
	FreightCharge decimal.Decimal
	FreightTax    decimal.Decimal
	PaymentType   domain.PaymentType
	PaidAmount    decimal.Decimal
	Status        domain.TxStatus
	// AvailableStock enables the stock guard when set.
	AvailableStock *decimal.Decimal
}

type Result struct {
	domain.Totals
	StockExceeded bool `json:"stock_exceeded"`
}

// InputsFromDraft coerces every numeric field with ParseOrZero.
func InputsFromDraft(d domain.TransactionDraft) Inputs {
	return Inputs{
		UnitPrice:     domain.ParseOrZero(d.UnitPrice),
		Quantity:      domain.ParseOrZero(d.Quantity),
		TaxRate:       domain.ParseOrZero(d.TaxRate),
		FreightCharge: domain.ParseOrZero(d.FreightCharge),
		FreightTax:    domain.ParseOrZero(d.FreightTax),
		PaymentType:   d.PaymentType,
		PaidAmount:    domain.ParseOrZero(d.PaidAmount),
		Status:        d.Status,
	}
}

func Compute(in Inputs) Result {
	subtotal := in.UnitPrice.Mul(in.Quantity)
	taxAmount := subtotal.Mul(in.TaxRate).Div(hundred)
	freightTaxAmount := in.FreightTax
	grandTotal := subtotal.Add(taxAmount).Add(in.FreightCharge).Add(freightTaxAmount)

	return Result{
		Totals: domain.Totals{
			Subtotal:         subtotal,
			TaxAmount:        taxAmount,
			FreightTaxAmount: freightTaxAmount,
			GrandTotal:       grandTotal,
			PendingAmount:    pending(grandTotal, in),
		},
		StockExceeded: in.AvailableStock != nil && in.Quantity.GreaterThan(*in.AvailableStock),
	}
}

func pending(grandTotal decimal.Decimal, in Inputs) decimal.Decimal {
	switch {
	case in.PaymentType == domain.PaymentPartial:
		return decimal.Max(decimal.Zero, grandTotal.Sub(in.PaidAmount))
	case in.Status == domain.StatusCompleted:
		return decimal.Zero
	default:
		return grandTotal
	}
}

// ComputeDraft is Compute over a raw form with an optional stock figure.
func ComputeDraft(d domain.TransactionDraft, availableStock *decimal.Decimal) Result {
	in := InputsFromDraft(d)
	in.AvailableStock = availableStock
	return Compute(in)
}
