package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizbook/core/internal/domain"
)

func validDraft() domain.TransactionDraft {
	return domain.TransactionDraft{
		ProductID:   "pr_1",
		Quantity:    "2",
		UnitPrice:   "10.50",
		TaxRate:     "5",
		PaymentType: domain.PaymentFull,
		Status:      domain.StatusPending,
	}
}

func TestTransactionValidDraftPasses(t *testing.T) {
	v := NewValidator()
	d := validDraft()
	require.NoError(t, v.Transaction(d, ComputeDraft(d, nil)))
}

func TestTransactionRejectsNonNumericAndMissing(t *testing.T) {
	v := NewValidator()
	d := validDraft()
	d.ProductID = ""
	d.Quantity = "abc"
	d.UnitPrice = "0"
	d.TaxRate = "-1"

	err := v.Transaction(d, ComputeDraft(d, nil))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("product_id"))
	assert.True(t, verrs.Has("quantity"))
	assert.True(t, verrs.Has("unit_price"))
	assert.True(t, verrs.Has("tax_rate"))
}

func TestTransactionPartialNeedsPaidAmount(t *testing.T) {
	v := NewValidator()
	d := validDraft()
	d.PaymentType = domain.PaymentPartial

	err := v.Transaction(d, ComputeDraft(d, nil))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, ValidationErrors{{Field: "paid_amount", Rule: "required"}}, verrs)

	d.PaidAmount = "5"
	assert.NoError(t, v.Transaction(d, ComputeDraft(d, nil)))
}

func TestTransactionBlocksOnStockGuard(t *testing.T) {
	v := NewValidator()
	d := validDraft()
	stock := domain.ParseOrZero("1")

	err := v.Transaction(d, ComputeDraft(d, &stock))
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, FieldError{Field: "quantity", Rule: "stock"})
}

func TestStructValidatesOtherDrafts(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.Struct(domain.ClientDraft{Name: "Acme", Email: "ops@acme.test"}))

	err := v.Struct(domain.ClientDraft{Email: "nope"})
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("name"))
	assert.True(t, verrs.Has("email"))

	err = v.Struct(domain.AccountDraft{Name: "Main", Type: "vault"})
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, ValidationErrors{{Field: "type", Rule: "oneof"}}, verrs)
}
