package service

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"bizbook/core/internal/derive"
	"bizbook/core/internal/domain"
	"bizbook/core/internal/picker"
)

// TransactionForm is the purchase or sale form. Every setter stores the raw
// text and recomputes all totals from the full draft.
type TransactionForm struct {
	kind      domain.Kind
	validator *derive.Validator

	mu       sync.Mutex
	id       string
	draft    domain.TransactionDraft
	product  domain.Ref
	client   domain.Ref
	stock    *decimal.Decimal
	origProd string
	origQty  decimal.Decimal
	result   derive.Result
	onChange func(derive.Result)
}

func NewPurchaseForm(v *derive.Validator) *TransactionForm {
	return newTransactionForm(domain.KindPurchase, v)
}

func NewSaleForm(v *derive.Validator) *TransactionForm {
	return newTransactionForm(domain.KindSale, v)
}

func newTransactionForm(kind domain.Kind, v *derive.Validator) *TransactionForm {
	if v == nil {
		v = derive.NewValidator()
	}
	f := &TransactionForm{
		kind:      kind,
		validator: v,
		draft: domain.TransactionDraft{
			PaymentType: domain.PaymentFull,
			Status:      domain.StatusPending,
		},
	}
	f.result = derive.ComputeDraft(f.draft, nil)
	return f
}

func (f *TransactionForm) Kind() domain.Kind { return f.kind }

// EditingID is the id of the record being edited, or "" for a new one.
func (f *TransactionForm) EditingID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// OnChange is called with the new totals after every edit.
func (f *TransactionForm) OnChange(fn func(derive.Result)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// EditPurchase fills the form from a stored purchase.
func (f *TransactionForm) EditPurchase(p domain.Purchase) {
	f.update(func() {
		f.id = p.ID
		f.product = p.Product
		f.draft = draftFromFigures(p.Figures)
		f.draft.ProductID = p.Product.ID
		f.draft.Supplier = p.Supplier
		f.draft.Date = p.Date
	})
}

// EditSale fills the form from a stored sale. The sale's own quantity counts
// as available again when the stock of the same product is applied.
func (f *TransactionForm) EditSale(s domain.Sale) {
	f.update(func() {
		f.id = s.ID
		f.product = s.Product
		f.client = s.Client
		f.draft = draftFromFigures(s.Figures)
		f.draft.ProductID = s.Product.ID
		f.draft.ClientID = s.Client.ID
		f.draft.Date = s.Date
		f.origProd = s.Product.ID
		f.origQty = s.Quantity
	})
}

func draftFromFigures(fig domain.Figures) domain.TransactionDraft {
	return domain.TransactionDraft{
		Quantity:      fig.Quantity.String(),
		UnitPrice:     fig.UnitPrice.String(),
		TaxRate:       fig.TaxRate.String(),
		FreightCharge: fig.FreightCharge.String(),
		FreightTax:    fig.FreightTax.String(),
		PaymentType:   fig.PaymentType,
		PaidAmount:    fig.PaidAmount.String(),
		Status:        fig.Status,
	}
}

func (f *TransactionForm) SetQuantity(v string) {
	f.update(func() { f.draft.Quantity = v })
}

func (f *TransactionForm) SetUnitPrice(v string) {
	f.update(func() { f.draft.UnitPrice = v })
}

func (f *TransactionForm) SetTaxRate(v string) {
	f.update(func() { f.draft.TaxRate = v })
}

func (f *TransactionForm) SetFreightCharge(v string) {
	f.update(func() { f.draft.FreightCharge = v })
}

func (f *TransactionForm) SetFreightTax(v string) {
	f.update(func() { f.draft.FreightTax = v })
}

func (f *TransactionForm) SetPaymentType(v domain.PaymentType) {
	f.update(func() { f.draft.PaymentType = v })
}

func (f *TransactionForm) SetPaidAmount(v string) {
	f.update(func() { f.draft.PaidAmount = v })
}

func (f *TransactionForm) SetStatus(v domain.TxStatus) {
	f.update(func() { f.draft.Status = v })
}

func (f *TransactionForm) SetSupplier(v string) {
	f.update(func() { f.draft.Supplier = v })
}

func (f *TransactionForm) SetDate(v string) {
	f.update(func() { f.draft.Date = v })
}

// SetProduct applies a picked product. available enables the stock guard on
// sale forms; purchases ignore it.
func (f *TransactionForm) SetProduct(ref domain.Ref, available *decimal.Decimal) {
	f.update(func() { f.applyProductLocked(ref, available) })
}

func (f *TransactionForm) applyProductLocked(ref domain.Ref, available *decimal.Decimal) {
	f.product = ref
	f.draft.ProductID = ref.ID
	f.stock = nil
	if f.kind != domain.KindSale || available == nil {
		return
	}
	stock := *available
	if ref.ID == f.origProd {
		stock = stock.Add(f.origQty)
	}
	f.stock = &stock
}

func (f *TransactionForm) SetClient(ref domain.Ref) {
	f.update(func() {
		f.client = ref
		f.draft.ClientID = ref.ID
	})
}

// ChooseProduct selects id in an open product picker and applies it, along
// with its stock and, when the price field is still empty, its default price.
func (f *TransactionForm) ChooseProduct(p *picker.Picker[domain.Product], id string) bool {
	var product domain.Product
	found := false
	for _, item := range p.State().Items {
		if item.ID == id {
			product, found = item, true
			break
		}
	}
	ref, ok := p.Select(id)
	if !ok || !found {
		return false
	}

	stock := product.Stock
	f.update(func() {
		f.applyProductLocked(ref, &stock)
		if strings.TrimSpace(f.draft.UnitPrice) != "" {
			return
		}
		price := product.UnitPrice
		if f.kind == domain.KindPurchase && product.CostPrice.IsPositive() {
			price = product.CostPrice
		}
		f.draft.UnitPrice = price.String()
	})
	return true
}

// ChooseClient selects id in an open client picker and applies it.
func (f *TransactionForm) ChooseClient(p *picker.Picker[domain.Client], id string) bool {
	ref, ok := p.Select(id)
	if ok {
		f.SetClient(ref)
	}
	return ok
}

func (f *TransactionForm) Draft() domain.TransactionDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

func (f *TransactionForm) Product() domain.Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.product
}

func (f *TransactionForm) Client() domain.Ref {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.client
}

func (f *TransactionForm) Result() derive.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Validate applies the field rules, the partial-payment rule and the stock
// guard. Sales also need a client.
func (f *TransactionForm) Validate() error {
	f.mu.Lock()
	draft, result := f.draft, f.result
	f.mu.Unlock()

	err := f.validator.Transaction(draft, result)
	if f.kind != domain.KindSale || strings.TrimSpace(draft.ClientID) != "" {
		return err
	}
	verrs, ok := err.(derive.ValidationErrors)
	if err != nil && !ok {
		return err
	}
	return append(verrs, derive.FieldError{Field: "client_id", Rule: "required"})
}

func (f *TransactionForm) CanSubmit() bool {
	return f.Validate() == nil
}

// Input is the wire body for the current draft.
func (f *TransactionForm) Input() domain.NewTransaction {
	input := f.Draft().Input()
	if f.kind == domain.KindPurchase {
		input.ClientID = ""
	} else {
		input.Supplier = ""
	}
	return input
}

// Payload validates and returns the wire body.
func (f *TransactionForm) Payload() (domain.NewTransaction, error) {
	if err := f.Validate(); err != nil {
		return domain.NewTransaction{}, err
	}
	return f.Input(), nil
}

func (f *TransactionForm) update(mutate func()) {
	f.mu.Lock()
	mutate()
	f.result = derive.ComputeDraft(f.draft, f.stock)
	fn, result := f.onChange, f.result
	f.mu.Unlock()
	if fn != nil {
		fn(result)
	}
}
