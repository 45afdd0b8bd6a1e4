package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindClient   Kind = "client"
	KindProduct  Kind = "product"
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
	KindAccount  Kind = "account"
)

var kindPaths = map[Kind]string{
	KindClient:   "clients",
	KindProduct:  "products",
	KindPurchase: "purchases",
	KindSale:     "sales",
	KindAccount:  "accounts",
}

// Path is the collection segment used by the remote service for this kind.
func (k Kind) Path() string {
	if p, ok := kindPaths[k]; ok {
		return p
	}
	return string(k)
}

func (k Kind) Valid() bool {
	_, ok := kindPaths[k]
	return ok
}

func KindFromPath(path string) (Kind, bool) {
	for k, p := range kindPaths {
		if p == path {
			return k, true
		}
	}
	return "", false
}

func Kinds() []Kind {
	return []Kind{KindClient, KindProduct, KindPurchase, KindSale, KindAccount}
}

// Entity is implemented by every record a cache or picker can hold.
type Entity interface {
	EntityID() string
	EntityLabel() string
}

type PaymentType string

const (
	PaymentFull    PaymentType = "full"
	PaymentPartial PaymentType = "partial"
)

type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusCompleted TxStatus = "completed"
)

type Client struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone,omitempty"`
	Email     string          `json:"email,omitempty"`
	Address   string          `json:"address,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

func (c Client) EntityID() string    { return c.ID }
func (c Client) EntityLabel() string { return c.Name }

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Category  string          `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Stock     decimal.Decimal `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
}

func (p Product) EntityID() string { return p.ID }

func (p Product) EntityLabel() string {
	if p.SKU == "" {
		return p.Name
	}
	return p.Name + " (" + p.SKU + ")"
}

// Figures are the money fields shared by purchases and sales. Computed fields
// are whatever the server returned; the client never writes them.
type Figures struct {
	Quantity         decimal.Decimal `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	FreightCharge    decimal.Decimal `json:"freight_charge"`
	FreightTax       decimal.Decimal `json:"freight_tax"`
	PaymentType      PaymentType     `json:"payment_type"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	Status           TxStatus        `json:"status"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	FreightTaxAmount decimal.Decimal `json:"freight_tax_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	PendingAmount    decimal.Decimal `json:"pending_amount"`
}

type Purchase struct {
	ID       string `json:"id"`
	Number   string `json:"number,omitempty"`
	Product  Ref    `json:"product"`
	Supplier string `json:"supplier,omitempty"`
	Figures
	Date      string    `json:"date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Purchase) EntityID() string { return p.ID }

func (p Purchase) EntityLabel() string {
	if p.Number != "" {
		return p.Number
	}
	return p.Product.Label
}

type Sale struct {
	ID      string `json:"id"`
	Number  string `json:"number,omitempty"`
	Client  Ref    `json:"client"`
	Product Ref    `json:"product"`
	Figures
	Date      string    `json:"date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s Sale) EntityID() string { return s.ID }

func (s Sale) EntityLabel() string {
	if s.Number != "" {
		return s.Number
	}
	return s.Client.Label
}

type Account struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	BankName      string          `json:"bank_name,omitempty"`
	AccountNumber string          `json:"account_number,omitempty"`
	Type          string          `json:"type"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (a Account) EntityID() string    { return a.ID }
func (a Account) EntityLabel() string { return a.Name }

// Totals are derived from a draft and never stored or edited directly.
type Totals struct {
	Subtotal         decimal.Decimal `json:"subtotal"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	FreightTaxAmount decimal.Decimal `json:"freight_tax_amount"`
	GrandTotal       decimal.Decimal `json:"grand_total"`
	PendingAmount    decimal.Decimal `json:"pending_amount"`
}

// Display rounds every figure to two decimal places for presentation.
func (t Totals) Display() map[string]string {
	return map[string]string{
		"subtotal":           t.Subtotal.StringFixed(2),
		"tax_amount":         t.TaxAmount.StringFixed(2),
		"freight_tax_amount": t.FreightTaxAmount.StringFixed(2),
		"grand_total":        t.GrandTotal.StringFixed(2),
		"pending_amount":     t.PendingAmount.StringFixed(2),
	}
}
