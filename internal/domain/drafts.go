package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Draft forms hold field values exactly as typed. Input converts a validated
// draft into the wire body sent to the remote service.

type ClientDraft struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address"`
}

type NewClient struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

func (d ClientDraft) Input() NewClient {
	return NewClient{
		Name:    strings.TrimSpace(d.Name),
		Phone:   strings.TrimSpace(d.Phone),
		Email:   strings.TrimSpace(d.Email),
		Address: strings.TrimSpace(d.Address),
	}
}

type ProductDraft struct {
	Name      string `json:"name" validate:"required"`
	SKU       string `json:"sku"`
	Category  string `json:"category"`
	UnitPrice string `json:"unit_price" validate:"required,positive_money"`
	CostPrice string `json:"cost_price" validate:"omitempty,money"`
	TaxRate   string `json:"tax_rate" validate:"omitempty,money"`
	Stock     string `json:"stock" validate:"omitempty,money"`
}

type NewProduct struct {
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Category  string          `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Stock     decimal.Decimal `json:"stock"`
}

func (d ProductDraft) Input() NewProduct {
	return NewProduct{
		Name:      strings.TrimSpace(d.Name),
		SKU:       strings.ToUpper(strings.TrimSpace(d.SKU)),
		Category:  strings.TrimSpace(d.Category),
		UnitPrice: ParseOrZero(d.UnitPrice),
		CostPrice: ParseOrZero(d.CostPrice),
		TaxRate:   ParseOrZero(d.TaxRate),
		Stock:     ParseOrZero(d.Stock),
	}
}

type AccountDraft struct {
	Name           string `json:"name" validate:"required"`
	BankName       string `json:"bank_name"`
	AccountNumber  string `json:"account_number"`
	Type           string `json:"type" validate:"required,oneof=bank cash wallet"`
	OpeningBalance string `json:"opening_balance" validate:"omitempty,money"`
}

type NewAccount struct {
	Name           string          `json:"name"`
	BankName       string          `json:"bank_name,omitempty"`
	AccountNumber  string          `json:"account_number,omitempty"`
	Type           string          `json:"type"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (d AccountDraft) Input() NewAccount {
	return NewAccount{
		Name:           strings.TrimSpace(d.Name),
		BankName:       strings.TrimSpace(d.BankName),
		AccountNumber:  strings.TrimSpace(d.AccountNumber),
		Type:           d.Type,
		OpeningBalance: ParseOrZero(d.OpeningBalance),
	}
}

// TransactionDraft is the form state shared by the purchase and sale screens.
// ClientID is only used by sales, Supplier only by purchases.
type TransactionDraft struct {
	ClientID      string      `json:"client_id"`
	ProductID     string      `json:"product_id" validate:"required"`
	Supplier      string      `json:"supplier"`
	Quantity      string      `json:"quantity" validate:"required,positive_money"`
	UnitPrice     string      `json:"unit_price" validate:"required,positive_money"`
	TaxRate       string      `json:"tax_rate" validate:"omitempty,money"`
	FreightCharge string      `json:"freight_charge" validate:"omitempty,money"`
	FreightTax    string      `json:"freight_tax" validate:"omitempty,money"`
	PaymentType   PaymentType `json:"payment_type" validate:"required,oneof=full partial"`
	PaidAmount    string      `json:"paid_amount" validate:"omitempty,money"`
	Status        TxStatus    `json:"status" validate:"required,oneof=pending completed"`
	Date          string      `json:"date"`
}

type NewTransaction struct {
	ClientID      string          `json:"client_id,omitempty"`
	ProductID     string          `json:"product_id"`
	Supplier      string          `json:"supplier,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	FreightCharge decimal.Decimal `json:"freight_charge"`
	FreightTax    decimal.Decimal `json:"freight_tax"`
	PaymentType   PaymentType     `json:"payment_type"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	Status        TxStatus        `json:"status"`
	Date          string          `json:"date,omitempty"`
}

func (d TransactionDraft) Input() NewTransaction {
	return NewTransaction{
		ClientID:      strings.TrimSpace(d.ClientID),
		ProductID:     strings.TrimSpace(d.ProductID),
		Supplier:      strings.TrimSpace(d.Supplier),
		Quantity:      ParseOrZero(d.Quantity),
		UnitPrice:     ParseOrZero(d.UnitPrice),
		TaxRate:       ParseOrZero(d.TaxRate),
		FreightCharge: ParseOrZero(d.FreightCharge),
		FreightTax:    ParseOrZero(d.FreightTax),
		PaymentType:   d.PaymentType,
		PaidAmount:    ParseOrZero(d.PaidAmount),
		Status:        d.Status,
		Date:          strings.TrimSpace(d.Date),
	}
}
