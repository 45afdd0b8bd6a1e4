package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bizbook/core/internal/derive"
	"bizbook/core/internal/domain"
	"bizbook/core/internal/store"
	"bizbook/core/internal/xid"
)

var idPrefixes = map[domain.Kind]string{
	domain.KindClient:   "cli",
	domain.KindProduct:  "prd",
	domain.KindPurchase: "pur",
	domain.KindSale:     "sal",
	domain.KindAccount:  "acc",
}

var numberPrefixes = map[domain.Kind]string{
	domain.KindPurchase: "PUR",
	domain.KindSale:     "INV",
}

type idempotentResult struct {
	kind domain.Kind
	id   string
}

// Store keeps every kind as a newest-first slice.
type Store struct {
	mu              sync.RWMutex
	records         map[domain.Kind][]domain.Entity
	sequences       map[domain.Kind]int
	byIdempotency   map[string]idempotentResult
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		records:         make(map[domain.Kind][]domain.Entity),
		sequences:       make(map[domain.Kind]int),
		byIdempotency:   make(map[string]idempotentResult),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// NewSeeded returns a store with demo clients, products, accounts and one
// purchase and sale, so every screen has something to show.
func NewSeeded() *Store {
	s := New()
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := []domain.NewClient{
		{Name: "Andalas Trading", Phone: "+62 811 1000 201", Email: "orders@andalas.example"},
		{Name: "Borneo Kitchen", Phone: "+62 812 3300 410"},
		{Name: "Cahaya Mart", Email: "buyer@cahaya.example", Address: "Jl. Merdeka 12"},
	}
	var clientIDs []string
	for _, c := range clients {
		rec := s.mustCreateLocked(domain.KindClient, c)
		clientIDs = append(clientIDs, rec.EntityID())
	}

	products := []domain.NewProduct{
		{Name: "Instant Noodles", SKU: "SKU-MIE-01", Category: "grocery", UnitPrice: dec("3500"), CostPrice: dec("2700"), TaxRate: dec("11"), Stock: dec("120")},
		{Name: "Eggs 10 pack", SKU: "SKU-TELUR-01", Category: "grocery", UnitPrice: dec("26500"), CostPrice: dec("23000"), TaxRate: dec("11"), Stock: dec("80")},
		{Name: "UHT Milk 1L", SKU: "SKU-SUSU-01", Category: "dairy", UnitPrice: dec("18900"), CostPrice: dec("13600"), TaxRate: dec("11"), Stock: dec("60")},
		{Name: "White Bread", SKU: "SKU-ROTI-01", Category: "bakery", UnitPrice: dec("17800"), CostPrice: dec("12400"), Stock: dec("40")},
		{Name: "Coffee Sachet", SKU: "SKU-KOPI-01", Category: "beverage", UnitPrice: dec("2600"), CostPrice: dec("1700"), TaxRate: dec("11"), Stock: dec("200")},
		{Name: "Sugar 1kg", SKU: "SKU-GULA-01", Category: "grocery", UnitPrice: dec("17400"), CostPrice: dec("15300"), Stock: dec("90")},
		{Name: "Mineral Water 600ml", SKU: "SKU-AIR-01", Category: "beverage", UnitPrice: dec("3900"), CostPrice: dec("3200"), Stock: dec("300")},
		{Name: "Bath Soap", SKU: "SKU-SABUN-01", Category: "household", UnitPrice: dec("7400"), CostPrice: dec("5000"), TaxRate: dec("11"), Stock: dec("75")},
	}
	var productIDs []string
	for _, p := range products {
		rec := s.mustCreateLocked(domain.KindProduct, p)
		productIDs = append(productIDs, rec.EntityID())
	}

	for _, a := range []domain.NewAccount{
		{Name: "Retained Earnings", Type: "bank"},
		{Name: "Undeposited Funds", Type: "cash"},
		{Name: "Opening Balance Equity", Type: "bank"},
		{Name: "Petty Cash", Type: "cash", OpeningBalance: dec("500000")},
		{Name: "Main Operating", BankName: "Bank Mandiri", AccountNumber: "1230004567", Type: "bank", OpeningBalance: dec("25000000")},
	} {
		s.mustCreateLocked(domain.KindAccount, a)
	}

	s.mustCreateLocked(domain.KindPurchase, domain.NewTransaction{
		ProductID:     productIDs[0],
		Supplier:      "PT Sumber Pangan",
		Quantity:      dec("48"),
		UnitPrice:     dec("2700"),
		TaxRate:       dec("11"),
		FreightCharge: dec("15000"),
		PaymentType:   domain.PaymentFull,
		Status:        domain.StatusCompleted,
	})
	s.mustCreateLocked(domain.KindSale, domain.NewTransaction{
		ClientID:    clientIDs[0],
		ProductID:   productIDs[1],
		Quantity:    dec("3"),
		UnitPrice:   dec("26500"),
		TaxRate:     dec("11"),
		PaymentType: domain.PaymentPartial,
		PaidAmount:  dec("50000"),
		Status:      domain.StatusPending,
	})

	return s
}

func (s *Store) List(_ context.Context, kind domain.Kind, q store.ListQuery) ([]domain.Entity, error) {
	if !kind.Valid() {
		return nil, store.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]domain.Entity, 0, len(s.records[kind]))
	for _, rec := range s.records[kind] {
		if needle == "" || matches(rec, needle) {
			matched = append(matched, rec)
		}
	}
	if q.Limit <= 0 {
		return matched, nil
	}

	page := max(q.Page, 1)
	start := (page - 1) * q.Limit
	if start >= len(matched) {
		return []domain.Entity{}, nil
	}
	end := min(start+q.Limit, len(matched))
	return slices.Clone(matched[start:end]), nil
}

func (s *Store) Get(_ context.Context, kind domain.Kind, id string) (domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(kind, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	return s.records[kind][i], nil
}

func (s *Store) Create(_ context.Context, kind domain.Kind, input any, idempotencyKey string) (domain.Entity, error) {
	if !kind.Valid() {
		return nil, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(idempotencyKey)
	if key != "" {
		if prev, ok := s.byIdempotency[key]; ok {
			if i := s.indexLocked(prev.kind, prev.id); i >= 0 && prev.kind == kind {
				return s.records[kind][i], nil
			}
		}
	}

	rec, err := s.createLocked(kind, input)
	if err != nil {
		return nil, err
	}
	if key != "" {
		s.byIdempotency[key] = idempotentResult{kind: kind, id: rec.EntityID()}
	}
	return rec, nil
}

func (s *Store) Update(_ context.Context, kind domain.Kind, id string, input any) (domain.Entity, error) {
	if !kind.Valid() {
		return nil, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(kind, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	prev := s.records[kind][i]
	next, err := s.buildLocked(kind, input, prev)
	if err != nil {
		return nil, err
	}

	if err := s.revertEffectsLocked(prev); err != nil {
		return nil, err
	}
	if err := s.applyEffectsLocked(next); err != nil {
		// put the old effects back; they applied cleanly before
		_ = s.applyEffectsLocked(prev)
		return nil, err
	}
	s.records[kind][i] = next
	return next, nil
}

func (s *Store) Delete(_ context.Context, kind domain.Kind, id string) error {
	if !kind.Valid() {
		return store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(kind, id)
	if i < 0 {
		return store.ErrNotFound
	}
	if err := s.revertEffectsLocked(s.records[kind][i]); err != nil {
		return err
	}
	s.records[kind] = slices.Delete(s.records[kind], i, i+1)
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidRecord
	}
	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrInvalidRecord)
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	username = strings.ToLower(strings.TrimSpace(username))
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) mustCreateLocked(kind domain.Kind, input any) domain.Entity {
	rec, err := s.createLocked(kind, input)
	if err != nil {
		panic(fmt.Sprintf("memory: seed %s: %v", kind, err))
	}
	return rec
}

func (s *Store) createLocked(kind domain.Kind, input any) (domain.Entity, error) {
	rec, err := s.buildLocked(kind, input, nil)
	if err != nil {
		return nil, err
	}
	if err := s.applyEffectsLocked(rec); err != nil {
		return nil, err
	}
	s.records[kind] = append([]domain.Entity{rec}, s.records[kind]...)
	return rec, nil
}

// buildLocked turns a wire body into a record. prev is the record being
// replaced on update; its id, number and creation time carry over.
func (s *Store) buildLocked(kind domain.Kind, input any, prev domain.Entity) (domain.Entity, error) {
	now := s.now()
	switch kind {
	case domain.KindClient:
		in, ok := input.(domain.NewClient)
		if !ok {
			return nil, wrongInput(kind, input)
		}
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", store.ErrInvalidRecord)
		}
		c := domain.Client{ID: xid.New(idPrefixes[kind]), Name: strings.TrimSpace(in.Name), Phone: in.Phone, Email: in.Email, Address: in.Address, CreatedAt: now}
		if old, ok := prev.(domain.Client); ok {
			c.ID, c.CreatedAt, c.Balance = old.ID, old.CreatedAt, old.Balance
		}
		return c, nil

	case domain.KindProduct:
		in, ok := input.(domain.NewProduct)
		if !ok {
			return nil, wrongInput(kind, input)
		}
		switch {
		case strings.TrimSpace(in.Name) == "":
			return nil, fmt.Errorf("%w: name is required", store.ErrInvalidRecord)
		case !in.UnitPrice.IsPositive():
			return nil, fmt.Errorf("%w: unit_price must be positive", store.ErrInvalidRecord)
		case in.CostPrice.IsNegative() || in.TaxRate.IsNegative() || in.Stock.IsNegative():
			return nil, fmt.Errorf("%w: amounts must not be negative", store.ErrInvalidRecord)
		}
		p := domain.Product{
			ID:        xid.New(idPrefixes[kind]),
			Name:      strings.TrimSpace(in.Name),
			SKU:       strings.ToUpper(strings.TrimSpace(in.SKU)),
			Category:  in.Category,
			UnitPrice: in.UnitPrice,
			CostPrice: in.CostPrice,
			TaxRate:   in.TaxRate,
			Stock:     in.Stock,
			CreatedAt: now,
		}
		if old, ok := prev.(domain.Product); ok {
			p.ID, p.CreatedAt = old.ID, old.CreatedAt
		}
		if s.skuTakenLocked(p.SKU, p.ID) {
			return nil, fmt.Errorf("%w: sku %s already exists", store.ErrInvalidRecord, p.SKU)
		}
		return p, nil

	case domain.KindAccount:
		in, ok := input.(domain.NewAccount)
		if !ok {
			return nil, wrongInput(kind, input)
		}
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", store.ErrInvalidRecord)
		}
		if !slices.Contains([]string{"bank", "cash", "wallet"}, in.Type) {
			return nil, fmt.Errorf("%w: unknown account type %q", store.ErrInvalidRecord, in.Type)
		}
		a := domain.Account{
			ID:            xid.New(idPrefixes[kind]),
			Name:          strings.TrimSpace(in.Name),
			BankName:      in.BankName,
			AccountNumber: in.AccountNumber,
			Type:          in.Type,
			Balance:       in.OpeningBalance,
			CreatedAt:     now,
		}
		if old, ok := prev.(domain.Account); ok {
			a.ID, a.CreatedAt, a.Balance = old.ID, old.CreatedAt, old.Balance
		}
		return a, nil

	case domain.KindPurchase, domain.KindSale:
		in, ok := input.(domain.NewTransaction)
		if !ok {
			return nil, wrongInput(kind, input)
		}
		figures, err := transactionFigures(in)
		if err != nil {
			return nil, err
		}
		product, err := s.productLocked(in.ProductID)
		if err != nil {
			return nil, err
		}
		productRef := domain.Ref{ID: product.ID, Label: product.EntityLabel()}
		date := strings.TrimSpace(in.Date)
		if date == "" {
			date = now.Format(time.DateOnly)
		}

		if kind == domain.KindPurchase {
			p := domain.Purchase{ID: xid.New(idPrefixes[kind]), Product: productRef, Supplier: strings.TrimSpace(in.Supplier), Figures: figures, Date: date, CreatedAt: now}
			if old, ok := prev.(domain.Purchase); ok {
				p.ID, p.Number, p.CreatedAt = old.ID, old.Number, old.CreatedAt
			} else {
				p.Number = s.nextNumberLocked(kind)
			}
			return p, nil
		}

		client, err := s.clientLocked(in.ClientID)
		if err != nil {
			return nil, err
		}
		sale := domain.Sale{ID: xid.New(idPrefixes[kind]), Client: domain.Ref{ID: client.ID, Label: client.EntityLabel()}, Product: productRef, Figures: figures, Date: date, CreatedAt: now}
		if old, ok := prev.(domain.Sale); ok {
			sale.ID, sale.Number, sale.CreatedAt = old.ID, old.Number, old.CreatedAt
		} else {
			sale.Number = s.nextNumberLocked(kind)
		}
		return sale, nil
	}
	return nil, store.ErrNotFound
}

// transactionFigures recomputes every derived figure server-side; whatever
// totals the client may have sent are ignored.
func transactionFigures(in domain.NewTransaction) (domain.Figures, error) {
	switch {
	case !in.Quantity.IsPositive():
		return domain.Figures{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidRecord)
	case !in.UnitPrice.IsPositive():
		return domain.Figures{}, fmt.Errorf("%w: unit_price must be positive", store.ErrInvalidRecord)
	case in.TaxRate.IsNegative() || in.FreightCharge.IsNegative() || in.FreightTax.IsNegative() || in.PaidAmount.IsNegative():
		return domain.Figures{}, fmt.Errorf("%w: amounts must not be negative", store.ErrInvalidRecord)
	case in.PaymentType != domain.PaymentFull && in.PaymentType != domain.PaymentPartial:
		return domain.Figures{}, fmt.Errorf("%w: unknown payment_type %q", store.ErrInvalidRecord, in.PaymentType)
	case in.Status != domain.StatusPending && in.Status != domain.StatusCompleted:
		return domain.Figures{}, fmt.Errorf("%w: unknown status %q", store.ErrInvalidRecord, in.Status)
	}

	res := derive.Compute(derive.Inputs{
		UnitPrice:     in.UnitPrice,
		Quantity:      in.Quantity,
		TaxRate:       in.TaxRate,
		FreightCharge: in.FreightCharge,
		FreightTax:    in.FreightTax,
		PaymentType:   in.PaymentType,
		PaidAmount:    in.PaidAmount,
		Status:        in.Status,
	})
	return domain.Figures{
		Quantity:         in.Quantity,
		UnitPrice:        in.UnitPrice,
		TaxRate:          in.TaxRate,
		FreightCharge:    in.FreightCharge,
		FreightTax:       in.FreightTax,
		PaymentType:      in.PaymentType,
		PaidAmount:       in.PaidAmount,
		Status:           in.Status,
		Subtotal:         res.Subtotal,
		TaxAmount:        res.TaxAmount,
		FreightTaxAmount: res.FreightTaxAmount,
		GrandTotal:       res.GrandTotal,
		PendingAmount:    res.PendingAmount,
	}, nil
}

// applyEffectsLocked moves stock for purchases and sales and books a sale's
// pending amount against the client's balance.
func (s *Store) applyEffectsLocked(rec domain.Entity) error {
	switch r := rec.(type) {
	case domain.Purchase:
		return s.adjustStockLocked(r.Product.ID, r.Quantity)
	case domain.Sale:
		if err := s.adjustStockLocked(r.Product.ID, r.Quantity.Neg()); err != nil {
			return err
		}
		s.adjustClientLocked(r.Client.ID, r.PendingAmount)
	}
	return nil
}

func (s *Store) revertEffectsLocked(rec domain.Entity) error {
	switch r := rec.(type) {
	case domain.Purchase:
		return s.adjustStockLocked(r.Product.ID, r.Quantity.Neg())
	case domain.Sale:
		if err := s.adjustStockLocked(r.Product.ID, r.Quantity); err != nil {
			return err
		}
		s.adjustClientLocked(r.Client.ID, r.PendingAmount.Neg())
	}
	return nil
}

func (s *Store) adjustStockLocked(productID string, delta decimal.Decimal) error {
	i := s.indexLocked(domain.KindProduct, productID)
	if i < 0 {
		// the product was deleted after the transaction; nothing to move
		return nil
	}
	p := s.records[domain.KindProduct][i].(domain.Product)
	next := p.Stock.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: %s has %s in stock", store.ErrInsufficientStock, p.EntityLabel(), p.Stock.String())
	}
	p.Stock = next
	s.records[domain.KindProduct][i] = p
	return nil
}

func (s *Store) adjustClientLocked(clientID string, delta decimal.Decimal) {
	i := s.indexLocked(domain.KindClient, clientID)
	if i < 0 {
		return
	}
	c := s.records[domain.KindClient][i].(domain.Client)
	c.Balance = c.Balance.Add(delta)
	s.records[domain.KindClient][i] = c
}

func (s *Store) productLocked(id string) (domain.Product, error) {
	i := s.indexLocked(domain.KindProduct, strings.TrimSpace(id))
	if i < 0 {
		return domain.Product{}, fmt.Errorf("%w: unknown product %q", store.ErrInvalidRecord, id)
	}
	return s.records[domain.KindProduct][i].(domain.Product), nil
}

func (s *Store) clientLocked(id string) (domain.Client, error) {
	i := s.indexLocked(domain.KindClient, strings.TrimSpace(id))
	if i < 0 {
		return domain.Client{}, fmt.Errorf("%w: unknown client %q", store.ErrInvalidRecord, id)
	}
	return s.records[domain.KindClient][i].(domain.Client), nil
}

func (s *Store) skuTakenLocked(sku string, ownID string) bool {
	if sku == "" {
		return false
	}
	for _, rec := range s.records[domain.KindProduct] {
		if p := rec.(domain.Product); p.SKU == sku && p.ID != ownID {
			return true
		}
	}
	return false
}

func (s *Store) nextNumberLocked(kind domain.Kind) string {
	s.sequences[kind]++
	return fmt.Sprintf("%s-%04d", numberPrefixes[kind], s.sequences[kind])
}

func (s *Store) indexLocked(kind domain.Kind, id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.records[kind], func(rec domain.Entity) bool {
		return rec.EntityID() == id
	})
}

func matches(rec domain.Entity, needle string) bool {
	if strings.Contains(strings.ToLower(rec.EntityLabel()), needle) {
		return true
	}
	switch r := rec.(type) {
	case domain.Product:
		return strings.Contains(strings.ToLower(r.Category), needle)
	case domain.Purchase:
		return strings.Contains(strings.ToLower(r.Product.Label), needle) || strings.Contains(strings.ToLower(r.Supplier), needle)
	case domain.Sale:
		return strings.Contains(strings.ToLower(r.Client.Label), needle) || strings.Contains(strings.ToLower(r.Product.Label), needle)
	case domain.Client:
		return strings.Contains(strings.ToLower(r.Email), needle) || strings.Contains(r.Phone, needle)
	}
	return false
}

func wrongInput(kind domain.Kind, input any) error {
	return fmt.Errorf("%w: %T is not a %s body", store.ErrInvalidRecord, input, kind)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
