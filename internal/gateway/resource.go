package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"bizbook/core/internal/cache"
	"bizbook/core/internal/domain"
)

// Resource is the per-kind capability set: full listing, paged search,
// create, update, delete and labelling. T is the record type, D the wire body
// sent on create and update.
type Resource[T domain.Entity, D any] struct {
	client *Client
	kind   domain.Kind
}

func NewResource[T domain.Entity, D any](client *Client, kind domain.Kind) *Resource[T, D] {
	return &Resource[T, D]{client: client, kind: kind}
}

func Clients(c *Client) *Resource[domain.Client, domain.NewClient] {
	return NewResource[domain.Client, domain.NewClient](c, domain.KindClient)
}

func Products(c *Client) *Resource[domain.Product, domain.NewProduct] {
	return NewResource[domain.Product, domain.NewProduct](c, domain.KindProduct)
}

func Purchases(c *Client) *Resource[domain.Purchase, domain.NewTransaction] {
	return NewResource[domain.Purchase, domain.NewTransaction](c, domain.KindPurchase)
}

func Sales(c *Client) *Resource[domain.Sale, domain.NewTransaction] {
	return NewResource[domain.Sale, domain.NewTransaction](c, domain.KindSale)
}

func Accounts(c *Client) *Resource[domain.Account, domain.NewAccount] {
	return NewResource[domain.Account, domain.NewAccount](c, domain.KindAccount)
}

func (r *Resource[T, D]) Kind() domain.Kind {
	return r.kind
}

func (r *Resource[T, D]) collectionPath() string {
	return "/" + r.kind.Path()
}

func (r *Resource[T, D]) recordPath(id string) string {
	return r.collectionPath() + "/" + url.PathEscape(id)
}

// List fetches the whole collection. It never reads the page cache.
func (r *Resource[T, D]) List(ctx context.Context) ([]T, error) {
	body, err := r.client.do(ctx, call{kind: r.kind, op: "list", method: http.MethodGet, path: r.collectionPath()})
	if err != nil {
		return nil, err
	}
	raw, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	return decodeList[T](raw)
}

// FetchPage fetches one page of a search. Pages are served from the page cache
// when a fresh copy exists.
func (r *Resource[T, D]) FetchPage(ctx context.Context, query string, page int, limit int) ([]T, error) {
	if page < 1 {
		page = 1
	}
	key := cache.PageKey(r.kind, cache.Scope(r.client.bearer(ctx)), query, page, limit)
	if cached, ok, err := r.client.pages.Get(ctx, key); err == nil && ok {
		if items, err := decodeList[T](cached); err == nil {
			return items, nil
		}
	} else if err != nil {
		r.client.logger.WithError(err).Warn("page cache read failed")
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))
	if q := strings.TrimSpace(query); q != "" {
		params.Set("search", q)
	}

	body, err := r.client.do(ctx, call{kind: r.kind, op: "page", method: http.MethodGet, path: r.collectionPath(), params: params})
	if err != nil {
		return nil, err
	}
	raw, err := listPayload(body)
	if err != nil {
		return nil, err
	}
	items, err := decodeList[T](raw)
	if err != nil {
		return nil, err
	}
	if err := r.client.pages.Set(ctx, key, raw, r.client.pageTTL); err != nil {
		r.client.logger.WithError(err).Warn("page cache write failed")
	}
	return items, nil
}

func (r *Resource[T, D]) Create(ctx context.Context, draft D) (T, error) {
	var zero T
	body, err := r.client.do(ctx, call{kind: r.kind, op: "create", method: http.MethodPost, path: r.collectionPath(), body: draft})
	if err != nil {
		return zero, err
	}
	r.invalidatePages(ctx)
	return decodeRecord[T](body)
}

func (r *Resource[T, D]) Update(ctx context.Context, id string, draft D) (T, error) {
	var zero T
	body, err := r.client.do(ctx, call{kind: r.kind, op: "update", method: http.MethodPut, path: r.recordPath(id), body: draft})
	if err != nil {
		return zero, err
	}
	r.invalidatePages(ctx)
	return decodeRecord[T](body)
}

// Delete treats any 2xx as success; the acknowledgement body is ignored.
func (r *Resource[T, D]) Delete(ctx context.Context, id string) error {
	if _, err := r.client.do(ctx, call{kind: r.kind, op: "delete", method: http.MethodDelete, path: r.recordPath(id)}); err != nil {
		return err
	}
	r.invalidatePages(ctx)
	return nil
}

func (r *Resource[T, D]) Label(item T) string {
	return item.EntityLabel()
}

func (r *Resource[T, D]) invalidatePages(ctx context.Context) {
	if err := r.client.pages.InvalidateKind(ctx, r.kind); err != nil {
		r.client.logger.WithError(err).Warn("page cache invalidation failed")
	}
}

// listPayload accepts a bare array, {"items": [...]} or {"data": [...]} and
// returns the raw array.
func listPayload(body []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(body)
	if parsed.IsArray() {
		return []byte(parsed.Raw), nil
	}
	if parsed.IsObject() {
		for _, key := range []string{"items", "data"} {
			if v := parsed.Get(key); v.IsArray() {
				return []byte(v.Raw), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: expected a list", ErrUnexpectedShape)
}

// recordPayload accepts a bare record or one wrapped in "data" or "item".
func recordPayload(body []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("%w: expected a record", ErrUnexpectedShape)
	}
	for _, key := range []string{"data", "item"} {
		if v := parsed.Get(key); v.IsObject() {
			return []byte(v.Raw), nil
		}
	}
	return []byte(parsed.Raw), nil
}

func decodeList[T any](raw []byte) ([]T, error) {
	items := make([]T, 0)
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
	}
	return items, nil
}

func decodeRecord[T domain.Entity](body []byte) (T, error) {
	var out T
	raw, err := recordPayload(body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
	}
	if out.EntityID() == "" {
		return out, fmt.Errorf("%w: record without id", ErrUnexpectedShape)
	}
	return out, nil
}
