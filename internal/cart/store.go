// Package cart owns the session-scoped shopping cart: a mapping of product
// id to purchase quantity, pending checkout.
//
// Older deployments stored each quantity as {"quantity": N} instead of the
// bare integer. Both shapes are accepted on read; every write re-encodes
// the canonical bare integer, so legacy entries decay out of live sessions.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/gulshop/storefront/internal/catalog"
	"github.com/gulshop/storefront/internal/session"
)

const sessionKey = "cart"

// MaxQuantity is the per-line quantity cap.
const MaxQuantity = 10

var (
	ErrQuantityRange = errors.New("quantity must be between 1 and 10")
)

type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
)

// Line is one resolved cart row.
type Line struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

// View is the materialized cart.
type View struct {
	Lines      []Line          `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	TotalItems int             `json:"total_items"`
}

// Store manipulates the cart held in one session's Bag. It performs no
// external I/O except product resolution in View.
type Store struct {
	bag      session.Bag
	products catalog.Finder
}

func NewStore(bag session.Bag, products catalog.Finder) *Store {
	return &Store{bag: bag, products: products}
}

// load decodes the raw mapping. Entries stay raw until a caller needs the
// quantity, since legacy sessions may hold either encoding.
func (s *Store) load() map[string]json.RawMessage {
	buf, ok := s.bag.Get(sessionKey)
	if !ok {
		return map[string]json.RawMessage{}
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(buf, &m); err != nil || m == nil {
		return map[string]json.RawMessage{}
	}
	return m
}

func (s *Store) save(m map[string]json.RawMessage) error {
	if len(m) == 0 {
		s.bag.Delete(sessionKey)
		return s.bag.Save()
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.bag.Set(sessionKey, buf)
	return s.bag.Save()
}

// decodeQuantity accepts the canonical bare integer and the legacy
// {"quantity": N} record.
func decodeQuantity(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var legacy struct {
		Quantity *int `json:"quantity"`
	}
	if err := json.Unmarshal(raw, &legacy); err == nil {
		if legacy.Quantity == nil {
			return 1, true
		}
		return *legacy.Quantity, true
	}
	return 0, false
}

func encodeQuantity(n int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(n))
}

// Add inserts or merges a line. qty must be in [1, MaxQuantity]; a merge
// that would push the line past the cap is rejected and the entry is left
// unchanged.
func (s *Store) Add(productID int64, qty int) error {
	if qty < 1 || qty > MaxQuantity {
		return ErrQuantityRange
	}
	m := s.load()
	key := strconv.FormatInt(productID, 10)
	next := qty
	if raw, ok := m[key]; ok {
		cur, ok := decodeQuantity(raw)
		// an undecodable or non-positive entry is as good as absent,
		// matching View's guard
		if !ok || cur < 1 {
			cur = 0
		}
		next = cur + qty
		if next > MaxQuantity {
			return ErrQuantityRange
		}
	}
	m[key] = encodeQuantity(next)
	return s.save(m)
}

// Remove deletes a line. Reports whether the line existed.
func (s *Store) Remove(productID int64) (bool, error) {
	m := s.load()
	key := strconv.FormatInt(productID, 10)
	if _, ok := m[key]; !ok {
		return false, nil
	}
	delete(m, key)
	return true, s.save(m)
}

// Update steps a line's quantity by one. Increase past the cap is a no-op;
// decrease below one removes the line. Unknown product ids are a no-op.
func (s *Store) Update(productID int64, action Action) error {
	m := s.load()
	key := strconv.FormatInt(productID, 10)
	raw, ok := m[key]
	if !ok {
		return nil
	}
	cur, ok := decodeQuantity(raw)
	if !ok || cur < 1 {
		cur = 0
	}
	switch action {
	case ActionIncrease:
		if cur+1 > MaxQuantity {
			return nil
		}
		m[key] = encodeQuantity(cur + 1)
	case ActionDecrease:
		if cur-1 < 1 {
			delete(m, key)
		} else {
			m[key] = encodeQuantity(cur - 1)
		}
	default:
		return fmt.Errorf("unknown cart action %q", action)
	}
	return s.save(m)
}

// Clear drops the whole mapping.
func (s *Store) Clear() error {
	s.bag.Delete(sessionKey)
	return s.bag.Save()
}

// View materializes the cart against the catalog. Lines whose product no
// longer exists, and entries that cannot be decoded at all, are removed
// from the stored mapping as a side effect. Lines come back ordered by
// product id.
func (s *Store) View(ctx context.Context) (*View, error) {
	m := s.load()

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseInt(keys[i], 10, 64)
		b, _ := strconv.ParseInt(keys[j], 10, 64)
		return a < b
	})

	v := &View{TotalPrice: decimal.Zero}
	healed := false
	for _, key := range keys {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			delete(m, key)
			healed = true
			continue
		}
		qty, ok := decodeQuantity(m[key])
		if !ok || qty < 1 {
			delete(m, key)
			healed = true
			continue
		}
		p, err := s.products.Find(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				delete(m, key)
				healed = true
				continue
			}
			return nil, err
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(qty)))
		v.Lines = append(v.Lines, Line{Product: *p, Quantity: qty, Total: total})
		v.TotalPrice = v.TotalPrice.Add(total)
		v.TotalItems += qty
	}

	if healed {
		if err := s.save(m); err != nil {
			return nil, err
		}
	}
	return v, nil
}
