// Package wishlist owns the session-scoped set of saved product ids.
package wishlist

import (
	"encoding/json"
	"strconv"

	"github.com/gulshop/storefront/internal/session"
)

const sessionKey = "wishlist"

// Store manipulates the wishlist held in one session's Bag.
type Store struct {
	bag session.Bag
}

func NewStore(bag session.Bag) *Store { return &Store{bag: bag} }

func (s *Store) load() []string {
	buf, ok := s.bag.Get(sessionKey)
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(buf, &ids); err != nil {
		return nil
	}
	return ids
}

func (s *Store) save(ids []string) error {
	if len(ids) == 0 {
		s.bag.Delete(sessionKey)
		return s.bag.Save()
	}
	buf, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	s.bag.Set(sessionKey, buf)
	return s.bag.Save()
}

// Add saves a product id. Reports false when it was already present, so
// the caller can word its message accordingly.
func (s *Store) Add(productID int64) (bool, error) {
	key := strconv.FormatInt(productID, 10)
	ids := s.load()
	for _, id := range ids {
		if id == key {
			return false, nil
		}
	}
	return true, s.save(append(ids, key))
}

// Remove drops a product id; absent ids are a no-op.
func (s *Store) Remove(productID int64) error {
	key := strconv.FormatInt(productID, 10)
	ids := s.load()
	for i, id := range ids {
		if id == key {
			return s.save(append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}

func (s *Store) Clear() error {
	s.bag.Delete(sessionKey)
	return s.bag.Save()
}

// Contains drives the product-detail wishlist toggle.
func (s *Store) Contains(productID int64) bool {
	key := strconv.FormatInt(productID, 10)
	for _, id := range s.load() {
		if id == key {
			return true
		}
	}
	return false
}

// IDs returns the saved product ids in insertion order.
func (s *Store) IDs() []int64 {
	ids := s.load()
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
