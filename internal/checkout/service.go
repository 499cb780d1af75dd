// Package checkout converts a session cart into a persisted order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gulshop/storefront/internal/cart"
	"github.com/gulshop/storefront/internal/catalog"
	"github.com/gulshop/storefront/internal/order"
)

var (
	ErrEmptyCart = errors.New("cart is empty")
)

// ValidationError reports missing or bad customer fields. It carries the
// cart view computed before validation so the caller can re-display it
// without another catalog round trip.
type ValidationError struct {
	Fields []string
	View   *cart.View
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// CustomerDetails are the submitted checkout form fields.
type CustomerDetails struct {
	Name          string              `json:"name"`
	Email         string              `json:"email"`
	Phone         string              `json:"phone"`
	Address       string              `json:"address"`
	City          string              `json:"city"`
	State         string              `json:"state"`
	Pincode       string              `json:"pincode"`
	PaymentMethod order.PaymentMethod `json:"payment_method"`
}

// Service orchestrates checkout. UserID handling, session access and
// response shaping stay with the caller.
type Service struct {
	products catalog.Finder
	orders   order.Repository

	// swappable in tests
	now  func() time.Time
	intn func(n int) int
}

func NewService(products catalog.Finder, orders order.Repository) *Service {
	return &Service{
		products: products,
		orders:   orders,
		now:      time.Now,
		intn:     rand.Intn,
	}
}

// orderID builds ORD + YYYYMMDD + a 4-digit suffix. Uniqueness is
// best-effort; the orders.order_id UNIQUE constraint catches collisions.
func (s *Service) orderID() string {
	return fmt.Sprintf("ORD%s%04d", s.now().Format("20060102"), 1000+s.intn(9000))
}

// Checkout validates the submitted details, re-resolves every cart line
// against the catalog at commit time, persists the order atomically and
// clears the cart. On any failure the cart is left intact so the buyer
// can retry.
func (s *Service) Checkout(ctx context.Context, c *cart.Store, userID string, d CustomerDetails) (*order.Order, error) {
	view, err := c.View(ctx)
	if err != nil {
		return nil, fmt.Errorf("materialize cart: %w", err)
	}
	if len(view.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(d.Address) == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing, View: view}
	}

	method := d.PaymentMethod
	if method == "" {
		method = order.PaymentCOD
	}
	if !method.Valid() {
		return nil, &ValidationError{Fields: []string{"payment_method"}, View: view}
	}

	o := &order.Order{
		ID:            uuid.NewString(),
		OrderID:       s.orderID(),
		UserID:        userID,
		Name:          strings.TrimSpace(d.Name),
		Email:         strings.TrimSpace(d.Email),
		Phone:         strings.TrimSpace(d.Phone),
		Address:       strings.TrimSpace(d.Address),
		City:          strings.TrimSpace(d.City),
		State:         strings.TrimSpace(d.State),
		Pincode:       strings.TrimSpace(d.Pincode),
		PaymentMethod: method,
		Status:        order.StatusPending,
	}

	// Prices are re-read here, not taken from the view: the snapshot must
	// reflect the catalog at commit time. Lines whose product vanished in
	// the meantime are skipped.
	total := decimal.Zero
	var items []order.Item
	for _, line := range view.Lines {
		p, err := s.products.Find(ctx, line.Product.ID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("resolve product %d: %w", line.Product.ID, err)
		}
		items = append(items, order.Item{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: p.ID,
			Quantity:  line.Quantity,
			Price:     p.Price,
		})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	o.TotalAmount = total

	if err := s.orders.Create(ctx, o, items); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	// Only after the commit; a persistence failure must leave the cart
	// available for retry. The order is committed at this point, so a
	// failed clear is logged rather than reported: surfacing it as a
	// checkout failure would invite a duplicate order.
	if err := c.Clear(); err != nil {
		log.Printf("[checkout] clear cart after %s: %v", o.OrderID, err)
	}
	return o, nil
}
