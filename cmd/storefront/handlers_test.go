package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/gulshop/storefront/internal/account"
	"github.com/gulshop/storefront/internal/catalog"
	"github.com/gulshop/storefront/internal/checkout"
	"github.com/gulshop/storefront/internal/order"
)

//
// ---------- STUBS & FAKES ----------
//

// stubProducts implements catalog.Repository in memory.
type stubProducts struct {
	byID map[int64]catalog.Product
}

func (s *stubProducts) Find(ctx context.Context, id int64) (*catalog.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (s *stubProducts) List(ctx context.Context, q catalog.Query) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, p := range s.byID {
		if p.Available {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProducts) Featured(ctx context.Context, n int) ([]catalog.Product, error) {
	return s.List(ctx, catalog.Query{})
}

// stubOrders implements order.Repository in memory.
type stubOrders struct {
	created []order.Order
	items   [][]order.Item
}

func (s *stubOrders) Create(ctx context.Context, o *order.Order, items []order.Item) error {
	s.created = append(s.created, *o)
	s.items = append(s.items, append([]order.Item(nil), items...))
	return nil
}

func (s *stubOrders) GetByOrderID(ctx context.Context, orderID string) (*order.Order, []order.Item, error) {
	for i, o := range s.created {
		if o.OrderID == orderID {
			return &s.created[i], s.items[i], nil
		}
	}
	return nil, nil, order.ErrNotFound
}

func (s *stubOrders) GetByIDAndUser(ctx context.Context, id, userID string) (*order.Order, []order.Item, error) {
	for i, o := range s.created {
		if o.ID == id && o.UserID == userID {
			return &s.created[i], s.items[i], nil
		}
	}
	return nil, nil, order.ErrNotFound
}

func (s *stubOrders) ListByUser(ctx context.Context, userID string, limit, offset int) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.created {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubOrders) GetItems(ctx context.Context, orderID string) ([]order.Item, error) {
	for i, o := range s.created {
		if o.ID == orderID {
			return s.items[i], nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *stubOrders) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	for i, o := range s.created {
		if o.ID == id {
			s.created[i].Status = status
			return nil
		}
	}
	return order.ErrNotFound
}

// stubAccounts implements account.Repository in memory.
type stubAccounts struct {
	byID map[string]account.User
}

func (s *stubAccounts) Create(ctx context.Context, u *account.User) error {
	for _, e := range s.byID {
		if e.Email == u.Email || e.Username == u.Username {
			return account.ErrAlreadyExist
		}
	}
	if s.byID == nil {
		s.byID = map[string]account.User{}
	}
	s.byID[u.ID] = *u
	return nil
}

func (s *stubAccounts) GetByID(ctx context.Context, id string) (*account.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &u, nil
}

func (s *stubAccounts) GetByEmail(ctx context.Context, email string) (*account.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, account.ErrNotFound
}

func (s *stubAccounts) UpdateProfile(ctx context.Context, id string, p account.ProfileUpdate) error {
	u, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	if p.FirstName != "" {
		u.FirstName = p.FirstName
	}
	if p.LastName != "" {
		u.LastName = p.LastName
	}
	if p.Email != "" {
		u.Email = p.Email
	}
	if p.Phone != "" {
		u.Phone = p.Phone
	}
	if p.Address != "" {
		u.Address = p.Address
	}
	s.byID[id] = u
	return nil
}

//
// ---------- HELPERS ----------
//

var testJWTSecret = []byte("test-jwt-secret")

func newTestRouter(t *testing.T) (*gin.Engine, *stubProducts, *stubOrders, *stubAccounts) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	products := &stubProducts{byID: map[int64]catalog.Product{
		7: {ID: 7, Name: "Organic Jaggery", Slug: "organic-jaggery", Price: decimal.RequireFromString("50.00"), Available: true},
		8: {ID: 8, Name: "Jaggery Powder", Slug: "jaggery-powder", Price: decimal.RequireFromString("19.90"), Available: true},
	}}
	orders := &stubOrders{}
	accounts := &stubAccounts{}

	s := &server{
		products:  products,
		orders:    orders,
		accounts:  account.NewService(accounts),
		checkout:  checkout.NewService(products, orders),
		jwtSecret: testJWTSecret,
		tokenTTL:  time.Hour,
	}
	return newRouter(s, "test-session-secret"), products, orders, accounts
}

// client keeps session cookies across requests, like a browser.
type client struct {
	t       *testing.T
	r       *gin.Engine
	cookies []*http.Cookie
	token   string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	// a handler may save the session more than once per request; keep the
	// last Set-Cookie per name, like a browser would
	if got := w.Result().Cookies(); len(got) > 0 {
		merged := map[string]*http.Cookie{}
		var names []string
		for _, ck := range append(c.cookies, got...) {
			if _, seen := merged[ck.Name]; !seen {
				names = append(names, ck.Name)
			}
			merged[ck.Name] = ck
		}
		c.cookies = c.cookies[:0]
		for _, name := range names {
			c.cookies = append(c.cookies, merged[name])
		}
	}
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func checkoutBody() map[string]any {
	return map[string]any{
		"name":    "Asha Kumar",
		"phone":   "9876543210",
		"address": "12 Market Road",
	}
}

//
// ---------- TESTS ----------
//

func TestCartAddAndDetail(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	w := c.do(http.MethodPost, "/cart/add/7", map[string]int{"quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("add: status %d body %s", w.Code, w.Body.String())
	}

	w = c.do(http.MethodGet, "/cart", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("detail: status %d", w.Code)
	}
	var body struct {
		Cart struct {
			TotalPrice string `json:"total_price"`
			TotalItems int    `json:"total_items"`
		} `json:"cart"`
		Messages []struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"messages"`
	}
	decodeBody(t, w, &body)
	total, err := decimal.NewFromString(body.Cart.TotalPrice)
	if err != nil || body.Cart.TotalItems != 2 || !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected cart %+v (%v)", body.Cart, err)
	}
	if len(body.Messages) != 1 || body.Messages[0].Kind != "success" {
		t.Fatalf("want one success flash, got %+v", body.Messages)
	}
}

func TestCartAddRejectsOutOfRangeQuantity(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	w := c.do(http.MethodPost, "/cart/add/7", map[string]int{"quantity": 11})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
}

func TestCartAddUnknownProduct(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	w := c.do(http.MethodPost, "/cart/add/999", map[string]int{"quantity": 1})
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}

func TestCartUpdateDecreaseRemovesLine(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	c.do(http.MethodPost, "/cart/add/7", map[string]int{"quantity": 1})
	w := c.do(http.MethodPost, "/cart/update/7", map[string]string{"update": "decrease"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("update: status %d", w.Code)
	}

	w = c.do(http.MethodGet, "/cart", nil)
	var body struct {
		Cart struct {
			TotalItems int `json:"total_items"`
		} `json:"cart"`
	}
	decodeBody(t, w, &body)
	if body.Cart.TotalItems != 0 {
		t.Fatalf("want empty cart, got %+v", body.Cart)
	}
}

func TestCheckoutFlow(t *testing.T) {
	t.Parallel()
	r, _, orders, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	c.do(http.MethodPost, "/cart/add/7", map[string]int{"quantity": 2})

	w := c.do(http.MethodPost, "/orders", checkoutBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("checkout: status %d body %s", w.Code, w.Body.String())
	}
	var created struct {
		OrderID string `json:"order_id"`
	}
	decodeBody(t, w, &created)
	if !strings.HasPrefix(created.OrderID, "ORD") || len(created.OrderID) != len("ORD")+8+4 {
		t.Fatalf("unexpected order id %q", created.OrderID)
	}
	if len(orders.created) != 1 {
		t.Fatalf("want one persisted order, got %d", len(orders.created))
	}
	if !orders.created[0].TotalAmount.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("want total 100.00, got %v", orders.created[0].TotalAmount)
	}

	// cart cleared
	w = c.do(http.MethodGet, "/cart", nil)
	var detail struct {
		Cart struct {
			TotalItems int `json:"total_items"`
		} `json:"cart"`
	}
	decodeBody(t, w, &detail)
	if detail.Cart.TotalItems != 0 {
		t.Fatal("cart must be empty after checkout")
	}

	// success and track pages resolve by order id
	for _, path := range []string{"/orders/success/", "/orders/track/"} {
		w = c.do(http.MethodGet, path+created.OrderID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, w.Code)
		}
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	t.Parallel()
	r, _, orders, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	w := c.do(http.MethodPost, "/orders", checkoutBody())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
	if len(orders.created) != 0 {
		t.Fatal("empty-cart checkout must not persist anything")
	}
}

func TestCheckoutValidationReturnsCartForRedisplay(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	c.do(http.MethodPost, "/cart/add/7", map[string]int{"quantity": 2})
	w := c.do(http.MethodPost, "/orders", map[string]any{"name": "  ", "phone": "", "address": "x"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d body %s", w.Code, w.Body.String())
	}
	var body struct {
		Fields []string `json:"fields"`
		Cart   struct {
			TotalPrice string `json:"total_price"`
		} `json:"cart"`
	}
	decodeBody(t, w, &body)
	if len(body.Fields) != 2 {
		t.Fatalf("want name and phone flagged, got %v", body.Fields)
	}
	total, err := decimal.NewFromString(body.Cart.TotalPrice)
	if err != nil || !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("validation response must carry the cart view, got %+v (%v)", body, err)
	}
}

func TestOrderSuccessNotFound(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	w := c.do(http.MethodGet, "/orders/success/ORD209901011234", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}

func TestOrderHistoryRequiresAuth(t *testing.T) {
	t.Parallel()
	r, _, orders, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	if w := c.do(http.MethodGet, "/orders/history", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401 without token, got %d", w.Code)
	}

	orders.created = append(orders.created, order.Order{ID: "o-1", OrderID: "ORD202608281111", UserID: "user-1"})
	orders.items = append(orders.items, nil)

	tok, err := account.IssueToken(testJWTSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c.token = tok
	w := c.do(http.MethodGet, "/orders/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200 with token, got %d", w.Code)
	}
	var body struct {
		Orders []order.Order `json:"orders"`
	}
	decodeBody(t, w, &body)
	if len(body.Orders) != 1 || body.Orders[0].OrderID != "ORD202608281111" {
		t.Fatalf("unexpected history %+v", body.Orders)
	}
}

func TestGuestCheckoutHasNoOwner(t *testing.T) {
	t.Parallel()
	r, _, orders, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	c.do(http.MethodPost, "/cart/add/8", map[string]int{"quantity": 1})
	if w := c.do(http.MethodPost, "/orders", checkoutBody()); w.Code != http.StatusCreated {
		t.Fatalf("guest checkout: status %d", w.Code)
	}
	if orders.created[0].UserID != "" {
		t.Fatalf("guest order must have no owner, got %q", orders.created[0].UserID)
	}
}

func TestSignupLoginProfile(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	w := c.do(http.MethodPost, "/signup", map[string]string{
		"username": "asha", "email": "asha@example.com", "password": "hunter22",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: status %d body %s", w.Code, w.Body.String())
	}

	w = c.do(http.MethodPost, "/login", map[string]string{
		"email": "asha@example.com", "password": "hunter22",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &login)
	if login.Token == "" {
		t.Fatal("login must return a token")
	}

	c.token = login.Token
	w = c.do(http.MethodPut, "/profile", map[string]string{"first_name": "Asha", "phone": "9876543210"})
	if w.Code != http.StatusOK {
		t.Fatalf("update profile: status %d body %s", w.Code, w.Body.String())
	}
	var u account.User
	decodeBody(t, w, &u)
	if u.FirstName != "Asha" || u.Phone != "9876543210" {
		t.Fatalf("profile not updated: %+v", u)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	c.do(http.MethodPost, "/signup", map[string]string{
		"username": "asha", "email": "asha@example.com", "password": "hunter22",
	})
	w := c.do(http.MethodPost, "/login", map[string]string{
		"email": "asha@example.com", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", w.Code)
	}
}

func TestWishlistToggleOnProductDetail(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	var detail struct {
		InWishlist bool `json:"in_wishlist"`
	}
	w := c.do(http.MethodGet, "/products/7", nil)
	decodeBody(t, w, &detail)
	if detail.InWishlist {
		t.Fatal("new session must not have product in wishlist")
	}

	var added struct {
		Added bool `json:"added"`
	}
	w = c.do(http.MethodPost, "/wishlist/add/7", nil)
	decodeBody(t, w, &added)
	if !added.Added {
		t.Fatal("first wishlist add must report added")
	}
	w = c.do(http.MethodPost, "/wishlist/add/7", nil)
	decodeBody(t, w, &added)
	if added.Added {
		t.Fatal("second wishlist add must report already present")
	}

	w = c.do(http.MethodGet, "/products/7", nil)
	decodeBody(t, w, &detail)
	if !detail.InWishlist {
		t.Fatal("product detail must reflect wishlist membership")
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()
	r, _, orders, _ := newTestRouter(t)
	c := &client{t: t, r: r}

	orders.created = append(orders.created, order.Order{ID: "o-1", OrderID: "ORD202608282222", Status: order.StatusPending})
	orders.items = append(orders.items, nil)

	w := c.do(http.MethodPatch, "/orders/o-1/status", map[string]string{"status": "shipped"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("valid status: %d body %s", w.Code, w.Body.String())
	}
	if orders.created[0].Status != order.StatusShipped {
		t.Fatalf("status not applied: %s", orders.created[0].Status)
	}

	w = c.do(http.MethodPatch, "/orders/o-1/status", map[string]string{"status": "teleported"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: want 400, got %d", w.Code)
	}

	w = c.do(http.MethodPatch, "/orders/o-404/status", map[string]string{"status": "cancelled"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order: want 404, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newTestRouter(t)
	c := &client{t: t, r: r}
	if w := c.do(http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("healthz: %d", w.Code)
	}
}
