package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gulshop/storefront/internal/account"
	"github.com/gulshop/storefront/internal/cart"
	"github.com/gulshop/storefront/internal/catalog"
	"github.com/gulshop/storefront/internal/checkout"
	"github.com/gulshop/storefront/internal/httpx"
	"github.com/gulshop/storefront/internal/order"
	"github.com/gulshop/storefront/internal/session"
	"github.com/gulshop/storefront/internal/wishlist"
)

type server struct {
	products  catalog.Repository
	orders    order.Repository
	accounts  *account.Service
	checkout  *checkout.Service
	jwtSecret []byte
	tokenTTL  time.Duration
}

func newRouter(s *server, sessionSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())
	r.Use(session.Middleware("gulshop_session", sessionSecret))
	r.Use(account.OptionalAuth(s.jwtSecret))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.GET("/", s.home)
	r.GET("/products", s.listProducts)
	r.GET("/products/:id", s.getProduct)

	r.GET("/cart", s.cartDetail)
	r.POST("/cart/add/:id", s.cartAdd)
	r.POST("/cart/remove/:id", s.cartRemove)
	r.POST("/cart/update/:id", s.cartUpdate)
	r.POST("/cart/clear", s.cartClear)

	r.POST("/orders", s.placeOrder)
	r.GET("/orders/success/:orderID", s.orderSuccess)
	r.GET("/orders/track/:orderID", s.trackOrder)
	r.PATCH("/orders/:id/status", s.updateOrderStatus)

	r.POST("/signup", s.signup)
	r.POST("/login", s.login)

	auth := r.Group("/", account.RequireAuth(s.jwtSecret))
	auth.GET("/orders/history", s.orderHistory)
	auth.GET("/orders/:id", s.orderDetail)
	auth.GET("/profile", s.profile)
	auth.PUT("/profile", s.updateProfile)
	auth.GET("/wishlist", s.wishlistDetail)

	r.POST("/wishlist/add/:id", s.wishlistAdd)
	r.POST("/wishlist/remove/:id", s.wishlistRemove)
	r.POST("/wishlist/clear", s.wishlistClear)

	return r
}

func (s *server) cartStore(c *gin.Context) (*cart.Store, session.Bag) {
	bag := session.FromContext(c)
	return cart.NewStore(bag, s.products), bag
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

// ---------- catalog ----------

func (s *server) home(c *gin.Context) {
	featured, err := s.products.Featured(c.Request.Context(), 4)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"featured_products": featured})
}

func (s *server) listProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	q := catalog.Query{Q: c.Query("q"), Limit: limit, Offset: offset}
	items, err := s.products.List(c.Request.Context(), q)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, catalog.ListResponse{Q: q.Q, Limit: limit, Offset: offset, Items: items})
}

func (s *server) getProduct(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	p, err := s.products.Find(c.Request.Context(), id)
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "product not found")
		return
	}
	wl := wishlist.NewStore(session.FromContext(c))
	c.JSON(http.StatusOK, gin.H{"product": p, "in_wishlist": wl.Contains(id)})
}

// ---------- cart ----------

func (s *server) cartDetail(c *gin.Context) {
	store, bag := s.cartStore(c)
	view, err := store.View(c.Request.Context())
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": view, "messages": bag.Flashes()})
}

func (s *server) cartAdd(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Quantity == 0 {
		body.Quantity = 1
	}
	p, err := s.products.Find(c.Request.Context(), id)
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "product not found")
		return
	}
	store, bag := s.cartStore(c)
	if err := store.Add(id, body.Quantity); err != nil {
		if errors.Is(err, cart.ErrQuantityRange) {
			bag.AddFlash("error", "Quantity must be between 1 and 10")
			_ = bag.Save()
			httpx.Err(c, http.StatusBadRequest, err.Error())
			return
		}
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	bag.AddFlash("success", "Added "+strconv.Itoa(body.Quantity)+" "+p.Name+" to cart!")
	_ = bag.Save()
	c.JSON(http.StatusOK, gin.H{"added": true})
}

func (s *server) cartRemove(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	store, bag := s.cartStore(c)
	removed, err := store.Remove(id)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	if removed {
		bag.AddFlash("info", "Item removed from cart")
		_ = bag.Save()
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *server) cartUpdate(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Update cart.Action `json:"update"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid body")
		return
	}
	store, _ := s.cartStore(c)
	if err := store.Update(id, body.Update); err != nil {
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) cartClear(c *gin.Context) {
	store, bag := s.cartStore(c)
	if err := store.Clear(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	bag.AddFlash("info", "Cart cleared")
	_ = bag.Save()
	c.Status(http.StatusNoContent)
}

// ---------- checkout & orders ----------

func (s *server) placeOrder(c *gin.Context) {
	var details checkout.CustomerDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid body")
		return
	}
	store, bag := s.cartStore(c)
	o, err := s.checkout.Checkout(c.Request.Context(), store, account.CurrentUser(c), details)
	if err != nil {
		var verr *checkout.ValidationError
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			bag.AddFlash("error", "Your cart is empty!")
			_ = bag.Save()
			httpx.Err(c, http.StatusBadRequest, "cart is empty")
		case errors.As(err, &verr):
			bag.AddFlash("error", "Please fill required fields!")
			_ = bag.Save()
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  verr.Error(),
				"fields": verr.Fields,
				"cart":   verr.View,
			})
		default:
			// cart stays intact for retry
			httpx.Err(c, http.StatusInternalServerError, "could not place order")
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": o.OrderID, "order": o})
}

func (s *server) orderSuccess(c *gin.Context) {
	o, items, err := s.orders.GetByOrderID(c.Request.Context(), c.Param("orderID"))
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "order not found")
		return
	}
	c.JSON(http.StatusOK, order.Response{Order: *o, Items: items})
}

func (s *server) trackOrder(c *gin.Context) {
	o, items, err := s.orders.GetByOrderID(c.Request.Context(), c.Param("orderID"))
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "order not found")
		return
	}
	c.JSON(http.StatusOK, order.Response{Order: *o, Items: items})
}

func (s *server) orderHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	orders, err := s.orders.ListByUser(c.Request.Context(), account.CurrentUser(c), limit, offset)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *server) orderDetail(c *gin.Context) {
	o, items, err := s.orders.GetByIDAndUser(c.Request.Context(), c.Param("id"), account.CurrentUser(c))
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "order not found")
		return
	}
	c.JSON(http.StatusOK, order.Response{Order: *o, Items: items})
}

func (s *server) updateOrderStatus(c *gin.Context) {
	var body order.StatusUpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil || !body.Status.Valid() {
		httpx.Err(c, http.StatusBadRequest, "invalid status")
		return
	}
	if err := s.orders.UpdateStatus(c.Request.Context(), c.Param("id"), body.Status); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			httpx.Err(c, http.StatusNotFound, "order not found")
			return
		}
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- wishlist ----------

func (s *server) wishlistDetail(c *gin.Context) {
	bag := session.FromContext(c)
	wl := wishlist.NewStore(bag)
	var items []catalog.Product
	for _, id := range wl.IDs() {
		p, err := s.products.Find(c.Request.Context(), id)
		if err != nil {
			continue // deleted products are simply skipped
		}
		items = append(items, *p)
	}
	c.JSON(http.StatusOK, gin.H{"wishlist_items": items, "messages": bag.Flashes()})
}

func (s *server) wishlistAdd(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	bag := session.FromContext(c)
	added, err := wishlist.NewStore(bag).Add(id)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	if added {
		bag.AddFlash("success", "Product added to wishlist!")
	} else {
		bag.AddFlash("info", "Product already in wishlist!")
	}
	_ = bag.Save()
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (s *server) wishlistRemove(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	bag := session.FromContext(c)
	if err := wishlist.NewStore(bag).Remove(id); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	bag.AddFlash("success", "Product removed from wishlist!")
	_ = bag.Save()
	c.Status(http.StatusNoContent)
}

func (s *server) wishlistClear(c *gin.Context) {
	bag := session.FromContext(c)
	if err := wishlist.NewStore(bag).Clear(); err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	bag.AddFlash("success", "Wishlist cleared successfully!")
	_ = bag.Save()
	c.Status(http.StatusNoContent)
}

// ---------- accounts ----------

func (s *server) signup(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := s.accounts.Register(c.Request.Context(), body.Username, body.Email, body.Password)
	if err != nil {
		if errors.Is(err, account.ErrAlreadyExist) {
			httpx.Err(c, http.StatusConflict, "user exists (username/email)")
			return
		}
		httpx.Err(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *server) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := s.accounts.Authenticate(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, account.ErrBadCredentials) {
			httpx.Err(c, http.StatusUnauthorized, err.Error())
			return
		}
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	tok, err := account.IssueToken(s.jwtSecret, u.ID, s.tokenTTL)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok, "user": u})
}

func (s *server) profile(c *gin.Context) {
	u, err := s.accounts.Get(c.Request.Context(), account.CurrentUser(c))
	if err != nil {
		httpx.Err(c, http.StatusNotFound, "user not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

func (s *server) updateProfile(c *gin.Context) {
	var body account.ProfileUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		httpx.Err(c, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := s.accounts.UpdateProfile(c.Request.Context(), account.CurrentUser(c), body)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			httpx.Err(c, http.StatusNotFound, "user not found")
			return
		}
		httpx.Err(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, u)
}
