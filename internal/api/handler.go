package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/tracker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP layer serves
type Deps struct {
	Catalog  *catalog.Catalog
	Carts    *cart.Registry
	Checkout *service.CheckoutService
	// Tracking configures the sessions shared by all viewers of an order
	Tracking tracker.Config
	// JWTSecret enables bearer-token identities
	JWTSecret string
	Checks    map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	catalog   *catalog.Catalog
	carts     *cart.Registry
	checkout  *service.CheckoutService
	tracking  *tracker.Hub
	jwtSecret string
	checks    map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	carts := deps.Carts
	if carts == nil {
		carts = cart.NewRegistry()
	}
	return &Handler{
		catalog:   deps.Catalog,
		carts:     carts,
		checkout:  deps.Checkout,
		tracking:  tracker.NewHub(deps.Tracking),
		jwtSecret: deps.JWTSecret,
		checks:    deps.Checks,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.GET("/products", h.listProducts)

	user := v1.Group("", h.identityMiddleware())
	{
		user.GET("/cart", h.getCart)
		user.POST("/cart/items", h.addCartItem)
		user.DELETE("/cart/items/:productId", h.removeCartItem)
		user.DELETE("/cart", h.clearCart)

		user.POST("/checkout", h.submitOrder)

		user.GET("/orders", h.listOrders)
		user.GET("/orders/:id", h.getOrder)
		user.GET("/orders/:id/track", h.trackOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing service
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) listProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.catalog.List()})
}

type cartResponse struct {
	Items     []models.CartLineItem `json:"items"`
	Total     string                `json:"total"`
	ItemCount int                   `json:"itemCount"`
}

func newCartResponse(state cart.State) cartResponse {
	items := []models.CartLineItem(state)
	if items == nil {
		items = []models.CartLineItem{}
	}
	return cartResponse{
		Items:     items,
		Total:     cart.FormatTotal(state),
		ItemCount: cart.ItemCount(state),
	}
}

func (h *Handler) cartFor(c *gin.Context) (*cart.Store, bool) {
	owner, err := sessionFrom(c).Identity()
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return h.carts.For(string(owner)), true
}

func (h *Handler) getCart(c *gin.Context) {
	store, ok := h.cartFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartResponse(store.State()))
}

type addItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, found := h.catalog.Get(req.ProductID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
		return
	}

	store, ok := h.cartFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartResponse(store.Dispatch(cart.AddItem{Product: product})))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	store, ok := h.cartFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartResponse(store.Dispatch(cart.RemoveItem{ProductID: c.Param("productId")})))
}

func (h *Handler) clearCart(c *gin.Context) {
	store, ok := h.cartFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newCartResponse(store.Dispatch(cart.ClearCart{})))
}

// submitOrder turns the caller's cart into an order
func (h *Handler) submitOrder(c *gin.Context) {
	store, ok := h.cartFor(c)
	if !ok {
		return
	}

	order, err := h.checkout.Submit(c.Request.Context(), store, sessionFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.checkout.ListOrders(c.Request.Context(), sessionFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
