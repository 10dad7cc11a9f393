// Package handler exposes the storefront and admin REST API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoaibmehmood243/lensciaga/internal/domain/auth"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/order"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/product"
	"github.com/shoaibmehmood243/lensciaga/internal/domain/promo"
	"github.com/shoaibmehmood243/lensciaga/internal/idempotency"
)

// Products is the catalog surface used by the API.
type Products interface {
	List(ctx context.Context) ([]product.Product, error)
	Get(ctx context.Context, id int64) (*product.Product, error)
	Create(ctx context.Context, p *product.Product) error
	Update(ctx context.Context, p *product.Product) error
	Delete(ctx context.Context, id int64) error
}

// Promos is the promo code surface used by the API.
type Promos interface {
	Validate(ctx context.Context, code string) (*promo.Validation, error)
	List(ctx context.Context) ([]promo.Code, error)
	Create(ctx context.Context, c *promo.Code) error
	Update(ctx context.Context, c *promo.Code) error
	Delete(ctx context.Context, id int64) error
}

// Orders is the order workflow used by the API.
type Orders interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, id int64) (*order.Detail, error)
	List(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*order.Order, error)
	Stats(ctx context.Context) (*order.Stats, error)
}

// Admins authenticates dashboard users.
type Admins interface {
	Register(ctx context.Context, email, password string) (*auth.Admin, error)
	Login(ctx context.Context, email, password string) (*auth.Token, error)
	Verify(token string) (*auth.Claims, error)
}

// Idempotency remembers which Idempotency-Key produced which order.
type Idempotency interface {
	Reserve(ctx context.Context, key string) (idempotency.State, int64, error)
	Complete(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

// Config holds non-dependency settings of the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image references in responses.
	ImageBaseURL string
	// AllowRegister enables POST /api/auth/register.
	AllowRegister bool
}

// Handler serves the /api routes.
type Handler struct {
	products Products
	promos   Promos
	orders   Orders
	admins   Admins
	// idem is nil when idempotent checkout is disabled.
	idem Idempotency
	cfg  Config
}

// New creates a Handler. idem may be nil.
func New(cfg Config, products Products, promos Promos, orders Orders, admins Admins, idem Idempotency) *Handler {
	return &Handler{
		products: products,
		promos:   promos,
		orders:   orders,
		admins:   admins,
		idem:     idem,
		cfg:      cfg,
	}
}

// Mount registers the API routes under /api on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("pong"))
		})

		r.Post("/auth/login", h.Login)
		if h.cfg.AllowRegister {
			r.Post("/auth/register", h.Register)
		}

		r.Get("/product", h.ListProducts)
		r.Get("/product/{id}", h.GetProduct)

		r.Post("/order", h.PlaceOrder)
		r.Get("/order/{id}", h.GetOrder)

		r.Get("/promo/validate/{code}", h.ValidatePromo)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)

			r.Post("/product", h.CreateProduct)
			r.Put("/product/{id}", h.UpdateProduct)
			r.Delete("/product/{id}", h.DeleteProduct)

			r.Get("/order/all", h.ListOrders)
			r.Put("/order/{id}", h.UpdateOrderStatus)

			r.Get("/promo/all", h.ListPromos)
			r.Post("/promo", h.CreatePromo)
			r.Put("/promo/{id}", h.UpdatePromo)
			r.Delete("/promo/{id}", h.DeletePromo)

			r.Get("/dashboard/stats", h.Stats)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed here")
		})
	})
}

// Router returns a chi router serving the API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}
