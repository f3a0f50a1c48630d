package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tolvera-hq/saborpos/internal/billing"
	"github.com/tolvera-hq/saborpos/internal/cashregister"
	"github.com/tolvera-hq/saborpos/internal/customer"
	"github.com/tolvera-hq/saborpos/internal/diningroom"
	"github.com/tolvera-hq/saborpos/internal/kitchen"
	"github.com/tolvera-hq/saborpos/internal/orders"
	"github.com/tolvera-hq/saborpos/internal/platform/authn"
	"github.com/tolvera-hq/saborpos/internal/platform/logging"
)

// Server wires every core service into the REST surface.
type Server struct {
	Orders       *orders.Service
	Billing      *billing.Service
	CashRegister *cashregister.Service
	Kitchen      *kitchen.Service
	DiningRoom   *diningroom.Service
	Customer     *customer.Service
	Auth         *AuthService

	Issuer                 *authn.Issuer
	DevTenantHeaderAllowed bool
	AllowedOrigins         []string
	RateRPS                float64
	RateBurst              int
	Log                    *logging.Logger
}

// Router builds the chi router for the whole API surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(traceMiddleware)
	r.Use(requestLogMiddleware(s.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Tenant-ID", "X-Trace-Id"},
	}))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(s.Issuer, s.DevTenantHeaderAllowed))
		r.Use(rateLimitMiddleware(newRateLimiter(s.RateRPS, s.RateBurst)))

		r.Route("/api/tables", func(r chi.Router) {
			r.Post("/{id}/open", s.handleTableOpen)
			r.Post("/{id}/close", s.handleTableClose)
			r.Post("/{id}/reserve", s.handleTableReserve)
			r.Post("/{id}/cancel-reservation", s.handleTableCancelReservation)
			r.Post("/{id}/block", s.handleTableBlock)
			r.Post("/{id}/unblock", s.handleTableUnblock)
			r.Post("/{id}/transfer", s.handleTableTransfer)
		})

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/", s.handleOrderCreate)
			r.Post("/{id}/lines", s.handleOrderAddLine)
			r.Patch("/{id}/lines/{lineID}", s.handleOrderUpdateLine)
			r.Post("/{id}/confirm", s.handleOrderConfirm)
			r.Delete("/{id}/lines/{lineID}", s.handleOrderVoidLine)
			r.Post("/{id}/discounts", s.handleOrderApplyDiscount)
			r.Post("/{id}/transfer", s.handleOrderTransfer)
			r.Post("/{id}/payments", s.handlePaymentCreate)
			r.Post("/{id}/split", s.handleSplitBill)
			r.Get("/{id}/subtotal", s.handleSubtotal)
			r.Post("/{id}/fiscal-documents", s.handleFiscalDocumentCreate)
		})

		r.Route("/api/payments", func(r chi.Router) {
			r.Post("/{id}/void", s.handlePaymentVoid)
		})

		r.Route("/api/splits", func(r chi.Router) {
			r.Post("/{id}/payments", s.handleSplitPaymentCreate)
		})

		r.Route("/api/cash-sessions", func(r chi.Router) {
			r.Post("/", s.handleCashSessionOpen)
			r.Post("/{id}/movements", s.handleCashMovementCreate)
			r.Post("/{id}/close", s.handleCashSessionClose)
		})

		r.Route("/api/cash-closings", func(r chi.Router) {
			r.Post("/", s.handleCashClosingCreate)
		})

		r.Route("/api/customers", func(r chi.Router) {
			r.Post("/", s.handleCustomerCreate)
			r.Patch("/{id}", s.handleCustomerUpdate)
			r.Get("/search", s.handleCustomerSearch)
			r.Get("/{id}/orders", s.handleCustomerOrderHistory)
		})

		r.Route("/api/printers", func(r chi.Router) {
			r.Patch("/{id}", s.handlePrinterConfigure)
			r.Post("/print-jobs/{id}/reprint", s.handlePrintJobReprint)
		})
	})

	return r
}
