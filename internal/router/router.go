package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/config"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/database"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/enum"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/handler"
	mw "github.com/NhieuThienAn/CoCo-Shop-sub000/internal/middleware"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/service"
	"github.com/NhieuThienAn/CoCo-Shop-sub000/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // storefront dev server
			"http://localhost:3000", // admin dev server
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// Auth routes (public)
	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Public catalog routes
	categoryHandler := handler.NewCategoryHandler(queries)
	r.Route("/categories", categoryHandler.RegisterRoutes)

	productHandler := handler.NewProductHandler(queries)
	r.Route("/products", productHandler.RegisterRoutes)

	statusHandler := handler.NewStatusHandler()
	r.Route("/order-statuses", statusHandler.RegisterRoutes)

	// Services shared by order endpoints
	orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	})
	workflowService := service.NewWorkflowService(pool, func(db database.DBTX) service.WorkflowStore {
		return database.New(db)
	}, cfg.OperatorPIN)

	orderHandler := handler.NewOrderHandler(orderService, workflowService, queries, queries, hub)
	paymentHandler := handler.NewPaymentHandler(queries)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		// Cart (any authenticated user, scoped to own cart)
		cartHandler := handler.NewCartHandler(queries)
		r.Route("/cart", cartHandler.RegisterRoutes)

		// Orders (customers see their own, staff see all)
		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			paymentHandler.RegisterOrderRoutes(r)

			// Staff transitions
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleAdmin))
				orderHandler.RegisterAdminRoutes(r)
				paymentHandler.RegisterOrderAdminRoutes(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleShipper))
				orderHandler.RegisterShipperRoutes(r)
			})
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))

			r.Route("/admin/categories", categoryHandler.RegisterAdminRoutes)
			r.Route("/admin/products", productHandler.RegisterAdminRoutes)

			paymentHandler.RegisterAdminRoutes(r)

			inventoryHandler := handler.NewInventoryHandler(queries)
			inventoryHandler.RegisterAdminRoutes(r)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}
