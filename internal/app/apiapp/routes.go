package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ckojak/estudobiblico75/internal/config"
	authsvc "github.com/ckojak/estudobiblico75/internal/services/auth"
	catalogsvc "github.com/ckojak/estudobiblico75/internal/services/catalog"
	checkoutsvc "github.com/ckojak/estudobiblico75/internal/services/checkout"
	downloadsvc "github.com/ckojak/estudobiblico75/internal/services/downloads"
	purchasesvc "github.com/ckojak/estudobiblico75/internal/services/purchases"
	receiptsvc "github.com/ckojak/estudobiblico75/internal/services/receipts"
	salessvc "github.com/ckojak/estudobiblico75/internal/services/sales"
	"github.com/ckojak/estudobiblico75/internal/transport/http/handlers"
)

type Dependencies struct {
	JWTManager       *authsvc.JWTManager
	CatalogService   *catalogsvc.Service
	CheckoutService  *checkoutsvc.Service
	DownloadService  *downloadsvc.Service
	ReceiptService   *receiptsvc.Service
	PurchasesService *purchasesvc.Service
	SalesService     *salessvc.Service
	Logger           *zap.Logger
	Config           config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	catalogHandler := handlers.NewCatalogHandler(deps.CatalogService)
	checkoutHandler := handlers.NewCheckoutHandler(deps.CheckoutService, deps.Logger)
	downloadHandler := handlers.NewDownloadHandler(deps.DownloadService)
	receiptHandler := handlers.NewReceiptHandler(deps.ReceiptService)
	purchasesHandler := handlers.NewPurchasesHandler(deps.PurchasesService)
	adminHandler := handlers.NewAdminHandler(deps.ReceiptService, deps.CatalogService)
	adminHandler.AttachSales(deps.SalesService)

	authMW := AuthMiddleware(deps.JWTManager, deps.Logger)
	adminRoleMW := RequireRole(authsvc.RoleAdmin)

	r.Get("/healthz", healthHandler.Get)

	r.Get("/books", catalogHandler.List)
	r.Get("/books/{ref}", catalogHandler.Get)
	r.Get("/pix", receiptHandler.Pix)
	r.Get("/pix/qr", receiptHandler.PixQR)

	r.With(authMW).Post("/create-payment", checkoutHandler.Create)
	r.With(authMW).Post("/verify-payment", checkoutHandler.Verify)
	r.Post("/stripe-webhook", checkoutHandler.Webhook)
	r.With(authMW).Post("/get-download-url", downloadHandler.GetURL)
	r.With(authMW).Post("/receipts", receiptHandler.Submit)
	r.With(authMW).Get("/purchases", purchasesHandler.ListMine)

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMW, adminRoleMW)
		r.Get("/receipts", adminHandler.ReceiptsPending)
		r.Post("/receipts/{id}/approve", adminHandler.ReceiptApprove)
		r.Post("/receipts/{id}/reject", adminHandler.ReceiptReject)
		r.Get("/sales/daily", adminHandler.SalesDaily)
		r.Get("/sales/summary", adminHandler.SalesSummary)
		r.Post("/books", adminHandler.BookCreate)
		r.Put("/books/{id}", adminHandler.BookUpdate)
		r.Delete("/books/{id}", adminHandler.BookDelete)
		r.Post("/books/{id}/pdf", adminHandler.BookUploadPDF)
	})
}
