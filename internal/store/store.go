package store

import (
	"context"
	"errors"
	"time"

	"github.com/Adriankf59/cafe-merput/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrProductNotFound  = errors.New("product not found")
	ErrMaterialNotFound = errors.New("material not found")
	ErrUserInvalid      = errors.New("invalid user reference")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrConflict         = errors.New("conflict")
	ErrMaterialInUse    = errors.New("material in use")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error)
	ListRecipeLines(ctx context.Context, productID string) ([]domain.RecipeLine, error)
	AddRecipeLine(ctx context.Context, line domain.RecipeLine) (*domain.RecipeLine, error)
	UpdateRecipeLine(ctx context.Context, productID string, materialID string, qtyPerUnit float64) (*domain.RecipeLine, error)
	RemoveRecipeLine(ctx context.Context, productID string, materialID string) error
	ListMaterials(ctx context.Context, search string) ([]domain.Material, error)
	GetMaterialByID(ctx context.Context, id string) (*domain.Material, error)
	CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	AdjustMaterialStock(ctx context.Context, id string, delta float64) (*domain.Material, error)
	ListLowStockMaterials(ctx context.Context) ([]domain.Material, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error)
	CreateFulfillmentOrder(ctx context.Context, order domain.FulfillmentOrder) (*domain.FulfillmentOrder, error)
	GetFulfillmentOrderByID(ctx context.Context, id string) (*domain.FulfillmentOrder, error)
	ListFulfillmentOrders(ctx context.Context, status string, limit int) ([]domain.FulfillmentOrder, error)
	AdvanceFulfillmentOrder(ctx context.Context, id string, target string, at time.Time) (*domain.FulfillmentOrder, error)
	DeleteFulfillmentOrder(ctx context.Context, id string) error
	CreateProcurementOrder(ctx context.Context, order domain.ProcurementOrder) (*domain.ProcurementOrder, error)
	GetProcurementOrderByID(ctx context.Context, id string) (*domain.ProcurementOrder, error)
	ListProcurementOrders(ctx context.Context, status string, limit int) ([]domain.ProcurementOrder, error)
	UpdateProcurementOrderStatus(ctx context.Context, id string, target string, receivedAt time.Time) (*domain.ProcurementOrder, error)
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
