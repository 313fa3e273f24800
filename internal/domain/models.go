package domain

import "time"

const (
	MaterialStatusSafe = "Aman"
	MaterialStatusLow  = "Stok Rendah"
)

const (
	FulfillmentStatusWaiting    = "waiting"
	FulfillmentStatusProcessing = "processing"
	FulfillmentStatusReady      = "ready"
	FulfillmentStatusCompleted  = "completed"
)

const (
	ProcurementStatusPending  = "Pending"
	ProcurementStatusShipped  = "Dikirim"
	ProcurementStatusReceived = "Diterima"
)

const TxStatusCompleted = "selesai"

// MaterialStatusFor derives the display status from the stock level. The
// status is never stored; it is recomputed on every read so it can never
// drift from the ledger.
func MaterialStatusFor(stock float64, minStock float64) string {
	if stock >= minStock {
		return MaterialStatusSafe
	}
	return MaterialStatusLow
}

// ValidFulfillmentStatus reports whether the value is one of the four
// barista queue statuses.
func ValidFulfillmentStatus(status string) bool {
	switch status {
	case FulfillmentStatusWaiting, FulfillmentStatusProcessing, FulfillmentStatusReady, FulfillmentStatusCompleted:
		return true
	default:
		return false
	}
}

// ValidProcurementStatus reports whether the value is one of the supplier
// order statuses.
func ValidProcurementStatus(status string) bool {
	switch status {
	case ProcurementStatusPending, ProcurementStatusShipped, ProcurementStatusReceived:
		return true
	default:
		return false
	}
}

// ValidMaterialUnit reports whether the value is one of the units the
// kitchen actually measures in. Free-form units would make recipe math
// meaningless.
func ValidMaterialUnit(unit string) bool {
	switch unit {
	case "gram", "kg", "ml", "liter", "pcs":
		return true
	default:
		return false
	}
}

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
	Active   bool   `json:"active"`
}

type ProductCreateRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"`
}

type ProductUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
	Price    *int64  `json:"price,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type ProductPriceHistory struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OldPrice  int64     `json:"old_price"`
	NewPrice  int64     `json:"new_price"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

type Material struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Stock     float64   `json:"stock"`
	MinStock  float64   `json:"min_stock"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MaterialCreateRequest struct {
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	Stock    float64 `json:"stock"`
	MinStock float64 `json:"min_stock"`
}

type MaterialUpdateRequest struct {
	Name     *string  `json:"name,omitempty"`
	Unit     *string  `json:"unit,omitempty"`
	MinStock *float64 `json:"min_stock,omitempty"`
}

type MaterialAdjustRequest struct {
	Delta      float64 `json:"delta"`
	Reason     string  `json:"reason"`
	ManagerPIN string  `json:"manager_pin"`
}

// RecipeLine binds one material to one product with the quantity consumed
// per unit sold. A product with no lines is a valid product that simply
// consumes nothing.
type RecipeLine struct {
	ProductID  string  `json:"product_id"`
	MaterialID string  `json:"material_id"`
	QtyPerUnit float64 `json:"qty_per_unit"`
}

type RecipeLineCreateRequest struct {
	MaterialID string  `json:"material_id"`
	QtyPerUnit float64 `json:"qty_per_unit"`
}

type RecipeLineUpdateRequest struct {
	QtyPerUnit float64 `json:"qty_per_unit"`
}

// RecipeEntry is a recipe line joined with its material for API responses.
type RecipeEntry struct {
	MaterialID   string  `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Unit         string  `json:"unit"`
	QtyPerUnit   float64 `json:"qty_per_unit"`
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type TransactionCreateRequest struct {
	CashierUsername string     `json:"cashier_username,omitempty"`
	Items           []CartLine `json:"items"`
}

type TransactionLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

type Transaction struct {
	ID              string            `json:"id"`
	CashierUsername string            `json:"cashier_username"`
	Total           int64             `json:"total"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []TransactionLine `json:"items"`
}

// FulfillmentLine is one product on a kitchen order. Notes carry
// preparation requests ("tanpa gula") and never affect deduction.
type FulfillmentLine struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Qty         int    `json:"qty"`
	Notes       string `json:"notes,omitempty"`
}

type FulfillmentOrder struct {
	ID              string            `json:"id"`
	Number          string            `json:"number"`
	Items           []FulfillmentLine `json:"items"`
	CustomerName    string            `json:"customer_name,omitempty"`
	CashierUsername string            `json:"cashier_username"`
	TransactionID   string            `json:"transaction_id,omitempty"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

type FulfillmentLineRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Notes     string `json:"notes,omitempty"`
}

type FulfillmentOrderCreateRequest struct {
	Items         []FulfillmentLineRequest `json:"items"`
	CustomerName  string                   `json:"customer_name,omitempty"`
	TransactionID string                   `json:"transaction_id,omitempty"`
}

type FulfillmentOrderUpdateRequest struct {
	Status string `json:"status"`
}

type ProcurementOrder struct {
	ID           string     `json:"id"`
	MaterialID   string     `json:"material_id"`
	MaterialName string     `json:"material_name"`
	SupplierID   string     `json:"supplier_id,omitempty"`
	Qty          float64    `json:"qty"`
	Status       string     `json:"status"`
	OrderedBy    string     `json:"ordered_by"`
	OrderDate    time.Time  `json:"order_date"`
	ReceivedDate *time.Time `json:"received_date,omitempty"`
}

type ProcurementOrderCreateRequest struct {
	MaterialID string  `json:"material_id"`
	SupplierID string  `json:"supplier_id,omitempty"`
	Qty        float64 `json:"qty"`
}

type ProcurementOrderUpdateRequest struct {
	Status       string `json:"status"`
	ReceivedDate string `json:"received_date,omitempty"`
}

type Supplier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ReplenishmentSuggestion struct {
	MaterialID   string  `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Unit         string  `json:"unit"`
	Stock        float64 `json:"stock"`
	MinStock     float64 `json:"min_stock"`
	SuggestedQty float64 `json:"suggested_qty"`
}

type ReplenishmentResponse struct {
	GeneratedAt string                    `json:"generated_at"`
	Suggestions []ReplenishmentSuggestion `json:"suggestions"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type KasirCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type KasirUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
