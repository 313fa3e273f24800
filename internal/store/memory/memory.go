package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Adriankf59/cafe-merput/internal/domain"
	"github.com/Adriankf59/cafe-merput/internal/store"
	"github.com/Adriankf59/cafe-merput/internal/xid"
)

type Store struct {
	mu                  sync.RWMutex
	products            map[string]domain.Product
	priceHistoryByID    map[string][]domain.ProductPriceHistory
	materials           map[string]domain.Material
	recipes             map[string]map[string]float64
	transactionsByID    map[string]*domain.Transaction
	fulfillmentByID     map[string]domain.FulfillmentOrder
	fulfillmentCounter  int64
	procurementByID     map[string]domain.ProcurementOrder
	suppliersByID       map[string]domain.Supplier
	auditLogs           []domain.AuditLog
	usersByUsername     map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_MANAGER_PASSWORD and SEED_KASIR_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	kasirPwd := envOr("SEED_KASIR_PASSWORD", "kasir123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_KASIR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_KASIR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, "manager"},
		{"kasir", kasirPwd, "kasir"},
		{"barista", kasirPwd, "barista"},
		{"pengadaan", kasirPwd, "pengadaan"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	products := []domain.Product{
		{ID: "PRD-KOPSU-01", Name: "Kopi Susu", Category: "minuman", Price: 18000, Active: true},
		{ID: "PRD-AMERI-01", Name: "Americano", Category: "minuman", Price: 15000, Active: true},
		{ID: "PRD-LATTE-01", Name: "Cafe Latte", Category: "minuman", Price: 22000, Active: true},
		{ID: "PRD-TEHMA-01", Name: "Teh Manis", Category: "minuman", Price: 8000, Active: true},
		{ID: "PRD-ROBAK-01", Name: "Roti Bakar", Category: "makanan", Price: 25000, Active: true},
		{ID: "PRD-PISGO-01", Name: "Pisang Goreng", Category: "makanan", Price: 15000, Active: true},
		{ID: "PRD-NASGO-01", Name: "Nasi Goreng Merput", Category: "makanan", Price: 28000, Active: true},
		{ID: "PRD-CROIS-01", Name: "Butter Croissant", Category: "makanan", Price: 20000, Active: true},
	}

	now := time.Now().UTC()
	materials := []domain.Material{
		{ID: "MAT-KOPI-01", Name: "Biji Kopi Arabika", Unit: "gram", Stock: 2500, MinStock: 500, UpdatedAt: now},
		{ID: "MAT-SUSU-01", Name: "Susu Segar", Unit: "ml", Stock: 8000, MinStock: 2000, UpdatedAt: now},
		{ID: "MAT-GULA-01", Name: "Gula Aren", Unit: "ml", Stock: 1500, MinStock: 400, UpdatedAt: now},
		{ID: "MAT-ROTI-01", Name: "Roti Tawar", Unit: "pcs", Stock: 40, MinStock: 12, UpdatedAt: now},
		{ID: "MAT-MENTE-01", Name: "Mentega", Unit: "gram", Stock: 900, MinStock: 250, UpdatedAt: now},
		{ID: "MAT-PISANG-01", Name: "Pisang Kepok", Unit: "pcs", Stock: 30, MinStock: 10, UpdatedAt: now},
		{ID: "MAT-BERAS-01", Name: "Beras", Unit: "kg", Stock: 12, MinStock: 5, UpdatedAt: now},
		{ID: "MAT-TEH-01", Name: "Teh Hitam", Unit: "gram", Stock: 600, MinStock: 150, UpdatedAt: now},
	}

	recipes := map[string]map[string]float64{
		"PRD-KOPSU-01": {"MAT-KOPI-01": 18, "MAT-SUSU-01": 120, "MAT-GULA-01": 20},
		"PRD-AMERI-01": {"MAT-KOPI-01": 18},
		"PRD-LATTE-01": {"MAT-KOPI-01": 18, "MAT-SUSU-01": 180},
		"PRD-TEHMA-01": {"MAT-TEH-01": 5, "MAT-GULA-01": 15},
		"PRD-ROBAK-01": {"MAT-ROTI-01": 2, "MAT-MENTE-01": 15},
		"PRD-PISGO-01": {"MAT-PISANG-01": 2},
		"PRD-NASGO-01": {"MAT-BERAS-01": 0.15},
		// Croissants arrive finished from the bakery, so no recipe lines.
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}
	materialMap := make(map[string]domain.Material, len(materials))
	for _, m := range materials {
		materialMap[m.ID] = m
	}

	return &Store{
		products:         productMap,
		priceHistoryByID: make(map[string][]domain.ProductPriceHistory),
		materials:        materialMap,
		recipes:          recipes,
		transactionsByID: make(map[string]*domain.Transaction),
		fulfillmentByID:  make(map[string]domain.FulfillmentOrder),
		procurementByID:  make(map[string]domain.ProcurementOrder),
		suppliersByID:    make(map[string]domain.Supplier),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

// New returns an empty store, used by tests that want full control over the
// fixture data.
func New() *Store {
	s := NewSeeded()
	s.products = make(map[string]domain.Product)
	s.materials = make(map[string]domain.Material)
	s.recipes = make(map[string]map[string]float64)
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrProductNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || product.Price < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}

	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" || product.Category == "" || product.Price < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrProductNotFound
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(_ context.Context, entry domain.ProductPriceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	s.priceHistoryByID[entry.ProductID] = append(s.priceHistoryByID[entry.ProductID], entry)
	return nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.priceHistoryByID[productID]
	if len(history) == 0 {
		return []domain.ProductPriceHistory{}, nil
	}

	result := make([]domain.ProductPriceHistory, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.ProductPriceHistory) int {
		if a.ChangedAt.Equal(b.ChangedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.ChangedAt.After(b.ChangedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListRecipeLines(_ context.Context, productID string) ([]domain.RecipeLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.products[productID]; !exists {
		return nil, store.ErrProductNotFound
	}

	lines := make([]domain.RecipeLine, 0, len(s.recipes[productID]))
	for materialID, qty := range s.recipes[productID] {
		lines = append(lines, domain.RecipeLine{ProductID: productID, MaterialID: materialID, QtyPerUnit: qty})
	}
	slices.SortFunc(lines, func(a, b domain.RecipeLine) int {
		return cmpString(a.MaterialID, b.MaterialID)
	})
	return lines, nil
}

func (s *Store) AddRecipeLine(_ context.Context, line domain.RecipeLine) (*domain.RecipeLine, error) {
	if line.ProductID == "" || line.MaterialID == "" || line.QtyPerUnit <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[line.ProductID]; !exists {
		return nil, store.ErrProductNotFound
	}
	if _, exists := s.materials[line.MaterialID]; !exists {
		return nil, store.ErrMaterialNotFound
	}
	recipe := s.recipes[line.ProductID]
	if recipe == nil {
		recipe = make(map[string]float64)
		s.recipes[line.ProductID] = recipe
	}
	if _, exists := recipe[line.MaterialID]; exists {
		return nil, store.ErrConflict
	}

	recipe[line.MaterialID] = line.QtyPerUnit
	created := line
	return &created, nil
}

func (s *Store) UpdateRecipeLine(_ context.Context, productID string, materialID string, qtyPerUnit float64) (*domain.RecipeLine, error) {
	if productID == "" || materialID == "" || qtyPerUnit <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recipe := s.recipes[productID]
	if recipe == nil {
		return nil, store.ErrNotFound
	}
	if _, exists := recipe[materialID]; !exists {
		return nil, store.ErrNotFound
	}

	recipe[materialID] = qtyPerUnit
	return &domain.RecipeLine{ProductID: productID, MaterialID: materialID, QtyPerUnit: qtyPerUnit}, nil
}

func (s *Store) RemoveRecipeLine(_ context.Context, productID string, materialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recipe := s.recipes[productID]
	if recipe == nil {
		return store.ErrNotFound
	}
	if _, exists := recipe[materialID]; !exists {
		return store.ErrNotFound
	}
	delete(recipe, materialID)
	return nil
}

func (s *Store) ListMaterials(_ context.Context, search string) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search = strings.ToLower(strings.TrimSpace(search))
	materials := make([]domain.Material, 0, len(s.materials))
	for _, m := range s.materials {
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Name), search) &&
			!strings.Contains(strings.ToLower(m.ID), search) {
			continue
		}
		m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
		materials = append(materials, m)
	}

	slices.SortFunc(materials, func(a, b domain.Material) int {
		return cmpString(a.Name, b.Name)
	})
	return materials, nil
}

func (s *Store) GetMaterialByID(_ context.Context, id string) (*domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.materials[id]
	if !exists {
		return nil, store.ErrMaterialNotFound
	}
	m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
	copyMaterial := m
	return &copyMaterial, nil
}

func (s *Store) CreateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	if material.ID == "" || material.Name == "" || material.Unit == "" {
		return nil, store.ErrInvalidInput
	}
	if material.Stock < 0 || material.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.materials[material.ID]; exists {
		return nil, store.ErrConflict
	}

	material.UpdatedAt = time.Now().UTC()
	material.Status = domain.MaterialStatusFor(material.Stock, material.MinStock)
	s.materials[material.ID] = material
	created := material
	return &created, nil
}

func (s *Store) UpdateMaterial(_ context.Context, material domain.Material) (*domain.Material, error) {
	if material.ID == "" || material.Name == "" || material.Unit == "" || material.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.materials[material.ID]
	if !exists {
		return nil, store.ErrMaterialNotFound
	}

	existing.Name = material.Name
	existing.Unit = material.Unit
	existing.MinStock = material.MinStock
	existing.UpdatedAt = time.Now().UTC()
	existing.Status = domain.MaterialStatusFor(existing.Stock, existing.MinStock)
	s.materials[material.ID] = existing
	updated := existing
	return &updated, nil
}

func (s *Store) DeleteMaterial(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.materials[id]; !exists {
		return store.ErrMaterialNotFound
	}
	for _, recipe := range s.recipes {
		if _, used := recipe[id]; used {
			return store.ErrMaterialInUse
		}
	}
	for _, order := range s.procurementByID {
		if order.MaterialID == id && order.Status != domain.ProcurementStatusReceived {
			return store.ErrMaterialInUse
		}
	}

	delete(s.materials, id)
	return nil
}

// AdjustMaterialStock applies the delta atomically under the store lock and
// clamps the result to zero.
func (s *Store) AdjustMaterialStock(_ context.Context, id string, delta float64) (*domain.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, exists := s.materials[id]
	if !exists {
		return nil, store.ErrMaterialNotFound
	}

	m.Stock += delta
	if m.Stock < 0 {
		m.Stock = 0
	}
	m.UpdatedAt = time.Now().UTC()
	m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
	s.materials[id] = m
	adjusted := m
	return &adjusted, nil
}

func (s *Store) ListLowStockMaterials(_ context.Context) ([]domain.Material, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	materials := make([]domain.Material, 0, 8)
	for _, m := range s.materials {
		if m.Stock >= m.MinStock {
			continue
		}
		m.Status = domain.MaterialStatusLow
		materials = append(materials, m)
	}
	slices.SortFunc(materials, func(a, b domain.Material) int {
		return cmpString(a.Name, b.Name)
	})
	return materials, nil
}

// CreateTransaction re-prices every line from the current catalog and
// persists the header and lines together under one lock acquisition.
// Inventory is untouched; deduction belongs to fulfillment completion.
func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cashier, exists := s.usersByUsername[tx.CashierUsername]
	if !exists || !cashier.Active {
		return nil, store.ErrUserInvalid
	}

	total := int64(0)
	repriced := make([]domain.TransactionLine, 0, len(tx.Items))
	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, ok := s.products[item.ProductID]
		if !ok || !product.Active {
			return nil, store.ErrProductNotFound
		}
		subtotal := product.Price * int64(item.Qty)
		repriced = append(repriced, domain.TransactionLine{
			ProductID: product.ID,
			Name:      product.Name,
			Qty:       item.Qty,
			UnitPrice: product.Price,
			Subtotal:  subtotal,
		})
		total += subtotal
	}

	tx.Items = repriced
	tx.Total = total
	if tx.ID == "" {
		tx.ID = xid.New("trx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.Status == "" {
		tx.Status = domain.TxStatusCompleted
	}

	saved := tx
	s.transactionsByID[tx.ID] = &saved
	result := cloneTransaction(&saved)
	return result, nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.Transaction, 0, limit)
	for _, tx := range s.transactionsByID {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateFulfillmentOrder(_ context.Context, order domain.FulfillmentOrder) (*domain.FulfillmentOrder, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range order.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
	}
	if order.Status == "" {
		order.Status = domain.FulfillmentStatusWaiting
	}
	if !domain.ValidFulfillmentStatus(order.Status) {
		return nil, store.ErrInvalidStatus
	}
	if order.ID == "" {
		order.ID = xid.New("ford")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.FulfillmentLine, 0, len(order.Items))
	for _, line := range order.Items {
		product, exists := s.products[line.ProductID]
		if !exists {
			return nil, store.ErrProductNotFound
		}
		line.ProductName = product.Name
		items = append(items, line)
	}
	order.Items = items

	s.fulfillmentCounter++
	order.Number = fmt.Sprintf("ORD-%06d", s.fulfillmentCounter)
	order.CompletedAt = nil
	s.fulfillmentByID[order.ID] = order
	return cloneFulfillmentOrder(order), nil
}

func (s *Store) GetFulfillmentOrderByID(_ context.Context, id string) (*domain.FulfillmentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.fulfillmentByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneFulfillmentOrder(order), nil
}

func (s *Store) ListFulfillmentOrders(_ context.Context, status string, limit int) ([]domain.FulfillmentOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	orders := make([]domain.FulfillmentOrder, 0, limit)
	for _, order := range s.fulfillmentByID {
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, *cloneFulfillmentOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.FulfillmentOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// AdvanceFulfillmentOrder writes the target status unconditionally and runs
// the material deduction only on the first entry into completed, so retries
// and out-of-order updates never deduct twice.
func (s *Store) AdvanceFulfillmentOrder(_ context.Context, id string, target string, at time.Time) (*domain.FulfillmentOrder, error) {
	if !domain.ValidFulfillmentStatus(target) {
		return nil, store.ErrInvalidStatus
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.fulfillmentByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	if target == domain.FulfillmentStatusCompleted && order.Status != domain.FulfillmentStatusCompleted {
		needs := make(map[string]float64, 8)
		for _, line := range order.Items {
			for materialID, qtyPerUnit := range s.recipes[line.ProductID] {
				needs[materialID] += qtyPerUnit * float64(line.Qty)
			}
		}
		for materialID, need := range needs {
			m, ok := s.materials[materialID]
			if !ok {
				return nil, store.ErrMaterialNotFound
			}
			if m.Stock < need {
				log.Printf("[store] WARN: deduction clamped material=%s stock=%.2f need=%.2f", materialID, m.Stock, need)
			}
			m.Stock -= need
			if m.Stock < 0 {
				m.Stock = 0
			}
			m.UpdatedAt = at
			s.materials[materialID] = m
		}
		completed := at
		order.CompletedAt = &completed
	}

	order.Status = target
	s.fulfillmentByID[id] = order
	return cloneFulfillmentOrder(order), nil
}

func (s *Store) DeleteFulfillmentOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.fulfillmentByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.fulfillmentByID, id)
	return nil
}

func (s *Store) CreateProcurementOrder(_ context.Context, order domain.ProcurementOrder) (*domain.ProcurementOrder, error) {
	if order.MaterialID == "" || order.Qty <= 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("po")
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now().UTC()
	}
	order.Status = domain.ProcurementStatusPending
	order.ReceivedDate = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	material, exists := s.materials[order.MaterialID]
	if !exists {
		return nil, store.ErrMaterialNotFound
	}
	if order.SupplierID != "" {
		if _, ok := s.suppliersByID[order.SupplierID]; !ok {
			return nil, store.ErrNotFound
		}
	}

	order.MaterialName = material.Name
	s.procurementByID[order.ID] = order
	created := order
	return &created, nil
}

func (s *Store) GetProcurementOrderByID(_ context.Context, id string) (*domain.ProcurementOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.procurementByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyOrder := order
	return &copyOrder, nil
}

func (s *Store) ListProcurementOrders(_ context.Context, status string, limit int) ([]domain.ProcurementOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	orders := make([]domain.ProcurementOrder, 0, limit)
	for _, order := range s.procurementByID {
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}
	slices.SortFunc(orders, func(a, b domain.ProcurementOrder) int {
		if a.OrderDate.Equal(b.OrderDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.OrderDate.After(b.OrderDate) {
			return -1
		}
		return 1
	})
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// UpdateProcurementOrderStatus writes the target status unconditionally and
// increments stock only on the first entry into Diterima. ReceivedDate is
// set on that transition and never changed afterwards.
func (s *Store) UpdateProcurementOrderStatus(_ context.Context, id string, target string, receivedAt time.Time) (*domain.ProcurementOrder, error) {
	if !domain.ValidProcurementStatus(target) {
		return nil, store.ErrInvalidStatus
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.procurementByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	if target == domain.ProcurementStatusReceived && order.Status != domain.ProcurementStatusReceived {
		m, ok := s.materials[order.MaterialID]
		if !ok {
			return nil, store.ErrMaterialNotFound
		}
		m.Stock += order.Qty
		m.UpdatedAt = receivedAt
		s.materials[order.MaterialID] = m
		received := receivedAt
		order.ReceivedDate = &received
	}

	order.Status = target
	s.procurementByID[id] = order
	updated := order
	return &updated, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	supplier.Phone = strings.TrimSpace(supplier.Phone)
	if supplier.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, store.ErrConflict
	}
	s.suppliersByID[supplier.ID] = supplier
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, item := range s.suppliersByID {
		suppliers = append(suppliers, item)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "kasir"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	clone := *tx
	clone.Items = make([]domain.TransactionLine, len(tx.Items))
	copy(clone.Items, tx.Items)
	return &clone
}

func cloneFulfillmentOrder(order domain.FulfillmentOrder) *domain.FulfillmentOrder {
	clone := order
	clone.Items = make([]domain.FulfillmentLine, len(order.Items))
	copy(clone.Items, order.Items)
	if order.CompletedAt != nil {
		completed := *order.CompletedAt
		clone.CompletedAt = &completed
	}
	return &clone
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
