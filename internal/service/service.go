package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Adriankf59/cafe-merput/internal/domain"
	"github.com/Adriankf59/cafe-merput/internal/replenish"
	"github.com/Adriankf59/cafe-merput/internal/store"
	"github.com/Adriankf59/cafe-merput/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	replenisher *replenish.Engine
}

func New(repo store.Repository, replenisher *replenish.Engine) *Service {
	return &Service{
		repo:        repo,
		replenisher: replenisher,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Product{}, fmt.Errorf("manager role required")
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.ID == "" {
		req.ID = xid.New("prd")
	}
	if req.Name == "" || req.Category == "" || req.Price < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:       req.ID,
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Active:   true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.Price))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Product{}, fmt.Errorf("manager role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.Price != nil {
		if *req.Price < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Price = *req.Price
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if existing.Price != saved.Price {
		if err := s.repo.CreatePriceHistory(ctx, domain.ProductPriceHistory{
			ID:        xid.New("ph"),
			ProductID: saved.ID,
			OldPrice:  existing.Price,
			NewPrice:  saved.Price,
			ChangedBy: actor.Username,
			ChangedAt: time.Now().UTC(),
		}); err != nil {
			log.Printf("[service] WARN: failed to record price history product=%s: %v", saved.ID, err)
		}
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.Price))
	return *saved, nil
}

func (s *Service) ListProductPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

// ListRecipe returns the product's bill of materials joined with the
// material catalog. An empty list is a valid answer; the product just
// consumes nothing when sold.
func (s *Service) ListRecipe(ctx context.Context, productID string) ([]domain.RecipeEntry, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, store.ErrInvalidInput
	}

	lines, err := s.repo.ListRecipeLines(ctx, productID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.RecipeEntry, 0, len(lines))
	for _, line := range lines {
		entry := domain.RecipeEntry{
			MaterialID: line.MaterialID,
			QtyPerUnit: line.QtyPerUnit,
		}
		if material, err := s.repo.GetMaterialByID(ctx, line.MaterialID); err == nil {
			entry.MaterialName = material.Name
			entry.Unit = material.Unit
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) AddRecipeLine(ctx context.Context, productID string, req domain.RecipeLineCreateRequest) (domain.RecipeLine, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.RecipeLine{}, fmt.Errorf("manager role required")
	}

	productID = strings.TrimSpace(productID)
	req.MaterialID = strings.TrimSpace(req.MaterialID)
	if productID == "" || req.MaterialID == "" || req.QtyPerUnit <= 0 {
		return domain.RecipeLine{}, store.ErrInvalidInput
	}

	created, err := s.repo.AddRecipeLine(ctx, domain.RecipeLine{
		ProductID:  productID,
		MaterialID: req.MaterialID,
		QtyPerUnit: req.QtyPerUnit,
	})
	if err != nil {
		return domain.RecipeLine{}, err
	}

	s.logAudit(ctx, "recipe_line_add", "recipe", productID, fmt.Sprintf("material=%s,qty_per_unit=%.4f", created.MaterialID, created.QtyPerUnit))
	return *created, nil
}

func (s *Service) UpdateRecipeLine(ctx context.Context, productID string, materialID string, req domain.RecipeLineUpdateRequest) (domain.RecipeLine, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.RecipeLine{}, fmt.Errorf("manager role required")
	}

	productID = strings.TrimSpace(productID)
	materialID = strings.TrimSpace(materialID)
	if productID == "" || materialID == "" || req.QtyPerUnit <= 0 {
		return domain.RecipeLine{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateRecipeLine(ctx, productID, materialID, req.QtyPerUnit)
	if err != nil {
		return domain.RecipeLine{}, err
	}

	s.logAudit(ctx, "recipe_line_update", "recipe", productID, fmt.Sprintf("material=%s,qty_per_unit=%.4f", materialID, req.QtyPerUnit))
	return *updated, nil
}

func (s *Service) RemoveRecipeLine(ctx context.Context, productID string, materialID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return fmt.Errorf("manager role required")
	}

	productID = strings.TrimSpace(productID)
	materialID = strings.TrimSpace(materialID)
	if productID == "" || materialID == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.RemoveRecipeLine(ctx, productID, materialID); err != nil {
		return err
	}

	s.logAudit(ctx, "recipe_line_remove", "recipe", productID, "material="+materialID)
	return nil
}

func (s *Service) ListMaterials(ctx context.Context, search string) ([]domain.Material, error) {
	return s.repo.ListMaterials(ctx, search)
}

func (s *Service) GetMaterial(ctx context.Context, id string) (domain.Material, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Material{}, store.ErrInvalidInput
	}
	material, err := s.repo.GetMaterialByID(ctx, id)
	if err != nil {
		return domain.Material{}, err
	}
	return *material, nil
}

func (s *Service) CreateMaterial(ctx context.Context, req domain.MaterialCreateRequest) (domain.Material, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Material{}, fmt.Errorf("manager role required")
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Unit = strings.TrimSpace(req.Unit)
	if req.ID == "" {
		req.ID = xid.New("mat")
	}
	if req.Name == "" || req.Stock < 0 || req.MinStock < 0 {
		return domain.Material{}, store.ErrInvalidInput
	}
	if !domain.ValidMaterialUnit(req.Unit) {
		return domain.Material{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateMaterial(ctx, domain.Material{
		ID:       req.ID,
		Name:     req.Name,
		Unit:     req.Unit,
		Stock:    req.Stock,
		MinStock: req.MinStock,
	})
	if err != nil {
		return domain.Material{}, err
	}

	s.logAudit(ctx, "material_create", "material", created.ID, fmt.Sprintf("name=%s,stock=%.2f,min_stock=%.2f", created.Name, created.Stock, created.MinStock))
	return *created, nil
}

func (s *Service) UpdateMaterial(ctx context.Context, id string, req domain.MaterialUpdateRequest) (domain.Material, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return domain.Material{}, fmt.Errorf("manager role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Material{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetMaterialByID(ctx, id)
	if err != nil {
		return domain.Material{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Material{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Unit != nil {
		unit := strings.TrimSpace(*req.Unit)
		if !domain.ValidMaterialUnit(unit) {
			return domain.Material{}, store.ErrInvalidInput
		}
		updated.Unit = unit
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Material{}, store.ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}

	saved, err := s.repo.UpdateMaterial(ctx, updated)
	if err != nil {
		return domain.Material{}, err
	}

	s.logAudit(ctx, "material_update", "material", saved.ID, fmt.Sprintf("name=%s,min_stock=%.2f", saved.Name, saved.MinStock))
	return *saved, nil
}

func (s *Service) DeleteMaterial(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return fmt.Errorf("manager role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteMaterial(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "material_delete", "material", id, "")
	return nil
}

// AdjustMaterialStock applies a signed correction to the ledger. The repo
// clamps the result at zero, so an over-subtraction empties the material
// rather than failing.
func (s *Service) AdjustMaterialStock(ctx context.Context, id string, req domain.MaterialAdjustRequest) (domain.Material, error) {
	id = strings.TrimSpace(id)
	if id == "" || req.Delta == 0 {
		return domain.Material{}, store.ErrInvalidInput
	}

	adjusted, err := s.repo.AdjustMaterialStock(ctx, id, req.Delta)
	if err != nil {
		return domain.Material{}, err
	}

	s.logAudit(ctx, "material_adjust", "material", id, fmt.Sprintf("delta=%.2f,stock=%.2f,reason=%s", req.Delta, adjusted.Stock, strings.TrimSpace(req.Reason)))
	return *adjusted, nil
}

func (s *Service) ListLowStockMaterials(ctx context.Context) ([]domain.Material, error) {
	return s.repo.ListLowStockMaterials(ctx)
}

// CreateTransaction records a sale. Quantities for repeated products are
// aggregated, prices always come from the current catalog, and the cashier
// defaults to the authenticated actor. The repo persists header and lines
// atomically and never touches inventory.
func (s *Service) CreateTransaction(ctx context.Context, req domain.TransactionCreateRequest) (domain.Transaction, error) {
	req.CashierUsername = strings.ToLower(strings.TrimSpace(req.CashierUsername))
	if req.CashierUsername == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			req.CashierUsername = actor.Username
		}
	}
	if req.CashierUsername == "" {
		return domain.Transaction{}, store.ErrUserInvalid
	}

	items, err := normalizeLines(req.Items)
	if err != nil {
		return domain.Transaction{}, err
	}

	lines := make([]domain.TransactionLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.TransactionLine{ProductID: item.ProductID, Qty: item.Qty})
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		CashierUsername: req.CashierUsername,
		Items:           lines,
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "transaction_create", "transaction", created.ID, fmt.Sprintf("cashier=%s,total=%d,lines=%d", created.CashierUsername, created.Total, len(created.Items)))
	return *created, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, store.ErrInvalidInput
	}
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	if !from.Before(to) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListTransactions(ctx, from, to, limit)
}

// CreateFulfillmentOrder opens a kitchen order in waiting. Every line must
// name a product with a positive quantity; one bad line rejects the whole
// order. The cashier is recorded from the authenticated actor.
func (s *Service) CreateFulfillmentOrder(ctx context.Context, req domain.FulfillmentOrderCreateRequest) (domain.FulfillmentOrder, error) {
	if len(req.Items) == 0 {
		return domain.FulfillmentOrder{}, store.ErrInvalidInput
	}
	items := make([]domain.FulfillmentLine, 0, len(req.Items))
	for _, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || line.Qty < 1 {
			return domain.FulfillmentOrder{}, store.ErrInvalidInput
		}
		items = append(items, domain.FulfillmentLine{
			ProductID: productID,
			Qty:       line.Qty,
			Notes:     strings.TrimSpace(line.Notes),
		})
	}

	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID != "" {
		if _, err := s.repo.FindTransactionByID(ctx, req.TransactionID); err != nil {
			return domain.FulfillmentOrder{}, err
		}
	}

	var cashier string
	if actor, ok := ActorFromContext(ctx); ok {
		cashier = actor.Username
	}

	created, err := s.repo.CreateFulfillmentOrder(ctx, domain.FulfillmentOrder{
		Items:           items,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CashierUsername: cashier,
		TransactionID:   req.TransactionID,
		Status:          domain.FulfillmentStatusWaiting,
	})
	if err != nil {
		return domain.FulfillmentOrder{}, err
	}

	s.logAudit(ctx, "fulfillment_create", "fulfillment_order", created.ID, fmt.Sprintf("number=%s,lines=%d", created.Number, len(created.Items)))
	return *created, nil
}

func (s *Service) GetFulfillmentOrder(ctx context.Context, id string) (domain.FulfillmentOrder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.FulfillmentOrder{}, store.ErrInvalidInput
	}
	order, err := s.repo.GetFulfillmentOrderByID(ctx, id)
	if err != nil {
		return domain.FulfillmentOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListFulfillmentOrders(ctx context.Context, status string, limit int) ([]domain.FulfillmentOrder, error) {
	status = strings.TrimSpace(status)
	if status != "" && !domain.ValidFulfillmentStatus(status) {
		return nil, store.ErrInvalidStatus
	}
	return s.repo.ListFulfillmentOrders(ctx, status, limit)
}

// UpdateFulfillmentOrderStatus moves the order to the requested status.
// Material deduction happens inside the repo on the first entry into
// completed only, so a barista re-tapping "selesai" changes nothing.
func (s *Service) UpdateFulfillmentOrderStatus(ctx context.Context, id string, req domain.FulfillmentOrderUpdateRequest) (domain.FulfillmentOrder, error) {
	id = strings.TrimSpace(id)
	target := strings.TrimSpace(req.Status)
	if id == "" {
		return domain.FulfillmentOrder{}, store.ErrInvalidInput
	}
	if !domain.ValidFulfillmentStatus(target) {
		return domain.FulfillmentOrder{}, store.ErrInvalidStatus
	}

	updated, err := s.repo.AdvanceFulfillmentOrder(ctx, id, target, time.Now().UTC())
	if err != nil {
		return domain.FulfillmentOrder{}, err
	}

	s.logAudit(ctx, "fulfillment_status", "fulfillment_order", updated.ID, fmt.Sprintf("number=%s,status=%s", updated.Number, updated.Status))
	return *updated, nil
}

// DeleteFulfillmentOrder removes the order regardless of status. A completed
// order's deduction is history, not a reservation; deleting the row never
// puts materials back.
func (s *Service) DeleteFulfillmentOrder(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteFulfillmentOrder(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "fulfillment_delete", "fulfillment_order", id, "")
	return nil
}

func (s *Service) CreateProcurementOrder(ctx context.Context, req domain.ProcurementOrderCreateRequest) (domain.ProcurementOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "pengadaan" && actor.Role != "manager") {
		return domain.ProcurementOrder{}, fmt.Errorf("pengadaan or manager role required")
	}

	req.MaterialID = strings.TrimSpace(req.MaterialID)
	if req.MaterialID == "" || req.Qty <= 0 {
		return domain.ProcurementOrder{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProcurementOrder(ctx, domain.ProcurementOrder{
		MaterialID: req.MaterialID,
		SupplierID: strings.TrimSpace(req.SupplierID),
		Qty:        req.Qty,
		OrderedBy:  actor.Username,
	})
	if err != nil {
		return domain.ProcurementOrder{}, err
	}

	s.logAudit(ctx, "procurement_create", "procurement_order", created.ID, fmt.Sprintf("material=%s,qty=%.2f", created.MaterialID, created.Qty))
	return *created, nil
}

func (s *Service) GetProcurementOrder(ctx context.Context, id string) (domain.ProcurementOrder, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ProcurementOrder{}, store.ErrInvalidInput
	}
	order, err := s.repo.GetProcurementOrderByID(ctx, id)
	if err != nil {
		return domain.ProcurementOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListProcurementOrders(ctx context.Context, status string, limit int) ([]domain.ProcurementOrder, error) {
	status = strings.TrimSpace(status)
	if status != "" && !domain.ValidProcurementStatus(status) {
		return nil, store.ErrInvalidStatus
	}
	return s.repo.ListProcurementOrders(ctx, status, limit)
}

// UpdateProcurementOrderStatus moves the order to the requested status.
// Stock increments exactly once, on the first entry into Diterima; the
// optional received_date overrides the receipt timestamp for back-dated
// deliveries.
func (s *Service) UpdateProcurementOrderStatus(ctx context.Context, id string, req domain.ProcurementOrderUpdateRequest) (domain.ProcurementOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "pengadaan" && actor.Role != "manager") {
		return domain.ProcurementOrder{}, fmt.Errorf("pengadaan or manager role required")
	}

	id = strings.TrimSpace(id)
	target := strings.TrimSpace(req.Status)
	if id == "" {
		return domain.ProcurementOrder{}, store.ErrInvalidInput
	}
	if !domain.ValidProcurementStatus(target) {
		return domain.ProcurementOrder{}, store.ErrInvalidStatus
	}

	receivedAt := time.Now().UTC()
	if raw := strings.TrimSpace(req.ReceivedDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return domain.ProcurementOrder{}, store.ErrInvalidInput
		}
		receivedAt = parsed.UTC()
	}

	updated, err := s.repo.UpdateProcurementOrderStatus(ctx, id, target, receivedAt)
	if err != nil {
		return domain.ProcurementOrder{}, err
	}

	s.logAudit(ctx, "procurement_status", "procurement_order", updated.ID, fmt.Sprintf("material=%s,status=%s", updated.MaterialID, updated.Status))
	return *updated, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != "pengadaan" && actor.Role != "manager") {
		return domain.Supplier{}, fmt.Errorf("pengadaan or manager role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// ReplenishmentSuggestions proposes procurement orders for materials running
// low that no open order already covers.
func (s *Service) ReplenishmentSuggestions(ctx context.Context) (domain.ReplenishmentResponse, error) {
	low, err := s.repo.ListLowStockMaterials(ctx)
	if err != nil {
		return domain.ReplenishmentResponse{}, err
	}

	open := make([]domain.ProcurementOrder, 0, 16)
	for _, status := range []string{domain.ProcurementStatusPending, domain.ProcurementStatusShipped} {
		orders, err := s.repo.ListProcurementOrders(ctx, status, 0)
		if err != nil {
			return domain.ReplenishmentResponse{}, err
		}
		open = append(open, orders...)
	}

	return s.replenisher.Suggest(ctx, low, open), nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "manager" {
		return nil, fmt.Errorf("manager role required")
	}

	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	if !from.Before(to) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// normalizeLines aggregates repeated products into one line each. A blank
// product ID or a quantity below one rejects the whole cart; dropping the
// bad line would silently charge for a different order than the one sent.
func normalizeLines(items []domain.CartLine) ([]domain.CartLine, error) {
	if len(items) == 0 {
		return nil, store.ErrInvalidInput
	}

	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" || item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, seen := agg[id]; !seen {
			order = append(order, id)
		}
		agg[id] += item.Qty
	}

	normalized := make([]domain.CartLine, 0, len(agg))
	for _, id := range order {
		normalized = append(normalized, domain.CartLine{ProductID: id, Qty: agg[id]})
	}
	return normalized, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
