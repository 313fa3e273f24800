package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Adriankf59/cafe-merput/internal/domain"
	"github.com/Adriankf59/cafe-merput/internal/store"
	"github.com/Adriankf59/cafe-merput/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, price, active
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, active
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Category, &product.Price, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || product.Price < 1 {
		return nil, store.ErrInvalidInput
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, product.ID, product.Name, product.Category, product.Price, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Category == "" || product.Price < 1 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, active = $5, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Price, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrProductNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) CreatePriceHistory(ctx context.Context, entry domain.ProductPriceHistory) error {
	if entry.ID == "" {
		entry.ID = xid.New("ph")
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_price_history (id, product_id, old_price, new_price, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.OldPrice, entry.NewPrice, entry.ChangedBy, entry.ChangedAt)
	return err
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.ProductPriceHistory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price, new_price, changed_by, changed_at
		FROM product_price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductPriceHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductPriceHistory
		if err := rows.Scan(&entry.ID, &entry.ProductID, &entry.OldPrice, &entry.NewPrice, &entry.ChangedBy, &entry.ChangedAt); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) ListRecipeLines(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, productID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrProductNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, material_id, qty_per_unit
		FROM recipe_items
		WHERE product_id = $1
		ORDER BY material_id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.RecipeLine, 0, 8)
	for rows.Next() {
		var line domain.RecipeLine
		if err := rows.Scan(&line.ProductID, &line.MaterialID, &line.QtyPerUnit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) AddRecipeLine(ctx context.Context, line domain.RecipeLine) (*domain.RecipeLine, error) {
	if line.ProductID == "" || line.MaterialID == "" || line.QtyPerUnit <= 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrProductNotFound
	}
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM materials WHERE id = $1)`, line.MaterialID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrMaterialNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipe_items (product_id, material_id, qty_per_unit, created_at)
		VALUES ($1,$2,$3,now())
	`, line.ProductID, line.MaterialID, line.QtyPerUnit)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := line
	return &created, nil
}

func (s *Store) UpdateRecipeLine(ctx context.Context, productID string, materialID string, qtyPerUnit float64) (*domain.RecipeLine, error) {
	if productID == "" || materialID == "" || qtyPerUnit <= 0 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE recipe_items
		SET qty_per_unit = $3
		WHERE product_id = $1 AND material_id = $2
	`, productID, materialID, qtyPerUnit)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return &domain.RecipeLine{ProductID: productID, MaterialID: materialID, QtyPerUnit: qtyPerUnit}, nil
}

func (s *Store) RemoveRecipeLine(ctx context.Context, productID string, materialID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM recipe_items
		WHERE product_id = $1 AND material_id = $2
	`, productID, materialID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListMaterials(ctx context.Context, search string) ([]domain.Material, error) {
	search = strings.TrimSpace(search)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, stock, min_stock, updated_at
		FROM materials
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR id ILIKE '%' || $1 || '%')
		ORDER BY name
	`, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]domain.Material, 0, 64)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return materials, nil
}

func (s *Store) GetMaterialByID(ctx context.Context, id string) (*domain.Material, error) {
	var m domain.Material
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit, stock, min_stock, updated_at
		FROM materials
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Unit, &m.Stock, &m.MinStock, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMaterialNotFound
		}
		return nil, err
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
	return &m, nil
}

func (s *Store) CreateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	if material.ID == "" || material.Name == "" || material.Unit == "" {
		return nil, store.ErrInvalidInput
	}
	if material.Stock < 0 || material.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}
	material.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materials (id, name, unit, stock, min_stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),$6)
	`, material.ID, material.Name, material.Unit, material.Stock, material.MinStock, material.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	material.Status = domain.MaterialStatusFor(material.Stock, material.MinStock)
	created := material
	return &created, nil
}

func (s *Store) UpdateMaterial(ctx context.Context, material domain.Material) (*domain.Material, error) {
	if material.ID == "" || material.Name == "" || material.Unit == "" || material.MinStock < 0 {
		return nil, store.ErrInvalidInput
	}

	var m domain.Material
	err := s.db.QueryRowContext(ctx, `
		UPDATE materials
		SET name = $2, unit = $3, min_stock = $4, updated_at = now()
		WHERE id = $1
		RETURNING id, name, unit, stock, min_stock, updated_at
	`, material.ID, material.Name, material.Unit, material.MinStock).Scan(
		&m.ID, &m.Name, &m.Unit, &m.Stock, &m.MinStock, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMaterialNotFound
		}
		return nil, err
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
	return &m, nil
}

func (s *Store) DeleteMaterial(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var recipeRefs int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recipe_items WHERE material_id = $1
	`, id).Scan(&recipeRefs); err != nil {
		return err
	}
	var openOrders int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM procurement_orders WHERE material_id = $1 AND status <> $2
	`, id, domain.ProcurementStatusReceived).Scan(&openOrders); err != nil {
		return err
	}
	if recipeRefs > 0 || openOrders > 0 {
		return store.ErrMaterialInUse
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrMaterialNotFound
	}

	return tx.Commit()
}

// AdjustMaterialStock applies the delta in a single statement so concurrent
// adjustments to the same material serialize on the row. Negative results
// clamp to zero.
func (s *Store) AdjustMaterialStock(ctx context.Context, id string, delta float64) (*domain.Material, error) {
	var m domain.Material
	err := s.db.QueryRowContext(ctx, `
		UPDATE materials
		SET stock = GREATEST(0, stock + $2), updated_at = now()
		WHERE id = $1
		RETURNING id, name, unit, stock, min_stock, updated_at
	`, id, delta).Scan(&m.ID, &m.Name, &m.Unit, &m.Stock, &m.MinStock, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMaterialNotFound
		}
		return nil, err
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
	return &m, nil
}

func (s *Store) ListLowStockMaterials(ctx context.Context) ([]domain.Material, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, stock, min_stock, updated_at
		FROM materials
		WHERE stock < min_stock
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	materials := make([]domain.Material, 0, 16)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return materials, nil
}

// CreateTransaction re-prices every line from the catalog inside one
// serializable transaction and persists the header together with its lines.
// Inventory is never touched here; deduction happens when a fulfillment
// order completes.
func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var cashierActive bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT active FROM app_users WHERE username = $1
	`, tx.CashierUsername).Scan(&cashierActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrUserInvalid
		}
		return nil, err
	}
	if !cashierActive {
		return nil, store.ErrUserInvalid
	}

	ids := uniqueProductIDs(tx.Items)
	if len(ids) == 0 {
		return nil, store.ErrInvalidInput
	}

	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, price
		FROM products
		WHERE active = true AND id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(ids))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	total := int64(0)
	repriced := make([]domain.TransactionLine, 0, len(tx.Items))
	for _, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		product, exists := productMap[item.ProductID]
		if !exists {
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (id, cashier_username, total, status, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, tx.ID, tx.CashierUsername, tx.Total, tx.Status, tx.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_id, name, qty, unit_price, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, item.ProductID, item.Name, item.Qty, item.UnitPrice, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &tx, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_username, total, status, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.CashierUsername, &tx.Total, &tx.Status, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.CreatedAt = tx.CreatedAt.UTC()

	items, err := s.listTransactionItems(ctx, []string{tx.ID})
	if err != nil {
		return nil, err
	}
	tx.Items = items[tx.ID]

	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cashier_username, total, status, created_at
		FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CashierUsername, &tx.Total, &tx.Status, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
		ids = append(ids, tx.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	itemMap, err := s.listTransactionItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Items = itemMap[result[i].ID]
	}
	return result, nil
}

func (s *Store) listTransactionItems(ctx context.Context, transactionIDs []string) (map[string][]domain.TransactionLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, product_id, name, qty, unit_price, subtotal
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY id ASC
	`, transactionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	itemMap := make(map[string][]domain.TransactionLine, len(transactionIDs))
	for rows.Next() {
		var txID string
		var line domain.TransactionLine
		if err := rows.Scan(&txID, &line.ProductID, &line.Name, &line.Qty, &line.UnitPrice, &line.Subtotal); err != nil {
			return nil, err
		}
		itemMap[txID] = append(itemMap[txID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return itemMap, nil
}

func (s *Store) CreateFulfillmentOrder(ctx context.Context, order domain.FulfillmentOrder) (*domain.FulfillmentOrder, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	for _, line := range order.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
	}
	if order.ID == "" {
		order.ID = xid.New("ford")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.FulfillmentStatusWaiting
	}
	if !domain.ValidFulfillmentStatus(order.Status) {
		return nil, store.ErrInvalidStatus
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]string, 0, len(order.Items))
	for _, line := range order.Items {
		ids = append(ids, line.ProductID)
	}
	nameRows, err := tx.QueryContext(ctx, `
		SELECT id, name FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(ids))
	for nameRows.Next() {
		var id, name string
		if err := nameRows.Scan(&id, &name); err != nil {
			_ = nameRows.Close()
			return nil, err
		}
		names[id] = name
	}
	if err := nameRows.Err(); err != nil {
		_ = nameRows.Close()
		return nil, err
	}
	_ = nameRows.Close()
	for i, line := range order.Items {
		name, exists := names[line.ProductID]
		if !exists {
			return nil, store.ErrProductNotFound
		}
		order.Items[i].ProductName = name
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT nextval('fulfillment_order_seq')`).Scan(&seq); err != nil {
		return nil, err
	}
	order.Number = fmt.Sprintf("ORD-%06d", seq)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fulfillment_orders (
			id, number, customer_name, cashier_username, transaction_id, status, created_at, completed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULL)
	`, order.ID, order.Number, nullIfEmpty(order.CustomerName), nullIfEmpty(order.CashierUsername), nullIfEmpty(order.TransactionID), order.Status, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, line := range order.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fulfillment_order_items (order_id, product_id, qty, notes)
			VALUES ($1,$2,$3,$4)
		`, order.ID, line.ProductID, line.Qty, nullIfEmpty(line.Notes))
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetFulfillmentOrderByID(ctx context.Context, id string) (*domain.FulfillmentOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, customer_name, cashier_username, transaction_id, status, created_at, completed_at
		FROM fulfillment_orders
		WHERE id = $1
	`, id)
	order, err := scanFulfillmentOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	itemMap, err := s.listFulfillmentItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = itemMap[order.ID]
	return order, nil
}

func (s *Store) ListFulfillmentOrders(ctx context.Context, status string, limit int) ([]domain.FulfillmentOrder, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, customer_name, cashier_username, transaction_id, status, created_at, completed_at
		FROM fulfillment_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.FulfillmentOrder, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		order, err := scanFulfillmentOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	itemMap, err := s.listFulfillmentItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemMap[orders[i].ID]
	}
	return orders, nil
}

func (s *Store) listFulfillmentItems(ctx context.Context, orderIDs []string) (map[string][]domain.FulfillmentLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.order_id, i.product_id, p.name, i.qty, COALESCE(i.notes,'')
		FROM fulfillment_order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.id ASC
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	itemMap := make(map[string][]domain.FulfillmentLine, len(orderIDs))
	for rows.Next() {
		var orderID string
		var line domain.FulfillmentLine
		if err := rows.Scan(&orderID, &line.ProductID, &line.ProductName, &line.Qty, &line.Notes); err != nil {
			return nil, err
		}
		itemMap[orderID] = append(itemMap[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return itemMap, nil
}

// AdvanceFulfillmentOrder moves the order to the target status. The status
// write is unconditional; material deduction runs only on the first entry
// into completed, so re-sending completed is a harmless no-op and any
// forward jump (including waiting straight to completed) deducts exactly
// once.
func (s *Store) AdvanceFulfillmentOrder(ctx context.Context, id string, target string, at time.Time) (*domain.FulfillmentOrder, error) {
	if !domain.ValidFulfillmentStatus(target) {
		return nil, store.ErrInvalidStatus
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var order domain.FulfillmentOrder
	var customerName sql.NullString
	var cashierUsername sql.NullString
	var transactionID sql.NullString
	var completedAt sql.NullTime
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, number, customer_name, cashier_username, transaction_id, status, created_at, completed_at
		FROM fulfillment_orders
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&order.ID,
		&order.Number,
		&customerName,
		&cashierUsername,
		&transactionID,
		&order.Status,
		&order.CreatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if customerName.Valid {
		order.CustomerName = customerName.String
	}
	if cashierUsername.Valid {
		order.CashierUsername = cashierUsername.String
	}
	if transactionID.Valid {
		order.TransactionID = transactionID.String
	}
	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		order.CompletedAt = &completed
	}

	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT i.product_id, p.name, i.qty, COALESCE(i.notes,'')
		FROM fulfillment_order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var line domain.FulfillmentLine
		if err := itemRows.Scan(&line.ProductID, &line.ProductName, &line.Qty, &line.Notes); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		order.Items = append(order.Items, line)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	deduct := target == domain.FulfillmentStatusCompleted && order.Status != domain.FulfillmentStatusCompleted
	if deduct {
		if err := s.deductRecipeMaterials(ctx, pgTx, order.Items); err != nil {
			return nil, err
		}
		order.CompletedAt = &at
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE fulfillment_orders
		SET status = $2, completed_at = $3
		WHERE id = $1
	`, id, target, nullTime(order.CompletedAt))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	order.Status = target
	return &order, nil
}

// deductRecipeMaterials locks the material rows consumed by the order's
// lines and subtracts the aggregated consumption. Materials are processed
// in sorted order so concurrent completions lock rows consistently. Stock
// never goes below zero; a clamped deduction is logged but not treated as
// an error.
func (s *Store) deductRecipeMaterials(ctx context.Context, pgTx *sql.Tx, items []domain.FulfillmentLine) error {
	needByMaterial := make(map[string]float64, 8)
	for _, item := range items {
		lineRows, err := pgTx.QueryContext(ctx, `
			SELECT material_id, qty_per_unit
			FROM recipe_items
			WHERE product_id = $1
			ORDER BY material_id
		`, item.ProductID)
		if err != nil {
			return err
		}
		for lineRows.Next() {
			var materialID string
			var qtyPerUnit float64
			if err := lineRows.Scan(&materialID, &qtyPerUnit); err != nil {
				_ = lineRows.Close()
				return err
			}
			needByMaterial[materialID] += qtyPerUnit * float64(item.Qty)
		}
		if err := lineRows.Err(); err != nil {
			_ = lineRows.Close()
			return err
		}
		_ = lineRows.Close()
	}

	type consumption struct {
		materialID string
		need       float64
	}
	needs := make([]consumption, 0, len(needByMaterial))
	for materialID, need := range needByMaterial {
		needs = append(needs, consumption{materialID: materialID, need: need})
	}
	sort.Slice(needs, func(i, j int) bool { return needs[i].materialID < needs[j].materialID })

	for _, c := range needs {
		var before float64
		err := pgTx.QueryRowContext(ctx, `
			SELECT stock FROM materials WHERE id = $1 FOR UPDATE
		`, c.materialID).Scan(&before)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrMaterialNotFound
			}
			return err
		}
		if before < c.need {
			log.Printf("[store] WARN: deduction clamped material=%s stock=%.2f need=%.2f", c.materialID, before, c.need)
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE materials
			SET stock = GREATEST(0, stock - $2), updated_at = now()
			WHERE id = $1
		`, c.materialID, c.need)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DeleteFulfillmentOrder(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fulfillment_order_items WHERE order_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM fulfillment_orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) CreateProcurementOrder(ctx context.Context, order domain.ProcurementOrder) (*domain.ProcurementOrder, error) {
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

	var materialName string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM materials WHERE id = $1
	`, order.MaterialID).Scan(&materialName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrMaterialNotFound
		}
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO procurement_orders (id, material_id, supplier_id, qty, status, ordered_by, order_date, received_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULL)
	`, order.ID, order.MaterialID, nullIfEmpty(order.SupplierID), order.Qty, order.Status, nullIfEmpty(order.OrderedBy), order.OrderDate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	order.MaterialName = materialName
	created := order
	return &created, nil
}

func (s *Store) GetProcurementOrderByID(ctx context.Context, id string) (*domain.ProcurementOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.material_id, m.name, o.supplier_id, o.qty, o.status, o.ordered_by, o.order_date, o.received_date
		FROM procurement_orders o
		JOIN materials m ON m.id = o.material_id
		WHERE o.id = $1
	`, id)
	order, err := scanProcurementOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return order, nil
}

func (s *Store) ListProcurementOrders(ctx context.Context, status string, limit int) ([]domain.ProcurementOrder, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.material_id, m.name, o.supplier_id, o.qty, o.status, o.ordered_by, o.order_date, o.received_date
		FROM procurement_orders o
		JOIN materials m ON m.id = o.material_id
		WHERE ($1 = '' OR o.status = $1)
		ORDER BY o.order_date DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.ProcurementOrder, 0, limit)
	for rows.Next() {
		order, err := scanProcurementOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateProcurementOrderStatus moves the order to the target status. Stock
// increments only on the first entry into Diterima, and received_date is
// written on that same transition and never afterwards.
func (s *Store) UpdateProcurementOrderStatus(ctx context.Context, id string, target string, receivedAt time.Time) (*domain.ProcurementOrder, error) {
	if !domain.ValidProcurementStatus(target) {
		return nil, store.ErrInvalidStatus
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var order domain.ProcurementOrder
	var supplierID sql.NullString
	var orderedBy sql.NullString
	var receivedDate sql.NullTime
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, material_id, supplier_id, qty, status, ordered_by, order_date, received_date
		FROM procurement_orders
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&order.ID,
		&order.MaterialID,
		&supplierID,
		&order.Qty,
		&order.Status,
		&orderedBy,
		&order.OrderDate,
		&receivedDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.OrderDate = order.OrderDate.UTC()
	if supplierID.Valid {
		order.SupplierID = supplierID.String
	}
	if orderedBy.Valid {
		order.OrderedBy = orderedBy.String
	}
	if receivedDate.Valid {
		received := receivedDate.Time.UTC()
		order.ReceivedDate = &received
	}

	receive := target == domain.ProcurementStatusReceived && order.Status != domain.ProcurementStatusReceived
	if receive {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE materials
			SET stock = stock + $2, updated_at = now()
			WHERE id = $1
		`, order.MaterialID, order.Qty)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrMaterialNotFound
		}
		order.ReceivedDate = &receivedAt
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE procurement_orders
		SET status = $2, received_date = $3
		WHERE id = $1
	`, id, target, nullTime(order.ReceivedDate))
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	var materialName string
	if err := s.db.QueryRowContext(ctx, `SELECT name FROM materials WHERE id = $1`, order.MaterialID).Scan(&materialName); err == nil {
		order.MaterialName = materialName
	}
	order.Status = target
	return &order, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Phone), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), created_at
		FROM suppliers
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var item domain.Supplier
		if err := rows.Scan(&item.ID, &item.Name, &item.Phone, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		suppliers = append(suppliers, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		WHERE username = $1
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (domain.Material, error) {
	var m domain.Material
	if err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.Stock, &m.MinStock, &m.UpdatedAt); err != nil {
		return domain.Material{}, err
	}
	m.UpdatedAt = m.UpdatedAt.UTC()
	m.Status = domain.MaterialStatusFor(m.Stock, m.MinStock)
	return m, nil
}

func scanFulfillmentOrder(row rowScanner) (*domain.FulfillmentOrder, error) {
	var order domain.FulfillmentOrder
	var customerName sql.NullString
	var cashierUsername sql.NullString
	var transactionID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.Number,
		&customerName,
		&cashierUsername,
		&transactionID,
		&order.Status,
		&order.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	if customerName.Valid {
		order.CustomerName = customerName.String
	}
	if cashierUsername.Valid {
		order.CashierUsername = cashierUsername.String
	}
	if transactionID.Valid {
		order.TransactionID = transactionID.String
	}
	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		order.CompletedAt = &completed
	}
	return &order, nil
}

func scanProcurementOrder(row rowScanner) (*domain.ProcurementOrder, error) {
	var order domain.ProcurementOrder
	var supplierID sql.NullString
	var orderedBy sql.NullString
	var receivedDate sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.MaterialID,
		&order.MaterialName,
		&supplierID,
		&order.Qty,
		&order.Status,
		&orderedBy,
		&order.OrderDate,
		&receivedDate,
	)
	if err != nil {
		return nil, err
	}
	order.OrderDate = order.OrderDate.UTC()
	if supplierID.Valid {
		order.SupplierID = supplierID.String
	}
	if orderedBy.Valid {
		order.OrderedBy = orderedBy.String
	}
	if receivedDate.Valid {
		received := receivedDate.Time.UTC()
		order.ReceivedDate = &received
	}
	return &order, nil
}

func uniqueProductIDs(items []domain.TransactionLine) []string {
	if len(items) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		set[item.ProductID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
