package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adriankf59/cafe-merput/internal/cache"
	"github.com/Adriankf59/cafe-merput/internal/domain"
	"github.com/Adriankf59/cafe-merput/internal/replenish"
	"github.com/Adriankf59/cafe-merput/internal/store"
	"github.com/Adriankf59/cafe-merput/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	replenisher := replenish.NewEngine(cache.NoopSuggestionCache{}, 5*time.Second)
	return New(repo, replenisher)
}

func managerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "manager", Role: "manager"})
}

func TestCreateTransactionRecomputesTotalFromCatalog(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "kasir"})

	tx, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items: []domain.CartLine{
			{ProductID: "PRD-KOPSU-01", Qty: 2},
			{ProductID: "PRD-ROBAK-01", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}

	if tx.Total != 61000 {
		t.Fatalf("expected total 61000, got %d", tx.Total)
	}
	if tx.CashierUsername != "kasir" {
		t.Fatalf("expected cashier from actor, got %s", tx.CashierUsername)
	}
	for _, line := range tx.Items {
		if line.Subtotal != line.UnitPrice*int64(line.Qty) {
			t.Fatalf("line subtotal mismatch for %s", line.ProductID)
		}
	}
}

func TestCreateTransactionUnknownProductLeavesNoRecord(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "kasir"})

	_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items: []domain.CartLine{
			{ProductID: "PRD-KOPSU-01", Qty: 1},
			{ProductID: "PRD-DOES-NOT-EXIST", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	transactions, err := svc.ListTransactions(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(transactions) != 0 {
		t.Fatalf("expected no persisted transaction, got %d", len(transactions))
	}
}

func TestCreateTransactionRejectsUnknownCashier(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateTransaction(context.Background(), domain.TransactionCreateRequest{
		CashierUsername: "ghost",
		Items:           []domain.CartLine{{ProductID: "PRD-KOPSU-01", Qty: 1}},
	})
	if !errors.Is(err, store.ErrUserInvalid) {
		t.Fatalf("expected ErrUserInvalid, got %v", err)
	}
}

func TestCreateTransactionAggregatesDuplicateLines(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "kasir"})

	tx, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items: []domain.CartLine{
			{ProductID: "PRD-KOPSU-01", Qty: 1},
			{ProductID: "PRD-KOPSU-01", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	if len(tx.Items) != 1 {
		t.Fatalf("expected aggregated single line, got %d", len(tx.Items))
	}
	if tx.Items[0].Qty != 2 || tx.Total != 36000 {
		t.Fatalf("expected qty 2 total 36000, got qty %d total %d", tx.Items[0].Qty, tx.Total)
	}
}

func TestCreateTransactionRejectsCartWithInvalidLine(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "kasir"})

	_, err := svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items: []domain.CartLine{
			{ProductID: "PRD-KOPSU-01", Qty: 1},
			{ProductID: "PRD-ROBAK-01", Qty: 0},
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero qty, got %v", err)
	}

	_, err = svc.CreateTransaction(ctx, domain.TransactionCreateRequest{
		Items: []domain.CartLine{
			{ProductID: "   ", Qty: 2},
			{ProductID: "PRD-KOPSU-01", Qty: 1},
		},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank product, got %v", err)
	}

	transactions, err := svc.ListTransactions(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list transactions failed: %v", err)
	}
	if len(transactions) != 0 {
		t.Fatalf("rejected cart must leave no record, got %d", len(transactions))
	}
}

func TestFulfillmentCompletionDeductsAndClamps(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	material, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{
		ID: "MAT-SIRUP-01", Name: "Sirup Vanila", Unit: "ml", Stock: 10, MinStock: 5,
	})
	if err != nil {
		t.Fatalf("create material failed: %v", err)
	}
	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		ID: "PRD-VANLA-01", Name: "Vanilla Latte", Category: "minuman", Price: 24000,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if _, err := svc.AddRecipeLine(ctx, product.ID, domain.RecipeLineCreateRequest{
		MaterialID: material.ID, QtyPerUnit: 12,
	}); err != nil {
		t.Fatalf("add recipe line failed: %v", err)
	}

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items:        []domain.FulfillmentLineRequest{{ProductID: product.ID, Qty: 1}},
		CustomerName: "Budi",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Status != domain.FulfillmentStatusWaiting {
		t.Fatalf("expected waiting status, got %s", order.Status)
	}

	updated, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
		Status: domain.FulfillmentStatusCompleted,
	})
	if err != nil {
		t.Fatalf("complete order failed: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	after, err := svc.GetMaterial(ctx, material.ID)
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}
	if after.Stock != 0 {
		t.Fatalf("expected clamped stock 0, got %.2f", after.Stock)
	}
	if after.Status != domain.MaterialStatusLow {
		t.Fatalf("expected status %q, got %q", domain.MaterialStatusLow, after.Status)
	}
}

func TestFulfillmentDoubleCompleteDeductsOnce(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	before, err := svc.GetMaterial(ctx, "MAT-KOPI-01")
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-AMERI-01", Qty: 2}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
			Status: domain.FulfillmentStatusCompleted,
		}); err != nil {
			t.Fatalf("complete attempt %d failed: %v", i+1, err)
		}
	}

	after, err := svc.GetMaterial(ctx, "MAT-KOPI-01")
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}
	// Americano consumes 18 gram per unit; two units once.
	if got, want := before.Stock-after.Stock, 36.0; got != want {
		t.Fatalf("expected single deduction of %.0f, got %.2f", want, got)
	}
}

func TestFulfillmentWaitingToCompletedFastPath(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	before, _ := svc.GetMaterial(ctx, "MAT-TEH-01")

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-TEHMA-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	updated, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
		Status: domain.FulfillmentStatusCompleted,
	})
	if err != nil {
		t.Fatalf("fast-path complete failed: %v", err)
	}
	if updated.Status != domain.FulfillmentStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.Status)
	}

	after, _ := svc.GetMaterial(ctx, "MAT-TEH-01")
	if before.Stock-after.Stock != 5 {
		t.Fatalf("expected 5 gram deducted, got %.2f", before.Stock-after.Stock)
	}
}

func TestFulfillmentNonCompletedTransitionsDoNotDeduct(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	before, _ := svc.GetMaterial(ctx, "MAT-KOPI-01")

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-AMERI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	for _, status := range []string{domain.FulfillmentStatusProcessing, domain.FulfillmentStatusReady} {
		if _, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{Status: status}); err != nil {
			t.Fatalf("transition to %s failed: %v", status, err)
		}
	}

	after, _ := svc.GetMaterial(ctx, "MAT-KOPI-01")
	if before.Stock != after.Stock {
		t.Fatalf("expected no deduction before completion, got delta %.2f", before.Stock-after.Stock)
	}
}

func TestFulfillmentRejectsUnknownStatus(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-AMERI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	_, err = svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{Status: "dibatalkan"})
	if !errors.Is(err, store.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestDeleteCompletedFulfillmentOrderKeepsDeduction(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-AMERI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
		Status: domain.FulfillmentStatusCompleted,
	}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	afterComplete, _ := svc.GetMaterial(ctx, "MAT-KOPI-01")

	if err := svc.DeleteFulfillmentOrder(ctx, order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := svc.GetFulfillmentOrder(ctx, order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected order gone, got %v", err)
	}

	afterDelete, _ := svc.GetMaterial(ctx, "MAT-KOPI-01")
	if afterComplete.Stock != afterDelete.Stock {
		t.Fatalf("delete must not reverse deduction: %.2f vs %.2f", afterComplete.Stock, afterDelete.Stock)
	}
}

func TestFulfillmentOrderEmptyRecipeCompletes(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	materialsBefore, _ := svc.ListMaterials(ctx, "")

	// Croissant has no recipe lines in the seed data.
	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-CROIS-01", Qty: 3}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if _, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
		Status: domain.FulfillmentStatusCompleted,
	}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	materialsAfter, _ := svc.ListMaterials(ctx, "")
	for i := range materialsBefore {
		if materialsBefore[i].Stock != materialsAfter[i].Stock {
			t.Fatalf("material %s changed on empty-recipe completion", materialsBefore[i].ID)
		}
	}
}

func TestFulfillmentMultiLineCompletionDeductsAllLines(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	kopiBefore, _ := svc.GetMaterial(ctx, "MAT-KOPI-01")
	tehBefore, _ := svc.GetMaterial(ctx, "MAT-TEH-01")

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{
			{ProductID: "PRD-AMERI-01", Qty: 2},
			{ProductID: "PRD-TEHMA-01", Qty: 1, Notes: "tanpa gula"},
		},
		CustomerName: "Sari",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected two lines, got %d", len(order.Items))
	}
	if order.Items[0].ProductName != "Americano" || order.Items[1].ProductName != "Teh Manis" {
		t.Fatalf("expected product names resolved, got %+v", order.Items)
	}
	if order.Items[1].Notes != "tanpa gula" {
		t.Fatalf("expected notes carried, got %q", order.Items[1].Notes)
	}

	if _, err := svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
		Status: domain.FulfillmentStatusCompleted,
	}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	kopiAfter, _ := svc.GetMaterial(ctx, "MAT-KOPI-01")
	tehAfter, _ := svc.GetMaterial(ctx, "MAT-TEH-01")
	// Two Americano consume 36 gram coffee; one Teh Manis consumes 5 gram tea.
	if got := kopiBefore.Stock - kopiAfter.Stock; got != 36 {
		t.Fatalf("expected 36 deducted from coffee, got %.2f", got)
	}
	if got := tehBefore.Stock - tehAfter.Stock; got != 5 {
		t.Fatalf("expected 5 deducted from tea, got %.2f", got)
	}
}

func TestCreateFulfillmentOrderRejectsInvalidLine(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	cases := []domain.FulfillmentOrderCreateRequest{
		{},
		{Items: []domain.FulfillmentLineRequest{
			{ProductID: "PRD-AMERI-01", Qty: 1},
			{ProductID: "PRD-TEHMA-01", Qty: 0},
		}},
		{Items: []domain.FulfillmentLineRequest{{ProductID: "  ", Qty: 1}}},
	}
	for _, req := range cases {
		if _, err := svc.CreateFulfillmentOrder(ctx, req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", req, err)
		}
	}

	orders, err := svc.ListFulfillmentOrders(ctx, "", 10)
	if err != nil {
		t.Fatalf("list orders failed: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("rejected order must leave no record, got %d", len(orders))
	}
}

func TestOrderCreationRecordsActor(t *testing.T) {
	svc := newTestService()
	kasirCtx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "kasir"})

	order, err := svc.CreateFulfillmentOrder(kasirCtx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-AMERI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.CashierUsername != "kasir" {
		t.Fatalf("expected cashier from actor, got %q", order.CashierUsername)
	}
	fetched, err := svc.GetFulfillmentOrder(kasirCtx, order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if fetched.CashierUsername != "kasir" {
		t.Fatalf("expected cashier persisted, got %q", fetched.CashierUsername)
	}

	pengadaanCtx := WithActor(context.Background(), domain.Actor{Username: "pengadaan", Role: "pengadaan"})
	po, err := svc.CreateProcurementOrder(pengadaanCtx, domain.ProcurementOrderCreateRequest{
		MaterialID: "MAT-BERAS-01", Qty: 5,
	})
	if err != nil {
		t.Fatalf("create procurement order failed: %v", err)
	}
	if po.OrderedBy != "pengadaan" {
		t.Fatalf("expected ordered_by from actor, got %q", po.OrderedBy)
	}
	gotPO, err := svc.GetProcurementOrder(pengadaanCtx, po.ID)
	if err != nil {
		t.Fatalf("get procurement order failed: %v", err)
	}
	if gotPO.OrderedBy != "pengadaan" {
		t.Fatalf("expected ordered_by persisted, got %q", gotPO.OrderedBy)
	}
}

func TestConcurrentCompletionDeductsOnce(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	before, err := svc.GetMaterial(ctx, "MAT-KOPI-01")
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}

	order, err := svc.CreateFulfillmentOrder(ctx, domain.FulfillmentOrderCreateRequest{
		Items: []domain.FulfillmentLineRequest{{ProductID: "PRD-AMERI-01", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.UpdateFulfillmentOrderStatus(ctx, order.ID, domain.FulfillmentOrderUpdateRequest{
				Status: domain.FulfillmentStatusCompleted,
			})
		}()
	}
	wg.Wait()

	after, err := svc.GetMaterial(ctx, "MAT-KOPI-01")
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}
	if got := before.Stock - after.Stock; got != 18 {
		t.Fatalf("expected exactly one deduction of 18, got %.2f", got)
	}
}

func TestConcurrentReceiptIncrementsOnce(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "pengadaan", Role: "pengadaan"})

	before, err := svc.GetMaterial(ctx, "MAT-BERAS-01")
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}

	order, err := svc.CreateProcurementOrder(ctx, domain.ProcurementOrderCreateRequest{
		MaterialID: "MAT-BERAS-01", Qty: 50,
	})
	if err != nil {
		t.Fatalf("create procurement order failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.UpdateProcurementOrderStatus(ctx, order.ID, domain.ProcurementOrderUpdateRequest{
				Status: domain.ProcurementStatusReceived,
			})
		}()
	}
	wg.Wait()

	after, err := svc.GetMaterial(ctx, "MAT-BERAS-01")
	if err != nil {
		t.Fatalf("get material failed: %v", err)
	}
	if got := after.Stock - before.Stock; got != 50 {
		t.Fatalf("expected exactly one increment of 50, got %.2f", got)
	}
}

func TestProcurementReceiptIncrementsExactlyOnce(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "pengadaan", Role: "pengadaan"})

	before, _ := svc.GetMaterial(ctx, "MAT-BERAS-01")

	order, err := svc.CreateProcurementOrder(ctx, domain.ProcurementOrderCreateRequest{
		MaterialID: "MAT-BERAS-01", Qty: 50,
	})
	if err != nil {
		t.Fatalf("create procurement order failed: %v", err)
	}
	if order.Status != domain.ProcurementStatusPending || order.ReceivedDate != nil {
		t.Fatalf("expected fresh Pending order without received date")
	}

	shipped, err := svc.UpdateProcurementOrderStatus(ctx, order.ID, domain.ProcurementOrderUpdateRequest{
		Status: domain.ProcurementStatusShipped,
	})
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if shipped.ReceivedDate != nil {
		t.Fatalf("received date must stay empty before receipt")
	}

	for i := 0; i < 2; i++ {
		received, err := svc.UpdateProcurementOrderStatus(ctx, order.ID, domain.ProcurementOrderUpdateRequest{
			Status: domain.ProcurementStatusReceived,
		})
		if err != nil {
			t.Fatalf("receive attempt %d failed: %v", i+1, err)
		}
		if received.ReceivedDate == nil {
			t.Fatalf("expected received date after receipt")
		}
	}

	after, _ := svc.GetMaterial(ctx, "MAT-BERAS-01")
	if after.Stock-before.Stock != 50 {
		t.Fatalf("expected single increment of 50, got %.2f", after.Stock-before.Stock)
	}
}

func TestProcurementRequiresRole(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "kasir", Role: "kasir"})

	_, err := svc.CreateProcurementOrder(ctx, domain.ProcurementOrderCreateRequest{
		MaterialID: "MAT-BERAS-01", Qty: 5,
	})
	if err == nil {
		t.Fatalf("expected role rejection for kasir")
	}
}

func TestAdjustMaterialStockClamps(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	material, err := svc.AdjustMaterialStock(ctx, "MAT-PISANG-01", domain.MaterialAdjustRequest{
		Delta: -1000, Reason: "stock opname",
	})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if material.Stock != 0 {
		t.Fatalf("expected clamp to 0, got %.2f", material.Stock)
	}
	if material.Status != domain.MaterialStatusLow {
		t.Fatalf("expected low status after clamp, got %s", material.Status)
	}

	other, _ := svc.GetMaterial(ctx, "MAT-BERAS-01")
	if other.Stock != 12 {
		t.Fatalf("adjust leaked into another material: %.2f", other.Stock)
	}
}

func TestMaterialUnitValidation(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	_, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{
		ID: "MAT-ES-01", Name: "Es Batu", Unit: "balok", Stock: 10, MinStock: 2,
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown unit, got %v", err)
	}

	created, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{
		ID: "MAT-ES-01", Name: "Es Batu", Unit: "kg", Stock: 10, MinStock: 2,
	})
	if err != nil {
		t.Fatalf("create material failed: %v", err)
	}

	bad := "karung"
	if _, err := svc.UpdateMaterial(ctx, created.ID, domain.MaterialUpdateRequest{Unit: &bad}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown unit on update, got %v", err)
	}

	good := "liter"
	updated, err := svc.UpdateMaterial(ctx, created.ID, domain.MaterialUpdateRequest{Unit: &good})
	if err != nil {
		t.Fatalf("update material failed: %v", err)
	}
	if updated.Unit != "liter" {
		t.Fatalf("expected unit liter, got %q", updated.Unit)
	}
}

func TestMaterialStatusBoundary(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	material, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{
		ID: "MAT-EDGE-01", Name: "Garam", Unit: "gram", Stock: 100, MinStock: 100,
	})
	if err != nil {
		t.Fatalf("create material failed: %v", err)
	}
	if material.Status != domain.MaterialStatusSafe {
		t.Fatalf("stock == min_stock must be %q, got %q", domain.MaterialStatusSafe, material.Status)
	}

	adjusted, err := svc.AdjustMaterialStock(ctx, material.ID, domain.MaterialAdjustRequest{Delta: -0.5})
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if adjusted.Status != domain.MaterialStatusLow {
		t.Fatalf("stock below min_stock must be %q, got %q", domain.MaterialStatusLow, adjusted.Status)
	}
}

func TestLowStockListing(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	if _, err := svc.AdjustMaterialStock(ctx, "MAT-ROTI-01", domain.MaterialAdjustRequest{Delta: -35}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	low, err := svc.ListLowStockMaterials(ctx)
	if err != nil {
		t.Fatalf("list low stock failed: %v", err)
	}
	found := false
	for _, m := range low {
		if m.ID == "MAT-ROTI-01" {
			found = true
		}
		if m.Status != domain.MaterialStatusLow {
			t.Fatalf("low-stock listing must carry low status, got %s", m.Status)
		}
	}
	if !found {
		t.Fatalf("expected MAT-ROTI-01 in low-stock listing")
	}
}

func TestAddDuplicateRecipeLineConflicts(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	_, err := svc.AddRecipeLine(ctx, "PRD-AMERI-01", domain.RecipeLineCreateRequest{
		MaterialID: "MAT-KOPI-01", QtyPerUnit: 20,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate pair, got %v", err)
	}
}

func TestDeleteMaterialInUseGuard(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	err := svc.DeleteMaterial(ctx, "MAT-KOPI-01")
	if !errors.Is(err, store.ErrMaterialInUse) {
		t.Fatalf("expected ErrMaterialInUse, got %v", err)
	}

	if _, err := svc.CreateMaterial(ctx, domain.MaterialCreateRequest{
		ID: "MAT-FREE-01", Name: "Kayu Manis", Unit: "gram", Stock: 50, MinStock: 10,
	}); err != nil {
		t.Fatalf("create material failed: %v", err)
	}
	if err := svc.DeleteMaterial(ctx, "MAT-FREE-01"); err != nil {
		t.Fatalf("delete unreferenced material failed: %v", err)
	}
}

func TestProductPriceChangeRecordsHistory(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	newPrice := int64(20000)
	if _, err := svc.UpdateProduct(ctx, "PRD-KOPSU-01", domain.ProductUpdateRequest{Price: &newPrice}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	history, err := svc.ListProductPriceHistory(ctx, "PRD-KOPSU-01", 10)
	if err != nil {
		t.Fatalf("list price history failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	if history[0].OldPrice != 18000 || history[0].NewPrice != 20000 {
		t.Fatalf("unexpected history entry: %+v", history[0])
	}
}

func TestReplenishmentSkipsCoveredMaterials(t *testing.T) {
	svc := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{Username: "pengadaan", Role: "pengadaan"})

	if _, err := svc.AdjustMaterialStock(managerCtx(), "MAT-ROTI-01", domain.MaterialAdjustRequest{Delta: -35}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if _, err := svc.AdjustMaterialStock(managerCtx(), "MAT-MENTE-01", domain.MaterialAdjustRequest{Delta: -800}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	if _, err := svc.CreateProcurementOrder(ctx, domain.ProcurementOrderCreateRequest{
		MaterialID: "MAT-MENTE-01", Qty: 500,
	}); err != nil {
		t.Fatalf("create procurement order failed: %v", err)
	}

	resp, err := svc.ReplenishmentSuggestions(ctx)
	if err != nil {
		t.Fatalf("suggestions failed: %v", err)
	}

	var gotRoti, gotMentega bool
	for _, s := range resp.Suggestions {
		if s.MaterialID == "MAT-ROTI-01" {
			gotRoti = true
			if s.SuggestedQty < 1 {
				t.Fatalf("expected positive suggested qty, got %.2f", s.SuggestedQty)
			}
		}
		if s.MaterialID == "MAT-MENTE-01" {
			gotMentega = true
		}
	}
	if !gotRoti {
		t.Fatalf("expected suggestion for uncovered low-stock material")
	}
	if gotMentega {
		t.Fatalf("material with open procurement order must not be suggested")
	}
}

func TestAuditLogWrittenForMutations(t *testing.T) {
	svc := newTestService()
	ctx := managerCtx()

	if _, err := svc.AdjustMaterialStock(ctx, "MAT-BERAS-01", domain.MaterialAdjustRequest{Delta: 3, Reason: "koreksi"}); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(ctx, time.Time{}, time.Time{}, 10)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected audit entry for adjustment")
	}
	if logs[0].ActorUsername != "manager" || logs[0].Action != "material_adjust" {
		t.Fatalf("unexpected audit entry: %+v", logs[0])
	}
}
