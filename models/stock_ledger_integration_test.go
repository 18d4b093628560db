package models_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

func TestStockLedgerPostingAndGuards(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Ledger Mill")
	material := newTestMaterial(t, ctx, "CPO-01", "Crude Palm Oil")

	// IN 100
	if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(100),
		Reference:    "GR-0001",
	}); err != nil {
		t.Fatalf("post IN: %v", err)
	}

	// OUT 30
	if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeOut,
		Qty:          decimal.NewFromInt(30),
		Reference:    "GI-0001",
	}); err != nil {
		t.Fatalf("post OUT: %v", err)
	}

	balance, err := models.GetStockBalance(ctx, material.ID)
	if err != nil {
		t.Fatalf("GetStockBalance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("expected balance 70, got %s", balance)
	}

	// OUT larger than balance must be rejected and leave no ledger row.
	_, err = models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeOut,
		Qty:          decimal.NewFromInt(71),
	})
	var insufficient *utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	// Negative adjustment is guarded the same way.
	_, err = models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeAdjustment,
		Qty:          decimal.NewFromInt(-80),
	})
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError for negative adjustment, got %v", err)
	}

	// Positive adjustment (stock opname correction).
	if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeAdjustment,
		Qty:          decimal.NewFromFloat(2.5),
		Note:         "opname correction",
	}); err != nil {
		t.Fatalf("post ADJUSTMENT: %v", err)
	}

	balance, err = models.GetStockBalance(ctx, material.ID)
	if err != nil {
		t.Fatalf("GetStockBalance: %v", err)
	}
	if !balance.Equal(decimal.NewFromFloat(72.5)) {
		t.Fatalf("expected balance 72.5, got %s", balance)
	}

	// Rejected postings must not have left ledger rows.
	movements, err := models.ListStockMovement(ctx, &models.StockMovementFilter{MaterialId: &material.ID})
	if err != nil {
		t.Fatalf("ListStockMovement: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected 3 ledger rows, got %d", len(movements))
	}

	// Zero and negative IN quantities are invalid.
	_, err = models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.Zero,
	})
	var validation *utils.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for zero IN, got %v", err)
	}

	// Unknown material.
	_, err = models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   999999,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(1),
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected record not found for unknown material, got %v", err)
	}
}

func TestStockSummaryMatchesLedger(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Summary Mill")
	material := newTestMaterial(t, ctx, "KRN-01", "Palm Kernel")

	postings := []struct {
		movementType models.MovementType
		qty          decimal.Decimal
	}{
		{models.MovementTypeIn, decimal.NewFromInt(500)},
		{models.MovementTypeIn, decimal.NewFromInt(250)},
		{models.MovementTypeOut, decimal.NewFromInt(300)},
		{models.MovementTypeAdjustment, decimal.NewFromInt(-50)},
		{models.MovementTypeAdjustment, decimal.NewFromInt(10)},
	}
	for _, p := range postings {
		if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
			MaterialId:   material.ID,
			MovementType: p.movementType,
			Qty:          p.qty,
		}); err != nil {
			t.Fatalf("post %s %s: %v", p.movementType, p.qty, err)
		}
	}

	rows, err := models.GetStockSummary(ctx)
	if err != nil {
		t.Fatalf("GetStockSummary: %v", err)
	}
	var row *models.StockSummaryRow
	for _, r := range rows {
		if r.MaterialId == material.ID {
			row = r
		}
	}
	if row == nil {
		t.Fatalf("material missing from summary")
	}

	if !row.TotalIn.Equal(decimal.NewFromInt(750)) {
		t.Fatalf("expected total_in 750, got %s", row.TotalIn)
	}
	if !row.TotalOut.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected total_out 300, got %s", row.TotalOut)
	}
	if !row.TotalAdjustment.Equal(decimal.NewFromInt(-40)) {
		t.Fatalf("expected net adjustment -40, got %s", row.TotalAdjustment)
	}
	// in - out + adjustment == current balance, always
	expected := row.TotalIn.Sub(row.TotalOut).Add(row.TotalAdjustment)
	if !row.CurrentBalance.Equal(expected) {
		t.Fatalf("summary identity broken: %s != %s", row.CurrentBalance, expected)
	}
	if !row.CurrentBalance.Equal(decimal.NewFromInt(410)) {
		t.Fatalf("expected balance 410, got %s", row.CurrentBalance)
	}

	// Re-running the aggregation must not change anything.
	again, err := models.GetStockSummary(ctx)
	if err != nil {
		t.Fatalf("GetStockSummary (second run): %v", err)
	}
	for _, r := range again {
		if r.MaterialId == material.ID && !r.CurrentBalance.Equal(row.CurrentBalance) {
			t.Fatalf("summary is not idempotent: %s then %s", row.CurrentBalance, r.CurrentBalance)
		}
	}
}

func TestStockLedgerTenantIsolation(t *testing.T) {
	setupIntegration(t)
	ctxA, _ := newCompanyContext(t, "Mill A")
	ctxB, _ := newCompanyContext(t, "Mill B")

	materialA := newTestMaterial(t, ctxA, "ISO-A", "Material A")
	materialB := newTestMaterial(t, ctxB, "ISO-B", "Material B")

	if _, err := models.RecordStockMovement(ctxA, &models.NewStockMovement{
		MaterialId:   materialA.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("post IN for company A: %v", err)
	}

	// Company B cannot post against company A's material.
	_, err := models.RecordStockMovement(ctxB, &models.NewStockMovement{
		MaterialId:   materialA.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(1),
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not found across tenants, got %v", err)
	}

	// Company B's listings must not include company A's rows.
	movements, err := models.ListStockMovement(ctxB, nil)
	if err != nil {
		t.Fatalf("ListStockMovement: %v", err)
	}
	for _, m := range movements {
		if m.MaterialId == materialA.ID {
			t.Fatalf("company A movement leaked into company B listing")
		}
	}

	balance, err := models.GetStockBalance(ctxB, materialB.ID)
	if err != nil {
		t.Fatalf("GetStockBalance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero balance for untouched material, got %s", balance)
	}
}

func TestMovementHistoryOrdering(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "History Mill")
	material := newTestMaterial(t, ctx, "ORD-01", "Ordering Material")

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	later := base.Add(2 * time.Hour)
	earlier := base.Add(-2 * time.Hour)

	// Posted out of order on purpose.
	for _, tt := range []time.Time{later, earlier, base} {
		ttCopy := tt
		if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
			MaterialId:      material.ID,
			MovementType:    models.MovementTypeIn,
			Qty:             decimal.NewFromInt(10),
			TransactionTime: &ttCopy,
		}); err != nil {
			t.Fatalf("post IN at %s: %v", tt, err)
		}
	}

	movements, err := models.ListStockMovement(ctx, &models.StockMovementFilter{MaterialId: &material.ID})
	if err != nil {
		t.Fatalf("ListStockMovement: %v", err)
	}
	if len(movements) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(movements))
	}
	for i := 1; i < len(movements); i++ {
		if movements[i].TransactionTime.Before(movements[i-1].TransactionTime) {
			t.Fatalf("history is not ordered by transaction_time")
		}
	}

	// Date range filter.
	from := base.Add(-time.Hour)
	filtered, err := models.ListStockMovement(ctx, &models.StockMovementFilter{
		MaterialId: &material.ID,
		DateFrom:   &from,
	})
	if err != nil {
		t.Fatalf("ListStockMovement filtered: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 movements in range, got %d", len(filtered))
	}
}

func TestConcurrentOutsNeverOverdraw(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Concurrent Mill")
	material := newTestMaterial(t, ctx, "CPO-CC", "Crude Palm Oil")

	// 100 on hand, 20 workers each trying to take 10. Exactly 10 can
	// succeed; the row lock must serialize the guard so the rest fail
	// instead of double-spending a stale balance.
	if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(100),
		Reference:    "OPENING",
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	const workers = 20
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
				MaterialId:   material.ID,
				MovementType: models.MovementTypeOut,
				Qty:          decimal.NewFromInt(10),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var insufficient *utils.InsufficientStockError
		if !errors.As(err, &insufficient) {
			t.Fatalf("concurrent OUT failed with %v, want InsufficientStockError", err)
		}
	}
	if succeeded != 10 {
		t.Fatalf("concurrent OUTs succeeded = %d, want 10", succeeded)
	}

	balance, err := models.GetStockBalance(ctx, material.ID)
	if err != nil {
		t.Fatalf("GetStockBalance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("balance after concurrent OUTs = %s, want 0", balance)
	}

	// Rejected posts must not have left ledger rows: 1 IN + 10 OUTs.
	movements, err := models.ListStockMovement(ctx, &models.StockMovementFilter{MaterialId: &material.ID})
	if err != nil {
		t.Fatalf("ListStockMovement: %v", err)
	}
	outs := 0
	for _, movement := range movements {
		if movement.MovementType == models.MovementTypeOut {
			outs++
		}
	}
	if len(movements) != 11 || outs != 10 {
		t.Fatalf("ledger rows = %d (OUT %d), want 11 (OUT 10)", len(movements), outs)
	}
}

func TestTenantScopeBypassForInternalOps(t *testing.T) {
	setupIntegration(t)
	ctxA, _ := newCompanyContext(t, "Bypass Mill A")
	ctxB, _ := newCompanyContext(t, "Bypass Mill B")
	materialA := newTestMaterial(t, ctxA, "BYP-A", "Material A")
	materialB := newTestMaterial(t, ctxB, "BYP-B", "Material B")

	db := config.GetDB()

	// Scoped context sees only its own company's rows through gorm.
	var scoped []models.Material
	if err := db.WithContext(ctxA).Where("id IN ?", []int{materialA.ID, materialB.ID}).Find(&scoped).Error; err != nil {
		t.Fatalf("scoped query: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != materialA.ID {
		t.Fatalf("scoped query returned %d rows, want only company A's material", len(scoped))
	}

	// The ops escape hatch lifts the scope for internal cross-tenant work.
	opsCtx := utils.SetSkipTenantScopeInContext(ctxA, true)
	var unscoped []models.Material
	if err := db.WithContext(opsCtx).Where("id IN ?", []int{materialA.ID, materialB.ID}).Find(&unscoped).Error; err != nil {
		t.Fatalf("unscoped query: %v", err)
	}
	if len(unscoped) != 2 {
		t.Fatalf("unscoped query returned %d rows, want 2", len(unscoped))
	}
}
