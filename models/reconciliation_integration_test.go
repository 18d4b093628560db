package models_test

import (
	"testing"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestConsistencyChecksDetectSnapshotDrift(t *testing.T) {
	setupIntegration(t)
	ctx, company := newCompanyContext(t, "Reconcile Mill")
	material := newTestMaterial(t, ctx, "CPO-RC", "Crude Palm Oil")

	if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   material.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(100),
		Reference:    "OPENING",
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	// Clean ledger, no drift rows.
	if _, err := models.RunLedgerConsistencyChecks(ctx, company.ID); err != nil {
		t.Fatalf("RunLedgerConsistencyChecks: %v", err)
	}
	reports, err := models.ListReconciliationReports(ctx, nil)
	if err != nil {
		t.Fatalf("ListReconciliationReports: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("reports on clean ledger = %d, want 0", len(reports))
	}

	// Corrupt the snapshot behind the ledger's back.
	if err := config.GetDB().Exec(
		"UPDATE stock_materials SET qty_on_hand = 42 WHERE company_id = ? AND material_id = ?",
		company.ID, material.ID,
	).Error; err != nil {
		t.Fatalf("corrupt snapshot: %v", err)
	}

	correlationId, err := workflow.RunLedgerConsistencyChecks(ctx, company.ID)
	if err != nil {
		t.Fatalf("workflow.RunLedgerConsistencyChecks: %v", err)
	}
	if correlationId == "" {
		t.Fatal("empty correlation id")
	}

	checkType := "STOCK_MATERIAL"
	reports, err = models.ListReconciliationReports(ctx, &checkType)
	if err != nil {
		t.Fatalf("ListReconciliationReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("STOCK_MATERIAL reports = %d, want 1", len(reports))
	}
	if reports[0].CorrelationId != correlationId {
		t.Fatalf("report correlation id = %s, want %s", reports[0].CorrelationId, correlationId)
	}
	if reports[0].EntityType != "StockMaterial" {
		t.Fatalf("report entity type = %s, want StockMaterial", reports[0].EntityType)
	}

	// The sweep never writes balances. Drift stays until an operator posts
	// an ADJUSTMENT.
	balance, err := models.GetStockBalance(ctx, material.ID)
	if err != nil {
		t.Fatalf("GetStockBalance: %v", err)
	}
	if !balance.Equal(decimal.NewFromInt(42)) {
		t.Fatalf("balance after sweep = %s, want 42 (untouched)", balance)
	}

	// Repair the snapshot the way the rebuild command does and rerun.
	if err := config.GetDB().Exec(
		"UPDATE stock_materials SET qty_on_hand = 100 WHERE company_id = ? AND material_id = ?",
		company.ID, material.ID,
	).Error; err != nil {
		t.Fatalf("repair snapshot: %v", err)
	}
	if _, err := models.RunLedgerConsistencyChecks(ctx, company.ID); err != nil {
		t.Fatalf("rerun checks: %v", err)
	}
	reports, err = models.ListReconciliationReports(ctx, &checkType)
	if err != nil {
		t.Fatalf("ListReconciliationReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("STOCK_MATERIAL reports after repair = %d, want 1 (no new drift)", len(reports))
	}
}

func TestConsistencyChecksFlagBrokenTransferPair(t *testing.T) {
	setupIntegration(t)
	ctx, company := newCompanyContext(t, "Reconcile Tangki Mill")

	cpo := newTestMaterial(t, ctx, "CPO-TK", "Crude Palm Oil")
	source, err := models.CreateTangki(ctx, &models.NewTangki{
		Name: "Tangki R1", MaterialId: cpo.ID, Kapasitas: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateTangki source: %v", err)
	}
	dest, err := models.CreateTangki(ctx, &models.NewTangki{
		Name: "Tangki R2", MaterialId: cpo.ID, Kapasitas: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateTangki dest: %v", err)
	}

	if _, err := models.RecordTangkiTransaction(ctx, &models.NewTangkiTransaction{
		TangkiId:        source.ID,
		TransactionType: models.TangkiTransactionTypeMasuk,
		Qty:             decimal.NewFromInt(500),
		Reference:       "OPENING",
	}); err != nil {
		t.Fatalf("seed tank: %v", err)
	}
	if _, err := models.TransferTangkiStock(ctx, &models.NewTangkiTransfer{
		SourceTangkiId:      source.ID,
		DestinationTangkiId: dest.ID,
		Qty:                 decimal.NewFromInt(200),
	}); err != nil {
		t.Fatalf("TransferTangkiStock: %v", err)
	}

	if _, err := models.RunLedgerConsistencyChecks(ctx, company.ID); err != nil {
		t.Fatalf("RunLedgerConsistencyChecks: %v", err)
	}
	checkType := "TRANSFER_PAIR"
	reports, err := models.ListReconciliationReports(ctx, &checkType)
	if err != nil {
		t.Fatalf("ListReconciliationReports: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("TRANSFER_PAIR reports on intact pair = %d, want 0", len(reports))
	}

	// Break one leg's quantity behind the ledger's back.
	if err := config.GetDB().Exec(
		"UPDATE stock_tangki_transactions SET qty = qty + 1 WHERE company_id = ? AND tangki_id = ? AND transfer_pair_id IS NOT NULL",
		company.ID, dest.ID,
	).Error; err != nil {
		t.Fatalf("corrupt transfer leg: %v", err)
	}

	if _, err := models.RunLedgerConsistencyChecks(ctx, company.ID); err != nil {
		t.Fatalf("rerun checks: %v", err)
	}
	reports, err = models.ListReconciliationReports(ctx, &checkType)
	if err != nil {
		t.Fatalf("ListReconciliationReports: %v", err)
	}
	if len(reports) == 0 {
		t.Fatal("broken transfer pair not reported")
	}
}
