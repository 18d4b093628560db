package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// insertReconciliationReport logs and moves on when the insert fails; a
// broken report row must not abort the remaining checks of a sweep.
func insertReconciliationReport(ctx context.Context, db *gorm.DB, report *ReconciliationReport) {
	if err := db.WithContext(ctx).Create(report).Error; err != nil {
		config.LogError(config.GetLogger(), "models", "RunLedgerConsistencyChecks", "insert reconciliation report", report, err)
	}
}

// RunLedgerConsistencyChecks writes mismatch rows to reconciliation_reports.
// This is intended to be run on a schedule (nightly) or via an admin trigger.
// It never mutates a balance; fixes are posted as ADJUSTMENT movements by an
// operator after review.
func RunLedgerConsistencyChecks(ctx context.Context, companyId string) (correlationId string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return "", fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()

	// 1) Snapshot vs replayed movement ledger
	type stockMismatch struct {
		StockMaterialId int
		ExpectedQty     string
		ActualQty       string
	}
	var stockMismatches []stockMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			sm.id AS stock_material_id,
			CAST(sm.qty_on_hand AS CHAR) AS expected_qty,
			CAST(COALESCE(SUM(CASE mv.movement_type WHEN 'OUT' THEN -mv.qty ELSE mv.qty END), 0) AS CHAR) AS actual_qty
		FROM stock_materials sm
		LEFT JOIN stock_movements mv
		  ON mv.company_id = sm.company_id
		 AND mv.material_id = sm.material_id
		WHERE sm.company_id = ?
		GROUP BY sm.id
		HAVING ROUND(sm.qty_on_hand, 4) <> ROUND(COALESCE(SUM(CASE mv.movement_type WHEN 'OUT' THEN -mv.qty ELSE mv.qty END), 0), 4)
	`, companyId).Scan(&stockMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range stockMismatches {
		insertReconciliationReport(ctx, db, &ReconciliationReport{
			CompanyId:     companyId,
			CheckType:     "STOCK_MATERIAL",
			EntityType:    "StockMaterial",
			EntityId:      m.StockMaterialId,
			Details:       fmt.Sprintf("qty_on_hand=%s != sum(stock_movements)=%s", m.ExpectedQty, m.ActualQty),
			CorrelationId: cid,
			CreatedAt:     now,
		})
	}

	// 2) Tank fill vs replayed tank ledger
	type tangkiMismatch struct {
		TangkiId    int
		ExpectedIsi string
		ActualIsi   string
	}
	var tangkiMismatches []tangkiMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			tk.id AS tangki_id,
			CAST(tk.isi_saat_ini AS CHAR) AS expected_isi,
			CAST(COALESCE(SUM(CASE tt.transaction_type WHEN 'KELUAR' THEN -tt.qty ELSE tt.qty END), 0) AS CHAR) AS actual_isi
		FROM tangkis tk
		LEFT JOIN stock_tangki_transactions tt
		  ON tt.company_id = tk.company_id
		 AND tt.tangki_id = tk.id
		WHERE tk.company_id = ?
		GROUP BY tk.id
		HAVING ROUND(tk.isi_saat_ini, 4) <> ROUND(COALESCE(SUM(CASE tt.transaction_type WHEN 'KELUAR' THEN -tt.qty ELSE tt.qty END), 0), 4)
	`, companyId).Scan(&tangkiMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range tangkiMismatches {
		insertReconciliationReport(ctx, db, &ReconciliationReport{
			CompanyId:     companyId,
			CheckType:     "TANGKI_ISI",
			EntityType:    "Tangki",
			EntityId:      m.TangkiId,
			Details:       fmt.Sprintf("isi_saat_ini=%s != sum(stock_tangki_transactions)=%s", m.ExpectedIsi, m.ActualIsi),
			CorrelationId: cid,
			CreatedAt:     now,
		})
	}

	// 3) Transfer pair symmetry: each transfer_pair_id must have exactly one
	// KELUAR and one MASUK with equal qty
	type pairMismatch struct {
		TransferPairId string
		AnyId          int
		Detail         string
	}
	var pairMismatches []pairMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			tt.transfer_pair_id,
			MIN(tt.id) AS any_id,
			CONCAT('keluar_rows=', SUM(tt.transaction_type = 'KELUAR'),
			       ' masuk_rows=', SUM(tt.transaction_type = 'MASUK'),
			       ' keluar_qty=', CAST(SUM(CASE WHEN tt.transaction_type = 'KELUAR' THEN tt.qty ELSE 0 END) AS CHAR),
			       ' masuk_qty=', CAST(SUM(CASE WHEN tt.transaction_type = 'MASUK' THEN tt.qty ELSE 0 END) AS CHAR)) AS detail
		FROM stock_tangki_transactions tt
		WHERE tt.company_id = ? AND tt.transfer_pair_id IS NOT NULL
		GROUP BY tt.transfer_pair_id
		HAVING SUM(tt.transaction_type = 'KELUAR') <> 1
		    OR SUM(tt.transaction_type = 'MASUK') <> 1
		    OR ROUND(SUM(CASE WHEN tt.transaction_type = 'KELUAR' THEN tt.qty ELSE 0 END), 4)
		       <> ROUND(SUM(CASE WHEN tt.transaction_type = 'MASUK' THEN tt.qty ELSE 0 END), 4)
	`, companyId).Scan(&pairMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range pairMismatches {
		insertReconciliationReport(ctx, db, &ReconciliationReport{
			CompanyId:     companyId,
			CheckType:     "TRANSFER_PAIR",
			EntityType:    "StockTangkiTransaction",
			EntityId:      m.AnyId,
			Details:       fmt.Sprintf("transfer pair %s is asymmetric: %s", m.TransferPairId, m.Detail),
			CorrelationId: cid,
			CreatedAt:     now,
		})
	}

	// 4) Invariant floors: no negative stock, no tank over capacity
	type boundViolation struct {
		Id     int
		Detail string
	}
	var negatives []boundViolation
	if err := db.WithContext(ctx).Raw(`
		SELECT sm.id, CONCAT('qty_on_hand=', CAST(sm.qty_on_hand AS CHAR)) AS detail
		FROM stock_materials sm
		WHERE sm.company_id = ? AND sm.qty_on_hand < 0
	`, companyId).Scan(&negatives).Error; err != nil {
		return cid, err
	}
	for _, v := range negatives {
		insertReconciliationReport(ctx, db, &ReconciliationReport{
			CompanyId:     companyId,
			CheckType:     "NEGATIVE_STOCK",
			EntityType:    "StockMaterial",
			EntityId:      v.Id,
			Details:       v.Detail,
			CorrelationId: cid,
			CreatedAt:     now,
		})
	}

	var overfills []boundViolation
	if err := db.WithContext(ctx).Raw(`
		SELECT tk.id, CONCAT('isi_saat_ini=', CAST(tk.isi_saat_ini AS CHAR), ' kapasitas=', CAST(tk.kapasitas AS CHAR)) AS detail
		FROM tangkis tk
		WHERE tk.company_id = ? AND (tk.isi_saat_ini < 0 OR tk.isi_saat_ini > tk.kapasitas)
	`, companyId).Scan(&overfills).Error; err != nil {
		return cid, err
	}
	for _, v := range overfills {
		insertReconciliationReport(ctx, db, &ReconciliationReport{
			CompanyId:     companyId,
			CheckType:     "TANGKI_BOUNDS",
			EntityType:    "Tangki",
			EntityId:      v.Id,
			Details:       v.Detail,
			CorrelationId: cid,
			CreatedAt:     now,
		})
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "LedgerConsistencyChecks",
			"company_id":        companyId,
			"correlation_id":    cid,
			"stock_mismatches":  len(stockMismatches),
			"tangki_mismatches": len(tangkiMismatches),
			"pair_mismatches":   len(pairMismatches),
		}).Info("ledger consistency checks completed")
	}
	return cid, nil
}

func ListReconciliationReports(ctx context.Context, checkType *string) ([]*ReconciliationReport, error) {
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, fmt.Errorf("company id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if checkType != nil && *checkType != "" {
		dbCtx = dbCtx.Where("check_type = ?", *checkType)
	}
	var results []*ReconciliationReport
	if err := dbCtx.Order("created_at DESC, id DESC").Limit(500).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
