package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

type StockSummaryReportResponse struct {
	MaterialId   int             `json:"materialId"`
	MaterialCode string          `json:"materialCode"`
	MaterialName string          `json:"materialName"`
	OpeningStock decimal.Decimal `json:"openingStock"`
	QtyIn        decimal.Decimal `json:"qtyIn"`
	QtyOut       decimal.Decimal `json:"qtyOut"`
	QtyAdjusted  decimal.Decimal `json:"qtyAdjusted"`
	ClosingStock decimal.Decimal `json:"closingStock"`
}

// GetStockSummaryReport reconstructs per-material balances for a date range
// purely from the movement ledger. opening + in - out + adjusted == closing
// for every row regardless of the snapshot table.
func GetStockSummaryReport(ctx context.Context, fromDate models.DateString, toDate models.DateString, materialId *int) ([]*StockSummaryReportResponse, error) {

	sqlT := `
WITH Ledger AS (
    SELECT
        sm.material_id,
        SUM(CASE WHEN sm.transaction_time < @fromDate
                 THEN CASE sm.movement_type WHEN 'OUT' THEN -sm.qty ELSE sm.qty END
                 ELSE 0 END) AS opening_stock,
        SUM(CASE WHEN sm.transaction_time BETWEEN @fromDate AND @toDate AND sm.movement_type = 'IN' THEN sm.qty ELSE 0 END) AS qty_in,
        SUM(CASE WHEN sm.transaction_time BETWEEN @fromDate AND @toDate AND sm.movement_type = 'OUT' THEN sm.qty ELSE 0 END) AS qty_out,
        SUM(CASE WHEN sm.transaction_time BETWEEN @fromDate AND @toDate AND sm.movement_type = 'ADJUSTMENT' THEN sm.qty ELSE 0 END) AS qty_adjusted
    FROM stock_movements sm
    WHERE sm.company_id = @companyId
      {{- if .materialId }} AND sm.material_id = @materialId {{- end }}
    GROUP BY sm.material_id
)
SELECT
    m.id AS material_id,
    m.code AS material_code,
    m.name AS material_name,
    COALESCE(l.opening_stock, 0) AS opening_stock,
    COALESCE(l.qty_in, 0) AS qty_in,
    COALESCE(l.qty_out, 0) AS qty_out,
    COALESCE(l.qty_adjusted, 0) AS qty_adjusted,
    COALESCE(l.opening_stock, 0) + COALESCE(l.qty_in, 0) - COALESCE(l.qty_out, 0) + COALESCE(l.qty_adjusted, 0) AS closing_stock
FROM materials m
LEFT JOIN Ledger l ON m.id = l.material_id
WHERE m.company_id = @companyId
  {{- if .materialId }} AND m.id = @materialId {{- end }}
ORDER BY m.name;
`
	companyId, ok := utils.GetCompanyIdFromContext(ctx)
	if !ok || companyId == "" {
		return nil, errors.New("company id is required")
	}
	company, err := models.GetCompany(ctx, companyId)
	if err != nil {
		return nil, errors.New("company id is required")
	}
	if err := fromDate.StartOfDayUTCTime(company.Timezone); err != nil {
		return nil, err
	}
	if err := toDate.EndOfDayUTCTime(company.Timezone); err != nil {
		return nil, err
	}

	if materialId != nil && *materialId > 0 {
		if err := utils.ValidateResourceId[models.Material](ctx, companyId, *materialId); err != nil {
			return nil, errors.New("material not found")
		}
	}

	started := time.Now()
	cacheKey := fmt.Sprintf("report:stock_summary:%s:%v:%v:%d",
		companyId, time.Time(fromDate).Unix(), time.Time(toDate).Unix(), utils.DereferencePtr(materialId, 0))
	if reportCacheEnabled() {
		var cached []*StockSummaryReportResponse
		if ok, err := cacheGet(cacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"materialId": utils.DereferencePtr(materialId, 0),
	})
	if err != nil {
		return nil, err
	}

	// Only include materialId when its placeholder survived the template,
	// gorm errors on named params that no longer appear in the SQL.
	args := map[string]interface{}{
		"fromDate":  fromDate,
		"toDate":    toDate,
		"companyId": companyId,
	}
	if materialId != nil && *materialId != 0 {
		args["materialId"] = materialId
	}

	var results []*StockSummaryReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args).Scan(&results).Error; err != nil {
		return nil, err
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, results, reportCacheTTL())
	}
	logSlowReport(ctx, "stock_summary", started, map[string]any{"material_id": utils.DereferencePtr(materialId, 0)})

	return results, nil
}
