package reports

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

type TangkiStockReportResponse struct {
	TangkiId     int             `json:"tangkiId"`
	TangkiName   string          `json:"tangkiName"`
	MaterialName string          `json:"materialName"`
	Kapasitas    decimal.Decimal `json:"kapasitas"`
	OpeningIsi   decimal.Decimal `json:"openingIsi"`
	QtyMasuk     decimal.Decimal `json:"qtyMasuk"`
	QtyKeluar    decimal.Decimal `json:"qtyKeluar"`
	QtyAdjusted  decimal.Decimal `json:"qtyAdjusted"`
	ClosingIsi   decimal.Decimal `json:"closingIsi"`
	UtilisasiPct decimal.Decimal `json:"utilisasiPct"`
}

// GetTangkiStockReport reconstructs tank fill levels for a date range from
// the tank ledger, with closing utilisation against capacity.
func GetTangkiStockReport(ctx context.Context, fromDate models.DateString, toDate models.DateString) ([]*TangkiStockReportResponse, error) {

	sql := `
WITH Ledger AS (
    SELECT
        t.tangki_id,
        SUM(CASE WHEN t.transaction_time < @fromDate
                 THEN CASE t.transaction_type WHEN 'KELUAR' THEN -t.qty ELSE t.qty END
                 ELSE 0 END) AS opening_isi,
        SUM(CASE WHEN t.transaction_time BETWEEN @fromDate AND @toDate AND t.transaction_type = 'MASUK' THEN t.qty ELSE 0 END) AS qty_masuk,
        SUM(CASE WHEN t.transaction_time BETWEEN @fromDate AND @toDate AND t.transaction_type = 'KELUAR' THEN t.qty ELSE 0 END) AS qty_keluar,
        SUM(CASE WHEN t.transaction_time BETWEEN @fromDate AND @toDate AND t.transaction_type = 'ADJUSTMENT' THEN t.qty ELSE 0 END) AS qty_adjusted
    FROM stock_tangki_transactions t
    WHERE t.company_id = @companyId
    GROUP BY t.tangki_id
)
SELECT
    tk.id AS tangki_id,
    tk.name AS tangki_name,
    m.name AS material_name,
    tk.kapasitas,
    COALESCE(l.opening_isi, 0) AS opening_isi,
    COALESCE(l.qty_masuk, 0) AS qty_masuk,
    COALESCE(l.qty_keluar, 0) AS qty_keluar,
    COALESCE(l.qty_adjusted, 0) AS qty_adjusted,
    COALESCE(l.opening_isi, 0) + COALESCE(l.qty_masuk, 0) - COALESCE(l.qty_keluar, 0) + COALESCE(l.qty_adjusted, 0) AS closing_isi,
    CASE WHEN tk.kapasitas > 0
         THEN ROUND((COALESCE(l.opening_isi, 0) + COALESCE(l.qty_masuk, 0) - COALESCE(l.qty_keluar, 0) + COALESCE(l.qty_adjusted, 0)) / tk.kapasitas * 100, 2)
         ELSE 0 END AS utilisasi_pct
FROM tangkis tk
LEFT JOIN materials m ON m.id = tk.material_id
LEFT JOIN Ledger l ON tk.id = l.tangki_id
WHERE tk.company_id = @companyId
ORDER BY tk.name;
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

	started := time.Now()

	var results []*TangkiStockReportResponse
	db := config.GetDB()
	err = db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"fromDate":  fromDate,
		"toDate":    toDate,
		"companyId": companyId,
	}).Scan(&results).Error
	if err != nil {
		return nil, err
	}

	logSlowReport(ctx, "tangki_stock", started, nil)
	return results, nil
}
