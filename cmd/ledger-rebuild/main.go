package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/agrindo/pks_backend/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Rebuilds the cached balances (stock_materials.qty_on_hand and
// tangkis.isi_saat_ini) by replaying the ledgers. Run with --apply to write;
// the default is a dry run that prints the drift.
func main() {
	companyID := flag.String("company-id", "", "Required: company id (uuid)")
	materialID := flag.Int("material-id", 0, "Optional: limit to one material")
	apply := flag.Bool("apply", false, "Write the replayed balances (default: dry run)")
	flag.Parse()

	if strings.TrimSpace(*companyID) == "" {
		fmt.Fprintln(os.Stderr, "--company-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := logrus.New()

	type stockRow struct {
		MaterialId int
		Snapshot   decimal.Decimal
		Replayed   decimal.Decimal
	}
	var stockRows []stockRow
	stockSQL := `
		SELECT
			sm.material_id,
			sm.qty_on_hand AS snapshot,
			COALESCE(SUM(CASE mv.movement_type WHEN 'OUT' THEN -mv.qty ELSE mv.qty END), 0) AS replayed
		FROM stock_materials sm
		LEFT JOIN stock_movements mv
		  ON mv.company_id = sm.company_id AND mv.material_id = sm.material_id
		WHERE sm.company_id = ?`
	args := []interface{}{*companyID}
	if *materialID > 0 {
		stockSQL += " AND sm.material_id = ?"
		args = append(args, *materialID)
	}
	stockSQL += " GROUP BY sm.material_id, sm.qty_on_hand"
	if err := db.Raw(stockSQL, args...).Scan(&stockRows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "replay stock ledger: %v\n", err)
		os.Exit(1)
	}

	stockDrift := 0
	for _, r := range stockRows {
		if r.Snapshot.Equal(r.Replayed) {
			continue
		}
		stockDrift++
		logger.WithFields(logrus.Fields{
			"material_id": r.MaterialId,
			"snapshot":    r.Snapshot.String(),
			"replayed":    r.Replayed.String(),
		}).Warn("stock snapshot drift")
		if *apply {
			err := db.Exec(
				"UPDATE stock_materials SET qty_on_hand = ? WHERE company_id = ? AND material_id = ?",
				r.Replayed, *companyID, r.MaterialId,
			).Error
			if err != nil {
				fmt.Fprintf(os.Stderr, "update stock_materials material_id=%d: %v\n", r.MaterialId, err)
				os.Exit(1)
			}
		}
	}

	type tangkiRow struct {
		TangkiId int
		Snapshot decimal.Decimal
		Replayed decimal.Decimal
	}
	var tangkiRows []tangkiRow
	if *materialID == 0 {
		err := db.Raw(`
			SELECT
				tk.id AS tangki_id,
				tk.isi_saat_ini AS snapshot,
				COALESCE(SUM(CASE tt.transaction_type WHEN 'KELUAR' THEN -tt.qty ELSE tt.qty END), 0) AS replayed
			FROM tangkis tk
			LEFT JOIN stock_tangki_transactions tt
			  ON tt.company_id = tk.company_id AND tt.tangki_id = tk.id
			WHERE tk.company_id = ?
			GROUP BY tk.id, tk.isi_saat_ini
		`, *companyID).Scan(&tangkiRows).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay tangki ledger: %v\n", err)
			os.Exit(1)
		}
	}

	tangkiDrift := 0
	for _, r := range tangkiRows {
		if r.Snapshot.Equal(r.Replayed) {
			continue
		}
		tangkiDrift++
		logger.WithFields(logrus.Fields{
			"tangki_id": r.TangkiId,
			"snapshot":  r.Snapshot.String(),
			"replayed":  r.Replayed.String(),
		}).Warn("tangki fill drift")
		if *apply {
			err := db.Exec(
				"UPDATE tangkis SET isi_saat_ini = ? WHERE company_id = ? AND id = ?",
				r.Replayed, *companyID, r.TangkiId,
			).Error
			if err != nil {
				fmt.Fprintf(os.Stderr, "update tangkis id=%d: %v\n", r.TangkiId, err)
				os.Exit(1)
			}
		}
	}

	mode := "dry-run"
	if *apply {
		mode = "applied"
	}
	logger.WithFields(logrus.Fields{
		"company_id":   *companyID,
		"mode":         mode,
		"stock_drift":  stockDrift,
		"tangki_drift": tangkiDrift,
		"stock_keys":   len(stockRows),
		"tangki_keys":  len(tangkiRows),
	}).Info("ledger rebuild finished")
}
