package models

import "time"

// Drift detection output (nightly/admin-triggered).
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CompanyId     string    `gorm:"index;not null" json:"company_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. STOCK_MATERIAL, TANGKI_ISI
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. StockMaterial, Tangki
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
