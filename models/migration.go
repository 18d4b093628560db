package models

import (
	"log"

	"bitbucket.org/agrindo/pks_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &User{},
		&MaterialCategory{}, &UnitOfMeasure{}, &Material{},
		&Supplier{}, &Buyer{},
		&StockMaterial{}, &StockMovement{},
		&Tangki{}, &StockTangkiTransaction{},
		&PurchaseRequest{}, &PurchaseRequestDetail{},
		&PurchaseOrder{}, &PurchaseOrderDetail{},
		&GoodsReceipt{}, &GoodsReceiptLine{},
		&StoreRequest{}, &StoreRequestDetail{},
		&GoodsIssue{}, &GoodsIssueLine{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
