package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

func TestTangkiCapacityAndFillGuards(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Tangki Mill")
	material := newTestMaterial(t, ctx, "CPO-T1", "CPO for tanks")

	tangki, err := models.CreateTangki(ctx, &models.NewTangki{
		Name:       "Tangki Timbun 1",
		MaterialId: material.ID,
		Kapasitas:  decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateTangki: %v", err)
	}

	// MASUK up to capacity is fine.
	if _, err := models.RecordTangkiTransaction(ctx, &models.NewTangkiTransaction{
		TangkiId:        tangki.ID,
		TransactionType: models.TangkiTransactionTypeMasuk,
		Qty:             decimal.NewFromInt(900),
	}); err != nil {
		t.Fatalf("MASUK 900: %v", err)
	}

	// MASUK past capacity is rejected.
	_, err = models.RecordTangkiTransaction(ctx, &models.NewTangkiTransaction{
		TangkiId:        tangki.ID,
		TransactionType: models.TangkiTransactionTypeMasuk,
		Qty:             decimal.NewFromInt(101),
	})
	var capacity *utils.CapacityExceededError
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}

	// KELUAR past the fill level is rejected.
	_, err = models.RecordTangkiTransaction(ctx, &models.NewTangkiTransaction{
		TangkiId:        tangki.ID,
		TransactionType: models.TangkiTransactionTypeKeluar,
		Qty:             decimal.NewFromInt(901),
	})
	var insufficient *utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}

	// Positive adjustment is capacity-guarded too.
	_, err = models.RecordTangkiTransaction(ctx, &models.NewTangkiTransaction{
		TangkiId:        tangki.ID,
		TransactionType: models.TangkiTransactionTypeAdjustment,
		Qty:             decimal.NewFromInt(200),
	})
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityExceededError for oversized adjustment, got %v", err)
	}

	got, err := models.GetTangki(ctx, tangki.ID)
	if err != nil {
		t.Fatalf("GetTangki: %v", err)
	}
	if !got.IsiSaatIni.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("rejected postings must not change fill, got %s", got.IsiSaatIni)
	}

	// Shrinking capacity below the fill level is rejected.
	_, err = models.UpdateTangki(ctx, tangki.ID, &models.NewTangki{
		Name:       "Tangki Timbun 1",
		MaterialId: material.ID,
		Kapasitas:  decimal.NewFromInt(800),
	})
	var validation *utils.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for capacity below fill, got %v", err)
	}

	// A non-empty tank cannot be deleted.
	if _, err := models.DeleteTangki(ctx, tangki.ID); err == nil {
		t.Fatalf("expected error deleting non-empty tangki")
	}
}

func TestTangkiTransferIsAtomicAndPaired(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Transfer Mill")
	material := newTestMaterial(t, ctx, "CPO-T2", "CPO for transfer")

	source, err := models.CreateTangki(ctx, &models.NewTangki{
		Name: "Source", MaterialId: material.ID, Kapasitas: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateTangki source: %v", err)
	}
	destination, err := models.CreateTangki(ctx, &models.NewTangki{
		Name: "Destination", MaterialId: material.ID, Kapasitas: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("CreateTangki destination: %v", err)
	}

	if _, err := models.RecordTangkiTransaction(ctx, &models.NewTangkiTransaction{
		TangkiId:        source.ID,
		TransactionType: models.TangkiTransactionTypeMasuk,
		Qty:             decimal.NewFromInt(800),
	}); err != nil {
		t.Fatalf("fill source: %v", err)
	}

	pair, err := models.TransferTangkiStock(ctx, &models.NewTangkiTransfer{
		SourceTangkiId:      source.ID,
		DestinationTangkiId: destination.ID,
		Qty:                 decimal.NewFromInt(300),
		Reference:           "TRF-0001",
	})
	if err != nil {
		t.Fatalf("TransferTangkiStock: %v", err)
	}
	if len(pair) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(pair))
	}
	keluar, masuk := pair[0], pair[1]
	if keluar.TransactionType != models.TangkiTransactionTypeKeluar || masuk.TransactionType != models.TangkiTransactionTypeMasuk {
		t.Fatalf("unexpected pair types %s/%s", keluar.TransactionType, masuk.TransactionType)
	}
	if keluar.TransferPairId == nil || masuk.TransferPairId == nil || *keluar.TransferPairId != *masuk.TransferPairId {
		t.Fatalf("pair rows must share a transfer_pair_id")
	}
	if !keluar.Qty.Equal(masuk.Qty) {
		t.Fatalf("pair quantities differ: %s vs %s", keluar.Qty, masuk.Qty)
	}

	src, _ := models.GetTangki(ctx, source.ID)
	dst, _ := models.GetTangki(ctx, destination.ID)
	if !src.IsiSaatIni.Equal(decimal.NewFromInt(500)) || !dst.IsiSaatIni.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected 500/300 after transfer, got %s/%s", src.IsiSaatIni, dst.IsiSaatIni)
	}

	// A transfer that would overfill the destination leaves BOTH tanks
	// untouched, not just the destination.
	_, err = models.TransferTangkiStock(ctx, &models.NewTangkiTransfer{
		SourceTangkiId:      source.ID,
		DestinationTangkiId: destination.ID,
		Qty:                 decimal.NewFromInt(300),
	})
	var capacity *utils.CapacityExceededError
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	src, _ = models.GetTangki(ctx, source.ID)
	dst, _ = models.GetTangki(ctx, destination.ID)
	if !src.IsiSaatIni.Equal(decimal.NewFromInt(500)) || !dst.IsiSaatIni.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("failed transfer must roll back both sides, got %s/%s", src.IsiSaatIni, dst.IsiSaatIni)
	}

	// Self-transfer is invalid.
	_, err = models.TransferTangkiStock(ctx, &models.NewTangkiTransfer{
		SourceTangkiId:      source.ID,
		DestinationTangkiId: source.ID,
		Qty:                 decimal.NewFromInt(10),
	})
	var validation *utils.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for self transfer, got %v", err)
	}

	// Ledger shows exactly one KELUAR and one MASUK for the pair.
	transactions, err := models.ListTangkiTransaction(ctx, &models.TangkiTransactionFilter{TangkiId: &source.ID})
	if err != nil {
		t.Fatalf("ListTangkiTransaction: %v", err)
	}
	paired := 0
	for _, tr := range transactions {
		if tr.TransferPairId != nil && *tr.TransferPairId == *keluar.TransferPairId {
			paired++
		}
	}
	if paired != 1 {
		t.Fatalf("expected exactly 1 paired row on source, got %d", paired)
	}
}
