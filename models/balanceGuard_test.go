package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

func TestCheckSufficientStock(t *testing.T) {
	if err := models.CheckSufficientStock(decimal.NewFromInt(100), decimal.NewFromInt(100)); err != nil {
		t.Fatalf("taking the whole balance should be allowed: %v", err)
	}
	if err := models.CheckSufficientStock(decimal.NewFromInt(100), decimal.NewFromFloat(99.9999)); err != nil {
		t.Fatalf("fractional take within balance should be allowed: %v", err)
	}

	err := models.CheckSufficientStock(decimal.NewFromInt(100), decimal.NewFromFloat(100.0001))
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	var insufficient *utils.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %T", err)
	}
	if !insufficient.Available.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("error should carry the available balance, got %s", insufficient.Available)
	}
}

func TestCheckTangkiCapacity(t *testing.T) {
	kapasitas := decimal.NewFromInt(5000)
	isi := decimal.NewFromInt(4500)

	if err := models.CheckTangkiCapacity(kapasitas, isi, decimal.NewFromInt(500)); err != nil {
		t.Fatalf("filling to exactly capacity should be allowed: %v", err)
	}

	err := models.CheckTangkiCapacity(kapasitas, isi, decimal.NewFromFloat(500.0001))
	if err == nil {
		t.Fatalf("expected capacity exceeded error")
	}
	var capacity *utils.CapacityExceededError
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityExceededError, got %T", err)
	}
	if !capacity.Kapasitas.Equal(kapasitas) || !capacity.IsiSaatIni.Equal(isi) {
		t.Fatalf("error should carry capacity and current fill, got %s/%s", capacity.Kapasitas, capacity.IsiSaatIni)
	}
}
