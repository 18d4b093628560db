package models

import (
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

// Balance guards are pure checks. They MUST be evaluated after the balance
// row has been locked in the same transaction as the write, otherwise two
// concurrent outgoing movements can both pass against a stale balance.

// CheckSufficientStock rejects an outgoing quantity larger than the
// available balance.
func CheckSufficientStock(available decimal.Decimal, requested decimal.Decimal) error {
	if requested.GreaterThan(available) {
		return &utils.InsufficientStockError{Available: available, Requested: requested}
	}
	return nil
}

// CheckTangkiCapacity rejects an incoming quantity that would push the fill
// level above the tank's capacity.
func CheckTangkiCapacity(kapasitas decimal.Decimal, isiSaatIni decimal.Decimal, requested decimal.Decimal) error {
	if isiSaatIni.Add(requested).GreaterThan(kapasitas) {
		return &utils.CapacityExceededError{Kapasitas: kapasitas, IsiSaatIni: isiSaatIni, Requested: requested}
	}
	return nil
}

// movementDelta converts a movement row into its signed effect on the
// balance. ADJUSTMENT quantities are already signed.
func movementDelta(movementType MovementType, qty decimal.Decimal) decimal.Decimal {
	switch movementType {
	case MovementTypeOut:
		return qty.Neg()
	default:
		return qty
	}
}

// tangkiDelta is the tank equivalent of movementDelta.
func tangkiDelta(transactionType TangkiTransactionType, qty decimal.Decimal) decimal.Decimal {
	switch transactionType {
	case TangkiTransactionTypeKeluar:
		return qty.Neg()
	default:
		return qty
	}
}
