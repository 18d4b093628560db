package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MovementType classifies warehouse stock ledger rows.
// ADJUSTMENT is an additive delta like IN/OUT: positive raises the balance,
// negative lowers it. A negative adjustment is guarded like an OUT.
type MovementType string

const (
	MovementTypeIn         MovementType = "IN"
	MovementTypeOut        MovementType = "OUT"
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
)

func (t MovementType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *MovementType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("movement type must be string")
	}
	movementTypes := map[string]MovementType{
		"IN":         MovementTypeIn,
		"OUT":        MovementTypeOut,
		"ADJUSTMENT": MovementTypeAdjustment,
	}
	v, ok := movementTypes[str]
	if !ok {
		return errors.New("invalid movement type")
	}
	*t = v
	return nil
}

// TangkiTransactionType classifies tank ledger rows.
type TangkiTransactionType string

const (
	TangkiTransactionTypeMasuk      TangkiTransactionType = "MASUK"
	TangkiTransactionTypeKeluar     TangkiTransactionType = "KELUAR"
	TangkiTransactionTypeAdjustment TangkiTransactionType = "ADJUSTMENT"
)

func (t TangkiTransactionType) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(t))), nil
}

func (t *TangkiTransactionType) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("tangki transaction type must be string")
	}
	tangkiTransactionTypes := map[string]TangkiTransactionType{
		"MASUK":      TangkiTransactionTypeMasuk,
		"KELUAR":     TangkiTransactionTypeKeluar,
		"ADJUSTMENT": TangkiTransactionTypeAdjustment,
	}
	v, ok := tangkiTransactionTypes[str]
	if !ok {
		return errors.New("invalid tangki transaction type")
	}
	*t = v
	return nil
}

type PurchaseRequestStatus string

const (
	PurchaseRequestStatusDraft     PurchaseRequestStatus = "Draft"
	PurchaseRequestStatusSubmitted PurchaseRequestStatus = "Submitted"
	PurchaseRequestStatusApproved  PurchaseRequestStatus = "Approved"
	PurchaseRequestStatusRejected  PurchaseRequestStatus = "Rejected"
)

func (s PurchaseRequestStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *PurchaseRequestStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("purchase request status must be string")
	}
	purchaseRequestStatus := map[string]PurchaseRequestStatus{
		"Draft":     PurchaseRequestStatusDraft,
		"Submitted": PurchaseRequestStatusSubmitted,
		"Approved":  PurchaseRequestStatusApproved,
		"Rejected":  PurchaseRequestStatusRejected,
	}
	v, ok := purchaseRequestStatus[str]
	if !ok {
		return errors.New("invalid purchase request status")
	}
	*s = v
	return nil
}

var purchaseRequestTransitions = map[PurchaseRequestStatus][]PurchaseRequestStatus{
	PurchaseRequestStatusDraft:     {PurchaseRequestStatusSubmitted},
	PurchaseRequestStatusSubmitted: {PurchaseRequestStatusApproved, PurchaseRequestStatusRejected},
	PurchaseRequestStatusApproved:  {},
	PurchaseRequestStatusRejected:  {},
}

func (s PurchaseRequestStatus) CanTransitionTo(next PurchaseRequestStatus) bool {
	for _, allowed := range purchaseRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "Draft"
	PurchaseOrderStatusApproved  PurchaseOrderStatus = "Approved"
	PurchaseOrderStatusCompleted PurchaseOrderStatus = "Completed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

func (s PurchaseOrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *PurchaseOrderStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("purchase order status must be string")
	}
	purchaseOrderStatus := map[string]PurchaseOrderStatus{
		"Draft":     PurchaseOrderStatusDraft,
		"Approved":  PurchaseOrderStatusApproved,
		"Completed": PurchaseOrderStatusCompleted,
		"Cancelled": PurchaseOrderStatusCancelled,
	}
	v, ok := purchaseOrderStatus[str]
	if !ok {
		return errors.New("invalid purchase order status")
	}
	*s = v
	return nil
}

var purchaseOrderTransitions = map[PurchaseOrderStatus][]PurchaseOrderStatus{
	PurchaseOrderStatusDraft:     {PurchaseOrderStatusApproved, PurchaseOrderStatusCancelled},
	PurchaseOrderStatusApproved:  {PurchaseOrderStatusCompleted, PurchaseOrderStatusCancelled},
	PurchaseOrderStatusCompleted: {},
	PurchaseOrderStatusCancelled: {},
}

func (s PurchaseOrderStatus) CanTransitionTo(next PurchaseOrderStatus) bool {
	for _, allowed := range purchaseOrderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type StoreRequestStatus string

const (
	StoreRequestStatusDraft     StoreRequestStatus = "Draft"
	StoreRequestStatusSubmitted StoreRequestStatus = "Submitted"
	StoreRequestStatusApproved  StoreRequestStatus = "Approved"
	StoreRequestStatusRejected  StoreRequestStatus = "Rejected"
	StoreRequestStatusFulfilled StoreRequestStatus = "Fulfilled"
)

func (s StoreRequestStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(s))), nil
}

func (s *StoreRequestStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("store request status must be string")
	}
	storeRequestStatus := map[string]StoreRequestStatus{
		"Draft":     StoreRequestStatusDraft,
		"Submitted": StoreRequestStatusSubmitted,
		"Approved":  StoreRequestStatusApproved,
		"Rejected":  StoreRequestStatusRejected,
		"Fulfilled": StoreRequestStatusFulfilled,
	}
	v, ok := storeRequestStatus[str]
	if !ok {
		return errors.New("invalid store request status")
	}
	*s = v
	return nil
}

var storeRequestTransitions = map[StoreRequestStatus][]StoreRequestStatus{
	StoreRequestStatusDraft:     {StoreRequestStatusSubmitted},
	StoreRequestStatusSubmitted: {StoreRequestStatusApproved, StoreRequestStatusRejected},
	StoreRequestStatusApproved:  {StoreRequestStatusFulfilled},
	StoreRequestStatusRejected:  {},
	StoreRequestStatusFulfilled: {},
}

func (s StoreRequestStatus) CanTransitionTo(next StoreRequestStatus) bool {
	for _, allowed := range storeRequestTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DateString carries a caller-local calendar date through the API. Report
// boundaries convert it to a UTC instant in the company timezone before it
// reaches SQL.
type DateString time.Time

func (t DateString) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Time(t).Format("2006-01-02T15:04:05"))), nil
}

func (t *DateString) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return errors.New("date must be string")
	}
	localTime, err := time.Parse("2006-01-02T15:04:05", str)
	if err != nil {
		localTime, err = time.Parse("2006-01-02", str)
		if err != nil {
			return errors.New("error parsing datetime")
		}
	}
	*t = DateString(localTime)
	return nil
}

func (t *DateString) StartOfDayUTCTime(timezone string) error {
	if t == nil {
		return nil
	}
	localTime := time.Time(*t)
	if timezone == "" {
		timezone = "Asia/Jakarta"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		0, 0, 0, 0,
		location,
	)
	*t = DateString(localTimeInZone.In(time.UTC))
	return nil
}

func (t *DateString) EndOfDayUTCTime(timezone string) error {
	if t == nil {
		return nil
	}
	localTime := time.Time(*t)
	if timezone == "" {
		timezone = "Asia/Jakarta"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	localTimeInZone := time.Date(
		localTime.Year(), localTime.Month(), localTime.Day(),
		23, 59, 59, 999,
		location,
	)
	*t = DateString(localTimeInZone.In(time.UTC))
	return nil
}

// Value implements the driver.Valuer interface
func (t DateString) Value() (driver.Value, error) {
	return time.Time(t), nil
}

// Scan implements the sql.Scanner interface
func (t *DateString) Scan(value interface{}) error {
	if value == nil {
		*t = DateString(time.Time{})
		return nil
	}
	switch v := value.(type) {
	case time.Time:
		*t = DateString(v)
	default:
		return fmt.Errorf("cannot convert %T to DateString", value)
	}
	return nil
}
