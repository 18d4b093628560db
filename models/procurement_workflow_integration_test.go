package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/shopspring/decimal"
)

func newTestSupplier(t *testing.T, ctx context.Context, code, name string) *models.Supplier {
	t.Helper()
	supplier, err := models.CreateSupplier(ctx, &models.NewSupplier{
		Code: code,
		Name: name,
	})
	if err != nil {
		t.Fatalf("CreateSupplier %s: %v", code, err)
	}
	return supplier
}

func approvePurchaseRequest(t *testing.T, ctx context.Context, id int) {
	t.Helper()
	if _, err := models.UpdateStatusPurchaseRequest(ctx, id, models.PurchaseRequestStatusSubmitted); err != nil {
		t.Fatalf("submit purchase request %d: %v", id, err)
	}
	if _, err := models.UpdateStatusPurchaseRequest(ctx, id, models.PurchaseRequestStatusApproved); err != nil {
		t.Fatalf("approve purchase request %d: %v", id, err)
	}
}

func TestGoodsReceiptCompletesPurchaseOrder(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Receipt Mill")
	supplier := newTestSupplier(t, ctx, "SUP-01", "CV Sawit Jaya")
	cangkang := newTestMaterial(t, ctx, "CKG-01", "Cangkang")
	fiber := newTestMaterial(t, ctx, "FBR-01", "Fiber")

	pr, err := models.CreatePurchaseRequest(ctx, &models.NewPurchaseRequest{
		Number: "PR-0001",
		Details: []models.NewPurchaseRequestDetail{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(500)},
			{MaterialId: fiber.ID, Qty: decimal.NewFromInt(200)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseRequest: %v", err)
	}
	if pr.CurrentStatus != models.PurchaseRequestStatusDraft {
		t.Fatalf("new purchase request status = %s, want Draft", pr.CurrentStatus)
	}

	// An order cannot reference a request that is still a draft.
	_, err = models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		Number:            "PO-0001",
		SupplierId:        supplier.ID,
		PurchaseRequestId: &pr.ID,
		Details: []models.NewPurchaseOrderDetail{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(500)},
		},
	})
	var transitionErr *utils.InvalidStateTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("order against draft request: got %v, want InvalidStateTransitionError", err)
	}

	approvePurchaseRequest(t, ctx, pr.ID)

	po, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		Number:            "PO-0001",
		SupplierId:        supplier.ID,
		PurchaseRequestId: &pr.ID,
		Details: []models.NewPurchaseOrderDetail{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(500), UnitPrice: decimal.NewFromInt(350)},
			{MaterialId: fiber.ID, Qty: decimal.NewFromInt(200), UnitPrice: decimal.NewFromInt(120)},
		},
	})
	if err != nil {
		t.Fatalf("CreatePurchaseOrder: %v", err)
	}

	// Receipt against a Draft order must fail before anything posts.
	_, err = models.CreateGoodsReceiptFromPurchaseOrder(ctx, &models.NewGoodsReceipt{
		Number:          "GR-0001",
		PurchaseOrderId: po.ID,
		Details: []models.NewGoodsReceiptLine{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(500)},
		},
	})
	if !errors.As(err, &transitionErr) {
		t.Fatalf("receipt against draft order: got %v, want InvalidStateTransitionError", err)
	}
	if balance, _ := models.GetStockBalance(ctx, cangkang.ID); !balance.IsZero() {
		t.Fatalf("balance after rejected receipt = %s, want 0", balance)
	}

	if _, err := models.UpdateStatusPurchaseOrder(ctx, po.ID, models.PurchaseOrderStatusApproved); err != nil {
		t.Fatalf("approve purchase order: %v", err)
	}

	// Completion is reserved for receipt posting.
	_, err = models.UpdateStatusPurchaseOrder(ctx, po.ID, models.PurchaseOrderStatusCompleted)
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("direct completion: got %v, want ValidationError", err)
	}

	// A bad material on the second line rolls back the first line's posting.
	_, err = models.CreateGoodsReceiptFromPurchaseOrder(ctx, &models.NewGoodsReceipt{
		Number:          "GR-0001",
		PurchaseOrderId: po.ID,
		Details: []models.NewGoodsReceiptLine{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(500)},
			{MaterialId: 999999, Qty: decimal.NewFromInt(200)},
		},
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("receipt with unknown material: got %v, want record not found", err)
	}
	if balance, _ := models.GetStockBalance(ctx, cangkang.ID); !balance.IsZero() {
		t.Fatalf("balance after rolled-back receipt = %s, want 0", balance)
	}
	fetched, err := models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder: %v", err)
	}
	if fetched.CurrentStatus != models.PurchaseOrderStatusApproved {
		t.Fatalf("order status after rolled-back receipt = %s, want Approved", fetched.CurrentStatus)
	}

	receipt, err := models.CreateGoodsReceiptFromPurchaseOrder(ctx, &models.NewGoodsReceipt{
		Number:          "GR-0001",
		PurchaseOrderId: po.ID,
		Details: []models.NewGoodsReceiptLine{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(500)},
			{MaterialId: fiber.ID, Qty: decimal.NewFromInt(180)},
		},
	})
	if err != nil {
		t.Fatalf("CreateGoodsReceiptFromPurchaseOrder: %v", err)
	}
	if len(receipt.Details) != 2 {
		t.Fatalf("receipt lines = %d, want 2", len(receipt.Details))
	}

	if balance, _ := models.GetStockBalance(ctx, cangkang.ID); !balance.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("cangkang balance = %s, want 500", balance)
	}
	if balance, _ := models.GetStockBalance(ctx, fiber.ID); !balance.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("fiber balance = %s, want 180", balance)
	}

	fetched, err = models.GetPurchaseOrder(ctx, po.ID)
	if err != nil {
		t.Fatalf("GetPurchaseOrder after receipt: %v", err)
	}
	if fetched.CurrentStatus != models.PurchaseOrderStatusCompleted {
		t.Fatalf("order status after receipt = %s, want Completed", fetched.CurrentStatus)
	}

	// Movements carry the receipt number as their reference.
	movements, err := models.ListStockMovement(ctx, &models.StockMovementFilter{MaterialId: &cangkang.ID})
	if err != nil {
		t.Fatalf("ListStockMovement: %v", err)
	}
	if len(movements) != 1 || movements[0].Reference != receipt.Number {
		t.Fatalf("movements = %+v, want one row referencing %s", movements, receipt.Number)
	}

	// Receipt numbers are unique per company.
	_, err = models.CreateGoodsReceiptFromPurchaseOrder(ctx, &models.NewGoodsReceipt{
		Number:          "GR-0001",
		PurchaseOrderId: po.ID,
		Details: []models.NewGoodsReceiptLine{
			{MaterialId: cangkang.ID, Qty: decimal.NewFromInt(1)},
		},
	})
	var duplicateErr *utils.DuplicateNameError
	if !errors.As(err, &duplicateErr) {
		t.Fatalf("duplicate receipt number: got %v, want DuplicateNameError", err)
	}
}

func TestGoodsIssueFulfillsStoreRequest(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Issue Mill")
	solar := newTestMaterial(t, ctx, "SLR-01", "Solar")
	oli := newTestMaterial(t, ctx, "OLI-01", "Oli Mesin")

	for _, seed := range []struct {
		materialId int
		qty        int64
	}{
		{solar.ID, 100},
		{oli.ID, 20},
	} {
		if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
			MaterialId:   seed.materialId,
			MovementType: models.MovementTypeIn,
			Qty:          decimal.NewFromInt(seed.qty),
			Reference:    "OPENING",
		}); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}

	sr, err := models.CreateStoreRequest(ctx, &models.NewStoreRequest{
		Number:     "SR-0001",
		Department: "Workshop",
		Details: []models.NewStoreRequestDetail{
			{MaterialId: solar.ID, Qty: decimal.NewFromInt(60)},
			{MaterialId: oli.ID, Qty: decimal.NewFromInt(25)},
		},
	})
	if err != nil {
		t.Fatalf("CreateStoreRequest: %v", err)
	}

	// Issue against a request that has not been approved.
	_, err = models.CreateGoodsIssueFromStoreRequest(ctx, &models.NewGoodsIssue{
		Number:         "GI-0001",
		StoreRequestId: sr.ID,
	})
	var transitionErr *utils.InvalidStateTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("issue against draft request: got %v, want InvalidStateTransitionError", err)
	}

	if _, err := models.UpdateStatusStoreRequest(ctx, sr.ID, models.StoreRequestStatusSubmitted); err != nil {
		t.Fatalf("submit store request: %v", err)
	}
	if _, err := models.UpdateStatusStoreRequest(ctx, sr.ID, models.StoreRequestStatusApproved); err != nil {
		t.Fatalf("approve store request: %v", err)
	}

	// Fulfilled is reserved for issue posting.
	_, err = models.UpdateStatusStoreRequest(ctx, sr.ID, models.StoreRequestStatusFulfilled)
	var validationErr *utils.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("direct fulfilment: got %v, want ValidationError", err)
	}

	// Oli is short (20 on hand, 25 requested), so the whole issue must
	// fail with solar untouched.
	_, err = models.CreateGoodsIssueFromStoreRequest(ctx, &models.NewGoodsIssue{
		Number:         "GI-0001",
		StoreRequestId: sr.ID,
	})
	var insufficientErr *utils.InsufficientStockError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("short issue: got %v, want InsufficientStockError", err)
	}
	if balance, _ := models.GetStockBalance(ctx, solar.ID); !balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("solar balance after failed issue = %s, want 100", balance)
	}
	fetched, err := models.GetStoreRequest(ctx, sr.ID)
	if err != nil {
		t.Fatalf("GetStoreRequest: %v", err)
	}
	if fetched.CurrentStatus != models.StoreRequestStatusApproved {
		t.Fatalf("request status after failed issue = %s, want Approved", fetched.CurrentStatus)
	}

	// A line for a material that is not on the request is rejected.
	other := newTestMaterial(t, ctx, "GRS-01", "Grease")
	_, err = models.CreateGoodsIssueFromStoreRequest(ctx, &models.NewGoodsIssue{
		Number:         "GI-0001",
		StoreRequestId: sr.ID,
		Details: []models.NewGoodsIssueLine{
			{MaterialId: other.ID, Qty: decimal.NewFromInt(1)},
		},
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("off-request line: got %v, want ValidationError", err)
	}

	// Partial issue with explicit lines within available stock.
	issue, err := models.CreateGoodsIssueFromStoreRequest(ctx, &models.NewGoodsIssue{
		Number:         "GI-0001",
		StoreRequestId: sr.ID,
		Details: []models.NewGoodsIssueLine{
			{MaterialId: solar.ID, Qty: decimal.NewFromInt(60)},
			{MaterialId: oli.ID, Qty: decimal.NewFromInt(15)},
		},
	})
	if err != nil {
		t.Fatalf("CreateGoodsIssueFromStoreRequest: %v", err)
	}

	if balance, _ := models.GetStockBalance(ctx, solar.ID); !balance.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("solar balance after issue = %s, want 40", balance)
	}
	if balance, _ := models.GetStockBalance(ctx, oli.ID); !balance.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("oli balance after issue = %s, want 5", balance)
	}

	fetched, err = models.GetStoreRequest(ctx, sr.ID)
	if err != nil {
		t.Fatalf("GetStoreRequest after issue: %v", err)
	}
	if fetched.CurrentStatus != models.StoreRequestStatusFulfilled {
		t.Fatalf("request status after issue = %s, want Fulfilled", fetched.CurrentStatus)
	}

	movements, err := models.ListStockMovement(ctx, &models.StockMovementFilter{MaterialId: &solar.ID})
	if err != nil {
		t.Fatalf("ListStockMovement: %v", err)
	}
	var outs int
	for _, movement := range movements {
		if movement.MovementType == models.MovementTypeOut {
			outs++
			if movement.Reference != issue.Number {
				t.Fatalf("OUT reference = %s, want %s", movement.Reference, issue.Number)
			}
		}
	}
	if outs != 1 {
		t.Fatalf("OUT movements for solar = %d, want 1", outs)
	}
}

func TestGoodsIssueDefaultsToRequestedQuantities(t *testing.T) {
	setupIntegration(t)
	ctx, _ := newCompanyContext(t, "Default Issue Mill")
	kernel := newTestMaterial(t, ctx, "KRN-01", "Palm Kernel")

	if _, err := models.RecordStockMovement(ctx, &models.NewStockMovement{
		MaterialId:   kernel.ID,
		MovementType: models.MovementTypeIn,
		Qty:          decimal.NewFromInt(50),
		Reference:    "OPENING",
	}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	sr, err := models.CreateStoreRequest(ctx, &models.NewStoreRequest{
		Number:     "SR-0001",
		Department: "Laboratorium",
		Details: []models.NewStoreRequestDetail{
			{MaterialId: kernel.ID, Qty: decimal.NewFromInt(30)},
		},
	})
	if err != nil {
		t.Fatalf("CreateStoreRequest: %v", err)
	}
	if _, err := models.UpdateStatusStoreRequest(ctx, sr.ID, models.StoreRequestStatusSubmitted); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := models.UpdateStatusStoreRequest(ctx, sr.ID, models.StoreRequestStatusApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}

	issue, err := models.CreateGoodsIssueFromStoreRequest(ctx, &models.NewGoodsIssue{
		Number:         "GI-0001",
		StoreRequestId: sr.ID,
	})
	if err != nil {
		t.Fatalf("CreateGoodsIssueFromStoreRequest: %v", err)
	}
	if len(issue.Details) != 1 || !issue.Details[0].Qty.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("issue details = %+v, want one line of 30", issue.Details)
	}
	if balance, _ := models.GetStockBalance(ctx, kernel.ID); !balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("balance after default issue = %s, want 20", balance)
	}
}

func TestDocumentNumbersUniquePerCompany(t *testing.T) {
	setupIntegration(t)
	ctxA, companyA := newCompanyContext(t, "Numbering Mill A")
	_, companyB := newCompanyContext(t, "Numbering Mill B")

	db := config.GetDB()
	now := time.Now()

	// The pre-insert uniqueness check races under concurrent posts; the
	// database index is the backstop. Insert directly, past the check.
	first := models.GoodsReceipt{CompanyId: companyA.ID, Number: "GR-DUP-1", PurchaseOrderId: 1, ReceiveDate: now}
	if err := db.WithContext(ctxA).Create(&first).Error; err != nil {
		t.Fatalf("insert first receipt: %v", err)
	}
	dup := models.GoodsReceipt{CompanyId: companyA.ID, Number: "GR-DUP-1", PurchaseOrderId: 2, ReceiveDate: now}
	if err := db.WithContext(ctxA).Create(&dup).Error; err == nil {
		t.Fatalf("duplicate receipt number within a company must fail")
	}

	// The same number is fine in another company.
	other := models.GoodsReceipt{CompanyId: companyB.ID, Number: "GR-DUP-1", PurchaseOrderId: 1, ReceiveDate: now}
	if err := db.WithContext(ctxA).Create(&other).Error; err != nil {
		t.Fatalf("same number in another company: %v", err)
	}

	issue := models.GoodsIssue{CompanyId: companyA.ID, Number: "GI-DUP-1", StoreRequestId: 1, IssueDate: now}
	if err := db.WithContext(ctxA).Create(&issue).Error; err != nil {
		t.Fatalf("insert first issue: %v", err)
	}
	dupIssue := models.GoodsIssue{CompanyId: companyA.ID, Number: "GI-DUP-1", StoreRequestId: 2, IssueDate: now}
	if err := db.WithContext(ctxA).Create(&dupIssue).Error; err == nil {
		t.Fatalf("duplicate issue number within a company must fail")
	}
}
