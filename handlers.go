package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/agrindo/pks_backend/models"
	"bitbucket.org/agrindo/pks_backend/models/reports"
	"bitbucket.org/agrindo/pks_backend/utils"
	"bitbucket.org/agrindo/pks_backend/workflow"
	"github.com/gin-gonic/gin"
)

// httpStatusForError maps the domain error taxonomy to response codes.
func httpStatusForError(err error) int {
	var validationErr *utils.ValidationError
	var notFoundErr *utils.NotFoundError
	var duplicateErr *utils.DuplicateNameError
	var transitionErr *utils.InvalidStateTransitionError
	var insufficientErr *utils.InsufficientStockError
	var capacityErr *utils.CapacityExceededError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &duplicateErr):
		return http.StatusConflict
	case errors.As(err, &transitionErr):
		return http.StatusConflict
	case errors.As(err, &insufficientErr), errors.As(err, &capacityErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(httpStatusForError(err), gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string) *int {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func stringQuery(c *gin.Context, name string) *string {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	return &v
}

func timeQuery(c *gin.Context, name string) *time.Time {
	v := c.Query(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t, err = time.Parse("2006-01-02", v)
		if err != nil {
			return nil
		}
	}
	return &t
}

func dateQuery(c *gin.Context, name string) (models.DateString, bool) {
	v := c.Query(name)
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be YYYY-MM-DD"})
		return models.DateString{}, false
	}
	return models.DateString(t), true
}

/* auth */

func registerHandler() gin.HandlerFunc {
	type registerInput struct {
		Company models.NewCompany `json:"company" binding:"required"`
		User    models.NewUser    `json:"user" binding:"required"`
	}
	return func(c *gin.Context) {
		var input registerInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()

		company, err := models.CreateCompany(ctx, &input.Company)
		if err != nil {
			respondError(c, err)
			return
		}
		// Company owner administers their tenant from day one.
		input.User.IsAdmin = utils.NewTrue()
		user, err := models.CreateUser(utils.SetCompanyIdInContext(ctx, company.ID), &input.User)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"company": company, "user": user})
	}
}

func loginHandler() gin.HandlerFunc {
	type loginInput struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	return func(c *gin.Context) {
		var input loginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		token, user, err := models.Login(c.Request.Context(), input.Username, input.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

/* masters */

func createJSON[I any, O any](create func(c *gin.Context, input *I) (O, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input I
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := create(c, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func updateJSON[I any, O any](update func(c *gin.Context, id int, input *I) (O, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input I
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := update(c, id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func deleteById[O any](remove func(c *gin.Context, id int) (O, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := remove(c, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getById[O any](get func(c *gin.Context, id int) (O, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := get(c, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

/* stock */

func invalidateStockSummaryCache(c *gin.Context) {
	if companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context()); ok {
		_ = reports.InvalidateStockSummaryCache(companyId)
	}
}

func recordStockMovementHandler() gin.HandlerFunc {
	return createJSON(func(c *gin.Context, input *models.NewStockMovement) (*models.StockMovement, error) {
		movement, err := models.RecordStockMovement(c.Request.Context(), input)
		if err == nil {
			invalidateStockSummaryCache(c)
		}
		return movement, err
	})
}

func listStockMovementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := &models.StockMovementFilter{
			MaterialId: intQuery(c, "material_id"),
			Reference:  stringQuery(c, "reference"),
			DateFrom:   timeQuery(c, "date_from"),
			DateTo:     timeQuery(c, "date_to"),
		}
		if v := c.Query("movement_type"); v != "" {
			mt := models.MovementType(v)
			filter.MovementType = &mt
		}
		results, err := models.ListStockMovement(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func getStockBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		balance, err := models.GetStockBalance(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"material_id": id, "qty_on_hand": balance})
	}
}

func listStockBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := models.ListStockMaterial(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func getStockSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := models.GetStockSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

/* tangki */

func recordTangkiTransactionHandler() gin.HandlerFunc {
	return createJSON(func(c *gin.Context, input *models.NewTangkiTransaction) (*models.StockTangkiTransaction, error) {
		return models.RecordTangkiTransaction(c.Request.Context(), input)
	})
}

func transferTangkiStockHandler() gin.HandlerFunc {
	return createJSON(func(c *gin.Context, input *models.NewTangkiTransfer) ([]*models.StockTangkiTransaction, error) {
		return models.TransferTangkiStock(c.Request.Context(), input)
	})
}

func listTangkiTransactionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := &models.TangkiTransactionFilter{
			TangkiId: intQuery(c, "tangki_id"),
			DateFrom: timeQuery(c, "date_from"),
			DateTo:   timeQuery(c, "date_to"),
		}
		if v := c.Query("transaction_type"); v != "" {
			tt := models.TangkiTransactionType(v)
			filter.TransactionType = &tt
		}
		results, err := models.ListTangkiTransaction(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func getTangkiStockSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := models.GetTangkiStockSummary(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

/* document workflows */

type statusInput struct {
	Status string `json:"status" binding:"required"`
}

func updateStatusPurchaseRequestHandler() gin.HandlerFunc {
	return updateJSON(func(c *gin.Context, id int, input *statusInput) (*models.PurchaseRequest, error) {
		return models.UpdateStatusPurchaseRequest(c.Request.Context(), id, models.PurchaseRequestStatus(input.Status))
	})
}

func updateStatusPurchaseOrderHandler() gin.HandlerFunc {
	return updateJSON(func(c *gin.Context, id int, input *statusInput) (*models.PurchaseOrder, error) {
		return models.UpdateStatusPurchaseOrder(c.Request.Context(), id, models.PurchaseOrderStatus(input.Status))
	})
}

func updateStatusStoreRequestHandler() gin.HandlerFunc {
	return updateJSON(func(c *gin.Context, id int, input *statusInput) (*models.StoreRequest, error) {
		return models.UpdateStatusStoreRequest(c.Request.Context(), id, models.StoreRequestStatus(input.Status))
	})
}

/* reports */

func stockSummaryReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate, ok := dateQuery(c, "from")
		if !ok {
			return
		}
		toDate, ok := dateQuery(c, "to")
		if !ok {
			return
		}
		results, err := reports.GetStockSummaryReport(c.Request.Context(), fromDate, toDate, intQuery(c, "material_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=stock_summary.xlsx")
			if err := reports.WriteStockSummaryExcel(c.Writer, results); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
			}
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func tangkiStockReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate, ok := dateQuery(c, "from")
		if !ok {
			return
		}
		toDate, ok := dateQuery(c, "to")
		if !ok {
			return
		}
		results, err := reports.GetTangkiStockReport(c.Request.Context(), fromDate, toDate)
		if err != nil {
			respondError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			c.Header("Content-Disposition", "attachment; filename=tangki_stock.xlsx")
			if err := reports.WriteTangkiStockExcel(c.Writer, results); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write file"})
			}
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

/* ops */

func runConsistencyChecksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, ok := utils.GetCompanyIdFromContext(c.Request.Context())
		if !ok || companyId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		correlationId, err := workflow.RunLedgerConsistencyChecks(c.Request.Context(), companyId)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"correlation_id": correlationId})
	}
}

func listReconciliationReportsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := models.ListReconciliationReports(c.Request.Context(), stringQuery(c, "check_type"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}
