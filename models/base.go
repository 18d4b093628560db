package models

import (
	"context"

	"bitbucket.org/agrindo/pks_backend/utils"
	"github.com/google/uuid"
)

// correlationIdFromContextOrNew threads the request's correlation id onto
// ledger rows so a multi-line posting can be traced end to end.
func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
