package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// RunLedgerConsistencyChecks guards the models-level sweep with a per-company
// redis lock so a scheduled run and an admin-triggered run do not overlap.
// If redis is unavailable the sweep runs anyway; checks are read-mostly and
// duplicate report rows are tolerable.
func RunLedgerConsistencyChecks(ctx context.Context, companyId string) (string, error) {
	logger := config.GetLogger()

	var lock *redislock.Lock
	redisLock := config.GetRedisLock()
	if redisLock == nil {
		logger.WithFields(logrus.Fields{
			"field":      "ReconciliationWorkflow",
			"company_id": companyId,
		}).Warn("redis lock not ready; proceeding without redis lock")
	} else {
		var err error
		lock, err = redisLock.Obtain(ctx, fmt.Sprintf("lock:reconcile:%s", companyId), 5*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			return "", fmt.Errorf("consistency checks already running for company %s", companyId)
		} else if err != nil {
			logger.WithFields(logrus.Fields{
				"field":      "ReconciliationWorkflow",
				"company_id": companyId,
			}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
			lock = nil
		}
	}
	defer func() {
		if lock == nil {
			return
		}
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			logger.WithFields(logrus.Fields{
				"field":      "ReconciliationWorkflow",
				"company_id": companyId,
			}).Warn("failed to release redis lock: " + releaseErr.Error())
		}
	}()

	correlationId, err := models.RunLedgerConsistencyChecks(ctx, companyId)
	if err != nil {
		return correlationId, err
	}

	logger.WithFields(logrus.Fields{
		"field":          "ReconciliationWorkflow",
		"company_id":     companyId,
		"correlation_id": correlationId,
	}).Info("ledger consistency checks completed")
	return correlationId, nil
}
