package indices

import (
	"context"
	"flowchain/domain"
	"flowchain/persistence"
	"fmt"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	SyncBatchSize = 500

	// keeps the nightly full sync from flooding the search cluster
	syncLimiter = rate.NewLimiter(rate.Limit(50), 50)

	IndicesFullSyncFunc = IndicesFullSync
)

func StartCron() {
	crontab := cron.New(cron.WithSeconds())
	crontab.AddFunc("0 0 23 * * ?", func() {
		if err := IndicesFullSyncFunc(); err != nil {
			logrus.Warnf("indices fully sync failed: %v", err)
		}
	})
	crontab.Start()
}

// IndicesFullSync re-indexes every blocked and ended instance, the repair
// path for documents the inline indexing missed.
func IndicesFullSync() (err error) {
	defer func() {
		if ret := recover(); ret != nil {
			e, ok := ret.(error)
			if ok {
				err = e
			} else {
				err = fmt.Errorf("error on indices full sync: %v", ret)
			}
		}
	}()

	db := persistence.ActiveDataSourceManager.GormDB(context.Background())

	page := 1
	for {
		var instances []domain.WorkflowInstance
		if err := db.Where("state in (?)", []domain.InstanceState{domain.InstanceBlocked, domain.InstanceEnded}).
			Order("id ASC").Offset((page - 1) * SyncBatchSize).Limit(SyncBatchSize).
			Find(&instances).Error; err != nil {
			logrus.Warnf("indices fully sync: error on retrieve instances(page = %d, pageSize = %d): %v",
				page, SyncBatchSize, err)
			return err
		}

		if len(instances) == 0 {
			logrus.Infof("indices fully sync: there are no more instances to index")
			return nil
		}

		if err := syncLimiter.WaitN(context.Background(), len(instances)); err != nil {
			return err
		}
		if err := IndexInstancesFunc(instances); err != nil {
			logrus.Warnf("indices fully sync: error on index instances(page = %d, pageSize = %d): %v",
				page, SyncBatchSize, err)
		}
		page++
	}
}
