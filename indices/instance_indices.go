package indices

import (
	"context"
	"flowchain/domain"
	"flowchain/es"
	"fmt"

	"github.com/fundwit/go-commons/types"
	"github.com/sirupsen/logrus"
)

var (
	InstanceIndexName = "instances"

	IndexInstanceFunc  = IndexInstance
	IndexInstancesFunc = IndexInstances
)

// InstanceDocument is the ops-dashboard projection of an instance: blocked
// ones with their reason, ended ones with their outcome.
type InstanceDocument struct {
	domain.WorkflowInstance
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

func IndexInstance(inst *domain.InstanceDetail) error {
	return IndexInstancesFunc([]domain.WorkflowInstance{inst.WorkflowInstance})
}

func IndexInstances(instances []domain.WorkflowInstance) error {
	// the ops dashboard is optional, nothing to do without a search cluster
	if es.ActiveESClient == nil {
		return nil
	}

	docs := make([]InstanceDocument, 0, len(instances))
	for _, inst := range instances {
		docs = append(docs, InstanceDocument{WorkflowInstance: inst})
	}

	if err := saveInstanceDocuments(docs); err != nil {
		return err
	}
	return nil
}

func saveInstanceDocuments(docs []InstanceDocument) BatchActionError {
	errs := BatchActionError{}

	for _, doc := range docs {
		if err := es.IndexFunc(context.Background(), InstanceIndexName, doc.ID, doc); err != nil {
			errs[doc.ID] = err
			logrus.Warnf("index instance %d %s\n", doc.ID, err)
		} else {
			logrus.Infof("index instance %d successfully\n", doc.ID)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
