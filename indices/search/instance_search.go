package search

import (
	"encoding/json"
	"flowchain/domain"
	"flowchain/es"
	"flowchain/indices"
	"flowchain/session"
	"fmt"
	"strings"
)

var (
	SearchInstancesFunc = SearchInstances
)

// SearchInstances queries the ops dashboard index. Only blocked and ended
// instances are indexed, the authoritative instance state lives in the
// database.
func SearchInstances(q domain.InstanceQuery, s *session.Session) ([]indices.InstanceDocument, error) {
	visibleProjects := s.VisibleProjects()
	if len(visibleProjects) == 0 {
		return []indices.InstanceDocument{}, nil
	}

	filters := make([]es.H, 0, 4)
	filters = append(filters, es.H{"terms": es.H{"projectId": visibleProjects}})
	if q.ProjectID != 0 {
		filters = append(filters, es.H{"term": es.H{"projectId": q.ProjectID}})
	}
	if q.AssetID != 0 {
		filters = append(filters, es.H{"term": es.H{"assetId": q.AssetID}})
	}
	if q.State != "" {
		filters = append(filters, es.H{"term": es.H{"state": q.State}})
	}

	sorts := []es.H{{"createTime": es.H{"order": "desc"}}}
	root := es.H{"bool": es.H{"filter": filters}}
	r, err := es.SearchFunc(s.Context, indices.InstanceIndexName, es.H{"size": 10000, "query": root, "sort": sorts})
	if err != nil {
		return nil, err
	}

	docs := make([]indices.InstanceDocument, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := indices.InstanceDocument{}
		if err := json.NewDecoder(strings.NewReader(string(hit.Source))).Decode(&doc); err != nil {
			return nil, fmt.Errorf(string(hit.Source))
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
