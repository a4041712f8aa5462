package knowledge

import (
	"fmt"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/frontdesk/models"
)

// Index is a full-text index over knowledge questions and answers used for
// dashboard browsing. It never takes part in the escalation decision.
type Index struct {
	idx bleve.Index
}

type indexedEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// NewIndex creates an empty in-memory index.
func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create knowledge index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Put indexes or re-indexes e.
func (i *Index) Put(e models.KnowledgeEntry) error {
	return i.idx.Index(e.ID, indexedEntry{Question: e.Question, Answer: e.Answer})
}

// Search returns ids of matching entries, best first.
func (i *Index) Search(text string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(text), limit, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index.
func (i *Index) Close() error {
	if i == nil || i.idx == nil {
		return nil
	}
	return i.idx.Close()
}
