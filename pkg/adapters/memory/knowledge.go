package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/replyflow/pkg/domain"
)

// Knowledge implements ports.KnowledgeSearcher, ports.KnowledgeLister and
// ports.BusinessProfileSource over in-memory data. Search scores items by the
// fraction of query terms they contain.
type Knowledge struct {
	mu       sync.RWMutex
	items    map[string][]domain.KnowledgeItem
	profiles map[string]*domain.BusinessProfile
}

// NewKnowledge creates an empty knowledge base.
func NewKnowledge() *Knowledge {
	return &Knowledge{
		items:    make(map[string][]domain.KnowledgeItem),
		profiles: make(map[string]*domain.BusinessProfile),
	}
}

// AddItems stores items for a workspace.
func (k *Knowledge) AddItems(workspaceID string, items ...domain.KnowledgeItem) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.items[workspaceID] = append(k.items[workspaceID], items...)
}

// SetProfile stores the business profile of a workspace.
func (k *Knowledge) SetProfile(workspaceID string, p domain.BusinessProfile) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.profiles[workspaceID] = &p
}

// ListItems returns the workspace items, optionally filtered by ID.
func (k *Knowledge) ListItems(ctx context.Context, workspaceID string, ids []string) ([]domain.KnowledgeItem, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	var out []domain.KnowledgeItem
	for _, it := range k.items[workspaceID] {
		if len(ids) == 0 || slices.Contains(ids, it.ID) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Search returns the topK items sharing the most terms with query.
func (k *Knowledge) Search(ctx context.Context, workspaceID, query string, topK int) ([]domain.KnowledgeItem, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	var hits []domain.KnowledgeItem
	for _, it := range k.items[workspaceID] {
		text := strings.ToLower(it.Title + " " + it.Content)
		var n int
		for _, term := range terms {
			if strings.Contains(text, term) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		it.Score = float64(n) / float64(len(terms))
		hits = append(hits, it)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// BusinessProfile returns the stored profile, or domain.ErrNotFound.
func (k *Knowledge) BusinessProfile(ctx context.Context, workspaceID string) (*domain.BusinessProfile, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	p, ok := k.profiles[workspaceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}
