package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/aretw0/replyflow/internal/logging"
	"github.com/aretw0/replyflow/pkg/domain"
	"github.com/aretw0/replyflow/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// DefaultTopK is the number of search hits used when a node does not set one.
const DefaultTopK = 5

// KnowledgeContext is the grounding material for one model call.
type KnowledgeContext struct {
	Items   []domain.KnowledgeItem
	Profile *domain.BusinessProfile
}

// KnowledgeAssembler gathers explicit items, search hits and the business
// profile concurrently. Any port may be nil.
type KnowledgeAssembler struct {
	searcher ports.KnowledgeSearcher
	lister   ports.KnowledgeLister
	profiles ports.BusinessProfileSource
	topK     int
	logger   *slog.Logger
}

// AssemblerOption configures a KnowledgeAssembler.
type AssemblerOption func(*KnowledgeAssembler)

// WithSearcher sets the semantic search port.
func WithSearcher(s ports.KnowledgeSearcher) AssemblerOption {
	return func(a *KnowledgeAssembler) { a.searcher = s }
}

// WithLister sets the item listing port.
func WithLister(l ports.KnowledgeLister) AssemblerOption {
	return func(a *KnowledgeAssembler) { a.lister = l }
}

// WithProfiles sets the business profile port.
func WithProfiles(p ports.BusinessProfileSource) AssemblerOption {
	return func(a *KnowledgeAssembler) { a.profiles = p }
}

// WithTopK sets the default number of search hits.
func WithTopK(k int) AssemblerOption {
	return func(a *KnowledgeAssembler) { a.topK = k }
}

// WithAssemblerLogger sets the logger.
func WithAssemblerLogger(l *slog.Logger) AssemblerOption {
	return func(a *KnowledgeAssembler) { a.logger = l }
}

// NewKnowledgeAssembler creates an assembler.
func NewKnowledgeAssembler(opts ...AssemblerOption) *KnowledgeAssembler {
	a := &KnowledgeAssembler{topK: DefaultTopK, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble fetches the context for query within scope. A failing search or
// listing fails the whole call; a missing business profile does not.
func (a *KnowledgeAssembler) Assemble(ctx context.Context, workspaceID, query string, scope domain.KnowledgeScope) (*KnowledgeContext, error) {
	out := &KnowledgeContext{}
	if a == nil || scope.Disabled {
		return out, nil
	}

	topK := scope.TopK
	if topK <= 0 {
		topK = a.topK
	}

	var explicit, hits []domain.KnowledgeItem
	g, gctx := errgroup.WithContext(ctx)

	if a.lister != nil {
		g.Go(func() error {
			items, err := a.lister.ListItems(gctx, workspaceID, scope.ItemIDs)
			if err != nil {
				return fmt.Errorf("list knowledge: %w", err)
			}
			explicit = items
			return nil
		})
	}
	if a.searcher != nil && strings.TrimSpace(query) != "" {
		g.Go(func() error {
			items, err := a.searcher.Search(gctx, workspaceID, query, topK)
			if err != nil {
				return fmt.Errorf("search knowledge: %w", err)
			}
			hits = items
			return nil
		})
	}
	if a.profiles != nil && scope.BusinessProfile {
		g.Go(func() error {
			p, err := a.profiles.BusinessProfile(gctx, workspaceID)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					a.logger.Warn("business profile unavailable", "workspace_id", workspaceID, "err", err)
				}
				return nil
			}
			out.Profile = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(scope.ItemIDs) > 0 {
		hits = filterIDs(hits, scope.ItemIDs)
	}
	out.Items = dedupe(append(explicit, Rerank(query, hits)...))
	return out, nil
}

// Rerank orders search hits by their score plus lexical overlap with query.
// Semantic scores alone tend to favour long, loosely related documents.
func Rerank(query string, items []domain.KnowledgeItem) []domain.KnowledgeItem {
	terms := tokens(query)
	if len(terms) == 0 || len(items) < 2 {
		return items
	}

	type scored struct {
		item  domain.KnowledgeItem
		score float64
	}
	ranked := make([]scored, len(items))
	for i, it := range items {
		doc := make(map[string]bool)
		for _, t := range tokens(it.Title + " " + it.Content) {
			doc[t] = true
		}
		var hit int
		for _, t := range terms {
			if doc[t] {
				hit++
			}
		}
		ranked[i] = scored{item: it, score: it.Score + float64(hit)/float64(len(terms))}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]domain.KnowledgeItem, len(ranked))
	for i, r := range ranked {
		out[i] = r.item
	}
	return out
}

func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func filterIDs(items []domain.KnowledgeItem, ids []string) []domain.KnowledgeItem {
	allowed := make(map[string]bool, len(ids))
	for _, id := range ids {
		allowed[id] = true
	}
	var out []domain.KnowledgeItem
	for _, it := range items {
		if allowed[it.ID] {
			out = append(out, it)
		}
	}
	return out
}

// dedupe keys items by ID, or by title and content when they have none.
func dedupe(items []domain.KnowledgeItem) []domain.KnowledgeItem {
	seen := make(map[string]bool, len(items))
	out := make([]domain.KnowledgeItem, 0, len(items))
	for _, it := range items {
		key := "id:" + it.ID
		if it.ID == "" {
			key = "text:" + it.Title + "\x00" + it.Content
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
