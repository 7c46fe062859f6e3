package memory

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geoscrai/universalis/pkg/embedder"
	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/vector"
)

// Entry is one stored memory.
type Entry struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Meta        Metadata  `json:"meta"`
	AccessCount int       `json:"access_count"`
	Timestamp   time.Time `json:"timestamp"`
	seq         int
}

// Bank is the associative memory bank for one simulation. Semantic retrieval
// goes through the vector provider; recency and scan queries use the in-bank
// entry table.
type Bank struct {
	provider     vector.Provider
	embed        embedder.Embedder
	simulationID string
	collection   string
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
	hashes  map[string]bool
	nextSeq int
}

// NewBank creates a memory bank backed by the given provider and embedder.
// tableName defaults to "memories".
func NewBank(provider vector.Provider, embed embedder.Embedder, simulationID, tableName string) (*Bank, error) {
	if provider == nil {
		return nil, fmt.Errorf("vector provider cannot be nil")
	}
	if embed == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if simulationID == "" {
		return nil, fmt.Errorf("simulation id cannot be empty")
	}
	if tableName == "" {
		tableName = "memories"
	}
	return &Bank{
		provider:     provider,
		embed:        embed,
		simulationID: simulationID,
		collection:   fmt.Sprintf("%s_%s", tableName, simulationID),
		logger:       logger.GetLogger(),
		entries:      make(map[string]*Entry),
		hashes:       make(map[string]bool),
	}, nil
}

// contentHash identifies a memory by text, owner and scope. Duplicate adds
// of the same triple are no-ops.
func contentHash(text, ownerID string, scope Scope) string {
	content := fmt.Sprintf("%s:%s:%s", text, ownerID, scope)
	return fmt.Sprintf("%x", md5.Sum([]byte(content)))
}

// Add stores a memory. Newlines are flattened and the text trimmed; empty
// text and duplicates return false. The embedding is computed outside the
// bank lock.
func (b *Bank) Add(ctx context.Context, text string, meta Metadata) (bool, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if text == "" {
		return false, nil
	}
	if meta.Scope == "" {
		meta.Scope = ScopePrivate
	}
	if meta.Importance < 0 || meta.Importance > 1 {
		return false, fmt.Errorf("importance %.2f out of range [0, 1]", meta.Importance)
	}

	hash := contentHash(text, meta.OwnerID, meta.Scope)

	b.mu.Lock()
	if b.hashes[hash] {
		b.mu.Unlock()
		return false, nil
	}
	b.mu.Unlock()

	embedding, err := b.embed.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("embedding memory: %w", err)
	}

	memoryID := fmt.Sprintf("%s_%s", b.simulationID, hash)

	b.mu.Lock()
	defer b.mu.Unlock()
	// Re-check after the unlocked embedding call.
	if b.hashes[hash] {
		return false, nil
	}

	entry := &Entry{
		ID:        memoryID,
		Text:      text,
		Meta:      meta,
		Timestamp: time.Now(),
		seq:       b.nextSeq,
	}
	b.nextSeq++

	if err := b.provider.Upsert(ctx, b.collection, memoryID, embedding, map[string]any{
		"content":  text,
		"scope":    string(meta.Scope),
		"owner_id": meta.OwnerID,
		"group_id": meta.GroupID,
		"cycle":    meta.Cycle,
	}); err != nil {
		return false, fmt.Errorf("indexing memory: %w", err)
	}

	b.entries[memoryID] = entry
	b.hashes[hash] = true
	return true, nil
}

// Extend adds multiple memories with shared metadata and returns how many
// were actually stored.
func (b *Bank) Extend(ctx context.Context, texts []string, meta Metadata) (int, error) {
	count := 0
	for _, text := range texts {
		added, err := b.Add(ctx, text, meta)
		if err != nil {
			return count, err
		}
		if added {
			count++
		}
	}
	return count, nil
}

// RetrieveAssociative returns up to k memory texts most similar to the
// query, restricted by the scope filter. Retrieved entries get an access
// bump used by pruning.
func (b *Bank) RetrieveAssociative(ctx context.Context, query string, k int, filter *ScopeFilter) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := b.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// Scope visibility is disjunctive (public OR owned OR shared group),
	// which exact-match metadata filters cannot express, so fetch the whole
	// collection (bounded by pruning) and filter here. Without a filter the
	// similarity window alone decides.
	fetch := k
	if filter != nil {
		count, err := b.provider.Count(ctx, b.collection)
		if err != nil {
			return nil, fmt.Errorf("sizing memory search: %w", err)
		}
		if count == 0 {
			return nil, nil
		}
		fetch = count
	}
	results, err := b.provider.Search(ctx, b.collection, queryVec, fetch)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	texts := make([]string, 0, k)
	for _, r := range results {
		entry, ok := b.entries[r.ID]
		if !ok {
			continue
		}
		if filter != nil && !filter.CanAccess(entry.Meta) {
			continue
		}
		entry.AccessCount++
		texts = append(texts, entry.Text)
		if len(texts) >= k {
			break
		}
	}
	return texts, nil
}

// RetrieveRecent returns up to k memory texts ordered newest first,
// restricted by the scope filter.
func (b *Bank) RetrieveRecent(k int, filter *ScopeFilter) []string {
	if k <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	visible := b.visibleLocked(filter)
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].seq > visible[j].seq
	})

	texts := make([]string, 0, k)
	for _, entry := range visible {
		texts = append(texts, entry.Text)
		if len(texts) >= k {
			break
		}
	}
	return texts
}

// Scan returns the texts of visible memories matching the selector.
func (b *Bank) Scan(selector func(string) bool, filter *ScopeFilter) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	visible := b.visibleLocked(filter)
	sort.Slice(visible, func(i, j int) bool {
		return visible[i].seq < visible[j].seq
	})

	var texts []string
	for _, entry := range visible {
		if selector(entry.Text) {
			texts = append(texts, entry.Text)
		}
	}
	return texts
}

// AllTexts returns every visible memory text in insertion order.
func (b *Bank) AllTexts(filter *ScopeFilter) []string {
	return b.Scan(func(string) bool { return true }, filter)
}

func (b *Bank) visibleLocked(filter *ScopeFilter) []*Entry {
	visible := make([]*Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		if filter != nil && !filter.CanAccess(entry.Meta) {
			continue
		}
		visible = append(visible, entry)
	}
	return visible
}

// Len returns the number of stored memories.
func (b *Bank) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// GetState exports a checkpointable snapshot of the bank.
func (b *Bank) GetState() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	hashes := make([]string, 0, len(b.hashes))
	for h := range b.hashes {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	return map[string]any{
		"simulation_id": b.simulationID,
		"collection":    b.collection,
		"stored_hashes": hashes,
		"memory_count":  len(b.entries),
	}
}

// SetState restores the duplicate-detection hash set from a checkpoint.
func (b *Bank) SetState(state map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hashes = make(map[string]bool)
	raw, ok := state["stored_hashes"].([]string)
	if !ok {
		if anySlice, ok := state["stored_hashes"].([]any); ok {
			for _, v := range anySlice {
				if s, ok := v.(string); ok {
					b.hashes[s] = true
				}
			}
		}
		return
	}
	for _, h := range raw {
		b.hashes[h] = true
	}
}

// Clear removes every memory from the bank and its vector collection.
func (b *Bank) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.provider.DeleteCollection(ctx, b.collection); err != nil {
		return fmt.Errorf("clearing memory collection: %w", err)
	}
	b.entries = make(map[string]*Entry)
	b.hashes = make(map[string]bool)
	b.logger.Info("Memory bank cleared", "collection", b.collection)
	return nil
}

// Prune runs the pruning policy against the bank, removing decayed entries
// from both the entry table and the vector store. Returns the number of
// removed memories.
func (b *Bank) Prune(ctx context.Context, pruner *Pruner, currentCycle int) (int, error) {
	if !pruner.ShouldRun(currentCycle) {
		return 0, nil
	}

	b.mu.Lock()
	all := make([]*Entry, 0, len(b.entries))
	for _, entry := range b.entries {
		all = append(all, entry)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	b.mu.Unlock()

	surviving := pruner.Run(all, currentCycle)

	keep := make(map[string]bool, len(surviving))
	for _, entry := range surviving {
		keep[entry.ID] = true
	}

	b.mu.Lock()
	var removedIDs []string
	for id, entry := range b.entries {
		if !keep[id] {
			removedIDs = append(removedIDs, id)
			delete(b.entries, id)
			delete(b.hashes, contentHash(entry.Text, entry.Meta.OwnerID, entry.Meta.Scope))
		}
	}
	b.mu.Unlock()

	for _, id := range removedIDs {
		if err := b.provider.Delete(ctx, b.collection, id); err != nil {
			b.logger.Warn("Failed to remove pruned memory from vector store", "id", id, "error", err)
		}
	}

	if len(removedIDs) > 0 {
		b.logger.Info("Memory pruning complete", "removed", len(removedIDs), "cycle", currentCycle)
	}
	return len(removedIDs), nil
}
