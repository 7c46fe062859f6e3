package memory

import (
	"sort"
	"strings"
	"sync"
)

// PruningConfig tunes decay, consolidation and the hard memory cap.
type PruningConfig struct {
	DecayRate              float64 `yaml:"decay_rate"`
	MinImportance          float64 `yaml:"min_importance"`
	ConsolidationThreshold float64 `yaml:"consolidation_threshold"`
	PruneInterval          int     `yaml:"prune_interval"`
	MaxMemories            int     `yaml:"max_memories"`
}

// DefaultPruningConfig returns the standard pruning policy: 5% decay per
// cycle, 0.1 importance floor, 0.85 consolidation threshold, pruning every
// 100 cycles, 10000 memory cap.
func DefaultPruningConfig() PruningConfig {
	return PruningConfig{
		DecayRate:              0.05,
		MinImportance:          0.1,
		ConsolidationThreshold: 0.85,
		PruneInterval:          100,
		MaxMemories:            10000,
	}
}

// DecayedImportance applies exponential decay over elapsed cycles, with a
// boost for frequently accessed memories. The result is clamped to [0, 1].
func DecayedImportance(importance float64, cyclesElapsed, accessCount int, decayRate float64) float64 {
	decayFactor := 1.0
	for i := 0; i < cyclesElapsed; i++ {
		decayFactor *= 1 - decayRate
	}
	accessBoost := float64(accessCount) * 0.1
	if accessBoost > 1.0 {
		accessBoost = 1.0
	}
	decayed := importance * decayFactor
	boosted := decayed + accessBoost*(1-decayed)
	if boosted < 0 {
		return 0
	}
	if boosted > 1 {
		return 1
	}
	return boosted
}

// JaccardSimilarity is the word-set similarity used for consolidation.
func JaccardSimilarity(text1, text2 string) float64 {
	words1 := wordSet(text1)
	words2 := wordSet(text2)
	if len(words1) == 0 || len(words2) == 0 {
		return 0
	}
	intersection := 0
	for w := range words1 {
		if words2[w] {
			intersection++
		}
	}
	union := len(words1) + len(words2) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = true
	}
	return set
}

// Pruner orchestrates decay, consolidation and the memory cap.
type Pruner struct {
	config PruningConfig

	mu             sync.Mutex
	lastPruneCycle int
}

// NewPruner creates a pruner; a zero config is replaced with the defaults.
func NewPruner(config PruningConfig) *Pruner {
	if config == (PruningConfig{}) {
		config = DefaultPruningConfig()
	}
	return &Pruner{config: config}
}

// ShouldRun reports whether enough cycles elapsed since the last run.
func (p *Pruner) ShouldRun(currentCycle int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return currentCycle-p.lastPruneCycle >= p.config.PruneInterval
}

// Run prunes the given entries: decayed importance below the floor drops the
// entry, near-duplicate texts are consolidated into the earlier entry with a
// 20% importance boost, and the survivor list is capped by importance.
// Surviving entries are returned with their importance updated in place.
func (p *Pruner) Run(entries []*Entry, currentCycle int) []*Entry {
	p.mu.Lock()
	p.lastPruneCycle = currentCycle
	p.mu.Unlock()

	surviving := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		cyclesElapsed := currentCycle - entry.Meta.Cycle
		if cyclesElapsed < 0 {
			cyclesElapsed = 0
		}
		decayed := DecayedImportance(entry.Meta.Importance, cyclesElapsed, entry.AccessCount, p.config.DecayRate)
		if decayed < p.config.MinImportance {
			continue
		}
		entry.Meta.Importance = decayed
		surviving = append(surviving, entry)
	}

	consolidated := p.consolidate(surviving)

	if len(consolidated) > p.config.MaxMemories {
		sort.SliceStable(consolidated, func(i, j int) bool {
			return consolidated[i].Meta.Importance > consolidated[j].Meta.Importance
		})
		consolidated = consolidated[:p.config.MaxMemories]
	}
	return consolidated
}

func (p *Pruner) consolidate(entries []*Entry) []*Entry {
	if len(entries) < 2 {
		return entries
	}

	removed := make(map[int]bool)
	for i := range entries {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if removed[j] {
				continue
			}
			if JaccardSimilarity(entries[i].Text, entries[j].Text) >= p.config.ConsolidationThreshold {
				boosted := entries[i].Meta.Importance
				if entries[j].Meta.Importance > boosted {
					boosted = entries[j].Meta.Importance
				}
				boosted *= 1.2
				if boosted > 1.0 {
					boosted = 1.0
				}
				entries[i].Meta.Importance = boosted
				removed[j] = true
			}
		}
	}

	out := make([]*Entry, 0, len(entries))
	for i, entry := range entries {
		if !removed[i] {
			out = append(out, entry)
		}
	}
	return out
}
