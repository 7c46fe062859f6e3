// Package memory implements the scoped associative memory bank. Memories are
// embedded and indexed in the vector store for semantic retrieval, with
// visibility controlled per entry by scope (public, private, shared group).
package memory

// Scope is the visibility scope of a memory entry.
type Scope string

const (
	// ScopePublic memories are visible to every agent (news, weather,
	// global events).
	ScopePublic Scope = "public"
	// ScopePrivate memories are visible only to their owner.
	ScopePrivate Scope = "private"
	// ScopeSharedGroup memories are visible to members of the entry's group
	// and to the owner.
	ScopeSharedGroup Scope = "shared_group"
)

// Metadata describes a memory entry's visibility and weighting.
type Metadata struct {
	Scope      Scope    `json:"scope"`
	OwnerID    string   `json:"owner_id,omitempty"`
	GroupID    string   `json:"group_id,omitempty"`
	Cycle      int      `json:"cycle"`
	Importance float64  `json:"importance"`
	Tags       []string `json:"tags,omitempty"`
}

// ScopeFilter decides which memories a requesting agent may see.
type ScopeFilter struct {
	AgentID       string
	Groups        map[string]bool
	IncludePublic bool
}

// NewScopeFilter builds a filter for an agent that includes public memories.
func NewScopeFilter(agentID string, groups ...string) *ScopeFilter {
	groupSet := make(map[string]bool, len(groups))
	for _, g := range groups {
		groupSet[g] = true
	}
	return &ScopeFilter{
		AgentID:       agentID,
		Groups:        groupSet,
		IncludePublic: true,
	}
}

// CanAccess reports whether the agent may read a memory with the given
// metadata.
func (f *ScopeFilter) CanAccess(meta Metadata) bool {
	switch meta.Scope {
	case ScopePublic:
		return f.IncludePublic
	case ScopePrivate:
		return meta.OwnerID == f.AgentID
	case ScopeSharedGroup:
		if meta.GroupID != "" && f.Groups[meta.GroupID] {
			return true
		}
		return meta.OwnerID == f.AgentID
	}
	return false
}
