package mcp

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ToolCategory groups tools by what they act on.
type ToolCategory string

const (
	// CategoryCapture is for tools that create notes.
	CategoryCapture ToolCategory = "capture"
	// CategoryEntities is for entity query and transition tools.
	CategoryEntities ToolCategory = "entities"
	// CategoryModel is for on-device model tools.
	CategoryModel ToolCategory = "model"
	// CategorySearch is for tool discovery (tool_search itself).
	CategorySearch ToolCategory = "search"
)

// ToolMetadata describes a registered MCP tool.
type ToolMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    ToolCategory `json:"category"`
	// Keywords are additional searchable terms for this tool.
	Keywords []string `json:"keywords,omitempty"`
}

// ToolRegistry indexes tool metadata for discovery.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolMetadata
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*ToolMetadata)}
}

// Register adds or replaces a tool. Unnamed tools are ignored.
func (r *ToolRegistry) Register(tool *ToolMetadata) {
	if tool == nil || tool.Name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get returns the metadata for name.
func (r *ToolRegistry) Get(name string) (*ToolMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every tool sorted by name.
func (r *ToolRegistry) List() []*ToolMetadata {
	return r.filter(func(*ToolMetadata) bool { return true })
}

// ListByCategory returns the tools in category sorted by name.
func (r *ToolRegistry) ListByCategory(category ToolCategory) []*ToolMetadata {
	return r.filter(func(t *ToolMetadata) bool { return t.Category == category })
}

func (r *ToolRegistry) filter(keep func(*ToolMetadata) bool) []*ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolMetadata, 0, len(r.tools))
	for _, t := range r.tools {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// SearchResult is one tool matched by Search.
type SearchResult struct {
	Tool *ToolMetadata `json:"tool"`
	// Score is 3 for an exact name match, 2 for a name match and 1 for a
	// description or keyword match.
	Score       int    `json:"score"`
	MatchReason string `json:"match_reason"`
}

// Search matches query case-insensitively against names, descriptions and
// keywords. A query that compiles as a regular expression is also applied
// as a pattern. Results are ordered by score, then name.
func (r *ToolRegistry) Search(query string) []*SearchResult {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)
	re, err := regexp.Compile("(?i)" + query)
	if err != nil {
		re = nil
	}
	matches := func(s string) bool {
		return strings.Contains(strings.ToLower(s), q) || (re != nil && re.MatchString(s))
	}

	var results []*SearchResult
	for _, tool := range r.List() {
		switch {
		case strings.ToLower(tool.Name) == q:
			results = append(results, &SearchResult{Tool: tool, Score: 3, MatchReason: "exact name match"})
		case matches(tool.Name):
			results = append(results, &SearchResult{Tool: tool, Score: 2, MatchReason: "name matches query"})
		case matches(tool.Description):
			results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "description matches query"})
		default:
			for _, kw := range tool.Keywords {
				if matches(kw) {
					results = append(results, &SearchResult{Tool: tool, Score: 1, MatchReason: "keyword matches query"})
					break
				}
			}
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}

// SearchByCategory runs Search and keeps results in category.
func (r *ToolRegistry) SearchByCategory(query string, category ToolCategory) []*SearchResult {
	var out []*SearchResult
	for _, res := range r.Search(query) {
		if res.Tool.Category == category {
			out = append(out, res)
		}
	}
	return out
}
