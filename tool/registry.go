package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultScore and MinAvailableScore mirror spec.md §6's
	// TOOL_DEFAULT_SCORE / TOOL_MIN_AVAILABLE_SCORE, grounded on
	// original_source/agent-backend/tools/tool_manager.py.
	DefaultScore      = 3.0
	MinAvailableScore = 1.5
	scoreSuccessDelta = 0.1
	scoreFailureDelta = -0.5
	scoreMin          = 1.0
	scoreMax          = 5.0
)

// ScoreStore persists a tool's score/availability per (type, name),
// implemented by storage.Store. Kept as a narrow interface here so
// the tool package never imports storage directly.
type ScoreStore interface {
	LoadToolScore(ctx context.Context, toolType, name string) (score float64, found bool, err error)
	SaveToolScore(ctx context.Context, toolType, name string, score float64, available bool) error
}

// Entry pairs a registered Tool with the source that produced it,
// mirroring tools/registry.go's ToolEntry.
type Entry struct {
	Tool           Tool
	Type           Type
	RepositoryName string
}

// Registry is the process-singleton tool registry (C1). Unlike the
// teacher's tools/registry.go (which wraps registry.BaseRegistry and
// never scores), this one layers score bookkeeping on top, grounded
// on tool_manager.py's _update_tool_score/_persist_tool_score.
type Registry struct {
	mu                sync.RWMutex
	entries           map[string]Entry
	scores            map[string]float64
	defaultScore      float64
	minAvailableScore float64
	store             ScoreStore
	logger            *slog.Logger
}

// NewRegistry constructs an empty registry. defaultScore/minAvailable
// of 0 fall back to the spec defaults.
func NewRegistry(defaultScore, minAvailableScore float64, store ScoreStore, logger *slog.Logger) *Registry {
	if defaultScore == 0 {
		defaultScore = DefaultScore
	}
	if minAvailableScore == 0 {
		minAvailableScore = MinAvailableScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries:           make(map[string]Entry),
		scores:            make(map[string]float64),
		defaultScore:      defaultScore,
		minAvailableScore: minAvailableScore,
		store:             store,
		logger:            logger,
	}
}

// Register adds a tool under its own name, loading a persisted score
// if the backing store has one, else seeding the default.
func (r *Registry) Register(ctx context.Context, t Tool, typ Type, repository string) error {
	name := t.GetName()
	if name == "" {
		return fmt.Errorf("tool registry: tool has empty name")
	}
	score := r.defaultScore
	if r.store != nil {
		if s, found, err := r.store.LoadToolScore(ctx, string(typ), name); err == nil && found {
			score = s
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		r.logger.Warn("tool name conflict, overwriting", "tool", name, "repository", repository)
	}
	r.entries[name] = Entry{Tool: t, Type: typ, RepositoryName: repository}
	r.scores[name] = score
	return nil
}

// Get returns the raw Tool for name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Tool, true
}

// List returns tool Info sorted by score descending, per spec.md §4.1.
// typ, if non-empty, filters to that Type.
func (r *Registry) List(typ Type) []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.entries))
	for name, e := range r.entries {
		if typ != "" && e.Type != typ {
			continue
		}
		score := r.scores[name]
		info := e.Tool.GetInfo()
		info.Score = score
		info.IsAvailable = score >= r.minAvailableScore
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Score != infos[j].Score {
			return infos[i].Score > infos[j].Score
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// ListByCategory filters List("") results by ContainerType, matching
// the teacher's list_by_category naming from spec.md §4.1.
func (r *Registry) ListByCategory(category ContainerType) []Info {
	all := r.List("")
	out := make([]Info, 0, len(all))
	for _, info := range all {
		if info.ContainerType == category {
			out = append(out, info)
		}
	}
	return out
}

// HighestScoredPerGroup groups registered tools by (Type, ContainerType)
// and keeps only the highest-scored tool per group, used by the
// PlannerNode when composing its "available tools" prompt section.
func (r *Registry) HighestScoredPerGroup() []Info {
	all := r.List("")
	best := make(map[string]Info)
	for _, info := range all {
		key := string(info.Type) + "|" + string(info.ContainerType)
		cur, ok := best[key]
		if !ok || info.Score > cur.Score {
			best[key] = info
		}
	}
	out := make([]Info, 0, len(best))
	for _, info := range best {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a tool by name, enforcing availability gating and
// updating its score per spec.md §4.1/§8's execution contract.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (Result, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	score := r.scores[name]
	typ := Type("")
	if ok {
		typ = entry.Type
	}
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("tool registry: unknown tool %q", name)
	}
	if score < r.minAvailableScore {
		return Result{}, fmt.Errorf("tool registry: tool %q unavailable (score %.2f < %.2f)", name, score, r.minAvailableScore)
	}

	start := time.Now()
	result, err := entry.Tool.Execute(ctx, params)
	result.ExecutionTime = time.Since(start).Seconds()
	result.ToolName = name

	success := err == nil && result.Success && !isSoftFailure(name, result)
	r.updateScore(ctx, name, typ, success)
	if err != nil {
		return result, err
	}
	return result, nil
}

// isSoftFailure implements spec.md §4.1's soft-failure heuristic: a
// result shaped like an error, a content string containing failure
// keywords, or a web_search result beginning with "not found".
func isSoftFailure(name string, result Result) bool {
	if result.Error != "" {
		return true
	}
	lower := strings.ToLower(result.Content)
	for _, kw := range []string{"failed", "error occurred", "could not", "unable to"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	if strings.Contains(strings.ToLower(name), "web_search") && strings.HasPrefix(strings.TrimSpace(lower), "not found") {
		return true
	}
	return false
}

// updateScore applies the +0.1/-0.5 clamp-and-persist rule.
func (r *Registry) updateScore(ctx context.Context, name string, typ Type, success bool) {
	r.mu.Lock()
	score := r.scores[name]
	if success {
		score += scoreSuccessDelta
	} else {
		score += scoreFailureDelta
	}
	if score > scoreMax {
		score = scoreMax
	}
	if score < scoreMin {
		score = scoreMin
	}
	r.scores[name] = score
	r.mu.Unlock()

	available := score >= r.minAvailableScore
	if r.store != nil {
		if err := r.store.SaveToolScore(ctx, string(typ), name, score, available); err != nil {
			r.logger.Warn("failed to persist tool score", "tool", name, "error", err)
		}
	}
}

// ResetScore restores a tool to the registry default and re-enables
// it, implementing spec.md §8 scenario S6's reset_tool_score.
func (r *Registry) ResetScore(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("tool registry: unknown tool %q", name)
	}
	r.scores[name] = r.defaultScore
	typ := entry.Type
	r.mu.Unlock()

	if r.store != nil {
		return r.store.SaveToolScore(ctx, string(typ), name, r.defaultScore, r.defaultScore >= r.minAvailableScore)
	}
	return nil
}

// Score returns the current in-memory score for name.
func (r *Registry) Score(name string) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.scores[name]
	return s, ok
}

// Remove drops a tool from the registry (e.g. when its MCP repository
// is torn down).
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	delete(r.scores, name)
}
