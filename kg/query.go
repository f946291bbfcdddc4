package kg

import (
	"context"
	"regexp"
	"sort"
)

const (
	defaultMaxHops        = 2
	multiHopTriplesPerHop = 20
	pathTriplesPerStep    = 10
	maxShortestPaths      = 5
	maxMultiHopTriples    = 50
)

// QueryEngine answers entity, event, multi-hop, and shortest-path
// questions against a Store, grounded on knowledge_graph_service.py's
// query_entities / query_event_participants / multi_hop_query /
// query_relation_path.
type QueryEngine struct {
	Store Store
}

func NewQueryEngine(store Store) *QueryEngine {
	return &QueryEngine{Store: store}
}

// Ask routes query to event-participant lookup when it matches the
// "X的是谁" shape, or to multi-hop query otherwise, per
// _search_triples_from_db's dispatch order.
func (q *QueryEngine) Ask(ctx context.Context, kbID, query string, maxHops, limit int) ([]ScoredTriple, error) {
	if m := eventQueryPattern.FindStringSubmatch(query); m != nil {
		eventName := normalizeEntity(m[1])
		participants, err := q.Store.QueryEventParticipants(ctx, kbID, eventName, limit)
		if err != nil {
			return nil, err
		}
		out := make([]ScoredTriple, len(participants))
		for i, t := range participants {
			out[i] = ScoredTriple{Triple: t, Hop: 0}
		}
		return out, nil
	}
	return q.MultiHopQuery(ctx, kbID, query, maxHops)
}

var eventQueryPattern = regexp.MustCompile(`(.+?)的是谁`)

// quotedSpan, capitalizedRun, and bookTitle mirror
// _extract_entities_from_query's three regex patterns.
var (
	quotedSpan     = regexp.MustCompile(`["“”]([^"“”]+)["“”]`)
	capitalizedRun = regexp.MustCompile(`[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`)
	bookTitle      = regexp.MustCompile(`《([^《》]+)》`)
	chineseToken   = regexp.MustCompile(`\p{Han}{2,10}`)
)

// extractEntitiesFromQuery pulls candidate entity strings out of a
// free-text query: quoted spans, capitalized English runs, book-title
// brackets, then (if still empty) a fallback scan for 2-10 character
// Chinese tokens, capped at 5.
func extractEntitiesFromQuery(query string) []string {
	var found []string
	for _, m := range quotedSpan.FindAllStringSubmatch(query, -1) {
		found = append(found, m[1])
	}
	found = append(found, capitalizedRun.FindAllString(query, -1)...)
	for _, m := range bookTitle.FindAllStringSubmatch(query, -1) {
		found = append(found, m[1])
	}
	if len(found) == 0 {
		for _, tok := range chineseToken.FindAllString(query, -1) {
			if len([]rune(tok)) >= 2 {
				found = append(found, tok)
			}
		}
	}

	seen := make(map[string]bool, len(found))
	unique := make([]string, 0, len(found))
	for _, e := range found {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
		if len(unique) >= 5 {
			break
		}
	}
	return unique
}

// MultiHopQuery extracts entities from query, then iteratively expands
// up to maxHops hops, collecting every touched triple (deduped by
// subject/predicate/object) and the new entities it exposes, per
// multi_hop_query. Results sort by hop ascending then confidence
// descending, capped at 50.
func (q *QueryEngine) MultiHopQuery(ctx context.Context, kbID, query string, maxHops int) ([]ScoredTriple, error) {
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	entities := extractEntitiesFromQuery(query)
	if len(entities) == 0 {
		return nil, nil
	}

	visited := make(map[string]bool, len(entities))
	current := make(map[string]bool, len(entities))
	for _, e := range entities {
		visited[e] = true
		current[e] = true
	}

	seenTriples := make(map[string]bool)
	var all []ScoredTriple

	for hop := 0; hop <= maxHops; hop++ {
		if len(current) == 0 {
			break
		}
		next := make(map[string]bool)
		addedThisHop := 0

		for entity := range current {
			triples, err := q.Store.AllTriplesTouching(ctx, kbID, []string{entity}, multiHopTriplesPerHop)
			if err != nil {
				return nil, err
			}
			for _, t := range triples {
				key := t.Subject + "|" + t.Predicate + "|" + t.Object
				if seenTriples[key] {
					continue
				}
				seenTriples[key] = true
				all = append(all, ScoredTriple{Triple: t, Hop: hop})
				addedThisHop++

				if !visited[t.Subject] {
					next[t.Subject] = true
				}
				if !visited[t.Object] {
					next[t.Object] = true
				}
			}
		}

		for e := range next {
			visited[e] = true
		}
		current = next
		if addedThisHop == 0 {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Hop != all[j].Hop {
			return all[i].Hop < all[j].Hop
		}
		return all[i].Confidence > all[j].Confidence
	})
	if len(all) > maxMultiHopTriples {
		all = all[:maxMultiHopTriples]
	}
	return all, nil
}

// ShortestPaths performs a bounded DFS between start and end, per
// query_relation_path, returning up to 5 paths sorted by length
// ascending then summed confidence descending.
func (q *QueryEngine) ShortestPaths(ctx context.Context, kbID, start, end string, maxHops int) ([][]Triple, error) {
	if maxHops <= 0 {
		maxHops = 3
	}

	var paths [][]Triple
	visited := make(map[string]bool)
	var path []Triple

	var dfs func(current string, hops int) error
	dfs = func(current string, hops int) error {
		if hops > maxHops || visited[current] {
			return nil
		}
		if current == end && len(path) > 0 {
			cp := make([]Triple, len(path))
			copy(cp, path)
			paths = append(paths, cp)
			return nil
		}

		visited[current] = true
		defer delete(visited, current)

		triples, err := q.Store.AllTriplesTouching(ctx, kbID, []string{current}, pathTriplesPerStep)
		if err != nil {
			return err
		}
		for _, t := range triples {
			var nextEntity string
			if t.Subject == current {
				nextEntity = t.Object
			} else if t.Object == current {
				nextEntity = t.Subject
			} else {
				continue
			}
			if visited[nextEntity] {
				continue
			}
			path = append(path, t)
			if err := dfs(nextEntity, hops+1); err != nil {
				return err
			}
			path = path[:len(path)-1]
		}
		return nil
	}

	if err := dfs(start, 0); err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		if len(paths[i]) != len(paths[j]) {
			return len(paths[i]) < len(paths[j])
		}
		return pathConfidence(paths[i]) > pathConfidence(paths[j])
	})
	if len(paths) > maxShortestPaths {
		paths = paths[:maxShortestPaths]
	}
	return paths, nil
}

func pathConfidence(path []Triple) float64 {
	var sum float64
	for _, t := range path {
		sum += t.Confidence
	}
	return sum
}
