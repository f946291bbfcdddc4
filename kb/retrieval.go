package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RetrievalConfig tunes the retrieval pipeline, mirroring
// config.RetrievalConfig's toggles.
type RetrievalConfig struct {
	TopK                int
	VectorThreshold      float32
	VectorThresholdFloor float32
	EnableDecomposition  bool
	EnableHyDE           bool
	EnableMultiQuery     bool
	EnableRerank         bool
	RerankerAfterTopN    int
	RerankerTopK         int
	SubQueryWorkers      int
}

// DefaultRetrievalConfig matches §4.7's defaults in spirit: a
// moderate vector threshold with relaxation, reranking disabled by
// default (it costs an LLM round trip).
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:                 5,
		VectorThreshold:      0.75,
		VectorThresholdFloor: 0.55,
		RerankerAfterTopN:    20,
		RerankerTopK:         5,
		SubQueryWorkers:      3,
	}
}

// Engine is the C7 retrieval engine: ingestion plus the query()
// pipeline of §4.7's seven steps, grounded on v2/rag.SearchEngine's
// layering (chunker + embedder + provider + optional HyDE/
// reranker/multi-query).
type Engine struct {
	KBID     string
	Store    VectorStore
	Embedder Embedder
	LLM      Completer
	Chunker  Chunker
	Graph    GraphBooster
	Config   RetrievalConfig

	mu     sync.RWMutex
	chunks map[string]Chunk // in-process mirror for keyword search + domain stamping
}

// NewEngine builds a retrieval engine for one knowledge base.
func NewEngine(kbID string, store VectorStore, embedder Embedder, llm Completer, chunker Chunker, graph GraphBooster, cfg RetrievalConfig) *Engine {
	return &Engine{
		KBID: kbID, Store: store, Embedder: embedder, LLM: llm, Chunker: chunker, Graph: graph, Config: cfg,
		chunks: make(map[string]Chunk),
	}
}

// Ingest chunks, embeds, and stores a document, per §4.7's ingestion
// description. It covers only the chunk+embed+store path: it does not
// classify the document's domain (ClassifyDomain does that) and does
// not create summary chunks.
func (e *Engine) Ingest(ctx context.Context, doc Document) error {
	if doc.Content == "" {
		return nil
	}
	bodies := e.Chunker.Split(doc.Content)
	if len(bodies) == 0 {
		return nil
	}
	texts := make([]string, len(bodies))
	copy(texts, bodies)
	embeddings, err := e.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("kb: embedding failed: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	collection := e.collection()
	for i, body := range bodies {
		chunkID := fmt.Sprintf("%s:chunk:%d", doc.ID, i)
		var embedding []float32
		if i < len(embeddings) {
			embedding = embeddings[i]
		}
		chunk := Chunk{
			ID: chunkID, KBID: e.KBID, DocumentID: doc.ID, Index: i, Total: len(bodies),
			Content: body, Embedding: embedding, Metadata: doc.Metadata,
		}
		e.chunks[chunkID] = chunk

		meta := map[string]interface{}{"content": body, "document_id": doc.ID, "chunk_index": i, "chunk_total": len(bodies)}
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		if err := e.Store.Upsert(ctx, collection, chunkID, embedding, meta); err != nil {
			return fmt.Errorf("kb: upsert chunk %s: %w", chunkID, err)
		}
	}
	return nil
}

// ClassifyDomain samples up to 5 random chunks of a document and asks
// the LLM (or falls back to a keyword taxonomy) for a domain label,
// stamping it onto every chunk of that document, per §4.7.
func (e *Engine) ClassifyDomain(ctx context.Context, documentID string) (string, error) {
	e.mu.Lock()
	var sample []Chunk
	for _, c := range e.chunks {
		if c.DocumentID == documentID {
			sample = append(sample, c)
		}
	}
	e.mu.Unlock()
	if len(sample) == 0 {
		return "", nil
	}
	if len(sample) > 5 {
		sample = sample[:5]
	}

	domain := keywordDomainFallback(sample)
	if e.LLM != nil {
		var sb strings.Builder
		for _, c := range sample {
			sb.WriteString(c.Content)
			sb.WriteString("\n---\n")
		}
		resp, err := e.LLM.Complete(ctx, "Classify the domain of this text in one or two words (e.g. legal, medical, fiction, technical).", sb.String())
		if err == nil && strings.TrimSpace(resp) != "" {
			domain = strings.TrimSpace(resp)
		}
	}

	e.mu.Lock()
	for id, c := range e.chunks {
		if c.DocumentID == documentID {
			c.Domain = domain
			e.chunks[id] = c
		}
	}
	e.mu.Unlock()
	return domain, nil
}

func keywordDomainFallback(chunks []Chunk) string {
	taxonomy := map[string][]string{
		"legal":     {"contract", "clause", "whereas", "plaintiff", "statute"},
		"medical":   {"patient", "diagnosis", "treatment", "symptom", "dosage"},
		"technical": {"function", "algorithm", "api", "configuration", "system"},
		"financial": {"revenue", "invoice", "balance", "asset", "liability"},
	}
	counts := make(map[string]int)
	for _, c := range chunks {
		lower := strings.ToLower(c.Content)
		for domain, words := range taxonomy {
			for _, w := range words {
				counts[domain] += strings.Count(lower, w)
			}
		}
	}
	best := "general"
	bestCount := 0
	for domain, n := range counts {
		if n > bestCount {
			best, bestCount = domain, n
		}
	}
	return best
}

// ChunksForDocument returns the chunks ingested for documentID, used
// by the ingestion handler to hand each chunk's text to the
// knowledge-graph extractor once chunking completes, per spec.md §3's
// "triple extraction proceeds asynchronously in a worker" note.
func (e *Engine) ChunksForDocument(documentID string) []Chunk {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Chunk
	for _, c := range e.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) collection() string { return "kb_" + e.KBID }

// Query implements §4.7's full retrieval pipeline.
func (e *Engine) Query(ctx context.Context, query, userID string, maxResults int) (QueryResult, error) {
	if maxResults <= 0 {
		maxResults = e.Config.TopK
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	query = strings.Join(strings.Fields(strings.TrimSpace(query)), " ")

	var decomposed []string
	if e.Config.EnableDecomposition {
		decomposed = e.decompose(ctx, query)
	}

	merged, err := e.recall(ctx, query, decomposed, maxResults)
	if err != nil {
		return QueryResult{}, err
	}

	if e.Graph != nil {
		e.applyGraphBoost(ctx, query, merged)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Similarity > merged[j].Similarity })

	rerankTake := e.Config.RerankerAfterTopN
	if rerankTake < 2*maxResults {
		rerankTake = 2 * maxResults
	}
	if rerankTake > len(merged) {
		rerankTake = len(merged)
	}
	candidates := merged[:rerankTake]

	if e.Config.EnableRerank && e.LLM != nil && len(candidates) > 0 {
		candidates = e.rerank(ctx, query, candidates)
	}

	topK := e.Config.RerankerTopK
	if topK <= 0 || topK > maxResults {
		topK = maxResults
	}
	if topK > len(candidates) {
		topK = len(candidates)
	}
	final := candidates[:topK]

	response := e.synthesize(ctx, query, final)

	return QueryResult{
		Query:    query,
		Response: response,
		Sources:  final,
		Metadata: map[string]interface{}{
			"recall_count":       len(merged),
			"decomposition_used": len(decomposed) > 0,
			"rerank_used":        e.Config.EnableRerank,
			"graph_enhanced":     e.Graph != nil,
		},
		DecomposedTerms: decomposed,
	}, nil
}

// decompose splits the query into ≤5 sub-terms via the LLM, falling
// back to keyword tokens, per §4.7 step 2.
func (e *Engine) decompose(ctx context.Context, query string) []string {
	if e.LLM != nil {
		resp, err := e.LLM.Complete(ctx,
			`Decompose the user's query into at most 5 short search sub-terms. Respond with a JSON array of strings only.`,
			query)
		if err == nil {
			var terms []string
			if start, end := strings.IndexByte(resp, '['), strings.LastIndexByte(resp, ']'); start >= 0 && end > start {
				if json.Unmarshal([]byte(resp[start:end+1]), &terms) == nil && len(terms) > 0 {
					if len(terms) > 5 {
						terms = terms[:5]
					}
					return terms
				}
			}
		}
	}
	terms := tokenize(query)
	if len(terms) > 5 {
		terms = terms[:5]
	}
	return terms
}

// recall runs the vector, keyword, and per-sub-term recall routes
// concurrently and merges by chunk_id, per §4.7 steps 3-4.
func (e *Engine) recall(ctx context.Context, query string, subTerms []string, maxResults int) ([]Source, error) {
	textToEmbed := query
	if e.Config.EnableHyDE && e.LLM != nil {
		if hypothetical, err := e.LLM.Complete(ctx,
			"Write a short hypothetical passage that would directly answer this query. Do not mention it is hypothetical.", query); err == nil && hypothetical != "" {
			textToEmbed = hypothetical
		}
	}

	type routeResult struct {
		vector  map[string]float32
		keyword map[string]keywordHit
		subVec  map[string]float32
	}
	var rr routeResult
	rr.vector = make(map[string]float32)
	rr.keyword = make(map[string]keywordHit)
	rr.subVec = make(map[string]float32)

	var wg sync.WaitGroup
	var mu sync.Mutex
	topK := maxResults * 4
	if topK < 20 {
		topK = 20
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		embedding, err := e.Embedder.Embed(ctx, textToEmbed)
		if err != nil {
			return
		}
		records, err := e.Store.SearchWithFilter(ctx, e.collection(), embedding, topK, map[string]interface{}{})
		if err != nil {
			return
		}
		scored := e.thresholdRelax(records, topK)
		mu.Lock()
		for _, r := range scored {
			rr.vector[r.ID] = r.Score
			e.cacheContent(r)
		}
		mu.Unlock()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.mu.RLock()
		all := make([]Chunk, 0, len(e.chunks))
		for _, c := range e.chunks {
			all = append(all, c)
		}
		e.mu.RUnlock()
		hits := keywordSearch(query, all, topK)
		mu.Lock()
		for _, h := range hits {
			rr.keyword[h.chunkID] = h
		}
		mu.Unlock()
	}()

	workers := e.Config.SubQueryWorkers
	if workers <= 0 {
		workers = 3
	}
	sem := make(chan struct{}, workers)
	for _, term := range subTerms {
		wg.Add(1)
		sem <- struct{}{}
		go func(term string) {
			defer wg.Done()
			defer func() { <-sem }()
			embedding, err := e.Embedder.Embed(ctx, term)
			if err != nil {
				return
			}
			records, err := e.Store.Search(ctx, e.collection(), embedding, topK)
			if err != nil {
				return
			}
			mu.Lock()
			for _, r := range records {
				weighted := r.Score * 0.9
				if existing, ok := rr.subVec[r.ID]; !ok || weighted > existing {
					rr.subVec[r.ID] = weighted
				}
				e.cacheContent(r)
			}
			mu.Unlock()
		}(term)
	}
	wg.Wait()

	return e.mergeRoutes(rr.vector, rr.keyword, rr.subVec), nil
}

// cacheContent keeps the in-process chunk mirror populated from
// vector-store hits so keyword search and synthesis have content even
// before a full Ingest call populated it locally (e.g. after restart
// with a persisted store).
func (e *Engine) cacheContent(r VectorRecord) {
	if r.Content == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.chunks[r.ID]
	c.ID = r.ID
	c.Content = r.Content
	if docID, ok := r.Metadata["document_id"].(string); ok {
		c.DocumentID = docID
	}
	e.chunks[r.ID] = c
}

// thresholdRelax applies §4.7 step 3's dynamic threshold relaxation:
// the configured threshold, then a floor, then "take top 2·top_k
// regardless".
func (e *Engine) thresholdRelax(records []VectorRecord, topK int) []VectorRecord {
	sort.Slice(records, func(i, j int) bool { return records[i].Score > records[j].Score })
	filter := func(threshold float32) []VectorRecord {
		var out []VectorRecord
		for _, r := range records {
			if r.Score >= threshold {
				out = append(out, r)
			}
		}
		return out
	}
	if out := filter(e.Config.VectorThreshold); len(out) >= topK || e.Config.VectorThreshold <= 0 {
		return out
	}
	if out := filter(e.Config.VectorThresholdFloor); len(out) >= topK {
		return out
	}
	limit := 2 * topK
	if limit > len(records) {
		limit = len(records)
	}
	return records[:limit]
}

// mergeRoutes implements §4.7 step 4's fused-score merge.
func (e *Engine) mergeRoutes(vector map[string]float32, keyword map[string]keywordHit, subVec map[string]float32) []Source {
	ids := make(map[string]bool)
	for id := range vector {
		ids[id] = true
	}
	for id := range keyword {
		ids[id] = true
	}
	for id := range subVec {
		ids[id] = true
	}

	var out []Source
	for id := range ids {
		vecScore := vector[id]
		if sv, ok := subVec[id]; ok && sv > vecScore {
			vecScore = sv
		}
		kwHit, hasKw := keyword[id]
		kwScore := float32(0)
		if hasKw {
			kwScore = float32(kwHit.score)
			if kwScore > 1 {
				kwScore = 1
			}
		}

		var score float32
		origin := "vector"
		switch {
		case vecScore > 0 && hasKw && kwScore > 0.7*vecScore:
			score = 0.6*vecScore + 0.4*kwScore
			origin = "hybrid"
		case hasKw && kwScore > 0.8 && kwScore > vecScore:
			score = kwScore
			origin = "keyword"
		case vecScore > 0:
			score = vecScore
			origin = "vector"
		default:
			score = 0.8 * kwScore
			origin = "keyword"
		}

		e.mu.RLock()
		chunk := e.chunks[id]
		e.mu.RUnlock()

		out = append(out, Source{
			ChunkID: id, DocumentID: chunk.DocumentID, Content: chunk.Content,
			Similarity: score, Origin: origin,
		})
	}
	return out
}

// applyGraphBoost implements §4.7 step 5: chunks referenced by graph
// triples matching query entities get +0.1 similarity, capped at 1.0.
func (e *Engine) applyGraphBoost(ctx context.Context, query string, sources []Source) {
	entities := tokenize(query)
	boosted, err := e.Graph.ChunksForEntities(ctx, e.KBID, entities)
	if err != nil {
		return
	}
	for i := range sources {
		if boosted[sources[i].ChunkID] {
			sources[i].Similarity += 0.1
			if sources[i].Similarity > 1.0 {
				sources[i].Similarity = 1.0
			}
			sources[i].GraphBoosted = true
		}
	}
}

// rerank calls the LLM as a cross-encoder, grounded on
// v2/rag/reranker.go's rank-then-reorder shape.
func (e *Engine) rerank(ctx context.Context, query string, candidates []Source) []Source {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Given the query %q, rank the following passages by relevance.\n", query))
	for i, c := range candidates {
		content := c.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i, content))
	}
	sb.WriteString(`Respond with a JSON array ordered most to least relevant: [{"index": 0, "relevance": 9}, ...]`)

	resp, err := e.LLM.Complete(ctx, "You are a precise passage relevance ranker.", sb.String())
	if err != nil {
		return candidates
	}
	start, end := strings.IndexByte(resp, '['), strings.LastIndexByte(resp, ']')
	if start < 0 || end <= start {
		return candidates
	}
	var rankings []struct {
		Index     int `json:"index"`
		Relevance int `json:"relevance"`
	}
	if json.Unmarshal([]byte(resp[start:end+1]), &rankings) != nil || len(rankings) == 0 {
		return candidates
	}
	seen := make(map[int]bool)
	out := make([]Source, 0, len(candidates))
	for i, r := range rankings {
		if r.Index < 0 || r.Index >= len(candidates) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		s := candidates[r.Index]
		s.RerankScore = 1.0 - float32(i)*0.05
		out = append(out, s)
	}
	for i, c := range candidates {
		if !seen[i] {
			out = append(out, c)
		}
	}
	return out
}

// synthesize builds the final LLM answer from selected sources, with
// a deterministic context-dump fallback on LLM failure, per §4.7
// step 7.
func (e *Engine) synthesize(ctx context.Context, query string, sources []Source) string {
	if len(sources) == 0 {
		return "I found no relevant documents to answer that question."
	}
	var sb strings.Builder
	for _, s := range sources {
		sb.WriteString(s.Content)
		sb.WriteString("\n\n")
	}
	context := sb.String()

	if e.LLM == nil {
		return truncate(context, 2000)
	}
	resp, err := e.LLM.Complete(ctx,
		"Answer the user's question using only the provided context. If the context doesn't contain the answer, say so.",
		fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, query))
	if err != nil || strings.TrimSpace(resp) == "" {
		return truncate(context, 2000)
	}
	return resp
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
