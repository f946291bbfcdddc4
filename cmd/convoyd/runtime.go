package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowctl/convoy/agent"
	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/kb"
	"github.com/flowctl/convoy/kg"
	"github.com/flowctl/convoy/llm"
	"github.com/flowctl/convoy/pipeline"
	"github.com/flowctl/convoy/server"
	"github.com/flowctl/convoy/storage"
	"github.com/flowctl/convoy/tool"
	"github.com/flowctl/convoy/tool/mcpclient"
)

// runtime bundles every long-lived collaborator built from config,
// mirroring cmd/hector/main.go's ServeCmd assembly step but wired to
// convoy's component set instead of hector's agent/LLM-only runtime.
type runtime struct {
	cfg       *config.Config
	store     *storage.Store
	llmReg    *llm.Registry
	toolReg   *tool.Registry
	kbReg     *kb.Registry
	mcpHelper *mcpclient.Helper
	kgStore   kg.Store
	extractor *kg.Extractor

	agents    map[string]agent.Agent
	pipelines map[string]*pipeline.Pipeline
}

// buildRuntime constructs every collaborator in dependency order:
// storage first (everything else persists through it), then
// providers (LLM/tool/KB/graph), then one agent per config.AgentConfig
// entry, last of all the agents map the server dispatches against.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.EnsureToolScoreColumn(ctx); err != nil {
		return nil, fmt.Errorf("ensure tool score column: %w", err)
	}

	rt := &runtime{
		cfg:       cfg,
		store:     store,
		agents:    make(map[string]agent.Agent),
		pipelines: make(map[string]*pipeline.Pipeline),
	}

	rt.llmReg = llm.NewRegistry()
	if err := rt.llmReg.LoadFromConfig(ctx, cfg.LLMs); err != nil {
		return nil, fmt.Errorf("load llm providers: %w", err)
	}

	workspace := tool.NewWorkspace(cfg.Global.WorkspaceRoot)
	rt.toolReg = tool.NewRegistry(cfg.Tools.DefaultScore, cfg.Tools.MinAvailableScore, store, slog.Default())
	if err := rt.registerTools(ctx, workspace); err != nil {
		return nil, err
	}

	rt.kbReg, err = rt.buildKBRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("build knowledge bases: %w", err)
	}

	if cfg.Graph.KnowledgeGraphEnabled {
		rt.kgStore = store
		rt.extractor, err = rt.buildExtractor(ctx)
		if err != nil {
			return nil, fmt.Errorf("build graph extractor: %w", err)
		}
	}

	if err := rt.buildAgents(store); err != nil {
		return nil, fmt.Errorf("build agents: %w", err)
	}

	return rt, nil
}

// registerTools registers every built-in tool under TypeBuiltin, then
// every MCP-server-discovered tool under TypeMCP, per §4.1/§4.2's
// "tools come from two sources, both register through the same
// Registry" contract.
func (rt *runtime) registerTools(ctx context.Context, workspace *tool.Workspace) error {
	for _, t := range tool.Builtins(workspace) {
		if err := rt.toolReg.Register(ctx, t, tool.TypeBuiltin, "builtin"); err != nil {
			return fmt.Errorf("register builtin tool %q: %w", t.GetInfo().Name, err)
		}
	}

	if len(rt.cfg.Tools.MCPServers) == 0 {
		return nil
	}
	rt.mcpHelper = mcpclient.NewHelper()
	for name, serverCfg := range rt.cfg.Tools.MCPServers {
		rt.mcpHelper.AddServer(name, serverCfg)
	}
	discovered, err := tool.DiscoverMCPTools(ctx, rt.mcpHelper)
	if err != nil {
		return fmt.Errorf("discover mcp tools: %w", err)
	}
	for _, t := range discovered {
		if err := rt.toolReg.Register(ctx, t, tool.TypeMCP, "mcp"); err != nil {
			return fmt.Errorf("register mcp tool %q: %w", t.GetInfo().Name, err)
		}
	}
	return nil
}

// promptCompleter adapts an llm.Provider's request/response shape to
// the narrow system/user-prompt Completer surface that kb and kg both
// depend on, mirroring agent/services.go's llmCaller adapter for the
// same impedance mismatch.
type promptCompleter struct {
	provider llm.Provider
}

func (c promptCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.provider.Complete(ctx, llm.Request{Messages: []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// buildKBRegistry constructs one kb.Engine per configured knowledge
// base, each wired to the vector store/embedder its config.Database
// and config.Embedder keys name, per §4.7's per-kb provider binding.
func (rt *runtime) buildKBRegistry(ctx context.Context) (*kb.Registry, error) {
	reg := kb.NewRegistry()
	llmProvider, hasLLM := rt.llmReg.Get(rt.cfg.Global.DefaultLLM)

	for kbID, kbCfg := range rt.cfg.KnowledgeBases {
		dbCfg, ok := rt.cfg.Databases[kbCfg.Database]
		if !ok {
			return nil, fmt.Errorf("knowledge_base %q: unknown database %q", kbID, kbCfg.Database)
		}
		vectorStore, err := kb.NewVectorStore(dbCfg.Type, kb.VectorStoreConfig{
			Host:        dbCfg.Host,
			APIKey:      dbCfg.APIKey,
			PersistPath: dbCfg.Path,
		})
		if err != nil {
			return nil, fmt.Errorf("knowledge_base %q: vector store: %w", kbID, err)
		}

		embCfg, ok := rt.cfg.Embedders[kbCfg.Embedder]
		if !ok {
			return nil, fmt.Errorf("knowledge_base %q: unknown embedder %q", kbID, kbCfg.Embedder)
		}
		embedder, err := kb.NewEmbedder(embCfg.Type, embCfg.APIKey, embCfg.Host, embCfg.Model, embCfg.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("knowledge_base %q: embedder: %w", kbID, err)
		}

		chunker := kb.NewChunker(kb.ChunkStrategy(kbCfg.ChunkStrategy), kb.DefaultChunkerConfig())

		var booster kb.GraphBooster
		if rt.cfg.Graph.KnowledgeGraphEnabled {
			booster = kg.NewBooster(rt.store)
		}

		var completer kb.Completer
		if hasLLM {
			completer = promptCompleter{provider: llmProvider}
		}

		retrievalCfg := kb.DefaultRetrievalConfig()
		retrievalCfg.VectorThreshold = float32(rt.cfg.Retrieval.SimilarityThreshold)
		retrievalCfg.VectorThresholdFloor = float32(rt.cfg.Retrieval.SimilarityThresholdMin)
		retrievalCfg.EnableRerank = rt.cfg.Retrieval.RerankerEnabled
		retrievalCfg.RerankerAfterTopN = rt.cfg.Retrieval.RerankerAfterTopN
		retrievalCfg.RerankerTopK = rt.cfg.Retrieval.RerankerTopK
		retrievalCfg.EnableMultiQuery = rt.cfg.Retrieval.MultiRouteRecallEnabled
		retrievalCfg.EnableDecomposition = rt.cfg.Retrieval.LLMQueryDecomposeEnabled
		retrievalCfg.SubQueryWorkers = rt.cfg.Retrieval.SubQueryWorkers
		if retrievalCfg.VectorThreshold == 0 {
			retrievalCfg.VectorThreshold = kb.DefaultRetrievalConfig().VectorThreshold
		}
		if retrievalCfg.VectorThresholdFloor == 0 {
			retrievalCfg.VectorThresholdFloor = kb.DefaultRetrievalConfig().VectorThresholdFloor
		}

		engine := kb.NewEngine(kbID, vectorStore, embedder, completer, chunker, booster, retrievalCfg)
		if err := reg.Register(kbID, engine); err != nil {
			return nil, fmt.Errorf("register knowledge_base %q: %w", kbID, err)
		}
	}
	return reg, nil
}

// buildExtractor wires the knowledge-graph extractor per
// config.GraphConfig. The extractor gets no EntityRecognizer, so the
// ner_rule and model modes use its regex rules. The llm and hybrid
// modes use the default LLM when one is registered; without one, llm
// mode returns an error and hybrid keeps the rule-only result.
func (rt *runtime) buildExtractor(ctx context.Context) (*kg.Extractor, error) {
	var completer kg.Completer
	if p, ok := rt.llmReg.Get(rt.cfg.Global.DefaultLLM); ok {
		completer = promptCompleter{provider: p}
	}

	var rules *kg.DynamicRuleLearner
	if rt.cfg.Graph.DynamicRulesEnabled && completer != nil {
		rules = kg.NewDynamicRuleLearner(kg.DynamicRulesConfig{
			Enabled:      true,
			SampleLength: rt.cfg.Graph.SampleTextLength,
			SampleMethod: rt.cfg.Graph.SampleMethod,
			RetryCount:   rt.cfg.Graph.DynamicRulesRetryCount,
		}, completer)
	}

	// No joint NER+RE model library lives in this stack, so ner_rule and
	// model modes both fall through Extractor's internal regex rules;
	// NER stays nil rather than standing in a placeholder implementation.
	mode := kg.ExtractionMode(rt.cfg.Graph.ExtractMode)
	return kg.NewExtractor(mode, nil, completer, rules), nil
}

// buildAgents constructs one GeneralAgent or FlowDrivenAgent per
// config.AgentConfig entry, each with its own Runtime/Pipeline so
// per-agent pipeline snapshots (§4.3) stay isolated.
func (rt *runtime) buildAgents(durable *storage.Store) error {
	for name, agentCfg := range rt.cfg.Agents {
		pipe := pipeline.New(name)
		agentRuntime := &agent.Runtime{
			LLM:      rt.llmReg,
			Tools:    rt.toolReg,
			KB:       rt.kbReg,
			Pipeline: pipe,
			Durable:  durable,
			Store:    rt.store,
		}
		rt.pipelines[name] = pipe

		switch agentCfg.AgentType {
		case "flow_driven":
			flowCfg, ok := rt.cfg.Flows[agentCfg.FlowName]
			if !ok {
				return fmt.Errorf("agent %q: unknown flow %q", name, agentCfg.FlowName)
			}
			a, err := agent.NewFlowDrivenAgent(name, flowCfg, agentCfg.BoundTools, agentCfg.BoundKnowledgeBases, agentCfg.LLMConfigID, agentRuntime)
			if err != nil {
				return fmt.Errorf("agent %q: build flow: %w", name, err)
			}
			rt.agents[name] = a
		default:
			rt.agents[name] = agent.NewGeneralAgent(name, agentCfg.SystemPrompt, agentCfg.BoundTools, agentCfg.BoundKnowledgeBases, agentCfg.LLMConfigID, agentRuntime)
		}
	}
	return nil
}

// serverDeps translates the built runtime into server.Deps, the seam
// between cmd/convoyd's wiring and the HTTP surface.
func (rt *runtime) serverDeps() server.Deps {
	return server.Deps{
		Config:       rt.cfg,
		Store:        rt.store,
		Agents:       rt.agents,
		Pipelines:    rt.pipelines,
		LLMRegistry:  rt.llmReg,
		ToolReg:      rt.toolReg,
		KBReg:        rt.kbReg,
		MCPHelper:    rt.mcpHelper,
		KGStore:      rt.kgStore,
		KGExtractor:  rt.extractor,
		GraphEnabled: rt.cfg.Graph.KnowledgeGraphEnabled,
	}
}
