package config

import "fmt"

// LLMConfig describes one named LLM provider instance: ollama, openai,
// or gemini. Zero-config defaults point at a local ollama instance,
// matching the teacher's "works out of the box" posture.
type LLMConfig struct {
	Type        string  `yaml:"type"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	Host        string  `yaml:"host"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_seconds"`
}

func (l *LLMConfig) SetDefaults() {
	if l.Type == "" {
		l.Type = "ollama"
	}
	if l.Model == "" {
		l.Model = "llama3.2"
	}
	if l.Host == "" {
		switch l.Type {
		case "openai":
			l.Host = "https://api.openai.com/v1"
		case "gemini":
			l.Host = "https://generativelanguage.googleapis.com"
		default:
			l.Host = "http://localhost:11434"
		}
	}
	if l.TimeoutSec == 0 {
		l.TimeoutSec = 60
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 4096
	}
}

func (l *LLMConfig) Validate() error {
	switch l.Type {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported llm type %q", l.Type)
	}
	if l.Model == "" {
		return fmt.Errorf("model is required")
	}
	if l.Type != "ollama" && l.APIKey == "" {
		return fmt.Errorf("api_key is required for type %q", l.Type)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature %v out of range [0,2]", l.Temperature)
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0")
	}
	return nil
}

// DatabaseConfig describes a vector-store provider instance: qdrant,
// chromem (embedded, zero-infra default), or pinecone.
type DatabaseConfig struct {
	Type       string `yaml:"type"`
	Host       string `yaml:"host"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Path       string `yaml:"path"` // chromem persistence directory
}

func (d *DatabaseConfig) SetDefaults() {
	if d.Type == "" {
		d.Type = "chromem"
	}
	if d.Collection == "" {
		d.Collection = "default"
	}
	if d.Type == "chromem" && d.Path == "" {
		d.Path = "./workspace/chromem"
	}
}

func (d *DatabaseConfig) Validate() error {
	switch d.Type {
	case "qdrant", "chromem", "pinecone":
	default:
		return fmt.Errorf("unsupported database type %q", d.Type)
	}
	if d.Type == "qdrant" && d.Host == "" {
		return fmt.Errorf("host is required for qdrant")
	}
	if d.Type == "pinecone" && d.APIKey == "" {
		return fmt.Errorf("api_key is required for pinecone")
	}
	return nil
}

// EmbedderConfig describes an embedding provider; embedders reuse the
// LLM providers' HTTP shape (ollama/openai) but are configured
// separately since a deployment often pairs a cheap embedder with an
// expensive chat model.
type EmbedderConfig struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Host       string `yaml:"host"`
	Dimensions int    `yaml:"dimensions"`
}

func (e *EmbedderConfig) SetDefaults() {
	if e.Type == "" {
		e.Type = "ollama"
	}
	if e.Model == "" {
		e.Model = "nomic-embed-text"
	}
	if e.Host == "" {
		if e.Type == "openai" {
			e.Host = "https://api.openai.com/v1"
		} else {
			e.Host = "http://localhost:11434"
		}
	}
	if e.Dimensions == 0 {
		e.Dimensions = 768
	}
}

func (e *EmbedderConfig) Validate() error {
	if e.Type != "ollama" && e.Type != "openai" {
		return fmt.Errorf("unsupported embedder type %q", e.Type)
	}
	if e.Type == "openai" && e.APIKey == "" {
		return fmt.Errorf("api_key is required for openai embedder")
	}
	return nil
}

// AgentConfig matches spec.md's Agent config entity.
type AgentConfig struct {
	Name                string   `yaml:"name"`
	AgentType           string   `yaml:"agent_type"` // general | flow_driven | chat
	SystemPrompt        string   `yaml:"system_prompt"`
	BoundTools          []string `yaml:"bound_tools"`
	BoundKnowledgeBases []string `yaml:"bound_knowledge_bases"`
	FlowName            string   `yaml:"flow_name"`
	LLMConfigID         string   `yaml:"llm_config_id"`
}

func (a *AgentConfig) Validate() error {
	switch a.AgentType {
	case "general", "flow_driven", "chat":
	default:
		return fmt.Errorf("unsupported agent_type %q", a.AgentType)
	}
	if a.AgentType == "flow_driven" && a.FlowName == "" {
		return fmt.Errorf("flow_name is required for flow_driven agents")
	}
	return nil
}

// FlowConfig is the wire/config representation of a flow graph: nodes
// plus edges, matching spec.md §3's FlowConfig entity exactly. It is
// decoded independently from the runtime flow.Graph built from it.
type FlowConfig struct {
	Nodes []NodeCfg `yaml:"nodes" json:"nodes"`
	Edges []EdgeCfg `yaml:"edges" json:"edges"`
}

// NodeCfg mirrors spec.md §3's NodeCfg.
type NodeCfg struct {
	ID             string                 `yaml:"id" json:"id"`
	Category       string                 `yaml:"category" json:"category"`
	Implementation string                 `yaml:"implementation" json:"implementation"`
	Data           NodeData               `yaml:"data" json:"data"`
	Position       map[string]float64     `yaml:"position" json:"position"`
	Connections    []string               `yaml:"connections,omitempty" json:"connections,omitempty"`
}

// NodeData carries the UI-facing fields plus the opaque per-node
// config blob read by each node implementation through typed accessors.
type NodeData struct {
	Label       string                 `yaml:"label" json:"label"`
	NodeType    string                 `yaml:"nodeType" json:"nodeType"`
	Config      map[string]interface{} `yaml:"config" json:"config"`
	IsStartNode bool                   `yaml:"isStartNode,omitempty" json:"isStartNode,omitempty"`
	IsEndNode   bool                   `yaml:"isEndNode,omitempty" json:"isEndNode,omitempty"`
}

// EdgeCfg mirrors spec.md §3's Edge entity.
type EdgeCfg struct {
	Source       string `yaml:"source" json:"source"`
	Target       string `yaml:"target" json:"target"`
	SourceHandle string `yaml:"sourceHandle,omitempty" json:"sourceHandle,omitempty"`
	SourceIndex  *int   `yaml:"sourceIndex,omitempty" json:"sourceIndex,omitempty"`
}

func (f *FlowConfig) Validate() error {
	ids := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if ids[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
	}
	for _, e := range f.Edges {
		if !ids[e.Source] {
			return fmt.Errorf("edge source %q does not exist", e.Source)
		}
		if !ids[e.Target] {
			return fmt.Errorf("edge target %q does not exist", e.Target)
		}
	}
	return nil
}

// KnowledgeBaseConfig ties a kb_id to the provider instances (vector
// store, embedder) and chunking strategy it retrieves through,
// mirroring how AgentConfig.BoundKnowledgeBases references kb_ids.
type KnowledgeBaseConfig struct {
	Database     string `yaml:"database"` // key into Config.Databases
	Embedder     string `yaml:"embedder"` // key into Config.Embedders
	ChunkStrategy string `yaml:"chunk_strategy"`
}

func (k *KnowledgeBaseConfig) SetDefaults() {
	if k.ChunkStrategy == "" {
		k.ChunkStrategy = "hierarchical"
	}
}

func (k *KnowledgeBaseConfig) Validate() error {
	if k.Database == "" {
		return fmt.Errorf("database is required")
	}
	if k.Embedder == "" {
		return fmt.Errorf("embedder is required")
	}
	switch k.ChunkStrategy {
	case "hierarchical", "semantic", "sentence", "fixed_window":
	default:
		return fmt.Errorf("unsupported chunk_strategy %q", k.ChunkStrategy)
	}
	return nil
}

// ToolsConfig configures tool-score defaults and repository sources.
type ToolsConfig struct {
	DefaultScore      float64           `yaml:"default_score"`
	MinAvailableScore float64           `yaml:"min_available_score"`
	BuiltinDir        string            `yaml:"builtin_dir"`
	MCPServers        map[string]MCPServerConfig `yaml:"mcp_servers"`
	PluginDir         string            `yaml:"plugin_dir"`
}

func (t *ToolsConfig) SetDefaults() {
	if t.DefaultScore == 0 {
		t.DefaultScore = 3.0
	}
	if t.MinAvailableScore == 0 {
		t.MinAvailableScore = 1.5
	}
	if t.BuiltinDir == "" {
		t.BuiltinDir = "./tools/builtin"
	}
}

// MCPServerConfig matches spec.md §4.2's persisted server record.
type MCPServerConfig struct {
	Transport string            `yaml:"transport"` // stdio | sse | websocket | streamable_http
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
}

// RetrievalConfig maps directly onto spec.md §6's retrieval env vars.
type RetrievalConfig struct {
	ChunkStrategy            string  `yaml:"chunk_strategy"`
	UseLLMMerge              bool    `yaml:"use_llm_merge"`
	RerankerEnabled          bool    `yaml:"reranker_enabled"`
	RerankerAfterTopN        int     `yaml:"reranker_after_top_n"`
	RerankerTopK             int     `yaml:"reranker_top_k"`
	SimilarityThreshold      float64 `yaml:"similarity_threshold"`
	SimilarityThresholdMin   float64 `yaml:"similarity_threshold_min"`
	LLMQueryDecomposeEnabled bool    `yaml:"llm_query_decompose_enabled"`
	MultiRouteRecallEnabled  bool    `yaml:"multi_route_recall_enabled"`
	MultiHopMaxHops          int     `yaml:"multi_hop_max_hops"`
	DomainClassifyEnabled    bool    `yaml:"domain_classify_enabled"`
	SummaryChunksEnabled     bool    `yaml:"summary_chunks_enabled"`
	MinChunkSize             int     `yaml:"min_chunk_size"`
	MaxChunkSize             int     `yaml:"max_chunk_size"`
	ChunkOverlap             int     `yaml:"chunk_overlap"`
	SubQueryWorkers          int     `yaml:"sub_query_workers"`
}

func (r *RetrievalConfig) SetDefaults() {
	if r.ChunkStrategy == "" {
		r.ChunkStrategy = "hierarchical"
	}
	if r.RerankerAfterTopN == 0 {
		r.RerankerAfterTopN = 20
	}
	if r.RerankerTopK == 0 {
		r.RerankerTopK = 5
	}
	if r.SimilarityThreshold == 0 {
		r.SimilarityThreshold = 0.35
	}
	if r.SimilarityThresholdMin == 0 {
		r.SimilarityThresholdMin = 0.15
	}
	if r.MultiHopMaxHops == 0 {
		r.MultiHopMaxHops = 3
	}
	if r.MinChunkSize == 0 {
		r.MinChunkSize = 100
	}
	if r.MaxChunkSize == 0 {
		r.MaxChunkSize = 800
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 80
	}
	if r.SubQueryWorkers == 0 {
		r.SubQueryWorkers = 3
	}
}

// GraphConfig maps onto spec.md §6's KG env vars.
type GraphConfig struct {
	ExtractEnabled        bool   `yaml:"extract_enabled"`
	ExtractMode           string `yaml:"extract_mode"` // llm|rule|hybrid|model|ner_rule
	DynamicRulesEnabled   bool   `yaml:"dynamic_rules_enabled"`
	SampleTextLength      int    `yaml:"sample_text_length"`
	SampleMethod          string `yaml:"sample_method"` // head | random | mixed
	DynamicRulesRetryCount int   `yaml:"dynamic_rules_retry_count"`
	DynamicRulesRetryDelaySec int `yaml:"dynamic_rules_retry_delay_seconds"`
	KnowledgeGraphEnabled bool   `yaml:"knowledge_graph_enabled"`
	ExtractionWorkers     int    `yaml:"extraction_workers"`
}

func (g *GraphConfig) SetDefaults() {
	if g.ExtractMode == "" {
		g.ExtractMode = "ner_rule"
	}
	if g.SampleTextLength == 0 {
		g.SampleTextLength = 2000
	}
	if g.SampleMethod == "" {
		g.SampleMethod = "mixed"
	}
	if g.DynamicRulesRetryCount == 0 {
		g.DynamicRulesRetryCount = 3
	}
	if g.DynamicRulesRetryDelaySec == 0 {
		g.DynamicRulesRetryDelaySec = 2
	}
	if g.ExtractionWorkers == 0 {
		g.ExtractionWorkers = 2
	}
}

// ServerConfig configures the chi HTTP server.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutSec int    `yaml:"read_timeout_seconds"`
	EnableWS       bool   `yaml:"enable_ws"`
}

func (s *ServerConfig) SetDefaults() {
	if s.Addr == "" {
		s.Addr = ":8080"
	}
	if s.ReadTimeoutSec == 0 {
		s.ReadTimeoutSec = 30
	}
}

// StorageConfig selects the SQL backend.
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite | postgres
	DSN    string `yaml:"dsn"`
}

func (s *StorageConfig) SetDefaults() {
	if s.Driver == "" {
		s.Driver = "sqlite"
	}
	if s.DSN == "" && s.Driver == "sqlite" {
		s.DSN = "./workspace/convoy.db"
	}
}

func (s *StorageConfig) Validate() error {
	switch s.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver %q", s.Driver)
	}
	if s.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	return nil
}

// ObservabilityConfig configures OpenTelemetry tracing and the
// Prometheus metrics endpoint.
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	MetricsAddr    string `yaml:"metrics_addr"`
}
