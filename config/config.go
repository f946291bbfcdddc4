// Package config holds the static, file-backed configuration for the
// convoy runtime: LLM/embedder/database providers, agents, flows, and
// the retrieval/graph toggles that control the knowledge subsystems.
package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration object. A single YAML document is
// decoded into this struct; every subsection owns its own defaults and
// validation so Config.Validate just fans out.
type Config struct {
	Version     string                    `yaml:"version"`
	Name        string                    `yaml:"name"`
	Global      GlobalConfig              `yaml:"global"`
	LLMs        map[string]LLMConfig      `yaml:"llms"`
	Databases   map[string]DatabaseConfig `yaml:"databases"`
	Embedders   map[string]EmbedderConfig `yaml:"embedders"`
	Agents      map[string]AgentConfig    `yaml:"agents"`
	Flows       map[string]FlowConfig     `yaml:"flows"`
	KnowledgeBases map[string]KnowledgeBaseConfig `yaml:"knowledge_bases"`
	Tools       ToolsConfig               `yaml:"tools"`
	Retrieval   RetrievalConfig           `yaml:"retrieval"`
	Graph       GraphConfig               `yaml:"graph"`
	Server      ServerConfig              `yaml:"server"`
	Storage     StorageConfig             `yaml:"storage"`
	Observab    ObservabilityConfig       `yaml:"observability"`
}

// GlobalConfig carries defaults applied when a more specific section
// omits a value.
type GlobalConfig struct {
	DefaultLLM      string `yaml:"default_llm"`
	DefaultEmbedder string `yaml:"default_embedder"`
	WorkspaceRoot   string `yaml:"workspace_root"`
}

// Load reads and decodes a YAML config file from path, expanding
// environment references first, then filling defaults and validating.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded, err := expandEnvVars(raw)
	if err != nil {
		return nil, fmt.Errorf("config: expand env: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults fills zero-valued fields across every subsection.
func (c *Config) SetDefaults() {
	if c.Global.WorkspaceRoot == "" {
		c.Global.WorkspaceRoot = "./workspace"
	}
	for name, l := range c.LLMs {
		l.SetDefaults()
		c.LLMs[name] = l
	}
	for name, d := range c.Databases {
		d.SetDefaults()
		c.Databases[name] = d
	}
	for name, e := range c.Embedders {
		e.SetDefaults()
		c.Embedders[name] = e
	}
	for name, k := range c.KnowledgeBases {
		k.SetDefaults()
		c.KnowledgeBases[name] = k
	}
	c.Tools.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Graph.SetDefaults()
	c.Server.SetDefaults()
	c.Storage.SetDefaults()
}

// Validate checks the name, every LLM, database, embedder, agent, flow
// and knowledge-base entry, and the storage section, returning the
// first error found as a single actionable message. The tools,
// retrieval, graph and server sections are not validated.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	for name, l := range c.LLMs {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}
	for name, d := range c.Databases {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("database %q: %w", name, err)
		}
	}
	for name, e := range c.Embedders {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("embedder %q: %w", name, err)
		}
	}
	for name, a := range c.Agents {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
	}
	for name, f := range c.Flows {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("flow %q: %w", name, err)
		}
	}
	for name, k := range c.KnowledgeBases {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("knowledge_base %q: %w", name, err)
		}
	}
	return c.Storage.Validate()
}

// Watch reloads the config file on change and invokes onChange with
// the newly parsed Config. A reload that fails to load or validate is
// skipped without calling onChange or reporting the error, so Watch
// never overwrites a good config with a broken one.
func Watch(path string, onChange func(*Config)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	go func() {
		for event := range w.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				continue
			}
			onChange(cfg)
		}
	}()
	return w, nil
}
