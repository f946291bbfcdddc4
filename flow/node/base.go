package node

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowctl/convoy/config"
)

var templateVar = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// renderTemplate substitutes {{name}} placeholders against vars
// (flow_state) plus the current message, per §4.5's prepare_inputs.
func renderTemplate(tmpl string, message string, state *FlowState) string {
	return templateVar.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := strings.TrimSpace(templateVar.FindStringSubmatch(match)[1])
		if name == "message" {
			return message
		}
		if v, ok := state.Get(name); ok {
			return fmt.Sprintf("%v", v)
		}
		return ""
	})
}

// configString/configBool/configMap/configStringSlice pull typed
// values out of a NodeCfg's opaque Data.Config map, the mapstructure-
// decoded node-config pattern spec.md §3's NodeCfg.Data.config
// requires (kept hand-rolled per-field here since each node's config
// shape is small and this avoids a mapstructure.Decode indirection for
// the handful of fields each node reads).
func configString(cfg config.NodeCfg, key string) string {
	if v, ok := cfg.Data.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func configBool(cfg config.NodeCfg, key string) bool {
	if v, ok := cfg.Data.Config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

func configMap(cfg config.NodeCfg, key string) map[string]interface{} {
	if v, ok := cfg.Data.Config[key]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func configStringSlice(cfg config.NodeCfg, key string) []string {
	v, ok := cfg.Data.Config[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// looksLikeSchemaObject reports whether v is a raw JSON-Schema
// fragment rather than a concrete value, per §4.5's "value is missing
// or looks like a schema object" fill rule.
func looksLikeSchemaObject(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	_, hasType := m["type"]
	_, hasProps := m["properties"]
	return hasType || hasProps
}

// extractJSONObject applies the §4.8-documented multi-strategy JSON
// extraction shared across LLMNode's post-parse, AutoParamNode's
// response parse, and PlannerNode's subgraph parse: strip
// <think>...</think>, strip a fenced code block, then take the widest
// span from the first { or [ to the last } or ].
func extractJSONObject(raw string) string {
	s := raw
	if i := strings.Index(s, "<think>"); i >= 0 {
		if j := strings.Index(s, "</think>"); j > i {
			s = s[:i] + s[j+len("</think>"):]
		}
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	s = strings.TrimSpace(s)
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
