package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// DynamicRulesConfig tunes the per-document LLM analysis + rule
// generation step, grounded on KG_SAMPLE_TEXT_LENGTH/KG_SAMPLE_METHOD/
// KG_DYNAMIC_RULES_RETRY_COUNT and friends.
type DynamicRulesConfig struct {
	Enabled      bool
	SampleLength int
	SampleMethod string // fixed | random | mixed
	RetryCount   int
}

func DefaultDynamicRulesConfig() DynamicRulesConfig {
	return DynamicRulesConfig{Enabled: true, SampleLength: 2000, SampleMethod: "mixed", RetryCount: 2}
}

// textAnalysis is the LLM's read on a document's kind, grounded on
// _analyze_text_content_with_llm's four-field JSON shape.
type textAnalysis struct {
	TextType        string   `json:"text_type"`
	CoreThemes      []string `json:"core_themes"`
	CommonRelations []string `json:"common_relations"`
	LanguageStyle   string   `json:"language_style"`
}

// llmRule is one dynamically generated pattern, as returned in the
// LLM's {"rules": [...]} JSON, grounded on _generate_rules_with_llm.
type llmRule struct {
	Pattern       string `json:"pattern"`
	Relation      string `json:"relation"`
	Description   string `json:"description"`
	SubjectGroup  int    `json:"subject_group"`
	ObjectGroup   int    `json:"object_group"`
	RelationGroup int    `json:"relation_group"`
}

// documentAnalysis is what gets cached per document: the LLM's text
// analysis plus the rules it generated from a sample of that document.
type documentAnalysis struct {
	Analysis textAnalysis
	Rules    []Rule
}

// DynamicRuleLearner produces and caches per-document Rule sets on top
// of the fixed default rule table, grounded on
// _get_or_create_document_analysis's "analyze once per document, then
// reuse" cache.
type DynamicRuleLearner struct {
	cfg  DynamicRulesConfig
	llm  Completer
	mu   sync.Mutex
	byDoc map[string]documentAnalysis
}

func NewDynamicRuleLearner(cfg DynamicRulesConfig, llm Completer) *DynamicRuleLearner {
	return &DynamicRuleLearner{cfg: cfg, llm: llm, byDoc: make(map[string]documentAnalysis)}
}

// RulesForDocument returns the cached dynamic rules for documentID,
// generating them on first use from documentText. A nil llm or
// disabled config returns no dynamic rules (callers fall back to
// defaultRules alone).
func (l *DynamicRuleLearner) RulesForDocument(ctx context.Context, documentID, documentText string) []Rule {
	if !l.cfg.Enabled || l.llm == nil {
		return nil
	}

	l.mu.Lock()
	if cached, ok := l.byDoc[documentID]; ok {
		l.mu.Unlock()
		return cached.Rules
	}
	l.mu.Unlock()

	sample := l.sampleText(documentText)

	var analysis textAnalysis
	for attempt := 0; attempt < l.cfg.RetryCount; attempt++ {
		a, err := l.analyze(ctx, sample)
		if err == nil && a.TextType != "" && a.TextType != "未知" {
			analysis = a
			break
		}
		analysis = textAnalysis{TextType: "未知"}
	}

	var rules []Rule
	for attempt := 0; attempt < l.cfg.RetryCount; attempt++ {
		r, err := l.generateRules(ctx, sample, analysis)
		if err == nil && len(r) > 0 {
			rules = r
			break
		}
	}

	result := documentAnalysis{Analysis: analysis, Rules: rules}
	l.mu.Lock()
	l.byDoc[documentID] = result
	l.mu.Unlock()
	return rules
}

// sampleText mirrors _sample_text's three strategies. "random" and the
// random half of "mixed" are deliberately degraded to a fixed offset
// here since kg avoids math/rand for reproducible extraction — the
// goal (a representative slice, not the exact byte offset) still
// holds.
func (l *DynamicRuleLearner) sampleText(text string) string {
	max := l.cfg.SampleLength
	if max <= 0 {
		max = 2000
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	switch l.cfg.SampleMethod {
	case "random":
		start := (len(runes) - max) / 2
		return string(runes[start : start+max])
	case "mixed":
		part1 := max / 2
		part2 := max - part1
		head := string(runes[:part1])
		if len(runes) <= part1 {
			return head
		}
		midStart := part1 + (len(runes)-part1-part2)/2
		if midStart < part1 {
			midStart = part1
		}
		end := midStart + part2
		if end > len(runes) {
			end = len(runes)
		}
		return head + "\n...\n" + string(runes[midStart:end])
	default: // "fixed"
		return string(runes[:max])
	}
}

func (l *DynamicRuleLearner) analyze(ctx context.Context, sample string) (textAnalysis, error) {
	prompt := fmt.Sprintf(`请分析以下文本的核心内容，并回答以下问题：

1. 文本类型（如：小说、历史、技术文档、新闻、对话等）
2. 核心主题（1-3个关键词）
3. 文本中常见的关系类型（如：人物关系、地理位置、时间顺序、因果关系等）
4. 文本的语言风格（如：正式、口语化、叙述性等）

文本样本：
%s

请以JSON格式输出，格式如下：
{"text_type": "文本类型", "core_themes": ["主题1", "主题2"], "common_relations": ["关系类型1"], "language_style": "语言风格"}

只输出JSON，不要添加任何解释文字，不要使用markdown代码块标记。`, truncateRunes(sample, 1500))

	raw, err := l.llm.Complete(ctx, "你是一个专业的文本分析专家。", prompt)
	if err != nil {
		return textAnalysis{}, err
	}

	var out textAnalysis
	if !extractJSON(raw, &out) {
		return textAnalysis{}, fmt.Errorf("kg: could not parse text analysis JSON")
	}
	return out, nil
}

func (l *DynamicRuleLearner) generateRules(ctx context.Context, sample string, analysis textAnalysis) ([]Rule, error) {
	prompt := fmt.Sprintf(`根据以下信息，为文本生成适合的关系提取规则（正则表达式模式）。

文本类型：%s
核心主题：%s
常见关系：%s
语言风格：%s

文本样本：
%s

请生成5-10个关系提取规则，以JSON格式输出：
{"rules": [{"pattern": "正则表达式模式", "relation": "关系名称", "description": "规则描述", "subject_group": 1, "object_group": 3, "relation_group": 2}]}

重要要求：
1. 必须输出有效的JSON格式，不要包含任何markdown代码块标记
2. pattern 应该使用捕获组，第一个捕获组通常是主语，最后一个通常是宾语
3. subject_group, object_group, relation_group 表示在正则匹配结果中的组索引（从1开始）
4. 只输出JSON，不要添加任何解释文字`,
		analysis.TextType, strings.Join(analysis.CoreThemes, ", "), strings.Join(analysis.CommonRelations, ", "),
		analysis.LanguageStyle, truncateRunes(sample, 1000))

	raw, err := l.llm.Complete(ctx, "你是一个专业的正则表达式和关系提取专家，擅长根据文本特点生成精准的匹配规则。", prompt)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Rules []llmRule `json:"rules"`
	}
	if !extractJSON(raw, &parsed) {
		return nil, fmt.Errorf("kg: could not parse dynamic rules JSON")
	}

	rules := make([]Rule, 0, len(parsed.Rules))
	for _, r := range parsed.Rules {
		if r.Pattern == "" || r.Relation == "" {
			continue
		}
		re, err := regexp.Compile(fixGoRegex(r.Pattern))
		if err != nil {
			continue
		}
		rule := Rule{Pattern: re, Relation: r.Relation, Confidence: 0.75}
		if r.SubjectGroup > 0 {
			rule.SubjGroup = r.SubjectGroup
		} else {
			rule.SubjGroup = 1
		}
		if r.ObjectGroup > 0 {
			rule.ObjGroup = r.ObjectGroup
		} else {
			rule.ObjGroup = 2
		}
		if r.RelationGroup > 0 {
			rule.RelGroup = r.RelationGroup
			rule.Relation = ""
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// fixGoRegex nudges Python-flavored regex syntax LLMs commonly emit
// ((?P<name>...), lookbehind) toward what Go's RE2 engine accepts is
// out of scope; this only strips the one construct RE2 rejects
// outright that LLM output reliably contains: named groups, which
// still capture positionally once stripped to plain groups.
var namedGroupPattern = regexp.MustCompile(`\(\?P<[^>]+>`)

func fixGoRegex(pattern string) string {
	return namedGroupPattern.ReplaceAllString(pattern, "(")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// extractJSON tries direct parse, then a fenced code block, then a
// brace-matched scan that is string- and escape-aware, mirroring the
// three (of four) strategies in _generate_rules_with_llm that don't
// depend on Python's json module internals. Returns false if none
// decode into out.
func extractJSON(raw string, out interface{}) bool {
	raw = strings.TrimSpace(raw)

	if json.Unmarshal([]byte(raw), out) == nil {
		return true
	}

	if block := fencedJSONBlock(raw); block != "" {
		if json.Unmarshal([]byte(block), out) == nil {
			return true
		}
	}

	if obj := braceMatchedJSON(raw); obj != "" {
		if json.Unmarshal([]byte(obj), out) == nil {
			return true
		}
		if json.Unmarshal([]byte(fixRegexEscapes(obj)), out) == nil {
			return true
		}
	}

	return false
}

var fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

func fencedJSONBlock(s string) string {
	m := fencedBlockPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// braceMatchedJSON scans for the first balanced {...} span, tracking
// string boundaries and escapes so braces inside string values don't
// throw off the count.
func braceMatchedJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// fixRegexEscapes doubles single backslashes in string values that
// precede a regex-escape-like character (letter, digit, or a \u
// unicode escape), the same repair _generate_rules_with_llm's
// fix_regex_escapes applies before a second parse attempt.
func fixRegexEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			if inString && isRegexEscapeChar(s, i+1) {
				b.WriteByte('\\')
			}
			b.WriteByte('\\')
			b.WriteByte(next)
			i += 2
			continue
		}
		if c == '"' {
			inString = !inString
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isRegexEscapeChar(s string, i int) bool {
	c := s[i]
	if c == 'u' && i+4 < len(s) {
		hex := s[i+1 : i+5]
		for _, h := range hex {
			if !strings.ContainsRune("0123456789abcdefABCDEF", h) {
				return false
			}
		}
		return true
	}
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
