package kg

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/semaphore"
)

// Extractor runs one of the five extraction modes over chunk text and
// produces Triples, grounded on extract_entities_and_relations'
// mode dispatch.
type Extractor struct {
	Mode     ExtractionMode
	NER      EntityRecognizer
	LLM      Completer
	Rules    *DynamicRuleLearner

	// llmSem bounds concurrent llm-mode extraction calls made through
	// this Extractor to defaultExtractionWorkers. Each Extractor has its
	// own semaphore, so a new Extractor starts with a fresh one without
	// any explicit restart step; DynamicRuleLearner's analysis and
	// rule-generation calls do not go through it.
	llmSem *semaphore.Weighted
}

const defaultExtractionWorkers = 2

func NewExtractor(mode ExtractionMode, ner EntityRecognizer, llm Completer, rules *DynamicRuleLearner) *Extractor {
	if mode == "" {
		mode = ModeNERRule
	}
	return &Extractor{Mode: mode, NER: ner, LLM: llm, Rules: rules, llmSem: semaphore.NewWeighted(defaultExtractionWorkers)}
}

// Extract runs the configured mode over text and returns deduplicated
// triples (by subject/predicate/object, confidence defaulting to 0.8),
// stamped with the caller's kb/document/chunk identity.
func (e *Extractor) Extract(ctx context.Context, kbID, documentID, chunkID, text, documentText string) ([]Triple, error) {
	raw, err := e.extractRaw(ctx, documentID, text, documentText)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	out := make([]Triple, 0, len(raw))
	for _, t := range raw {
		key := t.Subject + "|" + t.Predicate + "|" + t.Object
		if seen[key] || t.Subject == "" || t.Predicate == "" || t.Object == "" {
			continue
		}
		seen[key] = true
		t.KBID = kbID
		t.DocumentID = documentID
		t.ChunkID = chunkID
		t.SourceText = truncateRunes(text, 200)
		if t.Confidence == 0 {
			t.Confidence = 0.8
		}
		out = append(out, t)
	}
	return out, nil
}

func (e *Extractor) extractRaw(ctx context.Context, documentID, text, documentText string) ([]Triple, error) {
	switch e.Mode {
	case ModeRule:
		return extractRuleTriples(text), nil

	case ModeLLM:
		return e.extractWithLLM(ctx, text)

	case ModeModel:
		if e.NER != nil {
			return e.nerRuleExtract(ctx, documentID, text, documentText)
		}
		return extractRuleTriples(text), nil

	case ModeHybrid:
		ruleTriples := extractRuleTriples(text)
		if len(ruleTriples) >= 2 {
			return ruleTriples, nil
		}
		llmTriples, err := e.extractWithLLM(ctx, text)
		if err != nil {
			return ruleTriples, nil
		}
		seen := make(map[string]bool, len(ruleTriples))
		for _, t := range ruleTriples {
			seen[t.Subject+"|"+t.Predicate+"|"+t.Object] = true
		}
		for _, t := range llmTriples {
			key := t.Subject + "|" + t.Predicate + "|" + t.Object
			if !seen[key] {
				seen[key] = true
				ruleTriples = append(ruleTriples, t)
			}
		}
		return ruleTriples, nil

	default: // ModeNERRule
		if e.NER != nil {
			return e.nerRuleExtract(ctx, documentID, text, documentText)
		}
		return extractRuleTriples(text), nil
	}
}

// extractWithLLM asks the LLM to emit "subject | predicate | object"
// lines, per _extract_triples_with_llm.
func (e *Extractor) extractWithLLM(ctx context.Context, text string) ([]Triple, error) {
	if e.LLM == nil {
		return nil, fmt.Errorf("kg: no LLM configured for llm-mode extraction")
	}
	if err := e.llmSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.llmSem.Release(1)

	prompt := fmt.Sprintf(`请从以下文本中提取所有实体关系三元组。

要求：
1. 提取所有可能的(主语, 关系, 宾语)三元组
2. 每个三元组一行，格式：主语 | 关系 | 宾语
3. 只输出三元组，不要其他解释

文本：
%s

输出格式示例：
张三 | 工作于 | 公司A
北京 | 位于 | 中国`, truncateRunes(text, 3000))

	raw, err := e.LLM.Complete(ctx, "你是一个专业的实体关系抽取专家，擅长从文本中准确识别实体和关系。", prompt)
	if err != nil {
		return nil, err
	}

	var triples []Triple
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 3 {
			continue
		}
		subj := normalizeEntity(parts[0])
		pred := strings.TrimSpace(parts[1])
		obj := normalizeEntity(parts[2])
		if subj == "" || pred == "" || obj == "" {
			continue
		}
		triples = append(triples, Triple{Subject: subj, Predicate: pred, Object: obj, Confidence: 0.75})
	}
	return triples, nil
}

// nerRule extends a Rule with entity-label constraints (AllowedLabels),
// per _extract_triples_ner_rule_hybrid's default_patterns table;
// nerRulePatterns holds the built-in set. matchNERRule checks both
// sides' labels only when AllowedLabels is non-nil and lacks
// "UNKNOWN". Every built-in set includes "UNKNOWN", so the built-in
// patterns accept any label.
type nerRule struct {
	Rule
	AllowedLabels map[string]bool
}

var nerRulePatterns = buildNERRulePatterns()

func buildNERRulePatterns() []nerRule {
	person := labelSet("person", "organization", "location", "UNKNOWN")
	personOrg := labelSet("person", "organization", "UNKNOWN")
	locOrg := labelSet("location", "organization", "UNKNOWN")
	personLoc := labelSet("person", "location", "UNKNOWN")

	base := []struct {
		pattern  string
		relation string
		labels   map[string]bool
	}{
		{`(.+?)(?:是|为|成为)(.+)`, "是", person},
		{`(.+?)(?:位于|在|处于)(.+)`, "位于", locOrg},
		{`(.+?)(?:属于|归属)(.+)`, "属于", personOrg},
		{`(.+?)(?:使用|采用|利用)(.+)`, "使用", personOrg},
		{`(.+?)(?:包含|包括)(.+)`, "包含", locOrg},
		{`(.+?)(?:创建|建立|开发)(.+)`, "创建", personOrg},
		{`(.+?)(?:工作于|就职于)(.+)`, "工作于", labelSet("person", "UNKNOWN")},
		{`(.+?)(?:说|道|曰)(.+)`, "说", labelSet("person", "UNKNOWN")},
		{`(.+?)(?:做|进行|执行)(.+)`, "执行", personOrg},
		{`(.+?)(?:去|到|前往)(.+)`, "前往", labelSet("person", "UNKNOWN")},
		{`(.+?)(?:来自|出自)(.+)`, "来自", personLoc},
		{`(.+?)有(.+)`, "有", personOrg},
		{`(.+?)拥有(.+)`, "拥有", personOrg},
	}

	rules := make([]nerRule, 0, len(base))
	for _, b := range base {
		rules = append(rules, nerRule{
			Rule:          Rule{Pattern: regexp.MustCompile(b.pattern), Relation: b.relation, SubjGroup: 1, ObjGroup: 2, Confidence: 0.85},
			AllowedLabels: b.labels,
		})
	}
	return rules
}

func labelSet(labels ...string) map[string]bool {
	m := make(map[string]bool, len(labels))
	for _, l := range labels {
		m[l] = true
	}
	return m
}

// nerRuleExtract identifies entities via NER (falling back to rule-
// based event detection when NER is unavailable at call time),
// confines relation matching to sentences naming at least two known
// entities, and confidence-scores each hit 0.85 (one side NER-backed)
// or 0.9 (both sides NER-backed) plus the multi-person sworn-
// brotherhood pass, per _extract_triples_ner_rule_hybrid.
func (e *Extractor) nerRuleExtract(ctx context.Context, documentID, text, documentText string) ([]Triple, error) {
	var entities []Entity
	var err error
	if e.NER != nil {
		entities, err = e.NER.Recognize(ctx, text)
		if err != nil {
			entities = nil
		}
	}
	if len(entities) == 0 {
		return extractRuleTriples(text), nil
	}

	entityTexts := make(map[string]string, len(entities)) // text -> label
	for _, ent := range entities {
		t := strings.TrimSpace(ent.Text)
		if len([]rune(t)) < 2 {
			continue
		}
		entityTexts[t] = ent.Label
	}
	if len(entityTexts) == 0 {
		return extractRuleTriples(text), nil
	}

	var dynamicRules []Rule
	if e.Rules != nil {
		dynamicRules = e.Rules.RulesForDocument(ctx, documentID, documentText)
	}

	var triples []Triple
	for _, sent := range splitSentencesRule(text) {
		if len([]rune(sent)) < 6 {
			continue
		}

		present := 0
		for entityText := range entityTexts {
			if strings.Contains(sent, entityText) {
				present++
			}
		}
		if present < 2 {
			continue
		}

		for _, nr := range nerRulePatterns {
			triples = append(triples, matchNERRule(nr.Rule, nr.AllowedLabels, sent, entityTexts)...)
		}
		for _, r := range dynamicRules {
			triples = append(triples, matchNERRule(r, nil, sent, entityTexts)...)
		}

		if m := multiPersonSwornBrotherhood.FindStringSubmatch(sent); m != nil {
			persons := []string{strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])}
			var valid []string
			for _, p := range persons {
				if _, ok := entityTexts[p]; ok {
					valid = append(valid, p)
				}
			}
			for i := 0; i < len(valid); i++ {
				for j := i + 1; j < len(valid); j++ {
					subj, obj := normalizeEntity(valid[i]), normalizeEntity(valid[j])
					if subj != "" && obj != "" {
						triples = append(triples, Triple{Subject: subj, Predicate: "结义", Object: obj, Confidence: 0.9})
					}
				}
			}
		}
	}
	return triples, nil
}

// matchNERRule applies a single rule to sent, accepting the match
// only if subject and/or object resolve to a known entity (optionally
// recovering the other side by substring search), and scores
// confidence by how many sides are NER-backed.
func matchNERRule(rule Rule, allowedLabels map[string]bool, sent string, entityTexts map[string]string) []Triple {
	m := rule.Pattern.FindStringSubmatch(sent)
	if m == nil {
		return nil
	}
	subj := groupOrEmpty(m, rule.SubjGroup)
	obj := groupOrEmpty(m, rule.ObjGroup)
	pred := rule.Relation
	if rule.RelGroup > 0 {
		pred = groupOrEmpty(m, rule.RelGroup)
	}
	if subj == "" || obj == "" {
		return nil
	}
	subj, obj = strings.TrimSpace(subj), strings.TrimSpace(obj)

	_, subjIsEntity := entityTexts[subj]
	_, objIsEntity := entityTexts[obj]
	if !subjIsEntity && !objIsEntity {
		return nil
	}
	if subjIsEntity && !objIsEntity {
		if found := findEntitySubstring(obj, entityTexts); found != "" {
			obj = found
			objIsEntity = true
		}
	}
	if objIsEntity && !subjIsEntity {
		if found := findEntitySubstring(subj, entityTexts); found != "" {
			subj = found
			subjIsEntity = true
		}
	}

	if allowedLabels != nil {
		if !allowedLabels["UNKNOWN"] {
			if !allowedLabels[entityTexts[subj]] || !allowedLabels[entityTexts[obj]] {
				return nil
			}
		}
	}

	subj, obj, pred = normalizeEntity(subj), normalizeEntity(obj), strings.TrimSpace(pred)
	if subj == "" || obj == "" || pred == "" {
		return nil
	}
	if len([]rune(subj)) > 100 || len([]rune(obj)) > 100 || len([]rune(pred)) > 20 {
		return nil
	}
	if len([]rune(subj)) < 2 || len([]rune(obj)) < 2 {
		return nil
	}

	confidence := 0.85
	if subjIsEntity && objIsEntity {
		confidence = 0.9
	}
	return []Triple{{Subject: subj, Predicate: pred, Object: obj, Confidence: confidence}}
}

func findEntitySubstring(text string, entityTexts map[string]string) string {
	for entityText := range entityTexts {
		if len([]rune(entityText)) >= 2 && strings.Contains(text, entityText) {
			return entityText
		}
	}
	return ""
}
