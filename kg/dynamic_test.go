package kg

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeKGCompleter struct {
	responses []string
	calls     int
	err       error
}

func (c *fakeKGCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if c.calls >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func TestDynamicRuleLearnerDisabledReturnsNil(t *testing.T) {
	l := NewDynamicRuleLearner(DynamicRulesConfig{Enabled: false}, &fakeKGCompleter{})
	if rules := l.RulesForDocument(context.Background(), "doc1", "some text"); rules != nil {
		t.Fatalf("RulesForDocument() = %v, want nil when disabled", rules)
	}
}

func TestDynamicRuleLearnerNilLLMReturnsNil(t *testing.T) {
	l := NewDynamicRuleLearner(DefaultDynamicRulesConfig(), nil)
	if rules := l.RulesForDocument(context.Background(), "doc1", "some text"); rules != nil {
		t.Fatalf("RulesForDocument() = %v, want nil with no LLM", rules)
	}
}

func TestDynamicRuleLearnerGeneratesAndCachesRules(t *testing.T) {
	llm := &fakeKGCompleter{responses: []string{
		`{"text_type": "novel", "core_themes": ["loyalty"], "common_relations": ["ally"], "language_style": "narrative"}`,
		`{"rules": [{"pattern": "(.+?)帮助(.+)", "relation": "帮助", "subject_group": 1, "object_group": 2}]}`,
	}}
	l := NewDynamicRuleLearner(DefaultDynamicRulesConfig(), llm)

	rules := l.RulesForDocument(context.Background(), "doc1", "刘备帮助关羽")
	if len(rules) != 1 {
		t.Fatalf("RulesForDocument() = %d rules, want 1", len(rules))
	}
	if rules[0].Relation != "帮助" || rules[0].SubjGroup != 1 || rules[0].ObjGroup != 2 {
		t.Fatalf("rules[0] = %+v, want relation=帮助 subj=1 obj=2", rules[0])
	}

	callsBefore := llm.calls
	cached := l.RulesForDocument(context.Background(), "doc1", "刘备帮助关羽")
	if llm.calls != callsBefore {
		t.Fatalf("second call to RulesForDocument made %d more LLM calls, want cached result", llm.calls-callsBefore)
	}
	if len(cached) != 1 || cached[0].Relation != "帮助" {
		t.Fatalf("cached rules = %+v, want same as first call", cached)
	}
}

func TestDynamicRuleLearnerFailsGracefullyOnLLMError(t *testing.T) {
	llm := &fakeKGCompleter{err: errors.New("llm down")}
	l := NewDynamicRuleLearner(DefaultDynamicRulesConfig(), llm)
	rules := l.RulesForDocument(context.Background(), "doc1", "some text")
	if rules != nil {
		t.Fatalf("RulesForDocument() = %v, want nil rules on persistent LLM failure", rules)
	}
}

func TestDynamicRuleLearnerStripsNamedGroupsFromGeneratedPattern(t *testing.T) {
	llm := &fakeKGCompleter{responses: []string{
		`{"text_type": "novel"}`,
		`{"rules": [{"pattern": "(?P<subj>.+?)帮助(?P<obj>.+)", "relation": "帮助", "subject_group": 1, "object_group": 2}]}`,
	}}
	l := NewDynamicRuleLearner(DefaultDynamicRulesConfig(), llm)
	rules := l.RulesForDocument(context.Background(), "doc1", "刘备帮助关羽")
	if len(rules) != 1 {
		t.Fatalf("RulesForDocument() = %d rules, want 1 after stripping named groups", len(rules))
	}
	if !rules[0].Pattern.MatchString("刘备帮助关羽") {
		t.Fatalf("compiled pattern %q does not match sample text", rules[0].Pattern.String())
	}
}

func TestSampleTextFixedTruncatesToLength(t *testing.T) {
	l := NewDynamicRuleLearner(DynamicRulesConfig{SampleLength: 5, SampleMethod: "fixed"}, nil)
	got := l.sampleText("abcdefghij")
	if got != "abcde" {
		t.Fatalf("sampleText() = %q, want abcde", got)
	}
}

func TestSampleTextShorterThanMaxReturnsUnchanged(t *testing.T) {
	l := NewDynamicRuleLearner(DynamicRulesConfig{SampleLength: 100, SampleMethod: "fixed"}, nil)
	got := l.sampleText("short text")
	if got != "short text" {
		t.Fatalf("sampleText() = %q, want unchanged text", got)
	}
}

func TestSampleTextMixedIncludesHeadAndMiddle(t *testing.T) {
	l := NewDynamicRuleLearner(DynamicRulesConfig{SampleLength: 10, SampleMethod: "mixed"}, nil)
	long := strings.Repeat("x", 5) + strings.Repeat("y", 50) + strings.Repeat("z", 5)
	got := l.sampleText(long)
	if !strings.HasPrefix(got, "xxxxx") {
		t.Fatalf("sampleText() = %q, want to start with the head", got)
	}
	if !strings.Contains(got, "...") {
		t.Fatalf("sampleText() = %q, want a separator between head and middle sample", got)
	}
}

func TestExtractJSONDirectParse(t *testing.T) {
	var out textAnalysis
	if !extractJSON(`{"text_type": "novel"}`, &out) {
		t.Fatal("extractJSON() = false, want true for direct JSON")
	}
	if out.TextType != "novel" {
		t.Fatalf("out.TextType = %q, want novel", out.TextType)
	}
}

func TestExtractJSONFencedBlock(t *testing.T) {
	var out textAnalysis
	raw := "Here is the analysis:\n```json\n{\"text_type\": \"history\"}\n```\nThanks."
	if !extractJSON(raw, &out) {
		t.Fatal("extractJSON() = false, want true for fenced JSON block")
	}
	if out.TextType != "history" {
		t.Fatalf("out.TextType = %q, want history", out.TextType)
	}
}

func TestExtractJSONBraceMatchedWithNestedBraces(t *testing.T) {
	var out struct {
		Rules []llmRule `json:"rules"`
	}
	raw := `some preamble { "rules": [{"pattern": "a{1,2}", "relation": "r"}] } trailing text`
	if !extractJSON(raw, &out) {
		t.Fatal("extractJSON() = false, want true for brace-matched scan")
	}
	if len(out.Rules) != 1 || out.Rules[0].Relation != "r" {
		t.Fatalf("out.Rules = %+v, want one rule with relation r", out.Rules)
	}
}

func TestExtractJSONReturnsFalseOnGarbage(t *testing.T) {
	var out textAnalysis
	if extractJSON("not json at all", &out) {
		t.Fatal("extractJSON() = true, want false for unparseable input")
	}
}

func TestFixGoRegexStripsNamedGroups(t *testing.T) {
	got := fixGoRegex(`(?P<subj>.+?)帮助(?P<obj>.+)`)
	if strings.Contains(got, "?P<") {
		t.Fatalf("fixGoRegex() = %q, want named groups stripped", got)
	}
}

func TestTruncateRunesHandlesMultibyte(t *testing.T) {
	got := truncateRunes("刘备关羽张飞", 3)
	if got != "刘备关" {
		t.Fatalf("truncateRunes() = %q, want 刘备关", got)
	}
}
