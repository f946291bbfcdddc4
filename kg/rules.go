package kg

import (
	"regexp"
	"strings"
)

// Rule is a single extraction pattern: a regex over a sentence plus
// the group indices that yield subject/predicate/object. A zero
// RelGroup means Relation is a fixed predicate string rather than a
// captured group.
type Rule struct {
	Pattern    *regexp.Regexp
	Relation   string
	SubjGroup  int
	ObjGroup   int
	RelGroup   int
	Confidence float64
}

// defaultRules is the fixed set of Chinese-grammar patterns rule-based
// extraction always runs, grounded on
// _extract_triples_rule_based's `patterns` list. Order matters: each
// sentence is tested against every rule and every match kept, mirroring
// the source's "per pattern, per sentence" double loop rather than
// stopping at the first hit.
func defaultRules() []Rule {
	return []Rule{
		{Pattern: regexp.MustCompile(`(.+?)是(.+)`), Relation: "是", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:位于|在)(.+)`), Relation: "位于", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:属于|归属)(.+)`), Relation: "属于", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:使用|采用)(.+)`), Relation: "使用", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)包含(.+)`), Relation: "包含", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:和|与|同)(.+?)(?:结义|结拜)`), Relation: "结义", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:在)(.+?)(?:地|处|地方)`), Relation: "位于", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:来自|出自)(.+)`), Relation: "来自", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:去|到|前往)(.+)`), Relation: "前往", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:说|道|曰)(.+)`), Relation: "说", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:做|进行|执行)(.+)`), Relation: "执行", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)有(.+)`), Relation: "有", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
		{Pattern: regexp.MustCompile(`(.+?)(?:成为|变成)(.+)`), Relation: "成为", SubjGroup: 1, ObjGroup: 2, Confidence: 0.8},
	}
}

// multiPersonSwornBrotherhood matches "X、Y、Z结义" and generates a
// triple per pair, not a single subject/object pair — handled
// separately from the Rule table since it needs pairwise expansion.
var multiPersonSwornBrotherhood = regexp.MustCompile(`(.+?)[、，,](.+?)[、，,](.+?)(?:结义|结拜)`)

var sentenceSplit = regexp.MustCompile(`[。！？\n]`)

// extractRuleTriples runs the fixed regex rule set plus event-entity
// synthesis over text, splitting into sentences first. Grounded on
// _extract_triples_rule_based.
func extractRuleTriples(text string) []Triple {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var triples []Triple
	for _, ev := range extractEventEntities(text) {
		triples = append(triples, Triple{Subject: ev.Name, Predicate: "类型", Object: "结义事件", Confidence: 0.9})
		if ev.Location != "" {
			triples = append(triples, Triple{Subject: ev.Name, Predicate: "发生地点", Object: ev.Location, Confidence: 0.9})
		}
		for _, p := range ev.Participants {
			if p != "" {
				triples = append(triples, Triple{Subject: p, Predicate: "参与", Object: ev.Name, Confidence: 0.9})
			}
		}
	}

	rules := defaultRules()
	for _, sent := range splitSentencesRule(text) {
		if len([]rune(sent)) < 6 {
			continue
		}

		if m := multiPersonSwornBrotherhood.FindStringSubmatch(sent); m != nil {
			persons := []string{normalizeEntity(m[1]), normalizeEntity(m[2]), normalizeEntity(m[3])}
			for i := 0; i < len(persons); i++ {
				for j := i + 1; j < len(persons); j++ {
					subj, obj := persons[i], persons[j]
					if subj != "" && obj != "" && len([]rune(subj)) < 50 && len([]rune(obj)) < 50 {
						triples = append(triples, Triple{Subject: subj, Predicate: "结义", Object: obj, Confidence: 0.8})
					}
				}
			}
			continue
		}

		for _, rule := range rules {
			m := rule.Pattern.FindStringSubmatch(sent)
			if m == nil {
				continue
			}
			subj := normalizeEntity(groupOrEmpty(m, rule.SubjGroup))
			obj := normalizeEntity(groupOrEmpty(m, rule.ObjGroup))
			pred := rule.Relation
			if rule.RelGroup > 0 {
				pred = strings.TrimSpace(groupOrEmpty(m, rule.RelGroup))
			}

			if subj == "" || obj == "" || pred == "" {
				continue
			}
			if len([]rune(subj)) > 100 || len([]rune(obj)) > 100 || len([]rune(pred)) > 20 {
				continue
			}
			if len([]rune(subj)) < 2 || len([]rune(obj)) < 2 {
				continue
			}
			triples = append(triples, Triple{Subject: subj, Predicate: pred, Object: obj, Confidence: rule.Confidence})
		}
	}
	return triples
}

func groupOrEmpty(m []string, idx int) string {
	if idx <= 0 || idx >= len(m) {
		return ""
	}
	return m[idx]
}

func splitSentencesRule(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeEntity collapses whitespace, unifies full-width punctuation,
// and trims leading/trailing punctuation, mirroring _normalize_entity.
func normalizeEntity(entity string) string {
	fields := strings.Fields(entity)
	normalized := strings.Join(fields, " ")
	normalized = strings.NewReplacer("，", ",", "。", ".").Replace(normalized)
	return strings.Trim(normalized, ".,;:!?，。；：！？ ")
}

// eventEntity is a synthesized event, e.g. "桃园结义" with its
// location, action, and participants.
type eventEntity struct {
	Name         string
	Location     string
	Action       string
	Participants []string
}

var (
	eventPatternTriple = regexp.MustCompile(`(.+?)[、，,](.+?)[、，,](.+?)在(.+?)(结义|结拜)`)
	eventPatternPair   = regexp.MustCompile(`(.+?)(和|与|同)(.+?)在(.+?)(结义|结拜)`)
	eventPatternBare   = regexp.MustCompile(`在(.+?)(结义|结拜)`)
	personPattern      = regexp.MustCompile(`([\p{Han}]{2,4})(?:[，、。！？\s]|$)`)
)

var commonSurnames = map[rune]bool{
	'刘': true, '关': true, '张': true, '赵': true, '马': true, '黄': true, '曹': true,
	'孙': true, '周': true, '吴': true, '郑': true, '王': true, '李': true, '陈': true,
	'杨': true, '林': true, '何': true, '郭': true, '罗': true, '高': true,
}

// extractEventEntities recognizes sworn-brotherhood-style event
// constructs without needing an NER model, per
// _extract_event_entities_rule_based. Three pattern variants (three
// named participants, two named participants, bare location with
// participants inferred from surrounding text) feed a common dedup
// pass keyed by event name.
func extractEventEntities(text string) []eventEntity {
	var events []eventEntity

	for _, m := range eventPatternTriple.FindAllStringSubmatch(text, -1) {
		location, action := strings.TrimSpace(m[4]), strings.TrimSpace(m[5])
		events = append(events, eventEntity{
			Name:         location + action,
			Location:     location,
			Action:       action,
			Participants: []string{strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])},
		})
	}

	for _, m := range eventPatternPair.FindAllStringSubmatch(text, -1) {
		location, action := strings.TrimSpace(m[4]), strings.TrimSpace(m[5])
		events = append(events, eventEntity{
			Name:         location + action,
			Location:     location,
			Action:       action,
			Participants: []string{strings.TrimSpace(m[1]), strings.TrimSpace(m[3])},
		})
	}

	for _, idx := range eventPatternBare.FindAllStringSubmatchIndex(text, -1) {
		loc := strings.TrimSpace(text[idx[2]:idx[3]])
		action := strings.TrimSpace(text[idx[4]:idx[5]])
		name := loc + action

		start := idx[0] - 50
		if start < 0 {
			start = 0
		}
		context := text[start:idx[0]]
		var participants []string
		for _, pm := range personPattern.FindAllStringSubmatch(context, -1) {
			person := pm[1]
			r := []rune(person)
			if len(r) > 0 && commonSurnames[r[0]] {
				participants = append(participants, person)
			}
		}
		if len(participants) > 0 || loc != "" {
			events = append(events, eventEntity{Name: name, Location: loc, Action: action, Participants: participants})
		}
	}

	seen := make(map[string]bool, len(events))
	unique := make([]eventEntity, 0, len(events))
	for _, e := range events {
		if !seen[e.Name] {
			seen[e.Name] = true
			unique = append(unique, e)
		}
	}
	return unique
}
