package ftypes

import "testing"

func TestInferCategoryKnownImplementations(t *testing.T) {
	tests := []struct {
		impl string
		want Category
	}{
		{"start", CategoryStart},
		{"end", CategoryEnd},
		{"llm", CategoryLLM},
		{"tool", CategoryTool},
		{"router", CategoryRouter},
		{"auto_param", CategoryAutoParam},
		{"composite", CategoryComposite},
		{"planner", CategoryPlanner},
		{"knowledge_base", CategoryKB},
	}
	for _, tt := range tests {
		if got := InferCategory(tt.impl); got != tt.want {
			t.Errorf("InferCategory(%q) = %q, want %q", tt.impl, got, tt.want)
		}
	}
}

func TestInferCategoryUnknownImplementationPassesThrough(t *testing.T) {
	if got := InferCategory("custom_thing"); got != Category("custom_thing") {
		t.Fatalf("InferCategory(custom_thing) = %q, want the implementation string unchanged", got)
	}
}
