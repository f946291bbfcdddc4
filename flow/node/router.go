package node

import (
	"context"
	"fmt"
	"regexp"

	"github.com/flowctl/convoy/config"
	"github.com/flowctl/convoy/flow/ftypes"
)

// RoutingLogic mirrors §4.5's routing_logic config shape.
type RoutingLogic struct {
	Field     string
	Value     interface{}
	Operator  string
	Threshold float64
	Pattern   string
	hasValue  bool
	hasThresh bool
}

// RouterNode evaluates flow_state[field] against RoutingLogic and
// writes router_decision for the engine to branch on, per §4.5.
type RouterNode struct {
	id     string
	label  string
	logic  RoutingLogic
}

func NewRouterNode(cfg config.NodeCfg) (Node, error) {
	logicCfg := configMap(cfg, "routing_logic")
	logic := RoutingLogic{}
	if logicCfg != nil {
		if f, ok := logicCfg["field"].(string); ok {
			logic.Field = f
		}
		if v, ok := logicCfg["value"]; ok {
			logic.Value = v
			logic.hasValue = true
		}
		if op, ok := logicCfg["operator"].(string); ok {
			logic.Operator = op
		}
		if th, ok := logicCfg["threshold"].(float64); ok {
			logic.Threshold = th
			logic.hasThresh = true
		}
		if p, ok := logicCfg["pattern"].(string); ok {
			logic.Pattern = p
		}
	}
	return &RouterNode{id: cfg.ID, label: cfg.Data.Label, logic: logic}, nil
}

func (n *RouterNode) ID() string               { return n.id }
func (n *RouterNode) Category() ftypes.Category { return ftypes.CategoryRouter }
func (n *RouterNode) Implementation() string    { return "router" }
func (n *RouterNode) Label() string             { return n.label }
func (n *RouterNode) RequiresMount() bool       { return false }

// ExecuteStream writes the routing decision to flow state and returns
// with no chunks of its own: the engine's node_complete for this node
// carries selected_branch, so a router must not emit a second one.
func (n *RouterNode) ExecuteStream(ctx context.Context, nc *Context) (<-chan ftypes.Chunk, error) {
	ch := make(chan ftypes.Chunk)
	v, _ := nc.State.Get(n.logic.Field)
	selected := Evaluate(v, n.logic)
	nc.State.SetRouterDecision(RouterDecision{Field: n.logic.Field, Value: v, SelectedBranch: selected})
	close(ch)
	return ch, nil
}

// Evaluate implements §4.5's router evaluation rules in the documented
// priority order: explicit value-equality, bool truthiness, numeric
// comparison, string pattern match, else non-empty truthiness.
func Evaluate(v interface{}, logic RoutingLogic) bool {
	if logic.hasValue {
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", logic.Value)
	}
	if b, ok := v.(bool); ok {
		return b
	}
	if num, ok := asFloat(v); ok && logic.hasThresh {
		switch logic.Operator {
		case ">":
			return num > logic.Threshold
		case ">=":
			return num >= logic.Threshold
		case "<":
			return num < logic.Threshold
		case "<=":
			return num <= logic.Threshold
		case "==":
			return num == logic.Threshold
		default:
			return num >= logic.Threshold
		}
	}
	if s, ok := v.(string); ok && logic.Pattern != "" {
		matched, err := regexp.MatchString(logic.Pattern, s)
		return err == nil && matched
	}
	return isTruthy(v)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func isTruthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	default:
		return true
	}
}
