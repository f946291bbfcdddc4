package node

// registerBuiltins wires the node kinds that need no outside
// collaborator into the Factory. CompositeNode and PlannerNode need a
// SubEngine/PlannerBuildAndRun only package flow can supply, so flow's
// graph builder registers those two via Factory.Register after
// constructing its engine.
func (f *Factory) registerBuiltins() {
	f.Register("start", NewStartNode)
	f.Register("end", NewEndNode)
	f.Register("llm", NewLLMNode)
	f.Register("tool", NewToolNode)
	f.Register("router", NewRouterNode)
	f.Register("auto_param", NewAutoParamNode)
	f.Register("knowledge_base", NewKBNode)
}
