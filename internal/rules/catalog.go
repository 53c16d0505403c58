package rules

// DefaultEngine builds the full catalog in code order: static errors first,
// then the warning family, then the behavioral codes. Registration order is
// the diagnostic emission order.
func DefaultEngine() *Engine {
	e := NewEngine()

	for _, rule := range []Rule{
		ruleE100(),
		ruleE101(),
		ruleE102(),
		ruleE103(),
		ruleE104(),
		ruleE105(),
		ruleE106(),
		ruleE107(),
		ruleE108(),
		ruleE109(),
		ruleE110(),
		ruleE112(),
		ruleE113(),
		ruleW100(),
		ruleW101(),
		ruleW102(),
		ruleW103(),
		ruleW104(),
		ruleW105(),
		ruleW106(),
		ruleW107(),
		ruleW108(),
		ruleW109(),
		ruleW111(),
		ruleW112(),
		ruleW113(),
		ruleW114(),
		ruleW115(),
		ruleW116(),
		ruleW117(),
	} {
		e.Register(rule)
	}

	for _, rule := range behavioralRules() {
		e.Register(rule)
	}

	return e
}
