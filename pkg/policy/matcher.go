package policy

import (
	"strings"

	"fara-hq/governor/pkg/action"
)

// input is the pre-computed evaluation subject. The canonical params form
// is computed once per evaluation and shared by every rule.
type input struct {
	tool      string
	op        string
	params    action.Params
	context   action.Context
	canonical string
}

func newInput(tool, op string, params action.Params, ctx action.Context) *input {
	return &input{
		tool:      tool,
		op:        op,
		params:    params,
		context:   ctx,
		canonical: action.CanonicalJSON(params),
	}
}

// matches reports whether every set field of m holds against in. Unset
// fields match anything.
func (m *Match) matches(in *input) bool {
	if !matchComponent(m.Tool, in.tool) {
		return false
	}
	if !matchComponent(m.Op, in.op) {
		return false
	}
	if m.Pattern != "" && !strings.Contains(in.canonical, m.Pattern) {
		return false
	}
	if m.AmountGT != nil || m.AmountLT != nil {
		amount, ok := numericParam(in.params, "amount")
		if !ok {
			return false
		}
		if m.AmountGT != nil && !(amount > *m.AmountGT) {
			return false
		}
		if m.AmountLT != nil && !(amount < *m.AmountLT) {
			return false
		}
	}
	for key, want := range m.Where {
		got, ok := lookup(in, key)
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// matchComponent compares a rule's tool or op against the input value.
// Empty and "*" are wildcards; everything else is an exact match.
func matchComponent(pattern, value string) bool {
	return pattern == "" || pattern == "*" || pattern == value
}

// lookup resolves an equality-predicate key, checking params before context.
func lookup(in *input, key string) (any, bool) {
	if v, ok := in.params[key]; ok {
		return v, true
	}
	if v, ok := in.context[key]; ok {
		return v, true
	}
	return nil, false
}

// equalValue compares a stored value against a YAML-decoded predicate value.
// Numbers are compared numerically so that a YAML int 5 matches a JSON
// float64 5.
func equalValue(got, want any) bool {
	gf, gok := toFloat(got)
	wf, wok := toFloat(want)
	if gok && wok {
		return gf == wf
	}
	return got == want
}

func numericParam(params action.Params, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
