package model

import "fmt"

// FilterOp defines the supported filter operators.
type FilterOp string

const (
	OpEq         FilterOp = "eq"          // Equal
	OpNe         FilterOp = "ne"          // Not equal
	OpContains   FilterOp = "contains"    // Case-insensitive substring
	OpStartsWith FilterOp = "starts_with" // Case-insensitive prefix
	OpEndsWith   FilterOp = "ends_with"   // Case-insensitive suffix
	OpRegex      FilterOp = "regex"       // Regular expression match
	OpIn         FilterOp = "in"          // Value in literal set
	OpGt         FilterOp = "gt"          // Greater than
	OpGte        FilterOp = "gte"         // Greater than or equal
	OpLt         FilterOp = "lt"          // Less than
	OpLte        FilterOp = "lte"         // Less than or equal
	OpBetween    FilterOp = "between"     // Inclusive range, value is [low, high]
	OpAny        FilterOp = "any"         // Array contains element
	OpAll        FilterOp = "all"         // Array contains all elements
	OpExists     FilterOp = "exists"      // Field is present
	OpMissing    FilterOp = "missing"     // Field is absent
)

// opsByKind is the single source of truth for operator applicability per
// type. Schema discovery and the query engine both read from it so the two
// never disagree about what is legal.
var opsByKind = map[FieldKind][]FilterOp{
	KindString: {OpEq, OpNe, OpContains, OpStartsWith, OpEndsWith, OpRegex, OpIn, OpExists, OpMissing},
	KindNumber: {OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpBetween, OpIn, OpExists, OpMissing},
	KindDate:   {OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpBetween, OpIn, OpExists, OpMissing},
	KindBool:   {OpEq, OpNe, OpExists, OpMissing},
	KindList:   {OpAny, OpAll, OpIn, OpExists, OpMissing},
	KindMap:    {OpExists, OpMissing},
}

// OpsForKind returns the operators valid for a field kind. The returned slice
// is a copy and safe to hold.
func OpsForKind(k FieldKind) []FilterOp {
	ops, ok := opsByKind[k]
	if !ok {
		return []FilterOp{OpExists, OpMissing}
	}
	out := make([]FilterOp, len(ops))
	copy(out, ops)
	return out
}

// ValidFor reports whether the operator is legal for the given kind. Unknown
// kinds accept every operator since the field's type could not be inferred.
func (op FilterOp) ValidFor(k FieldKind) bool {
	if k == KindUnknown {
		return op.IsValid()
	}
	for _, o := range opsByKind[k] {
		if o == op {
			return true
		}
	}
	return false
}

// IsValid checks if the operator is part of the vocabulary at all.
func (op FilterOp) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpContains, OpStartsWith, OpEndsWith, OpRegex, OpIn,
		OpGt, OpGte, OpLt, OpLte, OpBetween, OpAny, OpAll, OpExists, OpMissing:
		return true
	}
	return false
}

// IsAbsenceAware reports whether the operator speaks about field presence
// itself rather than a field's value.
func (op FilterOp) IsAbsenceAware() bool {
	return op == OpExists || op == OpMissing
}

// BoolOp combines filter nodes.
type BoolOp string

const (
	BoolAnd BoolOp = "AND"
	BoolOr  BoolOp = "OR"
	BoolNot BoolOp = "NOT"
)

// FilterNode is either a leaf condition {Field, Operator, Value} or a
// combinator {Op, Children}. A node with a non-empty Op is a combinator.
type FilterNode struct {
	Op       BoolOp        `json:"op,omitempty"`
	Children []*FilterNode `json:"children,omitempty"`

	Field    string      `json:"field,omitempty"`
	Operator FilterOp    `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// IsLeaf reports whether the node is a leaf condition.
func (n *FilterNode) IsLeaf() bool {
	return n != nil && n.Op == ""
}

// Validate checks the tree shape only. Operator/type legality is checked by
// the query engine, which has the type catalog.
func (n *FilterNode) Validate() error {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		if n.Field == "" {
			return fmt.Errorf("filter leaf is missing a field")
		}
		if !n.Operator.IsValid() {
			return fmt.Errorf("unknown operator %q on field %q", n.Operator, n.Field)
		}
		return nil
	}
	switch n.Op {
	case BoolAnd, BoolOr:
		if len(n.Children) == 0 {
			return fmt.Errorf("%s combinator has no children", n.Op)
		}
	case BoolNot:
		if len(n.Children) != 1 {
			return fmt.Errorf("NOT combinator requires exactly one child, got %d", len(n.Children))
		}
	default:
		return fmt.Errorf("unknown combinator %q", n.Op)
	}
	for _, c := range n.Children {
		if c == nil {
			return fmt.Errorf("%s combinator has a nil child", n.Op)
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Walk calls fn for every leaf in the tree.
func (n *FilterNode) Walk(fn func(leaf *FilterNode)) {
	if n == nil {
		return
	}
	if n.IsLeaf() {
		fn(n)
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Prune returns a copy of the tree with every leaf for which drop returns
// true removed. Combinators left without children collapse to nil. Used by
// faceting to strip a field's own conditions from the predicate.
func (n *FilterNode) Prune(drop func(leaf *FilterNode) bool) *FilterNode {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		if drop(n) {
			return nil
		}
		clone := *n
		return &clone
	}
	kept := make([]*FilterNode, 0, len(n.Children))
	for _, c := range n.Children {
		if pc := c.Prune(drop); pc != nil {
			kept = append(kept, pc)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &FilterNode{Op: n.Op, Children: kept}
}
