package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterOp_IsValid(t *testing.T) {
	tests := []struct {
		name string
		op   FilterOp
		want bool
	}{
		{"OpEq", OpEq, true},
		{"OpNe", OpNe, true},
		{"OpContains", OpContains, true},
		{"OpStartsWith", OpStartsWith, true},
		{"OpEndsWith", OpEndsWith, true},
		{"OpRegex", OpRegex, true},
		{"OpIn", OpIn, true},
		{"OpGt", OpGt, true},
		{"OpGte", OpGte, true},
		{"OpLt", OpLt, true},
		{"OpLte", OpLte, true},
		{"OpBetween", OpBetween, true},
		{"OpAny", OpAny, true},
		{"OpAll", OpAll, true},
		{"OpExists", OpExists, true},
		{"OpMissing", OpMissing, true},
		{"Invalid", FilterOp("invalid"), false},
		{"Empty", FilterOp(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.IsValid())
		})
	}
}

func TestOpsForKind_SharedTable(t *testing.T) {
	// Every operator returned for a kind must also validate for that kind.
	for _, kind := range []FieldKind{KindString, KindNumber, KindBool, KindDate, KindList, KindMap} {
		for _, op := range OpsForKind(kind) {
			assert.True(t, op.ValidFor(kind), "op %s should be valid for %s", op, kind)
		}
	}

	// Spot checks on legality boundaries.
	assert.True(t, OpRegex.ValidFor(KindString))
	assert.False(t, OpRegex.ValidFor(KindNumber))
	assert.True(t, OpBetween.ValidFor(KindDate))
	assert.False(t, OpContains.ValidFor(KindBool))
	assert.True(t, OpAll.ValidFor(KindList))
	assert.False(t, OpGt.ValidFor(KindList))

	// Unknown kinds accept any known operator: the literal decides at run time.
	assert.True(t, OpEq.ValidFor(KindUnknown))
	assert.False(t, FilterOp("nope").ValidFor(KindUnknown))
}

func TestOpsForKind_ReturnsCopy(t *testing.T) {
	ops := OpsForKind(KindString)
	ops[0] = FilterOp("mutated")
	assert.Equal(t, OpEq, OpsForKind(KindString)[0])
}

func TestFilterNode_Validate(t *testing.T) {
	tests := []struct {
		name    string
		node    *FilterNode
		wantErr bool
	}{
		{"NilTree", nil, false},
		{"Leaf", &FilterNode{Field: "phase", Operator: OpEq, Value: "Phase 2"}, false},
		{"LeafNoField", &FilterNode{Operator: OpEq, Value: 1}, true},
		{"LeafBadOp", &FilterNode{Field: "phase", Operator: "like", Value: 1}, true},
		{"AndEmpty", &FilterNode{Op: BoolAnd}, true},
		{"NotTwoChildren", &FilterNode{Op: BoolNot, Children: []*FilterNode{
			{Field: "a", Operator: OpEq, Value: 1},
			{Field: "b", Operator: OpEq, Value: 2},
		}}, true},
		{"UnknownCombinator", &FilterNode{Op: "XOR", Children: []*FilterNode{
			{Field: "a", Operator: OpEq, Value: 1},
		}}, true},
		{"Nested", &FilterNode{Op: BoolAnd, Children: []*FilterNode{
			{Field: "status", Operator: OpEq, Value: "recruiting"},
			{Op: BoolOr, Children: []*FilterNode{
				{Field: "phase", Operator: OpGte, Value: 2},
				{Field: "phase", Operator: OpMissing},
			}},
		}}, false},
		{"NestedBadLeaf", &FilterNode{Op: BoolNot, Children: []*FilterNode{
			{Field: "", Operator: OpEq, Value: 1},
		}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterNode_Prune(t *testing.T) {
	tree := &FilterNode{Op: BoolAnd, Children: []*FilterNode{
		{Field: "status", Operator: OpEq, Value: "recruiting"},
		{Field: "phase", Operator: OpGte, Value: 2},
		{Op: BoolOr, Children: []*FilterNode{
			{Field: "phase", Operator: OpMissing},
			{Field: "country", Operator: OpEq, Value: "DE"},
		}},
	}}

	pruned := tree.Prune(func(leaf *FilterNode) bool { return leaf.Field == "phase" })
	require.NotNil(t, pruned)

	var fields []string
	pruned.Walk(func(leaf *FilterNode) { fields = append(fields, leaf.Field) })
	assert.Equal(t, []string{"status", "country"}, fields)

	// Original tree is untouched.
	var origFields []string
	tree.Walk(func(leaf *FilterNode) { origFields = append(origFields, leaf.Field) })
	assert.Len(t, origFields, 4)

	// Pruning every leaf collapses the tree.
	assert.Nil(t, tree.Prune(func(*FilterNode) bool { return true }))
}

func TestQuery_Validate(t *testing.T) {
	tests := []struct {
		name    string
		q       Query
		wantErr bool
	}{
		{"Empty", Query{}, false},
		{"NegativeOffset", Query{Pagination: Page{Offset: -1}}, true},
		{"NegativeLimit", Query{Pagination: Page{Limit: -5}}, true},
		{"BadSortDirection", Query{Sort: &Sort{Field: "title", Direction: "sideways"}}, true},
		{"GoodSort", Query{Sort: &Sort{Field: "title", Direction: DirDesc}}, false},
		{"BadConditions", Query{Conditions: &FilterNode{Op: BoolAnd}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
