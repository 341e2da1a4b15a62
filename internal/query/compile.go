package query

import (
	"regexp"
	"time"

	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// Compile validates the query against the operator/type table, coerces
// literals, and clamps pagination into a bounded-cost plan. A malformed
// request fails as a whole with a ValidationError naming the offending leaf;
// a valid tree referencing unknown fields compiles fine and simply matches
// nothing on those leaves.
func (e *Engine) Compile(q model.Query) (storage.Plan, error) {
	if err := q.Validate(); err != nil {
		return storage.Plan{}, &model.ValidationError{Message: err.Error()}
	}

	if len(q.Facets) > e.cfg.MaxFacetFields {
		return storage.Plan{}, &model.ValidationError{
			Message: "too many facet fields requested",
		}
	}

	limit := q.Pagination.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		e.logger.Warn("query limit clamped",
			"requested", limit,
			"max", e.cfg.MaxLimit,
		)
		limit = e.cfg.MaxLimit
	}

	filter, err := e.compileNode(q.Conditions)
	if err != nil {
		return storage.Plan{}, err
	}

	plan := storage.Plan{
		FreeText:     q.FreeText,
		Categories:   q.SourceCategories,
		Filter:       filter,
		Offset:       q.Pagination.Offset,
		Limit:        limit,
		ReturnFields: q.ReturnFields,
	}
	if q.Sort != nil {
		plan.Sort = *q.Sort
		if plan.Sort.Direction == "" {
			plan.Sort.Direction = model.DirAsc
		}
	}
	return plan, nil
}

// compileNode returns a coerced copy of the tree; the input is never
// mutated.
func (e *Engine) compileNode(n *model.FilterNode) (*model.FilterNode, error) {
	if n == nil {
		return nil, nil
	}
	if n.IsLeaf() {
		return e.compileLeaf(n)
	}
	out := &model.FilterNode{Op: n.Op, Children: make([]*model.FilterNode, 0, len(n.Children))}
	for _, c := range n.Children {
		cc, err := e.compileNode(c)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, cc)
	}
	return out, nil
}

func (e *Engine) compileLeaf(n *model.FilterNode) (*model.FilterNode, error) {
	leaf := *n
	kind := e.kindFor(leaf.Field)

	if !leaf.Operator.ValidFor(kind) {
		return nil, model.NewValidationError(leaf.Field, leaf.Operator,
			"operator not valid for %s fields", kind)
	}

	if leaf.Operator.IsAbsenceAware() {
		leaf.Value = nil
		return &leaf, nil
	}

	switch leaf.Operator {
	case model.OpContains, model.OpStartsWith, model.OpEndsWith:
		if _, ok := leaf.Value.(string); !ok {
			return nil, model.NewValidationError(leaf.Field, leaf.Operator,
				"requires a string literal, got %T", leaf.Value)
		}
	case model.OpRegex:
		pattern, ok := leaf.Value.(string)
		if !ok {
			return nil, model.NewValidationError(leaf.Field, leaf.Operator,
				"requires a string literal, got %T", leaf.Value)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return nil, model.NewValidationError(leaf.Field, leaf.Operator,
				"invalid regular expression: %v", err)
		}
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte, model.OpEq, model.OpNe:
		coerced, err := e.coerceScalar(&leaf, kind)
		if err != nil {
			return nil, err
		}
		leaf.Value = coerced
	case model.OpBetween, model.OpIn, model.OpAll:
		list, ok := asList(leaf.Value)
		if !ok {
			return nil, model.NewValidationError(leaf.Field, leaf.Operator,
				"requires a list literal, got %T", leaf.Value)
		}
		if leaf.Operator == model.OpBetween && len(list) != 2 {
			return nil, model.NewValidationError(leaf.Field, leaf.Operator,
				"requires exactly [low, high], got %d values", len(list))
		}
		if leaf.Operator != model.OpAll {
			out := make([]interface{}, len(list))
			for i, v := range list {
				tmp := leaf
				tmp.Value = v
				coerced, err := e.coerceScalar(&tmp, kind)
				if err != nil {
					return nil, err
				}
				out[i] = coerced
			}
			list = out
		}
		leaf.Value = list
	}

	return &leaf, nil
}

// coerceScalar turns date literals into comparable store values. Header
// dates are stored as unix millis, bag dates as native timestamps. All other
// literals pass through untouched.
func (e *Engine) coerceScalar(leaf *model.FilterNode, kind model.FieldKind) (interface{}, error) {
	ordering := false
	switch leaf.Operator {
	case model.OpGt, model.OpGte, model.OpLt, model.OpLte, model.OpBetween:
		ordering = true
	}
	if kind == model.KindNumber && ordering {
		if _, ok := model.AsNumber(leaf.Value); !ok {
			return nil, model.NewValidationError(leaf.Field, leaf.Operator,
				"requires a numeric literal, got %T", leaf.Value)
		}
		return leaf.Value, nil
	}

	isDate := kind == model.KindDate
	if !isDate && kind == model.KindUnknown {
		// No inference available: a date-formatted string still gets the
		// date treatment so range filters behave as the caller expects.
		if s, ok := leaf.Value.(string); ok && model.IsDateString(s) {
			isDate = true
		}
	}
	if !isDate {
		return leaf.Value, nil
	}

	t, err := model.ParseDateLiteral(leaf.Value)
	if err != nil {
		return nil, model.NewValidationError(leaf.Field, leaf.Operator, "%v", err)
	}
	if model.IsHeaderField(leaf.Field) {
		return t.UnixMilli(), nil
	}
	return t.UTC(), nil
}

func asList(v interface{}) ([]interface{}, bool) {
	switch vals := v.(type) {
	case []interface{}:
		return vals, true
	case []string:
		out := make([]interface{}, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(vals))
		for i, f := range vals {
			out[i] = f
		}
		return out, true
	case []time.Time:
		out := make([]interface{}, len(vals))
		for i, t := range vals {
			out[i] = t
		}
		return out, true
	default:
		return nil, false
	}
}
