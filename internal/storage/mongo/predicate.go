package mongo

import (
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

// mapField maps a query field path to its BSON path. Header fields have
// fixed columns; everything else lives in the attribute bag.
func mapField(field string) string {
	switch field {
	case "id":
		return "_id"
	case "externalId":
		return "external_id"
	case "createdAt":
		return "created_at"
	case "updatedAt":
		return "updated_at"
	case "source", "category", "title", "body", "score":
		return field
	default:
		return "attrs." + field
	}
}

// buildMatch assembles the full match predicate for a plan: category
// restriction, free-text clause and the compiled condition tree.
func buildMatch(plan storage.Plan) (bson.M, error) {
	match := bson.M{}

	if len(plan.Categories) > 0 {
		match["category"] = bson.M{"$in": plan.Categories}
	}
	if plan.FreeText != "" {
		match["$text"] = bson.M{"$search": plan.FreeText}
	}

	if plan.Filter != nil {
		pred, err := buildPredicate(plan.Filter)
		if err != nil {
			return nil, err
		}
		if len(pred) > 0 {
			if keysOverlap(match, pred) {
				// Same key at top level, keep every clause via $and.
				match = bson.M{"$and": bson.A{match, pred}}
			} else {
				for k, v := range pred {
					match[k] = v
				}
			}
		}
	}

	return match, nil
}

func keysOverlap(a, b bson.M) bool {
	for k := range b {
		if _, ok := a[k]; ok {
			return true
		}
	}
	return false
}

// buildPredicate compiles a validated filter tree into a BSON predicate.
// Operator legality and literal coercion happened in the query engine; this
// translation is mechanical. An unknown field simply never matches, which is
// MongoDB's natural semantics for missing paths.
func buildPredicate(n *model.FilterNode) (bson.M, error) {
	if n == nil {
		return bson.M{}, nil
	}

	if !n.IsLeaf() {
		children := make(bson.A, 0, len(n.Children))
		for _, c := range n.Children {
			pred, err := buildPredicate(c)
			if err != nil {
				return nil, err
			}
			children = append(children, pred)
		}
		switch n.Op {
		case model.BoolAnd:
			return bson.M{"$and": children}, nil
		case model.BoolOr:
			return bson.M{"$or": children}, nil
		case model.BoolNot:
			// $nor negates the full sub-predicate. Documents where the field
			// is absent do not satisfy the affirmative form, so they are
			// matched by the negation: absence is absence, not false.
			return bson.M{"$nor": children}, nil
		default:
			return nil, fmt.Errorf("unknown combinator %q", n.Op)
		}
	}

	path := mapField(n.Field)
	switch n.Operator {
	case model.OpEq:
		return bson.M{path: n.Value}, nil
	case model.OpNe:
		// A bare $ne also matches documents missing the field entirely.
		// The affirmative form must not: absence only matches under the
		// explicit missing operator. Negation via $nor keeps absent docs.
		return bson.M{path: bson.M{"$ne": n.Value, "$exists": true}}, nil
	case model.OpContains:
		return caseInsensitive(path, regexp.QuoteMeta(literalString(n.Value))), nil
	case model.OpStartsWith:
		return caseInsensitive(path, "^"+regexp.QuoteMeta(literalString(n.Value))), nil
	case model.OpEndsWith:
		return caseInsensitive(path, regexp.QuoteMeta(literalString(n.Value))+"$"), nil
	case model.OpRegex:
		return bson.M{path: bson.M{"$regex": literalString(n.Value)}}, nil
	case model.OpIn:
		vals, err := literalList(n)
		if err != nil {
			return nil, err
		}
		return bson.M{path: bson.M{"$in": vals}}, nil
	case model.OpGt:
		return bson.M{path: bson.M{"$gt": n.Value}}, nil
	case model.OpGte:
		return bson.M{path: bson.M{"$gte": n.Value}}, nil
	case model.OpLt:
		return bson.M{path: bson.M{"$lt": n.Value}}, nil
	case model.OpLte:
		return bson.M{path: bson.M{"$lte": n.Value}}, nil
	case model.OpBetween:
		vals, err := literalList(n)
		if err != nil {
			return nil, err
		}
		if len(vals) != 2 {
			return nil, fmt.Errorf("between on field %q requires [low, high], got %d values", n.Field, len(vals))
		}
		return bson.M{path: bson.M{"$gte": vals[0], "$lte": vals[1]}}, nil
	case model.OpAny:
		// Matching a scalar against an array field is Mongo's native
		// contains-element semantics.
		return bson.M{path: n.Value}, nil
	case model.OpAll:
		vals, err := literalList(n)
		if err != nil {
			return nil, err
		}
		return bson.M{path: bson.M{"$all": vals}}, nil
	case model.OpExists:
		return bson.M{path: bson.M{"$exists": true}}, nil
	case model.OpMissing:
		return bson.M{path: bson.M{"$exists": false}}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q on field %q", n.Operator, n.Field)
	}
}

func caseInsensitive(path, pattern string) bson.M {
	return bson.M{path: bson.M{"$regex": pattern, "$options": "i"}}
}

func literalString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func literalList(n *model.FilterNode) (bson.A, error) {
	switch vals := n.Value.(type) {
	case bson.A:
		return vals, nil
	case []interface{}:
		return bson.A(vals), nil
	case []string:
		out := make(bson.A, len(vals))
		for i, v := range vals {
			out[i] = v
		}
		return out, nil
	case []float64:
		out := make(bson.A, len(vals))
		for i, v := range vals {
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("operator %q on field %q requires a list literal, got %T", n.Operator, n.Field, n.Value)
	}
}

// buildSort resolves the plan ordering. A free-text search without an
// explicit sort orders by relevance descending. Every ordering gets an id
// ascending tie-break so pagination is stable.
func buildSort(plan storage.Plan) bson.D {
	if plan.Sort.Field == "" || plan.Sort.Field == model.SortRelevance {
		if plan.FreeText != "" {
			return bson.D{
				{Key: "text_score", Value: bson.M{"$meta": "textScore"}},
				{Key: "_id", Value: 1},
			}
		}
		// No sort requested and nothing to rank: newest first.
		return bson.D{
			{Key: "updated_at", Value: -1},
			{Key: "_id", Value: 1},
		}
	}

	dir := 1
	if plan.Sort.Direction == model.DirDesc {
		dir = -1
	}
	path := mapField(plan.Sort.Field)
	sort := bson.D{{Key: path, Value: dir}}
	if path != "_id" {
		sort = append(sort, bson.E{Key: "_id", Value: 1})
	}
	return sort
}

// buildProjection limits the attribute bag to the requested return fields.
// Header columns are always included. Returns nil when the full document is
// wanted and no text score is needed.
func buildProjection(plan storage.Plan) bson.M {
	var proj bson.M
	if len(plan.ReturnFields) > 0 {
		proj = bson.M{
			"_id": 1, "source": 1, "external_id": 1, "category": 1,
			"title": 1, "body": 1, "created_at": 1, "updated_at": 1, "score": 1,
		}
		for _, f := range plan.ReturnFields {
			if !model.IsHeaderField(f) {
				proj["attrs."+f] = 1
			}
		}
	}
	if plan.FreeText != "" {
		if proj == nil {
			proj = bson.M{}
		}
		proj["text_score"] = bson.M{"$meta": "textScore"}
	}
	return proj
}
