package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/cliniscope/cliniscope/internal/storage"
	"github.com/cliniscope/cliniscope/pkg/model"
)

func TestMapField(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"id", "_id"},
		{"externalId", "external_id"},
		{"createdAt", "created_at"},
		{"updatedAt", "updated_at"},
		{"title", "title"},
		{"score", "score"},
		{"phase", "attrs.phase"},
		{"sponsor.name", "attrs.sponsor.name"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapField(tt.field), tt.field)
	}
}

func TestBuildPredicate_Leaves(t *testing.T) {
	tests := []struct {
		name string
		node *model.FilterNode
		want bson.M
	}{
		{
			"Eq",
			&model.FilterNode{Field: "phase", Operator: model.OpEq, Value: "Phase 2"},
			bson.M{"attrs.phase": "Phase 2"},
		},
		{
			// Absent fields must not satisfy the affirmative form, which a
			// bare $ne would allow.
			"NeExcludesAbsent",
			&model.FilterNode{Field: "status", Operator: model.OpNe, Value: "terminated"},
			bson.M{"attrs.status": bson.M{"$ne": "terminated", "$exists": true}},
		},
		{
			"Contains",
			&model.FilterNode{Field: "title", Operator: model.OpContains, Value: "diabetes (type 2)"},
			bson.M{"title": bson.M{"$regex": `diabetes \(type 2\)`, "$options": "i"}},
		},
		{
			"StartsWith",
			&model.FilterNode{Field: "sponsor", Operator: model.OpStartsWith, Value: "Uni"},
			bson.M{"attrs.sponsor": bson.M{"$regex": "^Uni", "$options": "i"}},
		},
		{
			"EndsWith",
			&model.FilterNode{Field: "sponsor", Operator: model.OpEndsWith, Value: "GmbH"},
			bson.M{"attrs.sponsor": bson.M{"$regex": "GmbH$", "$options": "i"}},
		},
		{
			"Regex",
			&model.FilterNode{Field: "externalId", Operator: model.OpRegex, Value: "^NCT[0-9]+$"},
			bson.M{"external_id": bson.M{"$regex": "^NCT[0-9]+$"}},
		},
		{
			"In",
			&model.FilterNode{Field: "status", Operator: model.OpIn, Value: []interface{}{"recruiting", "active"}},
			bson.M{"attrs.status": bson.M{"$in": bson.A{"recruiting", "active"}}},
		},
		{
			"Gte",
			&model.FilterNode{Field: "enrollment", Operator: model.OpGte, Value: 100},
			bson.M{"attrs.enrollment": bson.M{"$gte": 100}},
		},
		{
			"Between",
			&model.FilterNode{Field: "enrollment", Operator: model.OpBetween, Value: []interface{}{10, 50}},
			bson.M{"attrs.enrollment": bson.M{"$gte": 10, "$lte": 50}},
		},
		{
			"Any",
			&model.FilterNode{Field: "conditions", Operator: model.OpAny, Value: "diabetes"},
			bson.M{"attrs.conditions": "diabetes"},
		},
		{
			"All",
			&model.FilterNode{Field: "conditions", Operator: model.OpAll, Value: []string{"diabetes", "obesity"}},
			bson.M{"attrs.conditions": bson.M{"$all": bson.A{"diabetes", "obesity"}}},
		},
		{
			"Exists",
			&model.FilterNode{Field: "phase", Operator: model.OpExists},
			bson.M{"attrs.phase": bson.M{"$exists": true}},
		},
		{
			"Missing",
			&model.FilterNode{Field: "phase", Operator: model.OpMissing},
			bson.M{"attrs.phase": bson.M{"$exists": false}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildPredicate(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPredicate_Combinators(t *testing.T) {
	tree := &model.FilterNode{Op: model.BoolAnd, Children: []*model.FilterNode{
		{Field: "status", Operator: model.OpEq, Value: "recruiting"},
		{Op: model.BoolNot, Children: []*model.FilterNode{
			{Field: "phase", Operator: model.OpEq, Value: "Phase 2"},
		}},
	}}

	got, err := buildPredicate(tree)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"attrs.status": "recruiting"},
		bson.M{"$nor": bson.A{bson.M{"attrs.phase": "Phase 2"}}},
	}}, got)

	or := &model.FilterNode{Op: model.BoolOr, Children: []*model.FilterNode{
		{Field: "a", Operator: model.OpEq, Value: 1},
		{Field: "b", Operator: model.OpEq, Value: 2},
	}}
	got, err = buildPredicate(or)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$or": bson.A{
		bson.M{"attrs.a": 1},
		bson.M{"attrs.b": 2},
	}}, got)
}

func TestBuildPredicate_Errors(t *testing.T) {
	_, err := buildPredicate(&model.FilterNode{Field: "x", Operator: model.OpBetween, Value: []interface{}{1}})
	assert.Error(t, err)

	_, err = buildPredicate(&model.FilterNode{Field: "x", Operator: model.OpIn, Value: 42})
	assert.Error(t, err)

	_, err = buildPredicate(&model.FilterNode{Field: "x", Operator: "like", Value: 1})
	assert.Error(t, err)
}

func TestBuildMatch(t *testing.T) {
	plan := storage.Plan{
		FreeText:   "diabetes",
		Categories: []string{"trial", "publication"},
		Filter:     &model.FilterNode{Field: "phase", Operator: model.OpExists},
	}

	got, err := buildMatch(plan)
	require.NoError(t, err)
	assert.Equal(t, bson.M{
		"category":    bson.M{"$in": []string{"trial", "publication"}},
		"$text":       bson.M{"$search": "diabetes"},
		"attrs.phase": bson.M{"$exists": true},
	}, got)

	empty, err := buildMatch(storage.Plan{})
	require.NoError(t, err)
	assert.Equal(t, bson.M{}, empty)
}

func TestBuildMatch_KeyClashKeepsBothClauses(t *testing.T) {
	// A filter on the category header collides with the plan's category
	// restriction at the top level; both must survive.
	plan := storage.Plan{
		Categories: []string{"trial"},
		Filter:     &model.FilterNode{Field: "category", Operator: model.OpNe, Value: "publication"},
	}

	got, err := buildMatch(plan)
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$and": bson.A{
		bson.M{"category": bson.M{"$in": []string{"trial"}}},
		bson.M{"category": bson.M{"$ne": "publication", "$exists": true}},
	}}, got)
}

func TestNeVersusNotEq_AbsencePlacement(t *testing.T) {
	// Affirmative ne guards on existence; NOT over eq stays a plain $nor so
	// documents without the field fall into the negation.
	ne, err := buildPredicate(&model.FilterNode{Field: "phase", Operator: model.OpNe, Value: "Phase 2"})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"attrs.phase": bson.M{"$ne": "Phase 2", "$exists": true}}, ne)

	notEq, err := buildPredicate(&model.FilterNode{Op: model.BoolNot, Children: []*model.FilterNode{
		{Field: "phase", Operator: model.OpEq, Value: "Phase 2"},
	}})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"$nor": bson.A{bson.M{"attrs.phase": "Phase 2"}}}, notEq)
}

func TestBuildSort(t *testing.T) {
	// Free text without explicit sort ranks by relevance, id tie-break.
	sort := buildSort(storage.Plan{FreeText: "diabetes"})
	require.Len(t, sort, 2)
	assert.Equal(t, "text_score", sort[0].Key)
	assert.Equal(t, bson.M{"$meta": "textScore"}, sort[0].Value)
	assert.Equal(t, "_id", sort[1].Key)
	assert.Equal(t, 1, sort[1].Value)

	// Explicit sort wins over relevance.
	sort = buildSort(storage.Plan{FreeText: "diabetes", Sort: model.Sort{Field: "updatedAt", Direction: model.DirDesc}})
	assert.Equal(t, bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}, sort)

	// Bag field ascending.
	sort = buildSort(storage.Plan{Sort: model.Sort{Field: "enrollment", Direction: model.DirAsc}})
	assert.Equal(t, bson.D{{Key: "attrs.enrollment", Value: 1}, {Key: "_id", Value: 1}}, sort)

	// Sorting by id gets no duplicate tie-break.
	sort = buildSort(storage.Plan{Sort: model.Sort{Field: "id", Direction: model.DirAsc}})
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, sort)

	// No sort and no free text: newest first.
	sort = buildSort(storage.Plan{})
	assert.Equal(t, bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}, sort)
}

func TestBuildProjection(t *testing.T) {
	assert.Nil(t, buildProjection(storage.Plan{}))

	proj := buildProjection(storage.Plan{ReturnFields: []string{"phase", "title"}})
	assert.Equal(t, 1, proj["attrs.phase"])
	assert.Equal(t, 1, proj["title"])
	assert.NotContains(t, proj, "attrs.title")

	proj = buildProjection(storage.Plan{FreeText: "diabetes"})
	assert.Equal(t, bson.M{"text_score": bson.M{"$meta": "textScore"}}, proj)
}
