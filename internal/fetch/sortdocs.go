package fetch

import (
	"sort"
	"strings"
	"time"

	"github.com/cliniscope/cliniscope/pkg/model"
)

// reorder returns a copy of docs ordered per the sort spec, mirroring the
// store's ordering rules: nil sort means most recently updated first,
// relevance means text score descending, and ties always break by document
// id ascending. Lets a resident full set serve a new ordering without a
// store round-trip.
func reorder(docs []*model.Document, s *model.Sort) []*model.Document {
	out := make([]*model.Document, len(docs))
	copy(out, docs)

	sort.SliceStable(out, func(i, j int) bool {
		if c := compareDocs(out[i], out[j], s); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func compareDocs(a, b *model.Document, s *model.Sort) int {
	if s == nil {
		// Newest first.
		return -compareValues(a.UpdatedAt, b.UpdatedAt)
	}
	if s.Field == model.SortRelevance {
		return -compareValues(a.TextScore, b.TextScore)
	}

	// An absent field compares as null, below every present value, and the
	// direction applies to it like any other value. This is the store's
	// placement: first ascending, last descending.
	c := compareValues(fieldValue(a, s.Field), fieldValue(b, s.Field))
	if s.Direction == model.DirDesc {
		c = -c
	}
	return c
}

// fieldValue resolves a sortable value by header name or dotted bag path.
func fieldValue(doc *model.Document, field string) interface{} {
	switch field {
	case "id":
		return doc.ID
	case "source":
		return doc.Source
	case "externalId":
		return doc.ExternalID
	case "category":
		return doc.Category
	case "title":
		return doc.Title
	case "body":
		return doc.Body
	case "createdAt":
		return doc.CreatedAt
	case "updatedAt":
		return doc.UpdatedAt
	case "score":
		return doc.Score
	}

	var cur interface{} = doc.Attrs
	for _, seg := range strings.Split(field, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// compareValues orders two dynamic values. Nil ranks below every present
// value, the way the store compares a missing field as null.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}

	if an, aok := model.AsNumber(a); aok {
		if bn, bok := model.AsNumber(b); bok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case !ab && bb:
				return -1
			case ab && !bb:
				return 1
			}
			return 0
		}
	}

	return 0
}
