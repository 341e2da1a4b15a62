package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cliniscope/cliniscope/pkg/model"
)

// TypeConflict records a field whose sampled values disagreed about their
// type. Inference picks the majority and moves on; the caller decides
// whether to log.
type TypeConflict struct {
	Field    string
	Majority model.FieldKind
	Minority map[model.FieldKind]int
}

// fieldStats accumulates observations for one dotted path.
type fieldStats struct {
	kinds      map[model.FieldKind]int
	samples    []interface{}
	sampleSet  map[string]struct{}
	coverage   int
	categories map[string]struct{}
	dateLike   int // string values that parse as dates
	strings    int
}

// BuildCatalog infers a catalog from sampled documents. Pure: no I/O, no
// shared state; the result is a fresh immutable snapshot.
func BuildCatalog(docs []*model.Document, maxSamples, maxDepth int, now time.Time) (*Catalog, []TypeConflict) {
	stats := make(map[string]*fieldStats)

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		seen := make(map[string]struct{})
		walkAttrs("", doc.Attrs, maxDepth, func(path string, v interface{}) {
			st, ok := stats[path]
			if !ok {
				st = &fieldStats{
					kinds:      make(map[model.FieldKind]int),
					sampleSet:  make(map[string]struct{}),
					categories: make(map[string]struct{}),
				}
				stats[path] = st
			}

			kind := model.KindOf(v)
			st.kinds[kind]++
			if kind == model.KindString {
				st.strings++
				if s := v.(string); model.IsDateString(s) {
					st.dateLike++
				}
			}
			if _, counted := seen[path]; !counted {
				seen[path] = struct{}{}
				st.coverage++
			}
			st.categories[doc.Category] = struct{}{}
			st.addSample(v, maxSamples)
		})
	}

	fields := make([]FieldDescriptor, 0, len(stats))
	var conflicts []TypeConflict

	for path, st := range stats {
		kind, conflict := st.majorityKind(path)
		if conflict != nil {
			conflicts = append(conflicts, *conflict)
		}

		categories := make([]string, 0, len(st.categories))
		for c := range st.categories {
			categories = append(categories, c)
		}
		sort.Strings(categories)

		fields = append(fields, FieldDescriptor{
			Name:         path,
			Kind:         kind,
			Operators:    model.OpsForKind(kind),
			SampleValues: st.samples,
			Coverage:     st.coverage,
			Categories:   categories,
			Group:        classify(path, kind),
		})
	}

	// Header fields are always queryable and always covered.
	allCategories := make(map[string]struct{})
	for _, doc := range docs {
		if doc != nil {
			allCategories[doc.Category] = struct{}{}
		}
	}
	headerCats := make([]string, 0, len(allCategories))
	for c := range allCategories {
		headerCats = append(headerCats, c)
	}
	sort.Strings(headerCats)

	for name, kind := range model.HeaderFields {
		group := GroupCore
		if kind == model.KindDate {
			group = GroupDate
		}
		fields = append(fields, FieldDescriptor{
			Name:       name,
			Kind:       kind,
			Operators:  model.OpsForKind(kind),
			Coverage:   len(docs),
			Categories: headerCats,
			Group:      group,
		})
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	catalog := &Catalog{
		Fields:     fields,
		SampleSize: len(docs),
		BuiltAt:    now,
		byName:     make(map[string]*FieldDescriptor, len(fields)),
	}
	for i := range catalog.Fields {
		catalog.byName[catalog.Fields[i].Name] = &catalog.Fields[i]
	}
	return catalog, conflicts
}

// walkAttrs visits every dotted path in the attribute bag up to maxDepth.
// Lists are reported at their own path; their elements are not descended
// into.
func walkAttrs(prefix string, attrs map[string]interface{}, depth int, visit func(path string, v interface{})) {
	if depth <= 0 {
		return
	}
	for k, v := range attrs {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		visit(path, v)
		if nested, ok := v.(map[string]interface{}); ok {
			walkAttrs(path, nested, depth-1, visit)
		}
	}
}

func (st *fieldStats) addSample(v interface{}, max int) {
	if len(st.samples) >= max {
		return
	}
	switch v.(type) {
	case string, bool, float64, int, int64:
	default:
		return // only scalars make useful suggestions
	}
	key := fmt.Sprintf("%T:%v", v, v)
	if _, dup := st.sampleSet[key]; dup {
		return
	}
	st.sampleSet[key] = struct{}{}
	st.samples = append(st.samples, v)
}

// majorityKind picks the most observed kind; strings that predominantly
// parse as dates are promoted to the date kind.
func (st *fieldStats) majorityKind(path string) (model.FieldKind, *TypeConflict) {
	var majority model.FieldKind = model.KindUnknown
	best := 0
	total := 0
	for kind, n := range st.kinds {
		total += n
		if n > best || (n == best && kind < majority) {
			best = n
			majority = kind
		}
	}

	var conflict *TypeConflict
	if len(st.kinds) > 1 {
		minority := make(map[model.FieldKind]int, len(st.kinds)-1)
		for kind, n := range st.kinds {
			if kind != majority {
				minority[kind] = n
			}
		}
		conflict = &TypeConflict{Field: path, Majority: majority, Minority: minority}
	}

	// Date promotion: at least 80% of string values look like dates.
	if majority == model.KindString && st.strings > 0 && st.dateLike*5 >= st.strings*4 {
		majority = model.KindDate
	}
	return majority, conflict
}

// classify maps a field to its UI grouping label.
func classify(name string, kind model.FieldKind) string {
	lower := strings.ToLower(name)

	if kind == model.KindDate || strings.Contains(lower, "date") || strings.HasSuffix(lower, "_at") {
		return GroupDate
	}
	if strings.HasSuffix(lower, "id") || strings.HasSuffix(lower, "_ids") ||
		strings.Contains(lower, "identifier") || strings.Contains(lower, "registry_number") {
		return GroupIdentifiers
	}

	switch {
	case containsAny(lower, "journal", "doi", "pmid", "abstract", "authors", "publication", "issue", "volume", "citation"):
		return GroupPublication
	case containsAny(lower, "phase", "enrollment", "sponsor", "intervention", "arm", "recruit", "eligibility", "trial", "condition", "status"):
		return GroupTrial
	case containsAny(lower, "reaction", "seriousness", "outcome", "drug", "dose", "report", "patient"):
		return GroupAdverseEvent
	case containsAny(lower, "forum", "thread", "upvote", "comment", "reply", "user", "post"):
		return GroupCommunity
	}
	return GroupOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
