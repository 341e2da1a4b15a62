package fetch

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/cliniscope/cliniscope/pkg/model"
)

// baseKey hashes the parts of a query that select and shape the result set:
// free text, categories, the condition tree, facets and projection. Sort and
// pagination are excluded so page and order variants share cached data.
func baseKey(q model.Query) uint64 {
	h := xxhash.New()

	writeField(h, "t", q.FreeText)
	writeSorted(h, "c", q.SourceCategories)
	if q.Conditions != nil {
		// Struct marshaling is deterministic, so equal trees hash equal.
		b, err := json.Marshal(q.Conditions)
		if err == nil {
			writeField(h, "f", string(b))
		}
	}
	writeSorted(h, "fc", q.Facets)
	writeSorted(h, "r", q.ReturnFields)

	return h.Sum64()
}

// sortKey derives the per-ordering sub-key from a base key.
func sortKey(base uint64, s *model.Sort) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], base)
	h.Write(buf[:])
	if s != nil {
		writeField(h, "s", s.Field)
		writeField(h, "d", s.Direction)
	}
	return h.Sum64()
}

// requestKey identifies one exact page request under a sort key. Used for
// in-flight coalescing and prefetched pages.
func requestKey(skey uint64, page model.Page) uint64 {
	h := xxhash.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], skey)
	h.Write(buf[:])
	writeField(h, "o", strconv.Itoa(page.Offset))
	writeField(h, "l", strconv.Itoa(page.Limit))
	return h.Sum64()
}

func writeField(w io.Writer, tag, value string) {
	io.WriteString(w, tag)
	io.WriteString(w, "=")
	io.WriteString(w, value)
	io.WriteString(w, ";")
}

func writeSorted(w io.Writer, tag string, values []string) {
	if len(values) == 0 {
		return
	}
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	for _, v := range sorted {
		writeField(w, tag, v)
	}
}
