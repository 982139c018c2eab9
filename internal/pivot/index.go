package pivot

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	xxhash "github.com/cespare/xxhash/v2"
	"github.com/paveg/pivotgrid/internal/series"
)

// nullLabel names a null key component in column labels.
const nullLabel = "null"

type tupleEntry struct {
	key     string
	ordinal int
}

// tupleIndex numbers key tuples in the order they are first interned.
type tupleIndex struct {
	buckets map[uint64][]tupleEntry
	size    int
}

func newTupleIndex() *tupleIndex {
	return &tupleIndex{buckets: make(map[uint64][]tupleEntry)}
}

// intern returns the ordinal of key, assigning the next one if key is new.
func (ti *tupleIndex) intern(key string) (ordinal int, added bool) {
	hash := xxhash.Sum64String(key)
	for _, e := range ti.buckets[hash] {
		if e.key == key {
			return e.ordinal, false
		}
	}
	ordinal = ti.size
	ti.size++
	ti.buckets[hash] = append(ti.buckets[hash], tupleEntry{key: key, ordinal: ordinal})
	return ordinal, true
}

func (ti *tupleIndex) len() int {
	return ti.size
}

// encodeKey builds an unambiguous key for the values of arrs at row.
// Each component is length-prefixed so separators inside values cannot collide.
func encodeKey(sb *strings.Builder, arrs []arrow.Array, row int) string {
	sb.Reset()
	for _, arr := range arrs {
		if arr.IsNull(row) {
			sb.WriteString("~;")
			continue
		}
		v := series.FormatValue(arr, row)
		sb.WriteString(strconv.Itoa(len(v)))
		sb.WriteByte(':')
		sb.WriteString(v)
	}
	return sb.String()
}

// labelFor renders the column-key tuple at row as an output column name.
func labelFor(arrs []arrow.Array, row int) string {
	parts := make([]string, len(arrs))
	for i, arr := range arrs {
		if arr.IsNull(row) {
			parts[i] = nullLabel
			continue
		}
		parts[i] = series.FormatValue(arr, row)
	}
	return strings.Join(parts, "_")
}

// uniqueName returns name, or name_2, name_3, ... if it is already taken,
// and records the result as taken.
func uniqueName(taken map[string]struct{}, name string) string {
	candidate := name
	for n := 2; ; n++ {
		if _, exists := taken[candidate]; !exists {
			break
		}
		candidate = name + "_" + strconv.Itoa(n)
	}
	taken[candidate] = struct{}{}
	return candidate
}
