package pivot

import (
	"fmt"
	"strings"
)

// Agg is an aggregation function applied to the value column of each cell.
type Agg int

const (
	// AggSum totals the non-null values.
	AggSum Agg = iota
	// AggMean averages the non-null values.
	AggMean
	// AggCount counts the rows, regardless of nulls.
	AggCount
	// AggMax takes the largest non-null value.
	AggMax
	// AggMin takes the smallest non-null value.
	AggMin
)

var aggNames = [...]string{
	AggSum:   "sum",
	AggMean:  "mean",
	AggCount: "count",
	AggMax:   "max",
	AggMin:   "min",
}

// Aggs lists every aggregation in display order.
func Aggs() []Agg {
	return []Agg{AggSum, AggMean, AggCount, AggMax, AggMin}
}

// String returns the lowercase name used by controls and config files.
func (a Agg) String() string {
	if a >= 0 && int(a) < len(aggNames) {
		return aggNames[a]
	}
	return fmt.Sprintf("unknown_agg(%d)", int(a))
}

// NeedsNumeric reports whether the aggregation does arithmetic on values.
func (a Agg) NeedsNumeric() bool {
	return a != AggCount
}

// ParseAgg maps a name such as "sum" or "MEAN" to its Agg.
func ParseAgg(name string) (Agg, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range aggNames {
		if n == key {
			return Agg(i), nil
		}
	}
	return 0, fmt.Errorf("unknown aggregation %q (want one of sum, mean, count, max, min)", name)
}

// MarshalText implements encoding.TextMarshaler.
func (a Agg) MarshalText() ([]byte, error) {
	if a < 0 || int(a) >= len(aggNames) {
		return nil, fmt.Errorf("unknown aggregation %d", int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Agg) UnmarshalText(text []byte) error {
	parsed, err := ParseAgg(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
