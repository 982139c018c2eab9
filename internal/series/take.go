package series

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

type typedBuilder[V any] interface {
	Append(v V)
	AppendNull()
	Reserve(n int)
	NewArray() arrow.Array
	Release()
}

// TakeArray returns a new array holding arr[indices[0]], arr[indices[1]], ...
// Nulls are carried over. Every index must be within bounds.
func TakeArray(arr arrow.Array, indices []int, mem memory.Allocator) (arrow.Array, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	for _, idx := range indices {
		if idx < 0 || idx >= arr.Len() {
			return nil, fmt.Errorf("index %d out of bounds [0, %d)", idx, arr.Len())
		}
	}

	switch typed := arr.(type) {
	case *array.String:
		return takeTyped[string](array.NewStringBuilder(mem), typed, indices, typed.Value), nil
	case *array.Int64:
		return takeTyped[int64](array.NewInt64Builder(mem), typed, indices, typed.Value), nil
	case *array.Int32:
		return takeTyped[int32](array.NewInt32Builder(mem), typed, indices, typed.Value), nil
	case *array.Float64:
		return takeTyped[float64](array.NewFloat64Builder(mem), typed, indices, typed.Value), nil
	case *array.Float32:
		return takeTyped[float32](array.NewFloat32Builder(mem), typed, indices, typed.Value), nil
	case *array.Boolean:
		return takeTyped[bool](array.NewBooleanBuilder(mem), typed, indices, typed.Value), nil
	case *array.Date32:
		return takeTyped[arrow.Date32](array.NewDate32Builder(mem), typed, indices, typed.Value), nil
	default:
		return nil, fmt.Errorf("unsupported array type: %s", arr.DataType())
	}
}

func takeTyped[V any](b typedBuilder[V], src arrow.Array, indices []int, value func(int) V) arrow.Array {
	defer b.Release()
	b.Reserve(len(indices))
	for _, idx := range indices {
		if src.IsNull(idx) {
			b.AppendNull()
			continue
		}
		b.Append(value(idx))
	}
	return b.NewArray()
}

// EmptyArray returns a zero-length array of the given type.
func EmptyArray(dt arrow.DataType, mem memory.Allocator) arrow.Array {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	return b.NewArray()
}
