package collection

import (
	"cmp"
	"strings"
	"time"
)

// SortField is a named ordering over rows. Compare returns a negative number
// when a sorts before b, zero when they tie and a positive number otherwise.
type SortField[T any] struct {
	Key     string
	Compare func(a, b T) int
}

// Ordered declares a sort key over any naturally ordered projection: numbers
// compare numerically, strings lexicographically.
func Ordered[T any, V cmp.Ordered](key string, project func(T) V) SortField[T] {
	return SortField[T]{
		Key: key,
		Compare: func(a, b T) int {
			return cmp.Compare(project(a), project(b))
		},
	}
}

// Time declares a chronological sort key. Zero times sort first.
func Time[T any](key string, project func(T) time.Time) SortField[T] {
	return SortField[T]{
		Key: key,
		Compare: func(a, b T) int {
			return project(a).Compare(project(b))
		},
	}
}

// Bool declares a sort key where false sorts before true.
func Bool[T any](key string, project func(T) bool) SortField[T] {
	return SortField[T]{
		Key: key,
		Compare: func(a, b T) int {
			x, y := project(a), project(b)
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		},
	}
}

// Folded declares a case-insensitive string sort key. Values equal under
// case folding fall back to a byte-wise comparison so "a" and "A" still have
// a fixed relative order.
func Folded[T any](key string, project func(T) string) SortField[T] {
	return SortField[T]{
		Key: key,
		Compare: func(a, b T) int {
			x, y := project(a), project(b)
			if c := strings.Compare(fold(x), fold(y)); c != 0 {
				return c
			}
			return strings.Compare(x, y)
		},
	}
}

// Func declares a sort key with a caller-supplied comparison.
func Func[T any](key string, compare func(a, b T) int) SortField[T] {
	return SortField[T]{Key: key, Compare: compare}
}

// TextField yields the values of one filterable column for a row.
type TextField[T any] struct {
	values func(T) []string
}

// Text declares a single-valued filterable column.
func Text[T any](project func(T) string) TextField[T] {
	return TextField[T]{values: func(row T) []string {
		return []string{project(row)}
	}}
}

// Texts declares a multi-valued filterable column such as image tags or
// label values.
func Texts[T any](project func(T) []string) TextField[T] {
	return TextField[T]{values: project}
}

// Schema declares how a View reads its rows. It is resolved once by New.
type Schema[T any] struct {
	// Key identifies a row for selection. Nil disables selection.
	Key func(T) string

	Sortable   []SortField[T]
	Filterable []TextField[T]

	// DefaultSort names the initial sort key. Empty or unknown falls back to
	// the first sortable field.
	DefaultSort       string
	DefaultDescending bool

	// DefaultPageSize is the initial page size and the value negative sizes
	// normalize to. Zero means DefaultPageSize.
	DefaultPageSize int
}
