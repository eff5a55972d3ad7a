// Package collection implements the sortable, filterable, paginated row view
// behind every data table of the console.
//
// A View owns the presentation state of one table (sort key and direction,
// filter text, page size and page) over a source slice that the caller
// replaces wholesale. Derive filters, then stably sorts, then paginates.
// Invalid requests (unknown sort keys, out of range pages) are normalized
// rather than reported.
//
// A View is not safe for concurrent use.
package collection

import (
	"slices"
	"strings"
)

// AllRows is the page size that disables pagination.
const AllRows = 0

// DefaultPageSize is used when a schema does not set one.
const DefaultPageSize = 10

// State is the mutable presentation state of a View.
type State struct {
	SortKey        string `json:"sortKey"`
	SortDescending bool   `json:"sortDescending"`
	FilterText     string `json:"filterText"`
	PageSize       int    `json:"pageSize"` // AllRows disables pagination
	Page           int    `json:"page"`     // zero-indexed
}

// Page is the result of Derive.
type Page[T any] struct {
	Rows      []T   // rows of the current page, in display order
	Total     int   // filtered row count before pagination
	Page      int   // effective zero-indexed page
	PageCount int   // always at least 1
	State     State // state the page was derived from, with the effective page
}

type subscriber struct {
	id int
	fn func(State)
}

// View derives the visible rows of a table from a source collection.
type View[T any] struct {
	key             func(T) string
	sortable        map[string]SortField[T]
	sortOrder       []string
	filterable      []TextField[T]
	defaultPageSize int

	state    State
	source   []T
	index    map[string]int
	selected map[string]struct{}

	subs    []subscriber
	nextSub int
}

// New builds a View from a schema. The initial source is empty.
func New[T any](schema Schema[T]) *View[T] {
	v := &View[T]{
		key:             schema.Key,
		sortable:        make(map[string]SortField[T], len(schema.Sortable)),
		filterable:      slices.Clone(schema.Filterable),
		defaultPageSize: schema.DefaultPageSize,
		index:           map[string]int{},
		selected:        map[string]struct{}{},
	}
	if v.defaultPageSize <= 0 {
		v.defaultPageSize = DefaultPageSize
	}

	for _, f := range schema.Sortable {
		if f.Compare == nil {
			continue
		}
		if _, dup := v.sortable[f.Key]; dup {
			continue
		}
		v.sortable[f.Key] = f
		v.sortOrder = append(v.sortOrder, f.Key)
	}

	v.state.PageSize = v.defaultPageSize
	if _, ok := v.sortable[schema.DefaultSort]; ok {
		v.state.SortKey = schema.DefaultSort
		v.state.SortDescending = schema.DefaultDescending
	} else if len(v.sortOrder) > 0 {
		v.state.SortKey = v.sortOrder[0]
		v.state.SortDescending = schema.DefaultDescending
	}
	return v
}

// State returns the current presentation state.
func (v *View[T]) State() State {
	return v.state
}

// SortKeys returns the declared sort keys in declaration order.
func (v *View[T]) SortKeys() []string {
	return slices.Clone(v.sortOrder)
}

// Len returns the number of source rows.
func (v *View[T]) Len() int {
	return len(v.source)
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription.
func (v *View[T]) Subscribe(fn func(State)) (cancel func()) {
	v.nextSub++
	id := v.nextSub
	v.subs = append(v.subs, subscriber{id: id, fn: fn})
	return func() {
		v.subs = slices.DeleteFunc(v.subs, func(s subscriber) bool { return s.id == id })
	}
}

func (v *View[T]) notify() {
	st := v.state
	for _, s := range slices.Clone(v.subs) {
		s.fn(st)
	}
}

// SetSource replaces the source rows and returns to the first page. The view
// keeps the slice; callers must not modify it afterwards. Selected keys that
// no longer exist are dropped.
func (v *View[T]) SetSource(rows []T) {
	v.source = rows
	v.state.Page = 0

	if v.key != nil {
		v.index = make(map[string]int, len(rows))
		for i, row := range rows {
			k := v.key(row)
			if _, dup := v.index[k]; !dup {
				v.index[k] = i
			}
		}
		for k := range v.selected {
			if _, ok := v.index[k]; !ok {
				delete(v.selected, k)
			}
		}
	}

	v.notify()
}

// SetSortKey orders by key. Selecting the current key flips the direction,
// selecting another key sorts it ascending. Unknown keys are ignored.
func (v *View[T]) SetSortKey(key string) {
	if _, ok := v.sortable[key]; !ok {
		return
	}
	if key == v.state.SortKey {
		v.state.SortDescending = !v.state.SortDescending
	} else {
		v.state.SortKey = key
		v.state.SortDescending = false
	}
	v.notify()
}

// SetFilterText sets the case-insensitive substring filter and returns to the
// first page.
func (v *View[T]) SetFilterText(text string) {
	if text == v.state.FilterText && v.state.Page == 0 {
		return
	}
	v.state.FilterText = text
	v.state.Page = 0
	v.notify()
}

// SetPageSize sets the number of rows per page, or AllRows. Negative sizes
// fall back to the default page size. The page returns to the first one.
func (v *View[T]) SetPageSize(size int) {
	size = v.normalizePageSize(size)
	if size == v.state.PageSize && v.state.Page == 0 {
		return
	}
	v.state.PageSize = size
	v.state.Page = 0
	v.notify()
}

// SetPage moves to page index, clamped to the pages of the filtered rows.
func (v *View[T]) SetPage(index int) {
	index = clampPage(index, pageCount(v.filteredCount(), v.state.PageSize))
	if index == v.state.Page {
		return
	}
	v.state.Page = index
	v.notify()
}

// Restore applies a previously saved state in one step. Fields are
// normalized the same way the individual setters normalize them; an unknown
// sort key keeps the current one.
func (v *View[T]) Restore(st State) {
	if _, ok := v.sortable[st.SortKey]; ok {
		v.state.SortKey = st.SortKey
		v.state.SortDescending = st.SortDescending
	}
	v.state.FilterText = st.FilterText
	v.state.PageSize = v.normalizePageSize(st.PageSize)
	v.state.Page = clampPage(st.Page, pageCount(v.filteredCount(), v.state.PageSize))
	v.notify()
}

func (v *View[T]) normalizePageSize(size int) int {
	if size < 0 {
		return v.defaultPageSize
	}
	return size
}

// Derive returns the current page: the source filtered by the filter text,
// stably sorted by the sort key and cut to the current page.
func (v *View[T]) Derive() Page[T] {
	rows := v.filter()

	if f, ok := v.sortable[v.state.SortKey]; ok {
		compare := f.Compare
		if v.state.SortDescending {
			compare = func(a, b T) int { return f.Compare(b, a) }
		}
		slices.SortStableFunc(rows, compare)
	}

	st := v.state
	pages := pageCount(len(rows), st.PageSize)
	st.Page = clampPage(st.Page, pages)

	start, end := 0, len(rows)
	if st.PageSize != AllRows {
		start = min(st.Page*st.PageSize, len(rows))
		end = min(start+st.PageSize, len(rows))
	}

	return Page[T]{
		Rows:      rows[start:end:end],
		Total:     len(rows),
		Page:      st.Page,
		PageCount: pages,
		State:     st,
	}
}

// filter returns a fresh slice of the rows matching the filter text, in
// source order.
func (v *View[T]) filter() []T {
	if v.state.FilterText == "" {
		return slices.Clone(v.source)
	}
	needle := fold(v.state.FilterText)
	out := make([]T, 0, len(v.source))
	for _, row := range v.source {
		if v.matches(row, needle) {
			out = append(out, row)
		}
	}
	return out
}

func (v *View[T]) filteredCount() int {
	if v.state.FilterText == "" {
		return len(v.source)
	}
	needle := fold(v.state.FilterText)
	n := 0
	for _, row := range v.source {
		if v.matches(row, needle) {
			n++
		}
	}
	return n
}

func (v *View[T]) matches(row T, needle string) bool {
	for _, f := range v.filterable {
		for _, s := range f.values(row) {
			if strings.Contains(fold(s), needle) {
				return true
			}
		}
	}
	return false
}

func pageCount(total, size int) int {
	if size == AllRows || total == 0 {
		return 1
	}
	return (total-1)/size + 1
}

func clampPage(index, pages int) int {
	return max(0, min(index, pages-1))
}
