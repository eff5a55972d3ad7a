package collection

import (
	"sync"

	"golang.org/x/text/cases"
)

// A cases.Caser keeps state between calls, so each goroutine borrows its own.
var folders = sync.Pool{
	New: func() any {
		c := cases.Fold()
		return &c
	},
}

// fold maps s to its Unicode case folding. Filtering and case-insensitive
// sorting both compare folded strings.
func fold(s string) string {
	c := folders.Get().(*cases.Caser)
	out := c.String(s)
	folders.Put(c)
	return out
}
