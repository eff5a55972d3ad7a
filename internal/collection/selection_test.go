package collection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	v := New(itemSchema())
	v.SetSource([]item{{name: "c"}, {name: "a"}, {name: "b"}})

	calls := 0
	v.Subscribe(func(State) { calls++ })

	v.Select("b", true)
	v.Select("c", true)
	v.Select("ghost", true)
	require.Equal(t, 2, calls)
	require.Equal(t, 2, v.SelectedCount())
	require.Equal(t, []string{"c", "b"}, v.Selected())
	require.True(t, v.IsSelected("b"))
	require.False(t, v.IsSelected("ghost"))

	// Selecting twice changes nothing.
	v.Select("b", true)
	require.Equal(t, 2, calls)

	v.Select("b", false)
	require.Equal(t, []string{"c"}, v.Selected())

	v.ClearSelection()
	require.Nil(t, v.Selected())
	require.Zero(t, v.SelectedCount())
}

func TestSelectionSurvivesViewChanges(t *testing.T) {
	t.Parallel()

	v := New(itemSchema())
	v.SetSource(numbered(30, 5))
	v.Select("row02", true)
	v.Select("row20", true)

	v.SetFilterText("x")
	v.SetSortKey("v")
	v.SetPageSize(AllRows)
	require.Equal(t, []string{"row02", "row20"}, v.Selected())
}

func TestSetSourcePrunesSelection(t *testing.T) {
	t.Parallel()

	v := New(itemSchema())
	v.SetSource([]item{{name: "a"}, {name: "b"}, {name: "c"}})
	v.Select("a", true)
	v.Select("c", true)

	v.SetSource([]item{{name: "c"}, {name: "d"}})
	require.Equal(t, []string{"c"}, v.Selected())
}

func TestSelectPage(t *testing.T) {
	t.Parallel()

	v := New(itemSchema())
	v.SetSource(numbered(25, 0))
	v.SetPageSize(10)
	v.SetPage(1)

	v.SelectPage(true)
	require.Equal(t, 10, v.SelectedCount())
	require.True(t, v.IsSelected("row11"))
	require.True(t, v.IsSelected("row20"))
	require.False(t, v.IsSelected("row21"))

	v.SetPage(2)
	v.SelectPage(true)
	require.Equal(t, 15, v.SelectedCount())

	v.SelectPage(false)
	require.Equal(t, 10, v.SelectedCount())
}

func TestSelectWithoutKey(t *testing.T) {
	t.Parallel()

	s := itemSchema()
	s.Key = nil
	v := New(s)
	v.SetSource([]item{{name: "a"}})
	v.Select("a", true)
	v.SelectPage(true)
	require.Zero(t, v.SelectedCount())
	require.Nil(t, v.Selected())
}
