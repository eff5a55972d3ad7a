package collection

// Select marks the row with the given key as selected or not. Keys that are
// not in the source are ignored, as is everything when the schema declares
// no row key.
func (v *View[T]) Select(key string, selected bool) {
	if v.key == nil {
		return
	}
	if _, ok := v.index[key]; !ok {
		return
	}
	if v.setSelected(key, selected) {
		v.notify()
	}
}

// SelectPage selects or deselects every row of the current page.
func (v *View[T]) SelectPage(selected bool) {
	if v.key == nil {
		return
	}
	changed := false
	for _, row := range v.Derive().Rows {
		if v.setSelected(v.key(row), selected) {
			changed = true
		}
	}
	if changed {
		v.notify()
	}
}

// ClearSelection deselects every row.
func (v *View[T]) ClearSelection() {
	if len(v.selected) == 0 {
		return
	}
	clear(v.selected)
	v.notify()
}

// Selected returns the selected keys in source order.
func (v *View[T]) Selected() []string {
	if len(v.selected) == 0 {
		return nil
	}
	keys := make([]string, 0, len(v.selected))
	for i, row := range v.source {
		k := v.key(row)
		if _, ok := v.selected[k]; ok && v.index[k] == i {
			keys = append(keys, k)
		}
	}
	return keys
}

// SelectedCount returns the number of selected rows.
func (v *View[T]) SelectedCount() int {
	return len(v.selected)
}

// IsSelected reports whether the row with the given key is selected.
func (v *View[T]) IsSelected(key string) bool {
	_, ok := v.selected[key]
	return ok
}

func (v *View[T]) setSelected(key string, selected bool) bool {
	_, was := v.selected[key]
	if selected == was {
		return false
	}
	if selected {
		v.selected[key] = struct{}{}
	} else {
		delete(v.selected, key)
	}
	return true
}
