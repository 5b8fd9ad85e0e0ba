package layout

// Reorder moves the widget with movedID to the position currently held by
// targetID (list splice, not swap) and reassigns every order field to match
// the new list position. Returns the input unchanged when movedID equals
// targetID or either id is absent.
func Reorder(widgets []Widget, movedID, targetID string) []Widget {
	if movedID == targetID {
		return widgets
	}
	from := indexOf(widgets, movedID)
	to := indexOf(widgets, targetID)
	if from < 0 || to < 0 {
		return widgets
	}

	out := cloneWidgets(widgets)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]Widget{moved}, out[to:]...)...)
	for i := range out {
		out[i].Order = i
	}
	return out
}

// ToggleVisibility flips isVisible for the matching id only. Order fields
// are untouched; toggling never reindexes.
func ToggleVisibility(widgets []Widget, id string) []Widget {
	idx := indexOf(widgets, id)
	if idx < 0 {
		return widgets
	}
	out := cloneWidgets(widgets)
	out[idx].IsVisible = !out[idx].IsVisible
	return out
}

func indexOf(widgets []Widget, id string) int {
	for i, w := range widgets {
		if w.ID == id {
			return i
		}
	}
	return -1
}
