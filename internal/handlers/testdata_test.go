package handlers

import "github.com/hemiaoio/android-auto-test/internal/strategy"

func oneButtonTree() []*strategy.Element {
	return []*strategy.Element{
		{
			ID:         "root",
			ClassName:  "android.widget.FrameLayout",
			Bounds:     strategy.Rect{Left: 0, Top: 0, Right: 100, Bottom: 100},
			ResourceID: "btn_x",
			Text:       "Go",
			Enabled:    true,
			Clickable:  true,
		},
	}
}
