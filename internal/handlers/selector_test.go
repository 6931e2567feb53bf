package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hemiaoio/android-auto-test/internal/strategy"
)

func tree() []*strategy.Element {
	return []*strategy.Element{
		{
			ID: "root", ClassName: "FrameLayout",
			Children: []*strategy.Element{
				{ID: "btn1", ClassName: "Button", ResourceID: "btn_x", Text: "Go", Clickable: true},
				{ID: "btn2", ClassName: "Button", ResourceID: "btn_y", Text: "Cancel", Clickable: true},
				{ID: "group", ClassName: "LinearLayout", Children: []*strategy.Element{
					{ID: "nested", ClassName: "TextView", Text: "nested text"},
				}},
			},
		},
	}
}

func TestFindAllEmptySelectorMatchesEverything(t *testing.T) {
	roots := tree()
	all := FindAll(roots, &Selector{})
	assert.Len(t, all, 5) // root + btn1 + btn2 + group + nested
}

func TestFindAllByResourceID(t *testing.T) {
	roots := tree()
	all := FindAll(roots, &Selector{ResourceID: "btn_x"})
	assert.Len(t, all, 1)
	assert.Equal(t, "btn1", all[0].ID)
}

func TestFindAllMissSelector(t *testing.T) {
	roots := tree()
	_, found := FindFirst(roots, &Selector{ResourceID: "does_not_exist"})
	assert.False(t, found)
}

func TestFindAllByTextContains(t *testing.T) {
	roots := tree()
	all := FindAll(roots, &Selector{Text: &StringMatcher{Value: "nest", Mode: MatchContains}})
	assert.Len(t, all, 1)
	assert.Equal(t, "nested", all[0].ID)
}

func TestFindAllANDCombinesFields(t *testing.T) {
	roots := tree()
	all := FindAll(roots, &Selector{ClassName: "Button", Text: &StringMatcher{Value: "Go"}})
	assert.Len(t, all, 1)
	assert.Equal(t, "btn1", all[0].ID)
}

func TestFindAllPreOrderOnEmptyTreeReturnsNothing(t *testing.T) {
	all := FindAll(nil, &Selector{})
	assert.Empty(t, all)
}

func TestFindAllChildSelector(t *testing.T) {
	roots := tree()
	all := FindAll(roots, &Selector{ClassName: "LinearLayout", Child: &Selector{Text: &StringMatcher{Value: "nested text"}}})
	assert.Len(t, all, 1)
	assert.Equal(t, "group", all[0].ID)
}

func TestFindAllParentSelector(t *testing.T) {
	roots := tree()
	all := FindAll(roots, &Selector{ClassName: "TextView", Parent: &Selector{ClassName: "LinearLayout"}})
	assert.Len(t, all, 1)
	assert.Equal(t, "nested", all[0].ID)
}
