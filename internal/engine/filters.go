package engine

import (
	"strings"

	"github.com/vaheed/fresco/pkg/types"
)

// filterOwned drops items the user currently holds. Dropped inventory
// entries do not count as owned, so removed items can be recommended again.
func filterOwned(p Profile, catalog map[string]types.Item, scores map[string]float64) {
	for _, id := range p.Owned {
		delete(scores, id)
	}
}

// filterLocale drops items available in none of the user's languages. Codes
// compare on the language part, so "en" matches "en-us". Users or items
// without locale data pass unfiltered.
func filterLocale(p Profile, catalog map[string]types.Item, scores map[string]float64) {
	if len(p.User.Locales) == 0 {
		return
	}
	want := make(map[string]bool, len(p.User.Locales))
	for _, code := range p.User.Locales {
		want[language(code)] = true
	}
	for id := range scores {
		it, ok := catalog[id]
		if !ok || len(it.Locales) == 0 {
			continue
		}
		match := false
		for _, code := range it.Locales {
			if want[language(code)] {
				match = true
				break
			}
		}
		if !match {
			delete(scores, id)
		}
	}
}

func language(code string) string {
	if i := strings.IndexByte(code, '-'); i >= 0 {
		return code[:i]
	}
	return code
}
