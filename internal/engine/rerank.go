package engine

import "github.com/vaheed/fresco/pkg/types"

// rerankLookahead is how far ahead the diversity pass may pull an item to
// avoid two consecutive picks with the same primary genre.
const rerankLookahead = 5

// rerankGenreDiversity reorders the window so consecutive items differ in
// primary genre where possible. The pass is stable: when nothing within the
// lookahead has a different genre, the original order stands.
func rerankGenreDiversity(p Profile, catalog map[string]types.Item, ranked []string) []string {
	if len(ranked) < 3 {
		return ranked
	}
	out := make([]string, 0, len(ranked))
	rest := append([]string(nil), ranked...)
	last := ""
	for len(rest) > 0 {
		pick := 0
		if last != "" {
			for i := 0; i < len(rest) && i < rerankLookahead; i++ {
				if primaryGenre(catalog[rest[i]]) != last {
					pick = i
					break
				}
			}
		}
		id := rest[pick]
		out = append(out, id)
		last = primaryGenre(catalog[id])
		rest = append(rest[:pick], rest[pick+1:]...)
	}
	return out
}

func primaryGenre(it types.Item) string {
	if len(it.Genres) == 0 {
		return ""
	}
	return it.Genres[0]
}
