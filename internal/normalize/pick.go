package normalize

import (
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/xrash/smetrics"
)

const similarityCacheSize = 8192

var similarityCache, _ = lru.New[[2]string, float64](similarityCacheSize)

// Similarity is the normalised Levenshtein similarity of two folded
// strings, within [0, 1].
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a > b {
		a, b = b, a
	}
	key := [2]string{a, b}
	if v, ok := similarityCache.Get(key); ok {
		return v
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	sim := 0.0
	if longest > 0 {
		dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
		sim = 1 - float64(dist)/float64(longest)
		if sim < 0 {
			sim = 0
		}
	}
	similarityCache.Add(key, sim)
	return sim
}

// PickNames selects up to limit representative names: the most central
// name first, then repeatedly the name least similar to those already
// picked.
func PickNames(names []string, limit int) []string {
	folded := make([]string, 0, len(names))
	original := make(map[string]string, len(names))
	for _, name := range names {
		f := Fold(name)
		if f == "" {
			continue
		}
		if _, ok := original[f]; !ok {
			original[f] = name
			folded = append(folded, f)
		}
	}
	sort.Strings(folded)
	if len(folded) <= limit {
		out := make([]string, len(folded))
		for i, f := range folded {
			out[i] = original[f]
		}
		return out
	}

	centroid, best := 0, -1.0
	for i, a := range folded {
		total := 0.0
		for j, b := range folded {
			if i != j {
				total += Similarity(a, b)
			}
		}
		if total > best {
			centroid, best = i, total
		}
	}

	picked := []string{folded[centroid]}
	used := map[int]bool{centroid: true}
	for len(picked) < limit {
		next, lowest := -1, 2.0
		for i, cand := range folded {
			if used[i] {
				continue
			}
			closest := 0.0
			for _, p := range picked {
				if s := Similarity(cand, p); s > closest {
					closest = s
				}
			}
			if closest < lowest {
				next, lowest = i, closest
			}
		}
		if next < 0 {
			break
		}
		used[next] = true
		picked = append(picked, folded[next])
	}

	out := make([]string, len(picked))
	for i, f := range picked {
		out[i] = original[f]
	}
	return out
}
