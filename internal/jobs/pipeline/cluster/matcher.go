package cluster

// Matcher scores how well an item's keywords fit a topic's keywords, in [0,1].
type Matcher interface {
	Similarity(item, topic []string) float64
}

// Jaccard is |A∩B| / |A∪B| over keyword sets.
type Jaccard struct{}

func (Jaccard) Similarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if seen[w] {
			continue
		}
		seen[w] = true
		if set[w] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
