package domain

import "sort"

// DefaultDistrustAbove is the previous-level majority above which a lone
// survivor at the next level is ignored.
const DefaultDistrustAbove = 2

// FirstCommonAncestor walks the chains level by level from the root and
// returns the deepest taxon a majority of them agree on. A level is rejected
// when its top count is tied, or when it is carried by a single chain while the
// previous level was carried by more than distrustAbove chains.
func FirstCommonAncestor(chains []AncestryChain, distrustAbove int) (int, bool) {
	if len(chains) == 0 {
		return 0, false
	}

	var winners []int
	prevMajor := len(chains)

	for level := 0; ; level++ {
		counts := make(map[int]int)
		for _, chain := range chains {
			if len(chain) < level+1 {
				continue
			}
			if level > 0 && chain[level-1] != winners[level-1] {
				continue
			}
			counts[chain[level]]++
		}
		if len(counts) == 0 {
			break
		}

		top, major := topCandidates(counts)
		if len(top) > 1 || (major == 1 && prevMajor > distrustAbove) {
			break
		}

		winners = append(winners, top[0])
		prevMajor = major
	}

	if len(winners) == 0 {
		return 0, false
	}
	return winners[len(winners)-1], true
}

// topCandidates ranks ids by frequency relative to the previous level and
// returns the group sharing the highest frequency with its absolute count.
func topCandidates(counts map[int]int) ([]int, int) {
	major := 0
	for _, count := range counts {
		if count > major {
			major = count
		}
	}

	top := make([]int, 0, 1)
	for id, count := range counts {
		if count == major {
			top = append(top, id)
		}
	}
	sort.Ints(top)

	return top, major
}

// ExpandChains repeats each taxon's chain by its weight. Taxa with no chain
// are skipped.
func ExpandChains(weights map[int]int, chains map[int]AncestryChain) []AncestryChain {
	ids := make([]int, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	expanded := make([]AncestryChain, 0, len(weights))
	for _, id := range ids {
		chain, ok := chains[id]
		if !ok || len(chain) == 0 {
			continue
		}
		for i := 0; i < weights[id]; i++ {
			expanded = append(expanded, chain)
		}
	}
	return expanded
}
