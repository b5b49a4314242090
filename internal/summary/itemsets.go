package summary

import (
	"slices"
	"strconv"
	"strings"
)

// itemset is a sorted set of encoded attribute ids.
type itemset []int

func (s itemset) key() string {
	var b strings.Builder
	for i, v := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// containedIn reports whether every item of s is in the sorted transaction t.
func (s itemset) containedIn(t []int) bool {
	j := 0
	for _, v := range s {
		for j < len(t) && t[j] < v {
			j++
		}
		if j == len(t) || t[j] != v {
			return false
		}
		j++
	}
	return true
}

// isSubsetOf reports whether s is a proper subset of o.
func (s itemset) isSubsetOf(o itemset) bool {
	return len(s) < len(o) && s.containedIn(o)
}

type frequent struct {
	items itemset
	count int
}

// mineFrequent runs Apriori over transactions and returns every itemset of
// at most maxSize items present in at least minCount transactions, in
// order of size then items. Transactions must be sorted.
func mineFrequent(transactions [][]int, minCount, maxSize int) []frequent {
	counts := make(map[int]int)
	for _, t := range transactions {
		for _, v := range t {
			counts[v]++
		}
	}
	var level []frequent
	for v, c := range counts {
		if c >= minCount {
			level = append(level, frequent{items: itemset{v}, count: c})
		}
	}
	slices.SortFunc(level, func(a, b frequent) int { return slices.Compare(a.items, b.items) })

	var all []frequent
	for size := 1; len(level) > 0; size++ {
		all = append(all, level...)
		if size == maxSize {
			break
		}
		level = nextLevel(level, transactions, minCount)
	}
	return all
}

// nextLevel joins itemsets sharing all but their last item, prunes
// candidates with an infrequent subset and counts the survivors.
func nextLevel(prev []frequent, transactions [][]int, minCount int) []frequent {
	known := make(map[string]bool, len(prev))
	for _, f := range prev {
		known[f.items.key()] = true
	}

	var out []frequent
	for i := 0; i < len(prev); i++ {
		a := prev[i].items
		for j := i + 1; j < len(prev); j++ {
			b := prev[j].items
			n := len(a)
			if !slices.Equal(a[:n-1], b[:n-1]) {
				break
			}
			cand := make(itemset, n+1)
			copy(cand, a)
			cand[n] = b[n-1]
			if !allSubsetsKnown(cand, known) {
				continue
			}
			var c int
			for _, t := range transactions {
				if cand.containedIn(t) {
					c++
				}
			}
			if c >= minCount {
				out = append(out, frequent{items: cand, count: c})
			}
		}
	}
	return out
}

func allSubsetsKnown(cand itemset, known map[string]bool) bool {
	sub := make(itemset, 0, len(cand)-1)
	for skip := range cand {
		sub = sub[:0]
		for i, v := range cand {
			if i != skip {
				sub = append(sub, v)
			}
		}
		if !known[sub.key()] {
			return false
		}
	}
	return true
}
