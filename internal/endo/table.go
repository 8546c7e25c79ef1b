// Package endo holds the Endo conversion table: dissolve yields per
// (rarity, rank) and the per-rarity fusion cost used to rank a mod up.
package endo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Table maps rarity and rank to Endo values. Rarity keys are lower-case.
type Table struct {
	yields     map[string]map[int]int
	fusionBase map[string]int
}

// NewTable builds a table from configuration maps keyed by rarity and
// stringified rank.
func NewTable(yields map[string]map[string]int, fusionBase map[string]int) (*Table, error) {
	t := &Table{
		yields:     make(map[string]map[int]int, len(yields)),
		fusionBase: make(map[string]int, len(fusionBase)),
	}

	for rarity, ranks := range yields {
		key := normalize(rarity)
		if t.yields[key] == nil {
			t.yields[key] = make(map[int]int, len(ranks))
		}
		for rankKey, value := range ranks {
			rank, err := strconv.Atoi(strings.TrimSpace(rankKey))
			if err != nil || rank < 0 {
				return nil, fmt.Errorf("endo table %s: invalid rank %q", rarity, rankKey)
			}
			t.yields[key][rank] = value
		}
	}

	for rarity, base := range fusionBase {
		t.fusionBase[normalize(rarity)] = base
	}

	return t, nil
}

// Yield returns the Endo obtained by dissolving an item of rarity at rank.
// A missing entry is reported as false and means the yield is unknown.
func (t *Table) Yield(rarity string, rank int) (int, bool) {
	ranks, ok := t.yields[normalize(rarity)]
	if !ok {
		return 0, false
	}
	v, ok := ranks[rank]
	return v, ok
}

// FusionCostToMax returns the Endo needed to take a mod from rank 0 to
// maxRank: the sum of base*2^r for r in [0, maxRank). A mod without ranks
// costs nothing. Unknown rarities report false.
func (t *Table) FusionCostToMax(rarity string, maxRank int) (int, bool) {
	if maxRank <= 0 {
		return 0, true
	}
	base, ok := t.fusionBase[normalize(rarity)]
	if !ok {
		return 0, false
	}
	return base * ((1 << maxRank) - 1), true
}

// Rarities returns the rarities that have yield entries, sorted.
func (t *Table) Rarities() []string {
	out := make([]string, 0, len(t.yields))
	for r := range t.yields {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func normalize(rarity string) string {
	return strings.ToLower(strings.TrimSpace(rarity))
}
