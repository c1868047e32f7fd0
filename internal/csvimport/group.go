package csvimport

import (
	"sort"
	"strconv"
	"strings"
)

// Group merges rows that share a case-insensitive (name, description) key.
// Quantities are summed and the first non-empty SKU wins. The merged row keeps
// the first source row's raw columns with quantity (and SKU, when it was blank)
// rewritten to the merged values. Output follows first appearance.
func Group(rows []Row) []Row {
	index := make(map[string]int, len(rows))
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		key := GroupKey(r.Name, r.Description)
		i, seen := index[key]
		if !seen {
			g := r
			g.Raw = copyRaw(r.Raw)
			g.GroupKey = key
			if g.SourceRows == 0 {
				g.SourceRows = 1
			}
			index[key] = len(out)
			out = append(out, g)
			continue
		}
		g := &out[i]
		g.Quantity += r.Quantity
		g.SourceRows++
		if g.SKU == "" && r.SKU != "" {
			g.SKU = r.SKU
		}
	}
	for i := range out {
		g := &out[i]
		cols := g.cols
		if cols == (columns{}) {
			cols = columnsOf(g.Raw)
		}
		if _, ok := g.Raw[cols.quantity]; ok && cols.quantity != "" {
			g.Raw[cols.quantity] = strconv.Itoa(g.Quantity)
		}
		if v, ok := g.Raw[cols.sku]; ok && cols.sku != "" && strings.TrimSpace(v) == "" {
			g.Raw[cols.sku] = g.SKU
		}
	}
	return out
}

// SortForReview orders rows for manual review: SKU-less rows first, then by
// quantity descending, then by name ascending. Remaining ties fall back to
// description and group key so the order is total.
func SortForReview(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if (a.SKU == "") != (b.SKU == "") {
			return a.SKU == ""
		}
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an != bn {
			return an < bn
		}
		if a.Description != b.Description {
			return a.Description < b.Description
		}
		return a.GroupKey < b.GroupKey
	})
}

func copyRaw(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}
