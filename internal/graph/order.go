// SPDX-License-Identifier: MPL-2.0

package graph

import "github.com/invowk/weld/internal/dag"

// LoadOrder returns every unit of b such that each comes after the units it
// uses through ordered edges. A cycle yields a *dag.CycleError.
func LoadOrder(b *Bundle) ([]*Unit, error) {
	g := dag.New(func(k UnitKey) string {
		return b.units[k].Name()
	})
	for _, u := range b.order {
		g.AddNode(u.Key())
	}
	for _, u := range b.order {
		for _, e := range u.Uses() {
			if e.Unordered {
				g.AddUnorderedEdge(u.Key(), e.Target.Key())
			} else {
				g.AddEdge(u.Key(), e.Target.Key())
			}
		}
	}
	keys, err := g.Order()
	if err != nil {
		return nil, err
	}
	out := make([]*Unit, len(keys))
	for i, k := range keys {
		out[i] = b.units[k]
	}
	return out, nil
}
