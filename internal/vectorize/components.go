package vectorize

import (
	"github.com/terralens/landcover-cli/internal/classify"
	"github.com/terralens/landcover-cli/internal/model"
)

// component is one 4-connected patch of cells sharing a class.
type component struct {
	class model.LandCoverClass
	cells []int
}

// label runs a 4-connectivity flood fill over every classified cell.
// Unclassified cells get label -1 and never join a component. Cells
// are visited in scan order, so component numbering and cell order are
// deterministic.
func label(cr *classify.ClassifiedRaster) ([]int, []component) {
	grid := cr.Grid
	labels := make([]int, grid.Cells())
	for i := range labels {
		labels[i] = -1
	}

	var comps []component
	queue := make([]int, 0, 256)

	for start, cls := range cr.Classes {
		if cls == model.ClassUnclassified || labels[start] != -1 {
			continue
		}

		id := len(comps)
		comp := component{class: cls}

		labels[start] = id
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			comp.cells = append(comp.cells, i)

			row := i / grid.Cols
			col := i % grid.Cols
			for _, n := range [4]struct{ dr, dc int }{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nr, nc := row+n.dr, col+n.dc
				if nr < 0 || nr >= grid.Rows || nc < 0 || nc >= grid.Cols {
					continue
				}
				ni := grid.Index(nr, nc)
				if labels[ni] == -1 && cr.Classes[ni] == cls {
					labels[ni] = id
					queue = append(queue, ni)
				}
			}
		}

		comps = append(comps, comp)
	}
	return labels, comps
}
