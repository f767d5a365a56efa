package tracking

import "math"

// forbiddenCost marks detection/track pairs that must never be assigned.
// It is large relative to any normalized or pixel distance but small enough
// that potentials built from it keep sub-pixel precision in float64.
const forbiddenCost = 1e9

// assignMinCost solves the rectangular assignment problem for an n×m cost
// matrix with the Kuhn–Munkres algorithm (Jonker–Volgenant potentials).
// It returns assignment[i] = column for row i, or -1 when row i is unassigned
// or only reachable through a forbidden cell.
func assignMinCost(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	if m == 0 {
		return result
	}

	dim := max(n, m)
	at := func(i, j int) float64 {
		if i < n && j < m {
			return cost[i][j]
		}
		return forbiddenCost
	}

	// 1-indexed; column 0 is the virtual start of each augmenting path.
	const inf = math.MaxFloat64 / 2
	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	owner := make([]int, dim+1) // owner[j] = row holding column j
	prev := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for row := 1; row <= dim; row++ {
		owner[0] = row
		col := 0
		for j := range minv {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[col] = true
			i0 := owner[col]
			delta := inf
			next := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				reduced := at(i0-1, j-1) - u[i0] - v[j]
				if reduced < minv[j] {
					minv[j] = reduced
					prev[j] = col
				}
				if minv[j] < delta {
					delta = minv[j]
					next = j
				}
			}
			if next < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			col = next
			if owner[col] == 0 {
				break
			}
		}

		for col != 0 {
			owner[col] = owner[prev[col]]
			col = prev[col]
		}
	}

	for j := 1; j <= dim; j++ {
		i := owner[j] - 1
		if i < 0 || i >= n || j-1 >= m {
			continue
		}
		if cost[i][j-1] < forbiddenCost {
			result[i] = j - 1
		}
	}
	return result
}
