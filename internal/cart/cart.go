// Package cart computes the synthetic two-dimensional cartesian topology
// from world size alone. The functions here are pure; no topology state is
// ever persisted, and requested dimensionalities above two are ignored by
// callers.
package cart

import "fmt"

// MaxDims is the fixed dimensionality of the grid.
const MaxDims = 2

// Dims arranges n ranks as a rows-by-cols grid. Rows is the largest integer
// not above sqrt(n) that divides n evenly, so 6 ranks form a 2x3 grid and a
// prime world degenerates to 1xN. Both dimensions are periodic.
func Dims(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	rows = 1
	for r := 1; r*r <= n; r++ {
		if n%r == 0 {
			rows = r
		}
	}
	return rows, n / rows
}

// CoordsOf maps a rank to its (row, col) position, row-major.
func CoordsOf(rank, n int) (coords [MaxDims]int, err error) {
	if rank < 0 || rank >= n {
		return coords, fmt.Errorf("rank %d outside world of size %d", rank, n)
	}
	_, cols := Dims(n)
	coords[0] = rank / cols
	coords[1] = rank % cols
	return coords, nil
}

// RankOf maps grid coordinates back to a rank, row-major.
func RankOf(coords []int, n int) (int, error) {
	if len(coords) < MaxDims {
		return 0, fmt.Errorf("need %d coordinates, got %d", MaxDims, len(coords))
	}
	rows, cols := Dims(n)
	row, col := coords[0], coords[1]
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return 0, fmt.Errorf("coordinates (%d, %d) outside %dx%d grid", row, col, rows, cols)
	}
	return row*cols + col, nil
}

// Shift computes, for a rank and a displacement along one grid direction,
// the rank that sends to it and the rank it sends to. Both dimensions wrap.
func Shift(rank, direction, disp, n int) (source, dest int, err error) {
	if direction < 0 || direction >= MaxDims {
		return 0, 0, fmt.Errorf("shift direction %d outside %d-dimensional grid", direction, MaxDims)
	}
	coords, err := CoordsOf(rank, n)
	if err != nil {
		return 0, 0, err
	}
	rows, cols := Dims(n)
	extent := [MaxDims]int{rows, cols}[direction]

	wrap := func(v int) int {
		v %= extent
		if v < 0 {
			v += extent
		}
		return v
	}

	from := coords
	from[direction] = wrap(coords[direction] - disp)
	to := coords
	to[direction] = wrap(coords[direction] + disp)

	source, err = RankOf(from[:], n)
	if err != nil {
		return 0, 0, err
	}
	dest, err = RankOf(to[:], n)
	if err != nil {
		return 0, 0, err
	}
	return source, dest, nil
}
