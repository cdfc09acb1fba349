package vrp

import "math"

// Euclidean is the straight-line distance between two points.
func Euclidean(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}

// DistanceMatrix holds pairwise distances between nodes, addressed either by
// node position or by node id. It is a pure function of the coordinates it
// was built from and must be rebuilt after any coordinate edit.
type DistanceMatrix struct {
	ids   []int
	index map[int]int
	d     []float64
}

// NewDistanceMatrix computes every ordered pair of the given nodes.
func NewDistanceMatrix(nodes []Node) *DistanceMatrix {
	n := len(nodes)
	m := &DistanceMatrix{ids: make([]int, n), index: make(map[int]int, n), d: make([]float64, n*n)}
	for i, a := range nodes {
		m.ids[i] = a.ID
		m.index[a.ID] = i
		for j, b := range nodes {
			if i != j {
				m.d[i*n+j] = Euclidean(a.Loc, b.Loc)
			}
		}
	}
	return m
}

// Len is the number of nodes.
func (m *DistanceMatrix) Len() int { return len(m.ids) }

// ID returns the node id at position i.
func (m *DistanceMatrix) ID(i int) int { return m.ids[i] }

// Index returns the position of a node id.
func (m *DistanceMatrix) Index(id int) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

// At is the distance between positions i and j (0 on the diagonal).
func (m *DistanceMatrix) At(i, j int) float64 {
	return m.d[i*len(m.ids)+j]
}

// Between is the distance between two node ids.
func (m *DistanceMatrix) Between(a, b int) (float64, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, false
	}
	j, ok := m.index[b]
	if !ok {
		return 0, false
	}
	return m.At(i, j), true
}

// MaxFrom is the longest arc leaving position i.
func (m *DistanceMatrix) MaxFrom(i int) float64 {
	n := len(m.ids)
	best := 0.0
	for j := 0; j < n; j++ {
		if v := m.d[i*n+j]; v > best {
			best = v
		}
	}
	return best
}

// Max is the longest arc in the matrix.
func (m *DistanceMatrix) Max() float64 {
	best := 0.0
	for _, v := range m.d {
		if v > best {
			best = v
		}
	}
	return best
}
