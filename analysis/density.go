package analysis

import (
	"fmt"
	"sort"
)

// ClusteringStrategy partitions a fixed embedding set into labeled clusters
// plus a noise bucket. Implementations must return a strict partition of the
// input ids: nothing dropped, nothing duplicated.
type ClusteringStrategy interface {
	Cluster(vecs [][]float64, ids []string) ([]Cluster, error)
}

// DensityConfig tunes the density-based strategy.
type DensityConfig struct {
	// MinClusterSize is the smallest group that counts as a real cluster;
	// smaller groups dissolve into noise. Inputs with fewer total points
	// than this are returned whole as a single noise cluster.
	MinClusterSize int `yaml:"min_cluster_size"`

	// MinSamples is the density requirement: a point needs this many
	// neighbors (itself included) within epsilon to seed a cluster.
	// Zero means MinClusterSize.
	MinSamples int `yaml:"min_samples"`

	// Metric selects the distance function: "cosine" (default) or
	// "euclidean".
	Metric string `yaml:"metric"`

	// ClusterSelectionEpsilon is the neighborhood radius in the chosen
	// metric.
	ClusterSelectionEpsilon float64 `yaml:"cluster_selection_epsilon"`
}

// DefaultDensityConfig returns the tuning used for chatroom-sized inputs.
func DefaultDensityConfig() DensityConfig {
	return DensityConfig{
		MinClusterSize:          5,
		MinSamples:              3,
		Metric:                  "cosine",
		ClusterSelectionEpsilon: 0.3,
	}
}

// DensityStrategy is a DBSCAN-style ClusteringStrategy: core points are
// those with at least MinSamples neighbors within epsilon; clusters grow by
// density reachability; everything else lands in the -1 noise bucket,
// as do clusters smaller than MinClusterSize.
type DensityStrategy struct {
	cfg DensityConfig
}

// NewDensityStrategy returns a strategy with cfg, filling unset fields from
// the defaults.
func NewDensityStrategy(cfg DensityConfig) *DensityStrategy {
	def := DefaultDensityConfig()
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = def.MinClusterSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cfg.MinClusterSize
	}
	if cfg.Metric == "" {
		cfg.Metric = def.Metric
	}
	if cfg.ClusterSelectionEpsilon <= 0 {
		cfg.ClusterSelectionEpsilon = def.ClusterSelectionEpsilon
	}
	return &DensityStrategy{cfg: cfg}
}

// Cluster partitions vecs/ids. Labeled clusters come first in ascending id
// order with mean-vector centroids; the noise cluster, when present, is last
// with a nil centroid. Mismatched input lengths are a caller contract
// violation and fail immediately.
func (s *DensityStrategy) Cluster(vecs [][]float64, ids []string) ([]Cluster, error) {
	if len(vecs) != len(ids) {
		return nil, fmt.Errorf("DensityStrategy.Cluster: %d embeddings but %d ids", len(vecs), len(ids))
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	if len(vecs) < s.cfg.MinClusterSize {
		return []Cluster{{ID: NoiseClusterID, MessageIDs: append([]string(nil), ids...)}}, nil
	}

	labels := s.dbscan(vecs)

	// Dissolve undersized clusters into noise.
	sizes := make(map[int]int)
	for _, l := range labels {
		if l >= 0 {
			sizes[l]++
		}
	}
	for i, l := range labels {
		if l >= 0 && sizes[l] < s.cfg.MinClusterSize {
			labels[i] = NoiseClusterID
		}
	}

	return s.group(labels, vecs, ids), nil
}

// group renumbers surviving labels to 0..k-1 in first-appearance order and
// assembles the output clusters, noise last.
func (s *DensityStrategy) group(labels []int, vecs [][]float64, ids []string) []Cluster {
	remap := make(map[int]int)
	var order []int
	for _, l := range labels {
		if l < 0 {
			continue
		}
		if _, ok := remap[l]; !ok {
			remap[l] = len(order)
			order = append(order, l)
		}
	}

	members := make(map[int][]int, len(order)+1)
	for i, l := range labels {
		key := NoiseClusterID
		if l >= 0 {
			key = remap[l]
		}
		members[key] = append(members[key], i)
	}

	clusterIDs := make([]int, 0, len(members))
	for id := range members {
		if id != NoiseClusterID {
			clusterIDs = append(clusterIDs, id)
		}
	}
	sort.Ints(clusterIDs)

	out := make([]Cluster, 0, len(members))
	for _, cid := range clusterIDs {
		idx := members[cid]
		memberIDs := make([]string, len(idx))
		memberVecs := make([][]float64, len(idx))
		for j, i := range idx {
			memberIDs[j] = ids[i]
			memberVecs[j] = vecs[i]
		}
		out = append(out, Cluster{
			ID:         cid,
			MessageIDs: memberIDs,
			Centroid:   meanVector(memberVecs),
		})
	}
	if idx, ok := members[NoiseClusterID]; ok {
		memberIDs := make([]string, len(idx))
		for j, i := range idx {
			memberIDs[j] = ids[i]
		}
		out = append(out, Cluster{ID: NoiseClusterID, MessageIDs: memberIDs})
	}
	return out
}

const unvisited = -2

// dbscan labels every point with a cluster id >= 0 or NoiseClusterID.
func (s *DensityStrategy) dbscan(vecs [][]float64) []int {
	labels := make([]int, len(vecs))
	for i := range labels {
		labels[i] = unvisited
	}

	next := 0
	for i := range vecs {
		if labels[i] != unvisited {
			continue
		}
		neighbors := s.regionQuery(vecs, i)
		if len(neighbors) < s.cfg.MinSamples {
			labels[i] = NoiseClusterID
			continue
		}

		cluster := next
		next++
		labels[i] = cluster

		// Expand by density reachability; queue may grow while iterating.
		queue := append([]int(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == NoiseClusterID {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			jn := s.regionQuery(vecs, j)
			if len(jn) >= s.cfg.MinSamples {
				queue = append(queue, jn...)
			}
		}
	}
	return labels
}

// regionQuery returns the indices (i included) within epsilon of point i.
func (s *DensityStrategy) regionQuery(vecs [][]float64, i int) []int {
	var out []int
	for j := range vecs {
		if s.distance(vecs[i], vecs[j]) <= s.cfg.ClusterSelectionEpsilon {
			out = append(out, j)
		}
	}
	return out
}

func (s *DensityStrategy) distance(a, b []float64) float64 {
	if s.cfg.Metric == "euclidean" {
		return euclideanDistance(a, b)
	}
	return cosineDistance(a, b)
}
