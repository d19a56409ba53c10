// Package cluster groups geotagged posts into map clusters.
//
// Grouping is greedy and first-fit: posts are examined in the order given and
// each joins the first existing cluster whose founding coordinate is within
// tolerance on both axes, otherwise it founds a new cluster. The result depends
// on input order, and two members of one cluster may be up to twice the
// tolerance apart. Every call rebuilds the clusters from scratch.
package cluster

import (
	"backend-lacakair/internal/post"
	"backend-lacakair/internal/shared/geo"
)

// DefaultTolerance is roughly 11 metres at the equator.
const DefaultTolerance = 0.0001

type Cluster struct {
	// Anchor is the coordinate of the post that founded the cluster.
	Anchor    geo.Coordinate
	Tolerance float64
	// Members are kept in the order they were examined.
	Members []post.Post
}

func (c Cluster) Size() int { return len(c.Members) }

// Build groups posts by location. Posts without both coordinates are skipped.
// A non-positive tolerance uses DefaultTolerance.
func Build(posts []post.Post, tolerance float64) []Cluster {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	clusters := []Cluster{}
	for _, p := range posts {
		loc, ok := p.Location()
		if !ok {
			continue
		}

		joined := false
		for i := range clusters {
			if geo.WithinTolerance(clusters[i].Anchor, loc, tolerance) {
				clusters[i].Members = append(clusters[i].Members, p)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, Cluster{
				Anchor:    loc,
				Tolerance: tolerance,
				Members:   []post.Post{p},
			})
		}
	}
	return clusters
}
