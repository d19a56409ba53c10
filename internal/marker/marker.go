// Package marker turns location clusters into renderable map markers.
package marker

import (
	"strconv"

	"backend-lacakair/internal/cluster"
	"backend-lacakair/internal/post"
	"backend-lacakair/internal/shared/geo"
)

const groupSnippet = "Tap to see all"

type Descriptor struct {
	Anchor  geo.Coordinate `json:"anchor"`
	Label   string         `json:"label"`
	Snippet string         `json:"snippet"`
	Count   int            `json:"count"`
	// SpreadM is the largest distance in metres from the anchor to a member.
	SpreadM float64     `json:"spreadM"`
	Primary post.Post   `json:"primary"`
	Members []post.Post `json:"members"`
}

// Project builds one descriptor per cluster, in cluster order. The primary
// post is the first member; callers sort posts newest first beforehand.
func Project(clusters []cluster.Cluster) []Descriptor {
	out := make([]Descriptor, 0, len(clusters))
	for _, c := range clusters {
		if len(c.Members) == 0 {
			continue
		}
		out = append(out, describe(c))
	}
	return out
}

func describe(c cluster.Cluster) Descriptor {
	primary := c.Members[0]
	d := Descriptor{
		Anchor:  c.Anchor,
		Count:   len(c.Members),
		Primary: primary,
		Members: c.Members,
	}
	if d.Count > 1 {
		d.Label = strconv.Itoa(d.Count) + " posts"
		d.Snippet = groupSnippet
	} else {
		d.Label = primary.UserName
		d.Snippet = primary.Caption
	}
	for _, m := range c.Members {
		if loc, ok := m.Location(); ok {
			d.SpreadM = max(d.SpreadM, geo.DistanceM(c.Anchor, loc))
		}
	}
	return d
}
