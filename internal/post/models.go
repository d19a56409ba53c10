package post

import (
	"time"

	"backend-lacakair/internal/shared/geo"
)

// Post is a photo post as kept by the external store. Latitude and Longitude
// are either both set or the post is treated as not geotagged.
type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	ImageURL     string    `json:"imageUrl"`
	Caption      string    `json:"caption"`
	Likes        []string  `json:"likes"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	LocationName string    `json:"locationName,omitempty"`
}

// Location returns the geotag, or false when either coordinate is missing
// or not a finite number.
func (p Post) Location() (geo.Coordinate, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return geo.Coordinate{}, false
	}
	if !geo.Finite(*p.Latitude) || !geo.Finite(*p.Longitude) {
		return geo.Coordinate{}, false
	}
	return geo.Coordinate{Latitude: *p.Latitude, Longitude: *p.Longitude}, true
}

func (p Post) HasLocation() bool {
	_, ok := p.Location()
	return ok
}

func (p Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// WithLocation sets both coordinates and the advisory location name.
func (p Post) WithLocation(lat, lng float64, name string) Post {
	p.Latitude = &lat
	p.Longitude = &lng
	p.LocationName = name
	return p
}

// UniqueLikes drops empty and repeated liker ids, keeping first occurrence.
func UniqueLikes(likes []string) []string {
	seen := make(map[string]struct{}, len(likes))
	out := make([]string, 0, len(likes))
	for _, id := range likes {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
