// Package mapview serves the clustered marker layer of the photo map and
// pushes a fresh layer to live subscribers whenever posts change.
package mapview

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"backend-lacakair/internal/cluster"
	"backend-lacakair/internal/marker"
	"backend-lacakair/internal/post"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Topic is the stream topic marker layers are broadcast on.
const Topic = "markers"

const defaultCacheSize = 64

type PostLister interface {
	List(ctx context.Context) ([]post.Post, error)
}

type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

type ClusterObserver interface {
	ObserveClusters(n int)
}

type Service struct {
	posts     PostLister
	tolerance float64
	memo      *lru.Cache[string, []marker.Descriptor]
	hub       Broadcaster
	observer  ClusterObserver
	log       *slog.Logger
}

type Option func(*Service)

func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.hub = b } }

func WithObserver(o ClusterObserver) Option { return func(s *Service) { s.observer = o } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(posts PostLister, tolerance float64, cacheSize int, opts ...Option) (*Service, error) {
	if tolerance <= 0 {
		tolerance = cluster.DefaultTolerance
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	memo, err := lru.New[string, []marker.Descriptor](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("marker memo: %w", err)
	}

	s := &Service{posts: posts, tolerance: tolerance, memo: memo}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

func (s *Service) Tolerance() float64 { return s.tolerance }

// Markers clusters the current post snapshot.
func (s *Service) Markers(ctx context.Context) ([]marker.Descriptor, error) {
	posts, err := s.posts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return s.Snapshot(posts), nil
}

// Snapshot clusters posts as given. An identical snapshot is served from the
// memo instead of being clustered again. The returned slice is the caller's
// own, but member posts are shared with the memo and must not be modified.
func (s *Service) Snapshot(posts []post.Post) []marker.Descriptor {
	key := Fingerprint(posts, s.tolerance)
	if markers, ok := s.memo.Get(key); ok {
		return slices.Clone(markers)
	}

	clusters := cluster.Build(posts, s.tolerance)
	markers := marker.Project(clusters)
	s.memo.Add(key, markers)
	if s.observer != nil {
		s.observer.ObserveClusters(len(clusters))
	}
	s.log.Debug("marker layer built", "posts", len(posts), "clusters", len(clusters))
	return slices.Clone(markers)
}

// PostsChanged rebuilds the layer from a fresh snapshot and broadcasts it.
// Failures are logged; the previous layer stays current for subscribers.
func (s *Service) PostsChanged(ctx context.Context) {
	markers, err := s.Markers(ctx)
	if err != nil {
		s.log.Error("refresh markers", "error", err)
		return
	}
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(markers)
	if err != nil {
		s.log.Error("encode markers", "error", err)
		return
	}
	s.hub.Broadcast(Topic, payload)
}

// Fingerprint identifies a snapshot by content and order, since clustering
// depends on both.
func Fingerprint(posts []post.Post, tolerance float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "tol=%x\n", math.Float64bits(tolerance))
	enc := json.NewEncoder(h)
	for _, p := range posts {
		_ = enc.Encode(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
