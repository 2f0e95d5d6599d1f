package preview

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/multierr"

	"github.com/pavelanni/practicals/internal/model"
)

var (
	// ErrRegistryFull is returned by Create when the registry holds its
	// maximum number of live references.
	ErrRegistryFull = errors.New("reference registry is full")
	// ErrUnknownRef is returned when revoking a reference that is not live.
	ErrUnknownRef = errors.New("unknown reference")
	// ErrUnknownPreview is returned by Live.Drop for a preview holding no
	// references.
	ErrUnknownPreview = errors.New("unknown preview")
)

// DefaultCapacity bounds a registry created with a non-positive capacity.
const DefaultCapacity = 1024

// Registry hands out transient references to image blobs, in the manner of
// browser object URLs. A reference stays valid until it is revoked.
type Registry struct {
	mu       sync.Mutex
	capacity int
	blobs    map[string]model.Blob
}

// NewRegistry creates a registry holding at most capacity references.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{capacity: capacity, blobs: make(map[string]model.Blob)}
}

// Create registers blob and returns its reference.
func (r *Registry) Create(blob model.Blob) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.blobs) >= r.capacity {
		return "", fmt.Errorf("%w: %d references", ErrRegistryFull, r.capacity)
	}
	ref := "blob-" + model.NewID()
	r.blobs[ref] = blob
	return ref, nil
}

// Revoke releases a reference.
func (r *Registry) Revoke(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[ref]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRef, ref)
	}
	delete(r.blobs, ref)
	return nil
}

// Get returns the blob behind a live reference.
func (r *Registry) Get(ref string) (model.Blob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.blobs[ref]
	return b, ok
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blobs)
}

// Gallery owns the references for one list of blobs. Whenever the list
// changes, every reference created for the previous list is released before
// new ones are created.
type Gallery struct {
	reg *Registry

	mu    sync.Mutex
	blobs []model.Blob
	refs  []string
}

// NewGallery creates an empty gallery backed by reg.
func NewGallery(reg *Registry) *Gallery {
	return &Gallery{reg: reg}
}

// Sync returns references for blobs. An unchanged list keeps its
// references. On failure no reference created by this call survives.
func (g *Gallery) Sync(blobs []model.Blob) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.refs != nil && sameBlobs(g.blobs, blobs) {
		return slices.Clone(g.refs), nil
	}
	if err := g.releaseLocked(); err != nil {
		return nil, err
	}

	refs := make([]string, 0, len(blobs))
	for _, b := range blobs {
		ref, err := g.reg.Create(b)
		if err != nil {
			for _, r := range refs {
				err = multierr.Append(err, g.reg.Revoke(r))
			}
			return nil, err
		}
		refs = append(refs, ref)
	}
	g.blobs = slices.Clone(blobs)
	g.refs = refs
	return slices.Clone(refs), nil
}

// Close releases every reference held by the gallery.
func (g *Gallery) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.releaseLocked()
}

func (g *Gallery) releaseLocked() error {
	var err error
	for _, r := range g.refs {
		err = multierr.Append(err, g.reg.Revoke(r))
	}
	g.refs = nil
	g.blobs = nil
	return err
}

func sameBlobs(a, b []model.Blob) bool {
	return slices.EqualFunc(a, b, func(x, y model.Blob) bool {
		return x.Name == y.Name && x.ContentType == y.ContentType && string(x.Data) == string(y.Data)
	})
}

// Live keeps one gallery per practical for every open preview. References
// it hands out are prefixed with a base path so they can be fetched over
// HTTP. Only practicals with outputs get a gallery, and a preview is
// forgotten once none of its practicals hold references, so the registry
// capacity also bounds the number of tracked previews.
type Live struct {
	reg    *Registry
	prefix string

	mu       sync.Mutex
	previews map[string]map[int]*Gallery
}

// NewLive creates a Live set. Reference URLs are prefix + ref.
func NewLive(reg *Registry, prefix string) *Live {
	return &Live{reg: reg, prefix: prefix, previews: make(map[string]map[int]*Gallery)}
}

// Registry returns the backing registry.
func (l *Live) Registry() *Registry { return l.reg }

// Source returns the reference source for preview id.
func (l *Live) Source(id string) RefSource {
	return liveSource{live: l, id: id}
}

type liveSource struct {
	live *Live
	id   string
}

func (s liveSource) Refs(practical int, blobs []model.Blob) ([]string, error) {
	if len(blobs) == 0 {
		return []string{}, s.live.release(s.id, practical)
	}
	refs, err := s.live.gallery(s.id, practical).Sync(blobs)
	if err != nil {
		return nil, multierr.Append(err, s.live.release(s.id, practical))
	}
	for i := range refs {
		refs[i] = s.live.prefix + refs[i]
	}
	return refs, nil
}

func (l *Live) gallery(id string, practical int) *Gallery {
	l.mu.Lock()
	defer l.mu.Unlock()
	gs, ok := l.previews[id]
	if !ok {
		gs = make(map[int]*Gallery)
		l.previews[id] = gs
	}
	g, ok := gs[practical]
	if !ok {
		g = NewGallery(l.reg)
		gs[practical] = g
	}
	return g
}

// release closes the gallery of one practical.
func (l *Live) release(id string, practical int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	gs := l.previews[id]
	g, ok := gs[practical]
	if !ok {
		return nil
	}
	delete(gs, practical)
	if len(gs) == 0 {
		delete(l.previews, id)
	}
	return g.Close()
}

// Trim closes the galleries of practicals at index n and beyond, after a
// preview has shrunk.
func (l *Live) Trim(id string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	gs, ok := l.previews[id]
	if !ok {
		return nil
	}
	var err error
	for p, g := range gs {
		if p >= n {
			err = multierr.Append(err, g.Close())
			delete(gs, p)
		}
	}
	if len(gs) == 0 {
		delete(l.previews, id)
	}
	return err
}

// Previews returns the number of previews holding references.
func (l *Live) Previews() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.previews)
}

// Drop releases every reference of preview id. It returns ErrUnknownPreview
// when the preview holds none.
func (l *Live) Drop(id string) error {
	l.mu.Lock()
	gs, ok := l.previews[id]
	delete(l.previews, id)
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPreview, id)
	}

	var err error
	for _, g := range gs {
		err = multierr.Append(err, g.Close())
	}
	return err
}

// Close drops every preview.
func (l *Live) Close() error {
	l.mu.Lock()
	ids := make([]string, 0, len(l.previews))
	for id := range l.previews {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var err error
	for _, id := range ids {
		if dropErr := l.Drop(id); !errors.Is(dropErr, ErrUnknownPreview) {
			err = multierr.Append(err, dropErr)
		}
	}
	return err
}
