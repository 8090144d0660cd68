package render

import (
	"image"
	"sync"
)

// Surface is the drawing target for a Renderer. It owns an RGBA canvas and
// the teardown hooks of any backend state bound to it.
type Surface struct {
	mu        sync.Mutex
	img       *image.RGBA
	teardown  []func()
	destroyed bool
}

// NewSurface creates a surface of the given size. A zero size is valid; the
// first draw resizes it.
func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Resize reallocates the canvas if the dimensions differ. It reports whether
// a reallocation happened.
func (s *Surface) Resize(width, height int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return false
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return true
}

// Size returns the canvas dimensions.
func (s *Surface) Size() (width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Image returns the canvas. It is replaced on resize.
func (s *Surface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Snapshot returns a copy of the canvas.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := image.NewRGBA(s.img.Bounds())
	copy(cp.Pix, s.img.Pix)
	return cp
}

// OnDestroy registers a hook run once by Destroy. Hooks registered after
// destruction run immediately.
func (s *Surface) OnDestroy(fn func()) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		fn()
		return
	}
	s.teardown = append(s.teardown, fn)
	s.mu.Unlock()
}

// Destroy runs the teardown hooks in reverse registration order. Further
// draws fail with ErrSurfaceDestroyed.
func (s *Surface) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	hooks := s.teardown
	s.teardown = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// Destroyed reports whether Destroy has run.
func (s *Surface) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
