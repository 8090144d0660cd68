package render

import (
	"fmt"
	"image"
	"sync"
)

// Texture, Buffer and Program are opaque GPU object handles. Zero is never
// a valid handle.
type (
	Texture uint32
	Buffer  uint32
	Program uint32
)

// FragmentFunc is the per-pixel stage of a program: it receives the sampled
// Y, U and V values (each normalized to [0,1]) and returns RGB in [0,1].
type FragmentFunc func(y, u, v float64, uniforms Uniforms) (r, g, b float64)

// ProgramSource describes a program. GLSL is consumed by devices that
// compile real shaders; Fragment is the equivalent used by SoftDevice.
type ProgramSource struct {
	VertexGLSL   string
	FragmentGLSL string
	Fragment     FragmentFunc
}

// Uniforms are the per-draw program inputs.
type Uniforms struct {
	LimitedRange bool
}

// Device is the subset of a GPU API the shader renderer needs. Object
// lifetimes are explicit: everything created must be deleted.
type Device interface {
	CreateTexture() (Texture, error)
	// TexImage (re)allocates storage for a single-channel texture and
	// uploads data into it.
	TexImage(t Texture, width, height int, data []byte) error
	// TexSubImage updates existing storage in place. The region must match
	// the allocated dimensions.
	TexSubImage(t Texture, width, height int, data []byte) error
	DeleteTexture(t Texture)

	CreateBuffer(vertices []float32) (Buffer, error)
	DeleteBuffer(b Buffer)

	CompileProgram(src ProgramSource) (Program, error)
	DeleteProgram(p Program)

	// DrawQuad runs program p over the quad, sampling textures Y, U, V,
	// into target.
	DrawQuad(target *image.RGBA, p Program, quad Buffer, textures [3]Texture, uniforms Uniforms) error
}

// unitQuad is a triangle strip covering clip space, interleaved as
// position (x,y) and texture coordinate (s,t).
var unitQuad = []float32{
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, 1, 1, 0,
}

type softTexture struct {
	width, height int
	data          []byte
	allocations   int
}

// SoftDevice is a CPU implementation of Device. It samples textures with
// bilinear filtering and clamp-to-edge addressing, matching the texture
// parameters the shader renderer requests on a real device.
type SoftDevice struct {
	mu       sync.Mutex
	next     uint32
	textures map[Texture]*softTexture
	buffers  map[Buffer][]float32
	programs map[Program]ProgramSource
	lost     bool
}

// NewSoftDevice creates an empty software device.
func NewSoftDevice() *SoftDevice {
	return &SoftDevice{
		textures: make(map[Texture]*softTexture),
		buffers:  make(map[Buffer][]float32),
		programs: make(map[Program]ProgramSource),
	}
}

func (d *SoftDevice) handle() uint32 {
	d.next++
	return d.next
}

// SetLost simulates losing (or restoring) the context.
func (d *SoftDevice) SetLost(lost bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = lost
}

// LiveObjects returns the number of textures, buffers and programs that
// have been created and not deleted.
func (d *SoftDevice) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures) + len(d.buffers) + len(d.programs)
}

// TextureAllocations returns how many times t's storage was (re)allocated.
func (d *SoftDevice) TextureAllocations(t Texture) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tex, ok := d.textures[t]; ok {
		return tex.allocations
	}
	return 0
}

// CreateTexture allocates a texture handle without storage.
func (d *SoftDevice) CreateTexture() (Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, ErrContextLost
	}
	t := Texture(d.handle())
	d.textures[t] = &softTexture{}
	return t, nil
}

// TexImage allocates storage and uploads data.
func (d *SoftDevice) TexImage(t Texture, width, height int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, err := d.texture(t, width, height, data)
	if err != nil {
		return err
	}
	tex.width, tex.height = width, height
	tex.data = make([]byte, width*height)
	copy(tex.data, data)
	tex.allocations++
	return nil
}

// TexSubImage overwrites existing storage.
func (d *SoftDevice) TexSubImage(t Texture, width, height int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, err := d.texture(t, width, height, data)
	if err != nil {
		return err
	}
	if tex.width != width || tex.height != height {
		return fmt.Errorf("sub-image %dx%d does not match storage %dx%d", width, height, tex.width, tex.height)
	}
	copy(tex.data, data[:width*height])
	return nil
}

func (d *SoftDevice) texture(t Texture, width, height int, data []byte) (*softTexture, error) {
	if d.lost {
		return nil, ErrContextLost
	}
	tex, ok := d.textures[t]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrInvalidHandle, t)
	}
	if width <= 0 || height <= 0 || len(data) < width*height {
		return nil, fmt.Errorf("texture upload %dx%d with %d bytes", width, height, len(data))
	}
	return tex, nil
}

// DeleteTexture releases a texture. Unknown handles are ignored.
func (d *SoftDevice) DeleteTexture(t Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, t)
}

// CreateBuffer stores vertex data.
func (d *SoftDevice) CreateBuffer(vertices []float32) (Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, ErrContextLost
	}
	b := Buffer(d.handle())
	d.buffers[b] = append([]float32(nil), vertices...)
	return b, nil
}

// DeleteBuffer releases a buffer. Unknown handles are ignored.
func (d *SoftDevice) DeleteBuffer(b Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, b)
}

// CompileProgram validates and links a program.
func (d *SoftDevice) CompileProgram(src ProgramSource) (Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, ErrContextLost
	}
	if src.VertexGLSL == "" || src.FragmentGLSL == "" {
		return 0, fmt.Errorf("%w: missing shader stage", ErrShaderCompile)
	}
	if src.Fragment == nil {
		return 0, fmt.Errorf("%w: no fragment implementation for software device", ErrShaderCompile)
	}
	p := Program(d.handle())
	d.programs[p] = src
	return p, nil
}

// DeleteProgram releases a program. Unknown handles are ignored.
func (d *SoftDevice) DeleteProgram(p Program) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.programs, p)
}

// DrawQuad rasterizes the full-screen quad into target.
func (d *SoftDevice) DrawQuad(target *image.RGBA, p Program, quad Buffer, textures [3]Texture, uniforms Uniforms) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return ErrContextLost
	}
	prog, ok := d.programs[p]
	if !ok {
		return fmt.Errorf("%w: program %d", ErrInvalidHandle, p)
	}
	if vb, ok := d.buffers[quad]; !ok || len(vb) < 16 {
		return fmt.Errorf("%w: quad buffer %d", ErrInvalidHandle, quad)
	}
	var tex [3]*softTexture
	for i, t := range textures {
		st, ok := d.textures[t]
		if !ok || st.data == nil {
			return fmt.Errorf("%w: texture %d has no storage", ErrInvalidHandle, t)
		}
		tex[i] = st
	}

	b := target.Bounds()
	w, h := b.Dx(), b.Dy()
	for py := 0; py < h; py++ {
		t := (float64(py) + 0.5) / float64(h)
		row := target.Pix[py*target.Stride:]
		for px := 0; px < w; px++ {
			s := (float64(px) + 0.5) / float64(w)
			r, g, bl := prog.Fragment(tex[0].sample(s, t), tex[1].sample(s, t), tex[2].sample(s, t), uniforms)
			o := px * 4
			row[o] = toByte(r)
			row[o+1] = toByte(g)
			row[o+2] = toByte(bl)
			row[o+3] = 0xff
		}
	}
	return nil
}

// sample returns the bilinearly filtered value at normalized (s,t).
func (t *softTexture) sample(s, u float64) float64 {
	x := s*float64(t.width) - 0.5
	y := u*float64(t.height) - 0.5
	x0, y0 := floor(x), floor(y)
	fx, fy := x-float64(x0), y-float64(y0)

	p00 := t.at(x0, y0)
	p10 := t.at(x0+1, y0)
	p01 := t.at(x0, y0+1)
	p11 := t.at(x0+1, y0+1)

	top := p00 + (p10-p00)*fx
	bottom := p01 + (p11-p01)*fx
	return (top + (bottom-top)*fy) / 255
}

func (t *softTexture) at(x, y int) float64 {
	if x < 0 {
		x = 0
	} else if x >= t.width {
		x = t.width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= t.height {
		y = t.height - 1
	}
	return float64(t.data[y*t.width+x])
}

func floor(x float64) int {
	i := int(x)
	if float64(i) > x {
		i--
	}
	return i
}
