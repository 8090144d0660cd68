package render

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const yuvVertexGLSL = `#version 300 es
in vec2 a_position;
in vec2 a_texCoord;
out vec2 v_texCoord;
void main() {
	gl_Position = vec4(a_position, 0.0, 1.0);
	v_texCoord = a_texCoord;
}
`

const yuvFragmentGLSL = `#version 300 es
precision mediump float;
in vec2 v_texCoord;
uniform sampler2D u_textureY;
uniform sampler2D u_textureU;
uniform sampler2D u_textureV;
uniform bool u_limitedRange;
out vec4 outColor;
void main() {
	float y = texture(u_textureY, v_texCoord).r;
	float u = texture(u_textureU, v_texCoord).r;
	float v = texture(u_textureV, v_texCoord).r;
	if (u_limitedRange) {
		y = (y - 16.0 / 255.0) * (255.0 / 219.0);
		u = (u - 128.0 / 255.0) * (255.0 / 224.0);
		v = (v - 128.0 / 255.0) * (255.0 / 224.0);
	} else {
		u = u - 128.0 / 255.0;
		v = v - 128.0 / 255.0;
	}
	vec3 rgb = vec3(
		y + 1.5748 * v,
		y - 0.1873 * u - 0.4681 * v,
		y + 1.8556 * u);
	outColor = vec4(clamp(rgb, 0.0, 1.0), 1.0);
}
`

// yuvProgram is the BT.709 conversion program.
var yuvProgram = ProgramSource{
	VertexGLSL:   yuvVertexGLSL,
	FragmentGLSL: yuvFragmentGLSL,
	Fragment: func(y, u, v float64, uniforms Uniforms) (float64, float64, float64) {
		return yuvToRGB709(y, u, v, uniforms.LimitedRange)
	},
}

// glContext is the persistent GPU state bound to one surface.
type glContext struct {
	program  Program
	quad     Buffer
	textures [3]Texture

	// Plane dimensions of the last upload; zero before the first.
	lumaW, lumaH     int
	chromaW, chromaH int
}

// ShaderRenderer converts YUV to RGB in a GPU program.
type ShaderRenderer struct {
	cfg    Config
	now    func() time.Time
	device Device

	mu       sync.Mutex
	contexts map[*Surface]*glContext
	source   ProgramSource
}

// NewShaderRenderer creates a shader-path renderer on cfg.Device, or on a
// fresh SoftDevice when none is given.
func NewShaderRenderer(cfg Config) *ShaderRenderer {
	device := cfg.Device
	if device == nil {
		device = NewSoftDevice()
	}
	return &ShaderRenderer{
		cfg:      cfg,
		now:      cfg.now(),
		device:   device,
		contexts: make(map[*Surface]*glContext),
		source:   yuvProgram,
	}
}

// Backend identifies the implementation.
func (r *ShaderRenderer) Backend() Backend {
	return BackendShader
}

// Device returns the device the renderer draws with.
func (r *ShaderRenderer) Device() Device {
	return r.device
}

// Draw uploads the planes into the surface's textures and runs the program.
func (r *ShaderRenderer) Draw(surface *Surface, y, u, v []byte, width, height int, captureTimestamp uint64) (Sample, error) {
	sample := Sample{BeforeDraw: r.now()}
	err := r.draw(surface, y, u, v, width, height)
	sample.AfterDraw = r.now()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":          "ShaderRenderer.Draw",
			"width":             width,
			"height":            height,
			"capture_timestamp": captureTimestamp,
			"error":             err.Error(),
		}).Error("Shader draw failed")
	}
	return sample, err
}

func (r *ShaderRenderer) draw(surface *Surface, y, u, v []byte, width, height int) error {
	if surface.Destroyed() {
		return ErrSurfaceDestroyed
	}
	if err := validatePlanes(y, u, v, width, height); err != nil {
		return err
	}

	ctx, err := r.context(surface)
	if err != nil {
		return err
	}

	surface.Resize(width, height)
	if err := r.upload(ctx, y, u, v, width, height); err != nil {
		r.dropOnLoss(surface, err)
		return err
	}

	uniforms := Uniforms{LimitedRange: r.cfg.Range == RangeLimited}
	if err := r.device.DrawQuad(surface.Image(), ctx.program, ctx.quad, ctx.textures, uniforms); err != nil {
		r.dropOnLoss(surface, err)
		return fmt.Errorf("%w: %w", ErrDrawFailed, err)
	}
	return nil
}

// upload reallocates texture storage when plane dimensions changed since
// the last call and updates it in place otherwise.
func (r *ShaderRenderer) upload(ctx *glContext, y, u, v []byte, width, height int) error {
	cw, ch := chromaSize(width, height)

	if width != ctx.lumaW || height != ctx.lumaH {
		if err := r.device.TexImage(ctx.textures[0], width, height, y); err != nil {
			return err
		}
		ctx.lumaW, ctx.lumaH = width, height
	} else if err := r.device.TexSubImage(ctx.textures[0], width, height, y); err != nil {
		return err
	}

	realloc := cw != ctx.chromaW || ch != ctx.chromaH
	for i, plane := range [][]byte{u, v} {
		t := ctx.textures[i+1]
		var err error
		if realloc {
			err = r.device.TexImage(t, cw, ch, plane)
		} else {
			err = r.device.TexSubImage(t, cw, ch, plane)
		}
		if err != nil {
			return err
		}
	}
	ctx.chromaW, ctx.chromaH = cw, ch
	return nil
}

// context returns the surface's GPU state, creating it on first use.
func (r *ShaderRenderer) context(surface *Surface) (*glContext, error) {
	r.mu.Lock()
	ctx, ok := r.contexts[surface]
	r.mu.Unlock()
	if ok {
		return ctx, nil
	}

	ctx, err := r.createContext()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.contexts[surface] = ctx
	r.mu.Unlock()
	surface.OnDestroy(func() { r.release(surface) })

	logrus.WithFields(logrus.Fields{
		"function": "ShaderRenderer.context",
		"program":  ctx.program,
	}).Debug("Created GPU context for surface")
	return ctx, nil
}

// createContext compiles the program and creates the quad and textures. On
// failure everything created so far is deleted.
func (r *ShaderRenderer) createContext() (*glContext, error) {
	ctx := &glContext{}
	var err error
	defer func() {
		if err != nil {
			r.destroy(ctx)
		}
	}()

	if ctx.program, err = r.device.CompileProgram(r.source); err != nil {
		return nil, err
	}
	if ctx.quad, err = r.device.CreateBuffer(unitQuad); err != nil {
		return nil, err
	}
	for i := range ctx.textures {
		if ctx.textures[i], err = r.device.CreateTexture(); err != nil {
			return nil, err
		}
	}
	return ctx, nil
}

func (r *ShaderRenderer) destroy(ctx *glContext) {
	for _, t := range ctx.textures {
		if t != 0 {
			r.device.DeleteTexture(t)
		}
	}
	if ctx.quad != 0 {
		r.device.DeleteBuffer(ctx.quad)
	}
	if ctx.program != 0 {
		r.device.DeleteProgram(ctx.program)
	}
}

// release tears down the surface's GPU state.
func (r *ShaderRenderer) release(surface *Surface) {
	r.mu.Lock()
	ctx, ok := r.contexts[surface]
	delete(r.contexts, surface)
	r.mu.Unlock()
	if ok {
		r.destroy(ctx)
	}
}

// dropOnLoss discards a surface's context after a context loss so the next
// draw rebuilds it.
func (r *ShaderRenderer) dropOnLoss(surface *Surface, err error) {
	if errors.Is(err, ErrContextLost) {
		r.release(surface)
	}
}

// Close destroys every surface context.
func (r *ShaderRenderer) Close() error {
	r.mu.Lock()
	contexts := r.contexts
	r.contexts = make(map[*Surface]*glContext)
	r.mu.Unlock()

	for _, ctx := range contexts {
		r.destroy(ctx)
	}
	return nil
}
