package render

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantPlanes(width, height int, y, u, v byte) ([]byte, []byte, []byte) {
	cw, ch := width/2, height/2
	yp := make([]byte, width*height)
	up := make([]byte, cw*ch)
	vp := make([]byte, cw*ch)
	for i := range yp {
		yp[i] = y
	}
	for i := range up {
		up[i] = u
		vp[i] = v
	}
	return yp, up, vp
}

func pixel(img *image.RGBA, x, y int) [3]int {
	o := img.PixOffset(x, y)
	return [3]int{int(img.Pix[o]), int(img.Pix[o+1]), int(img.Pix[o+2])}
}

func TestBackends_MidGrayAgree(t *testing.T) {
	for _, rng := range []ColorRange{RangeLimited, RangeFull} {
		t.Run(rng.String(), func(t *testing.T) {
			y, u, v := constantPlanes(16, 8, 128, 128, 128)

			hw, err := New(BackendHardware, Config{Range: rng})
			require.NoError(t, err)
			sh, err := New(BackendShader, Config{Range: rng})
			require.NoError(t, err)

			hwSurface := NewSurface(0, 0)
			shSurface := NewSurface(0, 0)

			_, err = hw.Draw(hwSurface, y, u, v, 16, 8, 1000)
			require.NoError(t, err)
			_, err = sh.Draw(shSurface, y, u, v, 16, 8, 1000)
			require.NoError(t, err)

			hwImg, shImg := hwSurface.Image(), shSurface.Image()
			for py := 0; py < 8; py++ {
				for px := 0; px < 16; px++ {
					a, b := pixel(hwImg, px, py), pixel(shImg, px, py)
					for c := 0; c < 3; c++ {
						assert.InDelta(t, a[c], b[c], 2, "pixel (%d,%d) channel %d", px, py, c)
					}
				}
			}

			want := 128
			if rng == RangeLimited {
				want = 130
			}
			assert.InDelta(t, want, pixel(shImg, 3, 3)[0], 1)
		})
	}
}

func TestBackends_AgreeOnPrimaries(t *testing.T) {
	tests := []struct {
		name    string
		y, u, v byte
	}{
		{"red", 63, 102, 240},
		{"green", 173, 42, 26},
		{"blue", 32, 240, 118},
		{"saturated green", 128, 16, 16},
		{"orange", 81, 90, 240},
	}

	for _, rng := range []ColorRange{RangeLimited, RangeFull} {
		for _, tt := range tests {
			t.Run(rng.String()+"/"+tt.name, func(t *testing.T) {
				y, u, v := constantPlanes(16, 8, tt.y, tt.u, tt.v)

				hwSurface, shSurface := NewSurface(0, 0), NewSurface(0, 0)
				_, err := NewHardwareRenderer(Config{Range: rng}).Draw(hwSurface, y, u, v, 16, 8, 0)
				require.NoError(t, err)
				_, err = NewShaderRenderer(Config{Range: rng}).Draw(shSurface, y, u, v, 16, 8, 0)
				require.NoError(t, err)

				for _, p := range []image.Point{{0, 0}, {7, 3}, {15, 7}} {
					a, b := pixel(hwSurface.Image(), p.X, p.Y), pixel(shSurface.Image(), p.X, p.Y)
					for c := 0; c < 3; c++ {
						assert.InDelta(t, b[c], a[c], 2, "pixel %v channel %d", p, c)
					}
				}
			})
		}
	}
}

func TestHardwareRenderer_UsesBT709(t *testing.T) {
	y, u, v := constantPlanes(4, 4, 63, 102, 240)

	limited := NewSurface(0, 0)
	_, err := NewHardwareRenderer(Config{Range: RangeLimited}).Draw(limited, y, u, v, 4, 4, 0)
	require.NoError(t, err)
	got := pixel(limited.Image(), 1, 1)
	assert.InDelta(t, 255, got[0], 1)
	assert.InDelta(t, 1, got[1], 1)
	assert.InDelta(t, 0, got[2], 1)

	full := NewSurface(0, 0)
	_, err = NewHardwareRenderer(Config{Range: RangeFull}).Draw(full, y, u, v, 4, 4, 0)
	require.NoError(t, err)
	got = pixel(full.Image(), 1, 1)
	assert.InDelta(t, 239, got[0], 1)
	assert.InDelta(t, 15, got[1], 1)
	assert.InDelta(t, 15, got[2], 1)
}

func TestYUVToRGB709_Extremes(t *testing.T) {
	r, g, b := yuvToRGB709(16.0/255, 128.0/255, 128.0/255, true)
	assert.InDelta(t, 0, r, 1e-9)
	assert.InDelta(t, 0, g, 1e-9)
	assert.InDelta(t, 0, b, 1e-9)

	r, g, b = yuvToRGB709(235.0/255, 128.0/255, 128.0/255, true)
	assert.InDelta(t, 1, r, 1e-9)
	assert.InDelta(t, 1, g, 1e-9)
	assert.InDelta(t, 1, b, 1e-9)

	// Out-of-gamut input is clamped.
	r, _, b = yuvToRGB709(1, 1, 1, false)
	assert.Equal(t, 1.0, r)
	assert.Equal(t, 1.0, b)
}

func TestDraw_ResizesSurface(t *testing.T) {
	for _, backend := range []Backend{BackendHardware, BackendShader} {
		t.Run(backend.String(), func(t *testing.T) {
			r, err := New(backend, Config{})
			require.NoError(t, err)
			defer r.Close()

			s := NewSurface(4, 4)
			y, u, v := constantPlanes(32, 16, 100, 128, 128)
			sample, err := r.Draw(s, y, u, v, 32, 16, 0)
			require.NoError(t, err)

			w, h := s.Size()
			assert.Equal(t, 32, w)
			assert.Equal(t, 16, h)
			assert.False(t, sample.AfterDraw.Before(sample.BeforeDraw))
		})
	}
}

func TestDraw_RejectsShortPlanes(t *testing.T) {
	for _, backend := range []Backend{BackendHardware, BackendShader} {
		r, err := New(backend, Config{})
		require.NoError(t, err)

		y, u, v := constantPlanes(8, 8, 0, 0, 0)
		_, err = r.Draw(NewSurface(0, 0), y[:10], u, v, 8, 8, 0)
		assert.ErrorIs(t, err, ErrPlaneSize, backend.String())

		_, err = r.Draw(NewSurface(0, 0), y, u, v[:1], 8, 8, 0)
		assert.ErrorIs(t, err, ErrPlaneSize, backend.String())

		_, err = r.Draw(NewSurface(0, 0), y, u, v, 1, 1, 0)
		assert.ErrorIs(t, err, ErrPlaneSize, backend.String())
	}
}

func TestDraw_DestroyedSurface(t *testing.T) {
	for _, backend := range []Backend{BackendHardware, BackendShader} {
		r, err := New(backend, Config{})
		require.NoError(t, err)

		s := NewSurface(0, 0)
		s.Destroy()
		y, u, v := constantPlanes(8, 8, 0, 0, 0)
		_, err = r.Draw(s, y, u, v, 8, 8, 0)
		assert.ErrorIs(t, err, ErrSurfaceDestroyed)
	}
}

func TestHardwareRenderer_DisposesFrameOnEveryPath(t *testing.T) {
	r := NewHardwareRenderer(Config{Range: RangeFull})
	s := NewSurface(0, 0)
	y, u, v := constantPlanes(8, 8, 50, 128, 128)

	_, err := r.Draw(s, y, u, v, 8, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.OpenFrames())

	r.draw = func(*image.RGBA, *DecodeFrame) error { return errors.New("device busy") }
	_, err = r.Draw(s, y, u, v, 8, 8, 0)
	assert.Error(t, err)
	assert.Equal(t, int64(0), r.OpenFrames())

	r.draw = func(*image.RGBA, *DecodeFrame) error { panic("driver crash") }
	_, err = r.Draw(s, y, u, v, 8, 8, 0)
	assert.ErrorIs(t, err, ErrDrawFailed)
	assert.Equal(t, int64(0), r.OpenFrames())
}

func TestHardwareRenderer_DecodeFrameMetadata(t *testing.T) {
	r := NewHardwareRenderer(Config{Range: RangeFull})
	y, u, v := constantPlanes(6, 4, 10, 20, 30)

	var seen DecodeFrame
	r.draw = func(_ *image.RGBA, f *DecodeFrame) error {
		seen = *f
		return nil
	}
	_, err := r.Draw(NewSurface(0, 0), y, u, v, 6, 4, 1234)
	require.NoError(t, err)

	assert.Equal(t, 6, seen.CodedWidth)
	assert.Equal(t, 4, seen.CodedHeight)
	assert.Equal(t, int64(1234000), seen.TimestampUs)
	assert.Equal(t, NominalFrameDuration, seen.Duration)
	assert.Equal(t, image.YCbCrSubsampleRatio420, seen.Image.SubsampleRatio)
	assert.Equal(t, 6, seen.Image.YStride)
	assert.Equal(t, 3, seen.Image.CStride)
	assert.Equal(t, byte(20), seen.Image.Cb[0])
	assert.Equal(t, byte(30), seen.Image.Cr[0])
}

func TestHardwareRenderer_ExpandsLimitedRange(t *testing.T) {
	r := NewHardwareRenderer(Config{Range: RangeLimited})
	y, u, v := constantPlanes(4, 4, 16, 240, 16)

	var luma, cb, cr byte
	r.draw = func(_ *image.RGBA, f *DecodeFrame) error {
		luma, cb, cr = f.Image.Y[0], f.Image.Cb[0], f.Image.Cr[0]
		return nil
	}
	_, err := r.Draw(NewSurface(0, 0), y, u, v, 4, 4, 0)
	require.NoError(t, err)

	assert.Equal(t, byte(0), luma)
	assert.Equal(t, byte(255), cb)
	assert.InDelta(t, 0, int(cr), 1)
}

func TestShaderRenderer_ReusesTexturesUntilDimensionsChange(t *testing.T) {
	dev := NewSoftDevice()
	r := NewShaderRenderer(Config{Device: dev})
	s := NewSurface(0, 0)

	y, u, v := constantPlanes(16, 16, 90, 128, 128)
	for i := 0; i < 3; i++ {
		_, err := r.Draw(s, y, u, v, 16, 16, 0)
		require.NoError(t, err)
	}

	ctx := r.contexts[s]
	require.NotNil(t, ctx)
	for _, tex := range ctx.textures {
		assert.Equal(t, 1, dev.TextureAllocations(tex))
	}

	y, u, v = constantPlanes(32, 16, 90, 128, 128)
	_, err := r.Draw(s, y, u, v, 32, 16, 0)
	require.NoError(t, err)
	for _, tex := range ctx.textures {
		assert.Equal(t, 2, dev.TextureAllocations(tex))
	}
	assert.Equal(t, 32, ctx.lumaW)
	assert.Equal(t, 16, ctx.chromaW)
}

func TestShaderRenderer_SurfaceTeardownDestroysGPUObjects(t *testing.T) {
	dev := NewSoftDevice()
	r := NewShaderRenderer(Config{Device: dev})
	s := NewSurface(0, 0)

	y, u, v := constantPlanes(8, 8, 90, 128, 128)
	_, err := r.Draw(s, y, u, v, 8, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, dev.LiveObjects(), "program, quad and three textures")

	s.Destroy()
	assert.Equal(t, 0, dev.LiveObjects())
	assert.Empty(t, r.contexts)
}

func TestShaderRenderer_DefaultDevice(t *testing.T) {
	r := NewShaderRenderer(Config{})
	dev, ok := r.Device().(*SoftDevice)
	require.True(t, ok)

	y, u, v := constantPlanes(4, 4, 90, 128, 128)
	_, err := r.Draw(NewSurface(0, 0), y, u, v, 4, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, dev.LiveObjects())
}

func TestDraw_SampleDuration(t *testing.T) {
	base := time.Unix(1700000000, 0)
	for _, backend := range []Backend{BackendHardware, BackendShader} {
		t.Run(backend.String(), func(t *testing.T) {
			calls := 0
			now := func() time.Time {
				calls++
				return base.Add(time.Duration(calls) * 3 * time.Millisecond)
			}
			r, err := New(backend, Config{Now: now})
			require.NoError(t, err)

			y, u, v := constantPlanes(4, 4, 90, 128, 128)
			sample, err := r.Draw(NewSurface(0, 0), y, u, v, 4, 4, 0)
			require.NoError(t, err)
			assert.Equal(t, 3*time.Millisecond, sample.Duration())
		})
	}
}

func TestShaderRenderer_CloseDestroysAllContexts(t *testing.T) {
	dev := NewSoftDevice()
	r := NewShaderRenderer(Config{Device: dev})
	y, u, v := constantPlanes(8, 8, 90, 128, 128)

	for i := 0; i < 2; i++ {
		_, err := r.Draw(NewSurface(0, 0), y, u, v, 8, 8, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, dev.LiveObjects())

	require.NoError(t, r.Close())
	assert.Equal(t, 0, dev.LiveObjects())
}

func TestShaderRenderer_CompileFailure(t *testing.T) {
	dev := NewSoftDevice()
	r := NewShaderRenderer(Config{Device: dev})
	r.source = ProgramSource{VertexGLSL: yuvVertexGLSL}

	y, u, v := constantPlanes(8, 8, 90, 128, 128)
	_, err := r.Draw(NewSurface(0, 0), y, u, v, 8, 8, 0)

	assert.ErrorIs(t, err, ErrShaderCompile)
	assert.Equal(t, 0, dev.LiveObjects())
}

func TestShaderRenderer_RecoversFromContextLoss(t *testing.T) {
	dev := NewSoftDevice()
	r := NewShaderRenderer(Config{Device: dev})
	s := NewSurface(0, 0)
	y, u, v := constantPlanes(8, 8, 90, 128, 128)

	_, err := r.Draw(s, y, u, v, 8, 8, 0)
	require.NoError(t, err)

	dev.SetLost(true)
	_, err = r.Draw(s, y, u, v, 8, 8, 0)
	assert.ErrorIs(t, err, ErrContextLost)

	dev.SetLost(false)
	_, err = r.Draw(s, y, u, v, 8, 8, 0)
	assert.NoError(t, err)
	assert.Equal(t, 5, dev.LiveObjects())
}

func TestSurface_DestroyRunsHooksOnce(t *testing.T) {
	s := NewSurface(2, 2)
	var calls []int
	s.OnDestroy(func() { calls = append(calls, 1) })
	s.OnDestroy(func() { calls = append(calls, 2) })

	s.Destroy()
	s.Destroy()
	assert.Equal(t, []int{2, 1}, calls)

	s.OnDestroy(func() { calls = append(calls, 3) })
	assert.Equal(t, []int{2, 1, 3}, calls)
}

func TestSurface_Snapshot(t *testing.T) {
	s := NewSurface(2, 2)
	s.Image().Pix[0] = 7

	snap := s.Snapshot()
	s.Image().Pix[0] = 9
	assert.Equal(t, byte(7), snap.Pix[0])

	assert.False(t, s.Resize(2, 2))
	assert.True(t, s.Resize(3, 2))
}

func TestParseBackendAndRange(t *testing.T) {
	b, err := ParseBackend("shader")
	require.NoError(t, err)
	assert.Equal(t, BackendShader, b)
	_, err = ParseBackend("vulkan")
	assert.ErrorIs(t, err, ErrUnknownBackend)

	rng, err := ParseColorRange("full")
	require.NoError(t, err)
	assert.Equal(t, RangeFull, rng)
	_, err = ParseColorRange("studio")
	assert.Error(t, err)

	_, err = New(Backend(9), Config{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
