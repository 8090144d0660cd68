package render

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	xdraw "golang.org/x/image/draw"
)

// NominalFrameDuration is the duration stamped on every decode frame.
const NominalFrameDuration = 16666 * time.Microsecond

// DecodeFrame is a planar 4:2:0 frame handed to the platform decoder. Its
// Y/Cb/Cr planes share one contiguous buffer with explicit strides.
//
// A DecodeFrame must be closed exactly once; Close returns its buffer.
type DecodeFrame struct {
	Image       *image.YCbCr
	CodedWidth  int
	CodedHeight int
	TimestampUs int64 // capture time in microseconds
	Duration    time.Duration
	rgba        *image.RGBA
	buf         []byte
	release     func(*DecodeFrame)
	closed      bool
}

// Close disposes the frame. Subsequent calls are no-ops.
func (f *DecodeFrame) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.release != nil {
		f.release(f)
	}
	f.Image = nil
	f.rgba = nil
	return nil
}

// HardwareRenderer draws through DecodeFrame objects and x/image/draw.
//
// Limited-range input is expanded to full range while packing. The packed
// frame is converted with the BT.709 matrix into an RGBA staging image that
// shares the frame's pooled buffer, then scaled into the surface.
type HardwareRenderer struct {
	cfg    Config
	now    func() time.Time
	scaler xdraw.Scaler
	pool   sync.Pool
	open   atomic.Int64

	// draw is swapped in tests to exercise failure paths.
	draw func(dst *image.RGBA, frame *DecodeFrame) error
}

// NewHardwareRenderer creates a hardware-path renderer.
func NewHardwareRenderer(cfg Config) *HardwareRenderer {
	r := &HardwareRenderer{
		cfg:    cfg,
		now:    cfg.now(),
		scaler: xdraw.ApproxBiLinear,
	}
	r.draw = r.scaleInto
	return r
}

// Backend identifies the implementation.
func (r *HardwareRenderer) Backend() Backend {
	return BackendHardware
}

// Draw packs the planes into a DecodeFrame, scales it into the surface and
// disposes the frame on every exit path.
func (r *HardwareRenderer) Draw(surface *Surface, y, u, v []byte, width, height int, captureTimestamp uint64) (Sample, error) {
	sample := Sample{BeforeDraw: r.now()}

	if surface.Destroyed() {
		sample.AfterDraw = r.now()
		return sample, ErrSurfaceDestroyed
	}
	if err := validatePlanes(y, u, v, width, height); err != nil {
		sample.AfterDraw = r.now()
		return sample, err
	}
	surface.Resize(width, height)

	frame := r.acquire(y, u, v, width, height, captureTimestamp)
	defer frame.Close()

	err := r.safeDraw(surface.Image(), frame)
	sample.AfterDraw = r.now()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HardwareRenderer.Draw",
			"width":    width,
			"height":   height,
			"error":    err.Error(),
		}).Error("Hardware draw failed")
	}
	return sample, err
}

func (r *HardwareRenderer) safeDraw(dst *image.RGBA, frame *DecodeFrame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrDrawFailed, p)
		}
	}()
	return r.draw(dst, frame)
}

func (r *HardwareRenderer) scaleInto(dst *image.RGBA, frame *DecodeFrame) error {
	ycbcrToRGBA709(frame.rgba, frame.Image)
	r.scaler.Scale(dst, dst.Bounds(), frame.rgba, frame.rgba.Bounds(), xdraw.Src, nil)
	return nil
}

// acquire packs the wire planes into a pooled contiguous buffer.
func (r *HardwareRenderer) acquire(y, u, v []byte, width, height int, captureTimestamp uint64) *DecodeFrame {
	yStride := width
	cStride := (width + 1) / 2
	cRows := (height + 1) / 2
	ySize := yStride * height
	cSize := cStride * cRows

	planes := ySize + 2*cSize
	buf := r.buffer(planes + 4*width*height)
	img := &image.YCbCr{
		Y:              buf[:ySize:ySize],
		Cb:             buf[ySize : ySize+cSize : ySize+cSize],
		Cr:             buf[ySize+cSize : ySize+2*cSize : ySize+2*cSize],
		YStride:        yStride,
		CStride:        cStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}

	limited := r.cfg.Range == RangeLimited
	lumaFn, chromaFn := identity, identity
	if limited {
		lumaFn, chromaFn = expandLuma, expandChroma
	}
	cw, ch := chromaSize(width, height)
	packPlane(img.Y, yStride, width, height, y, width, width, height, lumaFn)
	packPlane(img.Cb, cStride, cStride, cRows, u, cw, cw, ch, chromaFn)
	packPlane(img.Cr, cStride, cStride, cRows, v, cw, cw, ch, chromaFn)

	staging := &image.RGBA{
		Pix:    buf[planes:],
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}

	r.open.Add(1)
	return &DecodeFrame{
		Image:       img,
		rgba:        staging,
		CodedWidth:  width,
		CodedHeight: height,
		TimestampUs: int64(captureTimestamp) * 1000,
		Duration:    NominalFrameDuration,
		buf:         buf,
		release:     r.release,
	}
}

func (r *HardwareRenderer) buffer(size int) []byte {
	if v := r.pool.Get(); v != nil {
		b := *(v.(*[]byte))
		if cap(b) >= size {
			return b[:size]
		}
	}
	return make([]byte, size)
}

func (r *HardwareRenderer) release(f *DecodeFrame) {
	r.open.Add(-1)
	b := f.buf[:0]
	f.buf = nil
	r.pool.Put(&b)
}

// OpenFrames returns the number of decode frames not yet closed.
func (r *HardwareRenderer) OpenFrames() int64 {
	return r.open.Load()
}

// Close releases pooled buffers.
func (r *HardwareRenderer) Close() error {
	r.pool = sync.Pool{}
	return nil
}

func identity(b byte) byte { return b }

// packPlane copies a srcW×srcH plane into a dstW×dstH region, replicating
// the last column and row when the destination is larger.
func packPlane(dst []byte, dstStride, dstW, dstH int, src []byte, srcStride, srcW, srcH int, fn func(byte) byte) {
	for row := 0; row < dstH; row++ {
		sr := row
		if sr >= srcH {
			sr = srcH - 1
		}
		s := src[sr*srcStride : sr*srcStride+srcW]
		d := dst[row*dstStride : row*dstStride+dstW]
		for col := range d {
			sc := col
			if sc >= srcW {
				sc = srcW - 1
			}
			d[col] = fn(s[sc])
		}
	}
}
