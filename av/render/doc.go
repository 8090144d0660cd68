// Package render draws assembled planar 4:2:0 frames onto a Surface.
//
// Two interchangeable backends implement Renderer:
//
//   - HardwareRenderer packs the planes into one contiguous buffer, wraps it
//     in a DecodeFrame (an image.YCbCr tagged 4:2:0 with a microsecond
//     timestamp and a nominal 16.6ms duration) and scales it into the
//     surface with golang.org/x/image/draw. The frame is disposed on every
//     exit path.
//   - ShaderRenderer keeps one GPU context per surface: a compiled YUV→RGB
//     program, a unit quad and three single-channel textures. Texture
//     storage is reused across frames and reallocated only when plane
//     dimensions change. The fragment stage applies BT.709 with a
//     limited/full range toggle and clamps to [0,1].
//
// The backend is chosen once, at construction:
//
//	r, err := render.New(render.BackendShader, render.Config{Range: render.RangeLimited})
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	surface := render.NewSurface(0, 0)
//	defer surface.Destroy()
//
//	sample, err := r.Draw(surface, y, u, v, width, height, captureTs)
//
// Draw resizes the surface when the frame dimensions change. Draws on one
// surface must not overlap.
package render
