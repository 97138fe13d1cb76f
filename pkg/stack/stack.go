// Package stack is a local-filesystem storage collaborator for the
// alignment core: it loads an ordered serial-section stack from a
// directory of grayscale images and persists aligned outputs back to
// disk. It implements the narrow read-chunk/write-chunk interfaces the
// aligner consumes, standing in for whatever volumetric store a larger
// deployment would use.
package stack

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"emalign/internal/models"
	"emalign/pkg/chunk"
	"emalign/pkg/field"
)

// DirStack serves image chunks from a directory of section images.
// Filenames are ordered by the first number they contain, which becomes
// the section's Z index offset. Reads outside a section's bounds are
// zero-filled, so padded tile regions can extend past the stack edges.
type DirStack struct {
	stack    models.Stack
	sections map[int]*field.Tensor
}

// Load reads every .jpg, .jpeg, and .png file in dir as a grayscale
// section, sorted numerically by filename.
func Load(dir string) (*DirStack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("stack: reading %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("stack: no section images found in %s", dir)
	}

	// Numeric filename order preserves the anatomical section order.
	sort.Slice(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})

	ds := &DirStack{sections: make(map[int]*field.Tensor)}
	for z, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("stack: loading %s: %w", name, err)
		}
		t := imageToTensor(img)
		if z == 0 {
			ds.stack.Width = t.W()
			ds.stack.Height = t.H()
		} else if t.W() != ds.stack.Width || t.H() != ds.stack.Height {
			return nil, fmt.Errorf("stack: section %s is %dx%d, stack is %dx%d",
				name, t.W(), t.H(), ds.stack.Width, ds.stack.Height)
		}
		ds.sections[z] = t
		ds.stack.Sections = append(ds.stack.Sections, models.Section{
			Z:        z,
			Filename: name,
			Width:    t.W(),
			Height:   t.H(),
		})
	}
	return ds, nil
}

// Info returns the stack descriptor.
func (ds *DirStack) Info() models.Stack { return ds.stack }

// Bounds returns the full-stack bounding box at mip 0.
func (ds *DirStack) Bounds() chunk.BoundingBox {
	return chunk.BoundingBox{XStop: ds.stack.Width, YStop: ds.stack.Height}
}

// ReadChunk extracts the given region of section z, zero-filling pixels
// outside the section bounds.
func (ds *DirStack) ReadChunk(ctx context.Context, z int, region chunk.BoundingBox) (*field.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, ok := ds.sections[z]
	if !ok {
		return nil, fmt.Errorf("stack: no section at z=%d", z)
	}
	if region.Mip != 0 {
		return nil, fmt.Errorf("stack: directory stacks hold mip 0 only, requested mip %d", region.Mip)
	}
	return ExtractRegion(src, region), nil
}

// ExtractRegion copies a bounding region out of a tensor whose origin is
// pixel (0,0), zero-filling anything outside the tensor.
func ExtractRegion(src *field.Tensor, region chunk.BoundingBox) *field.Tensor {
	out := field.NewTensor(src.N(), src.C(), region.Height(), region.Width())
	for n := 0; n < src.N(); n++ {
		for c := 0; c < src.C(); c++ {
			for y := 0; y < region.Height(); y++ {
				sy := region.YStart + y
				if sy < 0 || sy >= src.H() {
					continue
				}
				for x := 0; x < region.Width(); x++ {
					sx := region.XStart + x
					if sx < 0 || sx >= src.W() {
						continue
					}
					out.Set(n, c, y, x, src.At(n, c, sy, sx))
				}
			}
		}
	}
	return out
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	numStr := ""
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}
	if numStr != "" {
		if num, err := strconv.Atoi(numStr); err == nil {
			return num
		}
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// imageToTensor converts an image to a (1, 1, H, W) tensor in [0, 1].
func imageToTensor(img image.Image) *field.Tensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	t := field.NewTensor(1, 1, h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, _, _, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			t.Set(0, 0, y, x, float64(r)/65535.0)
		}
	}
	return t
}

// TensorToImage converts the first channel of batch element 0 to a 16-bit
// grayscale image, clamping values into [0, 1].
func TensorToImage(t *field.Tensor) image.Image {
	img := image.NewGray16(image.Rect(0, 0, t.W(), t.H()))
	for y := 0; y < t.H(); y++ {
		for x := 0; x < t.W(); x++ {
			v := t.At(0, 0, y, x)
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535.0)})
		}
	}
	return img
}

// SaveImage writes a tensor as a JPEG or PNG image, chosen by extension.
func SaveImage(t *field.Tensor, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	img := TensorToImage(t)
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return png.Encode(file, img)
	}
	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}
