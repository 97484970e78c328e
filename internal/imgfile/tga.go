// Package imgfile decodes the uncompressed truecolor TGA images this node
// serves, returning raw pixel bytes in the layout the image-client wire
// protocol expects (width, height, depth, format, pixels).
package imgfile

import (
	"encoding/binary"
	"fmt"
	"os"
)

// tgaTruecolor is the only TGA image type this loader accepts: 2
// (uncompressed, truecolor). Colormapped and RLE-compressed images are
// out of scope.
const tgaTruecolor = 2

const tgaHeaderSize = 18

// Image is a decoded image ready to stream to an image client.
type Image struct {
	Width, Height int
	Depth         int // bytes per pixel
	Format        uint16
	Pixels        []byte
}

// ErrUnsupportedFormat is returned for any TGA file this minimal decoder
// cannot handle (colormapped, RLE-compressed, or non-24/32-bit).
var ErrUnsupportedFormat = fmt.Errorf("imgfile: unsupported tga format")

// Load reads and decodes an uncompressed truecolor TGA file from path.
func Load(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("imgfile: read %s: %w", path, err)
	}
	if len(data) < tgaHeaderSize {
		return Image{}, fmt.Errorf("imgfile: %s: %w", path, ErrUnsupportedFormat)
	}

	idLen := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(binary.LittleEndian.Uint16(data[12:14]))
	height := int(binary.LittleEndian.Uint16(data[14:16]))
	pixelDepth := int(data[16])

	if colorMapType != 0 || imageType != tgaTruecolor {
		return Image{}, fmt.Errorf("imgfile: %s: %w", path, ErrUnsupportedFormat)
	}
	if pixelDepth != 24 && pixelDepth != 32 {
		return Image{}, fmt.Errorf("imgfile: %s: %w", path, ErrUnsupportedFormat)
	}

	depth := pixelDepth / 8
	pixelsOff := tgaHeaderSize + idLen
	want := width * height * depth
	if pixelsOff+want > len(data) {
		return Image{}, fmt.Errorf("imgfile: %s: truncated pixel data", path)
	}

	pixels := make([]byte, want)
	copy(pixels, data[pixelsOff:pixelsOff+want])

	return Image{
		Width:  width,
		Height: height,
		Depth:  depth,
		Format: uint16(pixelDepth),
		Pixels: pixels,
	}, nil
}
