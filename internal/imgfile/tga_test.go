package imgfile

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeTestTGA(t *testing.T, w, h, depth int) string {
	t.Helper()
	header := make([]byte, tgaHeaderSize)
	header[2] = tgaTruecolor
	binary.LittleEndian.PutUint16(header[12:14], uint16(w))
	binary.LittleEndian.PutUint16(header[14:16], uint16(h))
	header[16] = byte(depth * 8)

	pixels := make([]byte, w*h*depth)
	for i := range pixels {
		pixels[i] = byte(i)
	}

	path := filepath.Join(t.TempDir(), "test.tga")
	if err := os.WriteFile(path, append(header, pixels...), 0o644); err != nil {
		t.Fatalf("write tga: %v", err)
	}
	return path
}

func TestLoadTruecolorTGA(t *testing.T) {
	path := writeTestTGA(t, 4, 2, 3)
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Width != 4 || img.Height != 2 || img.Depth != 3 {
		t.Fatalf("unexpected dims: %+v", img)
	}
	if len(img.Pixels) != 4*2*3 {
		t.Fatalf("unexpected pixel length: %d", len(img.Pixels))
	}
}

func TestLoadRejectsUnsupportedType(t *testing.T) {
	header := make([]byte, tgaHeaderSize)
	header[2] = 1 // colormapped, not truecolor
	path := filepath.Join(t.TempDir(), "bad.tga")
	if err := os.WriteFile(path, header, 0o644); err != nil {
		t.Fatalf("write tga: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for unsupported tga type")
	}
}
