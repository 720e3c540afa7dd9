package dsccache

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildCacheFile writes a minimal single-mapping, single-image, no-subcache
// dyld shared cache file to a temp directory and returns its path.
func buildCacheFile(t *testing.T, dylibPath string) string {
	t.Helper()

	var hdr rawHeader
	copy(hdr.Magic[:], headerMagicPrefix)

	headerSize := uint32(binary.Size(rawHeader{}))
	mappingSize := uint32(binary.Size(rawMapping{}))
	imageSize := uint32(binary.Size(rawImage{}))

	mappingOff := headerSize
	imagesOff := mappingOff + mappingSize
	pathOff := imagesOff + imageSize

	hdr.MappingOffset = mappingOff
	hdr.MappingCount = 1
	hdr.ImagesOffset = imagesOff
	hdr.ImagesCount = 1
	hdr.SubCacheArrayCount = 0

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		t.Fatalf("writing header: %v", err)
	}

	mapping := rawMapping{Address: 0x1000, Size: 0x4000, FileOffset: 0x100, MaxProt: 7, InitProt: 5}
	if err := binary.Write(buf, binary.LittleEndian, mapping); err != nil {
		t.Fatalf("writing mapping: %v", err)
	}

	img := rawImage{Address: 0x1000, PathFileOffset: pathOff}
	if err := binary.Write(buf, binary.LittleEndian, img); err != nil {
		t.Fatalf("writing image: %v", err)
	}

	buf.WriteString(dylibPath)
	buf.WriteByte(0)

	data := buf.Bytes()
	const minSize = 0x200
	if len(data) < minSize {
		data = append(data, make([]byte, minSize-len(data))...)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "dyld_shared_cache_test")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("writing cache file: %v", err)
	}
	return p
}

func TestOpenAndResolveAddress(t *testing.T) {
	const dylibPath = "/usr/lib/libfoo.dylib"
	path := buildCacheFile(t, dylibPath)

	cache, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	imgs := cache.Images()
	if len(imgs) != 1 {
		t.Fatalf("got %d images, want 1", len(imgs))
	}
	if got := imgs[0].Path(); got != dylibPath {
		t.Errorf("Path() = %q, want %q", got, dylibPath)
	}
	if got := imgs[0].Name(); got != "libfoo.dylib" {
		t.Errorf("Name() = %q, want libfoo.dylib", got)
	}

	_, headerOff := imgs[0].HeaderBytes()
	if headerOff != 0x100 {
		t.Errorf("headerOff = %#x, want 0x100", headerOff)
	}

	data, off, ok := cache.DataAndOffsetForAddress(0x1000)
	if !ok {
		t.Fatal("DataAndOffsetForAddress(0x1000): ok = false, want true")
	}
	if off != 0x100 {
		t.Errorf("offset = %#x, want 0x100", off)
	}
	if len(data) == 0 {
		t.Error("resolved data slice is empty")
	}

	if _, _, ok := cache.DataAndOffsetForAddress(0x9999); ok {
		t.Error("DataAndOffsetForAddress(0x9999): ok = true, want false (outside mapping)")
	}

	found, err := cache.Image(dylibPath)
	if err != nil {
		t.Fatalf("Image(%q): %v", dylibPath, err)
	}
	if found != imgs[0] {
		t.Error("Image() returned a different pointer than Images()[0]")
	}

	if _, err := cache.Image("/no/such/path"); err == nil {
		t.Error("Image(): want error for unknown path, got nil")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "not_a_cache")
	if err := os.WriteFile(p, make([]byte, 0x200), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := Open(p); err == nil {
		t.Fatal("Open: want error for bad magic, got nil")
	}
}
