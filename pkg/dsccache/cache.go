// Package dsccache reads a Dyld Shared Cache container: the header, the
// mapping table, the image table, and the chain of sibling subcache files
// that together back one address space. It plays the CacheView collaborator
// role for pkg/extract: given a virtual address it returns the backing bytes
// and the offset within them, and it enumerates images by path.
//
// This is not a complete reader for every historical cache layout dyld has
// shipped; it covers the single-mapping and multi-subcache layouts needed to
// resolve addresses and list images, and nothing beyond that.
package dsccache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

const headerMagicPrefix = "dyld_v1"

// rawHeader is the fixed-size prefix of a dyld shared cache file. Field
// names follow dyld's own dyld_cache_header; only the fields this package
// needs to resolve mappings, images, and subcaches are kept.
type rawHeader struct {
	Magic               [16]byte
	MappingOffset       uint32
	MappingCount        uint32
	ImagesOffsetOld     uint32
	ImagesCountOld      uint32
	DyldBaseAddress     uint64
	CodeSignatureOffset uint64
	CodeSignatureSize   uint64
	SlideInfoOffsetOld  uint64
	SlideInfoSizeOld    uint64
	LocalSymbolsOffset  uint64
	LocalSymbolsSize    uint64
	UUID                [16]byte
	CacheType           uint64
	SubCacheArrayOffset uint32
	SubCacheArrayCount  uint32
	SymbolFileUUID      [16]byte
	ImagesOffset        uint32
	ImagesCount         uint32
}

// rawMapping is one contiguous VM mapping backed by this cache file.
type rawMapping struct {
	Address    uint64
	Size       uint64
	FileOffset uint64
	MaxProt    uint32
	InitProt   uint32
}

// rawImage is one image entry: its load address and the file offset of its
// NUL-terminated install-name path.
type rawImage struct {
	Address        uint64
	PathFileOffset uint32
	Pad            uint32
}

// rawSubcacheEntry names a sibling file by the suffix appended to the main
// cache's path (".1", ".2", ".symbols", etc).
type rawSubcacheEntry struct {
	UUID       [16]byte
	VMOffset   uint64
	FileSuffix [32]byte
}

// Mapping is one mapped region of a cache (or one of its subcaches),
// together with the backing bytes of the file it came from.
type Mapping struct {
	Address    uint64
	Size       uint64
	FileOffset uint64
	bytes      []byte
}

// Image is one dynamic library embedded in the cache.
type Image struct {
	path      string
	LoadAddr  uint64
	headerOff int
	mapping   *Mapping
}

// Cache is an opened Dyld Shared Cache: the main file plus every subcache
// file whose suffix was listed in the main header's subcache array.
type Cache struct {
	mappings []*Mapping
	images   []*Image
}

// Open reads path and every subcache file it references, and returns a
// Cache ready for image enumeration and address resolution.
func Open(path string) (*Cache, error) {
	main, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cache header: %w", err)
	}

	c := &Cache{mappings: main.mappings, images: main.images}

	for _, suffix := range main.subcacheSuffixes {
		subPath := path + suffix
		sub, err := loadFile(subPath)
		if err != nil {
			return nil, fmt.Errorf("reading subcache %s: %w", subPath, err)
		}
		c.mappings = append(c.mappings, sub.mappings...)
		c.images = append(c.images, sub.images...)
	}

	return c, nil
}

type loadedFile struct {
	mappings         []*Mapping
	images           []*Image
	subcacheSuffixes []string
}

func loadFile(path string) (*loadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	r := bytes.NewReader(data)
	var hdr rawHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("short cache header: %w", err)
	}
	if !bytes.HasPrefix(hdr.Magic[:], []byte(headerMagicPrefix)) {
		return nil, fmt.Errorf("bad cache magic %q", hdr.Magic)
	}

	lf := &loadedFile{}

	mappingCount := int(hdr.MappingCount)
	mr := bytes.NewReader(data[hdr.MappingOffset:])
	for i := 0; i < mappingCount; i++ {
		var rm rawMapping
		if err := binary.Read(mr, binary.LittleEndian, &rm); err != nil {
			return nil, fmt.Errorf("short mapping table entry %d: %w", i, err)
		}
		lf.mappings = append(lf.mappings, &Mapping{
			Address:    rm.Address,
			Size:       rm.Size,
			FileOffset: rm.FileOffset,
			bytes:      data,
		})
	}

	imagesOffset, imagesCount := hdr.ImagesOffset, hdr.ImagesCount
	if imagesCount == 0 {
		imagesOffset, imagesCount = hdr.ImagesOffsetOld, hdr.ImagesCountOld
	}
	ir := bytes.NewReader(data[imagesOffset:])
	for i := uint32(0); i < imagesCount; i++ {
		var ri rawImage
		if err := binary.Read(ir, binary.LittleEndian, &ri); err != nil {
			return nil, fmt.Errorf("short image table entry %d: %w", i, err)
		}
		path, err := cString(data, int(ri.PathFileOffset))
		if err != nil {
			return nil, fmt.Errorf("image %d path: %w", i, err)
		}
		headerOff, m := resolve(lf.mappings, ri.Address)
		if m == nil {
			return nil, fmt.Errorf("image %s: load address %#x not covered by any mapping", path, ri.Address)
		}
		lf.images = append(lf.images, &Image{
			path:      path,
			LoadAddr:  ri.Address,
			headerOff: headerOff,
			mapping:   m,
		})
	}

	if hdr.SubCacheArrayCount > 0 {
		sr := bytes.NewReader(data[hdr.SubCacheArrayOffset:])
		for i := uint32(0); i < hdr.SubCacheArrayCount; i++ {
			var se rawSubcacheEntry
			if err := binary.Read(sr, binary.LittleEndian, &se); err != nil {
				return nil, fmt.Errorf("short subcache entry %d: %w", i, err)
			}
			suffix := cStringFromFixed(se.FileSuffix[:])
			if suffix == "" {
				suffix = fmt.Sprintf(".%d", i+1)
			}
			lf.subcacheSuffixes = append(lf.subcacheSuffixes, suffix)
		}
	}

	return lf, nil
}

func cString(data []byte, off int) (string, error) {
	if off < 0 || off >= len(data) {
		return "", fmt.Errorf("offset %#x out of range", off)
	}
	end := bytes.IndexByte(data[off:], 0)
	if end == -1 {
		return "", fmt.Errorf("unterminated string at offset %#x", off)
	}
	return string(data[off : off+end]), nil
}

func cStringFromFixed(b []byte) string {
	if i := bytes.IndexByte(b, 0); i != -1 {
		b = b[:i]
	}
	return string(b)
}

func resolve(mappings []*Mapping, addr uint64) (int, *Mapping) {
	for _, m := range mappings {
		if addr >= m.Address && addr < m.Address+m.Size {
			off := m.FileOffset + (addr - m.Address)
			return int(off), m
		}
	}
	return 0, nil
}

// Images returns every image in the cache, in the table's original order.
func (c *Cache) Images() []*Image {
	return c.images
}

// Path returns the image's dylib install-name path, e.g.
// "/usr/lib/libsystem_c.dylib".
func (img *Image) Path() string {
	return img.path
}

// Name returns the basename of the image's path.
func (img *Image) Name() string {
	return filepath.Base(img.path)
}

// HeaderBytes returns the backing byte slice that holds this image's
// Mach-O header, along with the offset within that slice where the header
// begins.
func (img *Image) HeaderBytes() ([]byte, int) {
	return img.mapping.bytes, img.headerOff
}

// Image looks up an image by its exact install-name path.
func (c *Cache) Image(path string) (*Image, error) {
	for _, img := range c.images {
		if img.path == path {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image %q not found in cache", path)
}

// DataAndOffsetForAddress resolves a cache virtual address to its backing
// byte slice and the offset within that slice of the byte stored for vmaddr.
// ok is false if vmaddr is not covered by any mapping in this cache or its
// subcaches.
func (c *Cache) DataAndOffsetForAddress(vmaddr uint64) (data []byte, offset uint64, ok bool) {
	for _, m := range c.mappings {
		if vmaddr >= m.Address && vmaddr < m.Address+m.Size {
			return m.bytes, m.FileOffset + (vmaddr - m.Address), true
		}
	}
	return nil, 0, false
}
