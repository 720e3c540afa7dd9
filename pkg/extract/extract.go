// Package extract reconstructs a standalone Mach-O dynamic library from one
// image embedded in a Dyld Shared Cache. It knows nothing about the cache's
// on-disk container format or about memory mapping; it is handed raw bytes
// through the CacheView interface and returns a byte slice ready to be
// written to disk.
//
// The pipeline is strictly sequential and single-threaded: HeaderReader,
// then segment collection, layout planning, patching, and assembly. Nothing
// here spawns a goroutine or blocks on I/O; FileWriter is the only
// component that touches disk, and it is the caller's responsibility.
package extract

import "fmt"

// PageSize is the alignment unit for on-disk segment placement in the
// output file.
const PageSize = 0x4000

// Image is one dynamic library embedded in a cache, as seen by the core.
type Image interface {
	// Path returns the image's install-name path, e.g.
	// "/usr/lib/libsystem_c.dylib".
	Path() string
	// HeaderBytes returns the backing byte slice containing this image's
	// Mach-O header, and the offset within it where the header starts.
	HeaderBytes() (data []byte, offset int)
}

// CacheView is the collaborator that gives the core everything it needs to
// know about the cache without knowing the cache's own file format.
type CacheView interface {
	// Images enumerates every image in the cache.
	Images() []Image
	// DataAndOffsetForAddress resolves a cache virtual address to its
	// backing byte slice and the offset within that slice. ok is false if
	// addr is not covered by any mapping.
	DataAndOffsetForAddress(vmaddr uint64) (data []byte, offset uint64, ok bool)
}

// FileWriter persists an assembled dylib to disk.
type FileWriter interface {
	CreateAndWrite(path string, data []byte) error
}

// NotFoundError is returned when the requested image path does not exist
// in the cache.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("image %q not found in cache", e.Path)
}

// Extract reconstructs a standalone dylib for the image at dylibPath and
// returns its bytes, plus any non-fatal diagnostics (truncated or
// unresolved segment payloads). It does not write anything to disk; call
// FileWriter separately, or use ExtractAndWrite.
func Extract(cache CacheView, dylibPath string) ([]byte, []string, error) {
	var img Image
	for _, candidate := range cache.Images() {
		if candidate.Path() == dylibPath {
			img = candidate
			break
		}
	}
	if img == nil {
		return nil, nil, &NotFoundError{Path: dylibPath}
	}

	headerData, headerOff := img.HeaderBytes()

	cmdBuf, err := readHeader(headerData, headerOff)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing header of %s: %w", dylibPath, err)
	}

	segments, bounds, err := collectSegments(cmdBuf)
	if err != nil {
		return nil, nil, fmt.Errorf("collecting segments of %s: %w", dylibPath, err)
	}

	linkedit := findLinkedit(segments)
	if linkedit == nil {
		return nil, nil, fmt.Errorf("%s: no __LINKEDIT segment", dylibPath)
	}

	plan, err := planLayout(segments, bounds, *linkedit)
	if err != nil {
		return nil, nil, fmt.Errorf("planning layout of %s: %w", dylibPath, err)
	}

	if err := patch(cmdBuf, plan); err != nil {
		return nil, nil, fmt.Errorf("patching %s: %w", dylibPath, err)
	}

	out, warnings, err := assemble(cache, cmdBuf, plan)
	if err != nil {
		return nil, nil, fmt.Errorf("assembling %s: %w", dylibPath, err)
	}

	return out, warnings, nil
}

// ExtractAndWrite extracts dylibPath and writes it to outputPath via w.
func ExtractAndWrite(cache CacheView, dylibPath, outputPath string, w FileWriter) (int, []string, error) {
	data, warnings, err := Extract(cache, dylibPath)
	if err != nil {
		return 0, nil, err
	}
	if err := w.CreateAndWrite(outputPath, data); err != nil {
		return 0, warnings, fmt.Errorf("writing %s: %w", outputPath, err)
	}
	return len(data), warnings, nil
}

// AlignUp rounds x up to the next multiple of a. a must be a power of two.
func AlignUp(x, a uint64) uint64 {
	return (x + a - 1) &^ (a - 1)
}
