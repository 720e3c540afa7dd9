package main

import (
	"os"
	"path/filepath"

	"github.com/appsworld/go-dsc/pkg/dsccache"
	"github.com/appsworld/go-dsc/pkg/extract"
)

// cacheAdapter bridges *dsccache.Cache to extract.CacheView. dsccache.Image
// already has the right method set for extract.Image; the only thing
// missing is the []*dsccache.Image -> []extract.Image conversion, since Go
// interface slices are not covariant with concrete-type slices.
type cacheAdapter struct {
	cache *dsccache.Cache
}

func (a cacheAdapter) Images() []extract.Image {
	imgs := a.cache.Images()
	out := make([]extract.Image, len(imgs))
	for i, img := range imgs {
		out[i] = img
	}
	return out
}

func (a cacheAdapter) DataAndOffsetForAddress(vmaddr uint64) ([]byte, uint64, bool) {
	return a.cache.DataAndOffsetForAddress(vmaddr)
}

// osFileWriter implements extract.FileWriter by writing to a real file,
// creating parent directories as needed.
type osFileWriter struct{}

func (osFileWriter) CreateAndWrite(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o755)
}
