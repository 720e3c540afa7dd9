package main

import (
	"bytes"
	"io"

	macho "github.com/appsworld/go-dsc"
	"github.com/appsworld/go-dsc/types"
)

// openImageMacho parses an in-cache image's Mach-O header the same way the
// library parses a fileset entry embedded in a host binary (FilesetEntry,
// GetFileSetFileByName): the command stream's fileoff fields are offsets
// into the whole backing blob, not relative to where the header starts, so
// the header is read through a section reader positioned at headerOff while
// the SectionReader/CacheReader configured on the File stay anchored at
// absolute offset 0.
func openImageMacho(data []byte, headerOff int) (*macho.File, error) {
	base := types.NewCustomSectionReader(bytes.NewReader(data), nil, 0, int64(len(data)))

	return macho.NewFile(io.NewSectionReader(base, int64(headerOff), int64(len(data)-headerOff)), macho.FileConfig{
		Offset:        int64(headerOff),
		SectionReader: base,
		CacheReader:   base,
	})
}
