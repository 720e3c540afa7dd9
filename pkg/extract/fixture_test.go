package extract

import (
	"encoding/binary"

	"github.com/appsworld/go-dsc/types"
)

// fakeImage is a minimal extract.Image backed by an in-memory byte slice,
// used to drive the extractor without a real cache container.
type fakeImage struct {
	path      string
	data      []byte
	headerOff int
}

func (f *fakeImage) Path() string                      { return f.path }
func (f *fakeImage) HeaderBytes() ([]byte, int)         { return f.data, f.headerOff }

// fakeCache is a single-mapping CacheView where cache virtual address N is
// always backed by data[N], matching the fixtures built below.
type fakeCache struct {
	images []Image
	data   []byte
}

func (c *fakeCache) Images() []Image { return c.images }

func (c *fakeCache) DataAndOffsetForAddress(vmaddr uint64) ([]byte, uint64, bool) {
	if vmaddr >= uint64(len(c.data)) {
		return nil, 0, false
	}
	return c.data, vmaddr, true
}

// testSection describes one section to embed in a synthetic LC_SEGMENT_64.
type testSection struct {
	name    string
	seg     string
	addr    uint64
	size    uint64
	offset  uint32
	reloff  uint32
	flags   types.SectionFlag
}

func put16(b []byte, s string) {
	copy(b, s)
}

func writeSegmentCmd(buf []byte, at int, name string, vmaddr, vmsize, fileoff, filesize uint64, sects []testSection) int {
	o := binary.LittleEndian
	cmdsize := uint32(segCmdSectionsStart + len(sects)*section64Size)
	o.PutUint32(buf[at+0:], uint32(types.LC_SEGMENT_64))
	o.PutUint32(buf[at+4:], cmdsize)
	put16(buf[at+8:at+24], name)
	o.PutUint64(buf[at+24:], vmaddr)
	o.PutUint64(buf[at+32:], vmsize)
	o.PutUint64(buf[at+40:], fileoff)
	o.PutUint64(buf[at+48:], filesize)
	o.PutUint32(buf[at+56:], 7) // maxprot
	o.PutUint32(buf[at+60:], 5) // initprot
	o.PutUint32(buf[at+64:], uint32(len(sects)))
	o.PutUint32(buf[at+68:], 0) // flags

	for i, s := range sects {
		so := at + segCmdSectionsStart + i*section64Size
		put16(buf[so+0:so+16], s.name)
		put16(buf[so+16:so+32], s.seg)
		o.PutUint64(buf[so+32:], s.addr)
		o.PutUint64(buf[so+40:], s.size)
		o.PutUint32(buf[so+48:], s.offset)
		o.PutUint32(buf[so+52:], 0) // align
		o.PutUint32(buf[so+56:], s.reloff)
		o.PutUint32(buf[so+60:], 0) // nreloc
		o.PutUint32(buf[so+64:], uint32(s.flags))
	}

	return at + int(cmdsize)
}

func writeSymtabCmd(buf []byte, at int, symoff, nsyms, stroff, strsize uint32) int {
	o := binary.LittleEndian
	const cmdsize = 24
	o.PutUint32(buf[at+0:], uint32(types.LC_SYMTAB))
	o.PutUint32(buf[at+4:], cmdsize)
	o.PutUint32(buf[at+8:], symoff)
	o.PutUint32(buf[at+12:], nsyms)
	o.PutUint32(buf[at+16:], stroff)
	o.PutUint32(buf[at+20:], strsize)
	return at + cmdsize
}

func writeFunctionStartsCmd(buf []byte, at int, dataoff, datasize uint32) int {
	o := binary.LittleEndian
	const cmdsize = 16
	o.PutUint32(buf[at+0:], uint32(types.LC_FUNCTION_STARTS))
	o.PutUint32(buf[at+4:], cmdsize)
	o.PutUint32(buf[at+8:], dataoff)
	o.PutUint32(buf[at+12:], datasize)
	return at + cmdsize
}

func writeMachHeader(buf []byte, ncmds uint32, sizeofcmds uint32) {
	o := binary.LittleEndian
	o.PutUint32(buf[0:], uint32(types.Magic64))
	o.PutUint32(buf[4:], 0x0100000c) // cputype: arm64
	o.PutUint32(buf[8:], 0)
	o.PutUint32(buf[12:], uint32(types.MH_DYLIB))
	o.PutUint32(buf[16:], ncmds)
	o.PutUint32(buf[20:], sizeofcmds)
	o.PutUint32(buf[24:], uint32(types.DylibInCache))
	o.PutUint32(buf[28:], 0)
}
