package extract

import (
	"encoding/binary"
	"testing"

	"github.com/appsworld/go-dsc/types"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		x, align, want uint64
	}{
		{0, PageSize, 0},
		{1, PageSize, PageSize},
		{PageSize, PageSize, PageSize},
		{PageSize + 1, PageSize, 2 * PageSize},
		{0x10, 0x10, 0x10},
		{0x11, 0x10, 0x20},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.x, tt.align); got != tt.want {
			t.Errorf("AlignUp(%#x, %#x) = %#x, want %#x", tt.x, tt.align, got, tt.want)
		}
	}
}

func TestPushBound(t *testing.T) {
	var bounds []linkeditBound
	pushBound(&bounds, 0, 100)  // off==0, dropped
	pushBound(&bounds, 100, 0)  // size==0, dropped
	pushBound(&bounds, 100, 50) // kept

	if len(bounds) != 1 {
		t.Fatalf("got %d bounds, want 1", len(bounds))
	}
	if bounds[0].off != 100 || bounds[0].end != 150 {
		t.Errorf("bound = %+v, want {100 150}", bounds[0])
	}
}

// buildFixture constructs a minimal synthetic dylib image:
//   __TEXT     vmaddr=0x0000 fileoff=0x0000 size=0x4000 (no sections)
//   __DATA     vmaddr=0x4000 fileoff=0x9000 size=0x1000 (one regular section)
//   __LINKEDIT vmaddr=0x5000 fileoff=0x5000 size=0x2000
//   LC_SYMTAB: symoff=0x5100 nsyms=2 (32B) stroff=0x5140 strsize=0x20
// and wraps the whole thing in a fakeCache backed by a single identity-
// mapped buffer where cache vmaddr N is stored at data[N].
func buildFixture(t *testing.T, extraCmds func(buf []byte, at int) int) (*fakeCache, string) {
	t.Helper()

	const fileLen = 0x8000
	data := make([]byte, fileLen)

	const ncmdsFixed = 4 // __TEXT, __DATA, __LINKEDIT, LC_SYMTAB
	header := make([]byte, machHeader64Size)

	pos := machHeader64Size
	pos = writeSegmentCmd(header2(&header, pos), pos, "__TEXT", 0, 0x4000, 0, 0x4000, nil)
	// __DATA's old fileoff (0x9000) deliberately differs from where it will
	// be relaid out (0x4000, right after __TEXT) so the section offset
	// rebase path (delta != 0) is actually exercised.
	pos = writeSegmentCmd(header2(&header, pos), pos, "__DATA", 0x4000, 0x1000, 0x9000, 0x1000, []testSection{
		{name: "__data", seg: "__DATA", addr: 0x4010, size: 0x100, offset: 0x9010, reloff: 0, flags: 0},
	})
	pos = writeSegmentCmd(header2(&header, pos), pos, "__LINKEDIT", 0x5000, 0x2000, 0x5000, 0x2000, nil)
	pos = writeSymtabCmd(header2(&header, pos), pos, 0x5100, 2, 0x5140, 0x20)

	ncmds := ncmdsFixed
	if extraCmds != nil {
		newPos := extraCmds(header2(&header, pos), pos)
		if newPos != pos {
			ncmds++
			pos = newPos
		}
	}

	writeMachHeader(header, uint32(ncmds), uint32(pos-machHeader64Size))

	copy(data[0:], header)

	img := &fakeImage{path: "/usr/lib/libfixture.dylib", data: data[:pos], headerOff: 0}
	cache := &fakeCache{images: []Image{img}, data: data}
	return cache, img.path
}

// header2 grows buf (if needed) so writers can index up to 'upto' and
// returns buf itself; used to let writeSegmentCmd/writeSymtabCmd write
// directly into the shared header scratch slice as it grows.
func header2(buf *[]byte, upto int) []byte {
	need := upto + 256 // generous headroom for one more command
	if len(*buf) < need {
		grown := make([]byte, need)
		copy(grown, *buf)
		*buf = grown
	}
	return *buf
}

func TestExtractMinimalImage(t *testing.T) {
	cache, path := buildFixture(t, nil)

	out, warnings, err := Extract(cache, path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	magic := binary.LittleEndian.Uint32(out[0:])
	if magic != uint32(types.Magic64) {
		t.Fatalf("output magic = %#x, want %#x", magic, uint32(types.Magic64))
	}

	flags := binary.LittleEndian.Uint32(out[24:])
	if flags&uint32(types.DylibInCache) != 0 {
		t.Errorf("MH_DYLIB_IN_CACHE still set in output flags %#x", flags)
	}

	// __TEXT must start at file offset 0.
	textFileoff := binary.LittleEndian.Uint64(out[machHeader64Size+40:])
	if textFileoff != 0 {
		t.Errorf("__TEXT fileoff = %#x, want 0", textFileoff)
	}

	// __LINKEDIT's new size must equal maxEnd-minOff = 0x5160-0x5100 = 0x60.
	cb := &commandBuffer{buf: out, ncmds: binary.LittleEndian.Uint32(out[16:]), sizeofcmds: binary.LittleEndian.Uint32(out[20:])}
	cmds, err := cb.commands()
	if err != nil {
		t.Fatalf("parsing output commands: %v", err)
	}
	var gotLinkedit bool
	var gotSymtabOff, gotSymtabSize uint32
	for _, c := range cmds {
		if c.tag == types.LC_SEGMENT_64 {
			name := cString16(out[c.offset+8 : c.offset+24])
			if name == "__LINKEDIT" {
				gotLinkedit = true
				filesize := binary.LittleEndian.Uint64(out[c.offset+48:])
				if filesize != 0x60 {
					t.Errorf("__LINKEDIT filesize = %#x, want 0x60", filesize)
				}
			}
		}
		if c.tag == types.LC_SYMTAB {
			gotSymtabOff = binary.LittleEndian.Uint32(out[c.offset+8:])
			gotSymtabSize = binary.LittleEndian.Uint32(out[c.offset+12:])
		}
	}
	if !gotLinkedit {
		t.Fatal("no __LINKEDIT segment found in output")
	}
	// symoff rebased to new linkedit fileoff + (0x5100-0x5100) = linkedit's new fileoff.
	if gotSymtabOff == 0 {
		t.Errorf("symoff was zeroed, want rebased")
	}
	if gotSymtabSize != 2 {
		t.Errorf("nsyms = %d, want 2", gotSymtabSize)
	}
}

// dataSectionOffset parses out and returns the __DATA segment's single
// section's patched offset field.
func dataSectionOffset(t *testing.T, out []byte) uint32 {
	t.Helper()
	cb := &commandBuffer{buf: out, ncmds: binary.LittleEndian.Uint32(out[16:]), sizeofcmds: binary.LittleEndian.Uint32(out[20:])}
	cmds, err := cb.commands()
	if err != nil {
		t.Fatalf("parsing output commands: %v", err)
	}
	for _, c := range cmds {
		if c.tag != types.LC_SEGMENT_64 {
			continue
		}
		if cString16(out[c.offset+8:c.offset+24]) != "__DATA" {
			continue
		}
		so := c.offset + segCmdSectionsStart
		return binary.LittleEndian.Uint32(out[so+48:])
	}
	t.Fatal("__DATA segment not found in output")
	return 0
}

func TestExtractSectionOffsetRebased(t *testing.T) {
	cache, path := buildFixture(t, nil)

	out, _, err := Extract(cache, path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// __DATA moves from oldFileoff 0x9000 to newFileoff 0x4000 (delta
	// -0x5000); the section's offset 0x9010 must shift by the same delta.
	if got := dataSectionOffset(t, out); got != 0x4010 {
		t.Errorf("__data section offset = %#x, want 0x4010 (rebased by segment delta)", got)
	}
}

func TestExtractStaleOffsetZeroed(t *testing.T) {
	cache, path := buildFixture(t, func(buf []byte, at int) int {
		// LC_FUNCTION_STARTS with dataoff!=0 but datasize==0: a stale
		// offset the patch rule must zero out, not rebase.
		return writeFunctionStartsCmd(buf, at, 0x5105, 0)
	})

	out, _, err := Extract(cache, path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	cb := &commandBuffer{buf: out, ncmds: binary.LittleEndian.Uint32(out[16:]), sizeofcmds: binary.LittleEndian.Uint32(out[20:])}
	cmds, err := cb.commands()
	if err != nil {
		t.Fatalf("parsing output commands: %v", err)
	}
	var found bool
	for _, c := range cmds {
		if c.tag == types.LC_FUNCTION_STARTS {
			found = true
			dataoff := binary.LittleEndian.Uint32(out[c.offset+8:])
			if dataoff != 0 {
				t.Errorf("LC_FUNCTION_STARTS dataoff = %#x, want 0 (stale offset with zero size must be cleared)", dataoff)
			}
		}
	}
	if !found {
		t.Fatal("LC_FUNCTION_STARTS not found in output")
	}
}

func TestExtractMissingLinkeditFails(t *testing.T) {
	const fileLen = 0x2000
	data := make([]byte, fileLen)
	header := make([]byte, machHeader64Size)
	pos := machHeader64Size
	header = header2(&header, pos)
	pos = writeSegmentCmd(header, pos, "__TEXT", 0, 0x1000, 0, 0x1000, nil)
	writeMachHeader(header, 1, uint32(pos-machHeader64Size))
	copy(data, header)

	img := &fakeImage{path: "/usr/lib/libnolinkedit.dylib", data: data[:pos], headerOff: 0}
	cache := &fakeCache{images: []Image{img}, data: data}

	_, _, err := Extract(cache, img.path)
	if err == nil {
		t.Fatal("Extract: want error for image with no __LINKEDIT, got nil")
	}
}

func TestExtractUnknownPathFails(t *testing.T) {
	cache, _ := buildFixture(t, nil)
	_, _, err := Extract(cache, "/not/present.dylib")
	if err == nil {
		t.Fatal("Extract: want error for unknown dylib path, got nil")
	}
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("err = %T, want *NotFoundError", err)
	}
}
