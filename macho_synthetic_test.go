package macho

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildSyntheticMachO writes a minimal well-formed 64-bit little-endian
// Mach-O dylib: a bare __TEXT segment, and a __DATA segment with one
// regular section, no symbol table.
func buildSyntheticMachO(t *testing.T) []byte {
	t.Helper()
	o := binary.LittleEndian

	const (
		segCmdSize  = 72
		sectSize    = 80
		textCmdSize = segCmdSize
		dataCmdSize = segCmdSize + sectSize
	)
	sizeofcmds := uint32(textCmdSize + dataCmdSize)

	buf := make([]byte, 32+int(sizeofcmds))
	o.PutUint32(buf[0:], 0xfeedfacf) // Magic64
	o.PutUint32(buf[4:], 0x0100000c) // CPU: arm64
	o.PutUint32(buf[8:], 0)          // SubCPU
	o.PutUint32(buf[12:], 0x6)       // MH_DYLIB
	o.PutUint32(buf[16:], 2)         // NCommands
	o.PutUint32(buf[20:], sizeofcmds)
	o.PutUint32(buf[24:], 0) // Flags
	o.PutUint32(buf[28:], 0) // Reserved

	var pos int
	o.PutUint32(buf[32+0:], 0x19)
	o.PutUint32(buf[32+4:], textCmdSize)
	copy(buf[32+8:32+24], "__TEXT")
	o.PutUint64(buf[32+24:], 0)
	o.PutUint64(buf[32+32:], 0x4000)
	o.PutUint64(buf[32+40:], 0)
	o.PutUint64(buf[32+48:], 0x4000)
	o.PutUint32(buf[32+56:], 7)
	o.PutUint32(buf[32+60:], 5)
	o.PutUint32(buf[32+64:], 0)
	o.PutUint32(buf[32+68:], 0)
	pos = 32 + textCmdSize

	dataAt := pos
	o.PutUint32(buf[dataAt+0:], 0x19)
	o.PutUint32(buf[dataAt+4:], uint32(dataCmdSize))
	copy(buf[dataAt+8:dataAt+24], "__DATA")
	o.PutUint64(buf[dataAt+24:], 0x4000)
	o.PutUint64(buf[dataAt+32:], 0x1000)
	o.PutUint64(buf[dataAt+40:], 0x4000)
	o.PutUint64(buf[dataAt+48:], 0x1000)
	o.PutUint32(buf[dataAt+56:], 7)
	o.PutUint32(buf[dataAt+60:], 5)
	o.PutUint32(buf[dataAt+64:], 1)
	o.PutUint32(buf[dataAt+68:], 0)

	secAt := dataAt + segCmdSize
	copy(buf[secAt+0:secAt+16], "__data")
	copy(buf[secAt+16:secAt+32], "__DATA")
	o.PutUint64(buf[secAt+32:], 0x4010)
	o.PutUint64(buf[secAt+40:], 0x100)
	o.PutUint32(buf[secAt+48:], 0x4010)
	o.PutUint32(buf[secAt+52:], 0) // align
	o.PutUint32(buf[secAt+56:], 0) // reloff
	o.PutUint32(buf[secAt+60:], 0) // nreloc
	o.PutUint32(buf[secAt+64:], 0) // S_REGULAR

	return buf
}

func TestNewFileSyntheticSegmentsAndSections(t *testing.T) {
	raw := buildSyntheticMachO(t)
	f, err := NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	segs := f.Segments()
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}

	text := f.Segment("__TEXT")
	if text == nil {
		t.Fatal("no __TEXT segment")
	}
	if text.Filesz != 0x4000 {
		t.Errorf("__TEXT Filesz = %#x, want 0x4000", text.Filesz)
	}

	data := f.Segment("__DATA")
	if data == nil {
		t.Fatal("no __DATA segment")
	}
	secs := f.GetSectionsForSegment("__DATA")
	if len(secs) != 1 {
		t.Fatalf("got %d sections in __DATA, want 1", len(secs))
	}
	if secs[0].Name != "__data" {
		t.Errorf("section name = %q, want __data", secs[0].Name)
	}
	if secs[0].Addr != 0x4010 {
		t.Errorf("section addr = %#x, want 0x4010", secs[0].Addr)
	}

	if f.UUID() != nil {
		t.Error("UUID() should be nil: fixture carries no LC_UUID")
	}
}
