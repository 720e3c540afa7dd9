package extract

import (
	"encoding/binary"
	"fmt"

	"github.com/appsworld/go-dsc/types"
)

const (
	machHeader64Size = 32
	magic64LE        = uint32(types.Magic64)
)

// command is a tagged, variable-length load command located inside a
// commandBuffer: its tag, the byte offset where it starts (header included,
// so offset 0 is the first byte of MachHeader64), and its cmdsize.
type command struct {
	tag     types.LoadCmd
	offset  int
	cmdsize uint32
}

// commandBuffer is a mutable, owned copy of one image's Mach-O header plus
// its full load-command stream.
type commandBuffer struct {
	buf        []byte
	ncmds      uint32
	sizeofcmds uint32
}

// readHeader copies src[srcOff : srcOff+32+sizeofcmds] into a new owned
// buffer and validates the header is a well-formed 64-bit little-endian
// Mach-O.
func readHeader(src []byte, srcOff int) (*commandBuffer, error) {
	if srcOff < 0 || srcOff+machHeader64Size > len(src) {
		return nil, fmt.Errorf("truncated header: need %d bytes at offset %d, have %d", machHeader64Size, srcOff, len(src))
	}

	magic := binary.LittleEndian.Uint32(src[srcOff:])
	if magic != magic64LE {
		return nil, fmt.Errorf("bad magic %#x, want 64-bit little-endian Mach-O (%#x)", magic, magic64LE)
	}

	ncmds := binary.LittleEndian.Uint32(src[srcOff+16:])
	sizeofcmds := binary.LittleEndian.Uint32(src[srcOff+20:])

	total := machHeader64Size + int(sizeofcmds)
	if srcOff+total > len(src) {
		return nil, fmt.Errorf("truncated command stream: need %d bytes at offset %d, have %d", total, srcOff, len(src))
	}

	buf := make([]byte, total)
	copy(buf, src[srcOff:srcOff+total])

	return &commandBuffer{buf: buf, ncmds: ncmds, sizeofcmds: sizeofcmds}, nil
}

// commands iterates the load-command stream, advancing by cmdsize each
// step for exactly ncmds steps.
func (c *commandBuffer) commands() ([]command, error) {
	out := make([]command, 0, c.ncmds)
	pos := machHeader64Size
	for i := uint32(0); i < c.ncmds; i++ {
		if pos+8 > len(c.buf) {
			return nil, fmt.Errorf("command %d: truncated at offset %d", i, pos)
		}
		tag := types.LoadCmd(binary.LittleEndian.Uint32(c.buf[pos:]))
		cmdsize := binary.LittleEndian.Uint32(c.buf[pos+4:])
		if cmdsize < 8 || pos+int(cmdsize) > len(c.buf) {
			return nil, fmt.Errorf("command %d (%s): cmdsize %d overruns buffer at offset %d", i, tag, cmdsize, pos)
		}
		out = append(out, command{tag: tag, offset: pos, cmdsize: cmdsize})
		pos += int(cmdsize)
	}
	return out, nil
}

func (c *commandBuffer) u32(off int) uint32 {
	return binary.LittleEndian.Uint32(c.buf[off:])
}

func (c *commandBuffer) putU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(c.buf[off:], v)
}

func (c *commandBuffer) u64(off int) uint64 {
	return binary.LittleEndian.Uint64(c.buf[off:])
}

func (c *commandBuffer) putU64(off int, v uint64) {
	binary.LittleEndian.PutUint64(c.buf[off:], v)
}
