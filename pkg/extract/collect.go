package extract

import "github.com/appsworld/go-dsc/types"

// segmentInfo is a parsed LC_SEGMENT_64 command, recorded in load-command
// order.
type segmentInfo struct {
	name        string
	vmaddr      uint64
	vmsize      uint64
	oldFileoff  uint64
	oldFilesize uint64
	nsects      uint32
	cmdOffset   int // byte offset of this command inside the command buffer
}

// linkeditBound is one (off, off+size) range referenced by a linkedit-
// bearing command, recorded only when both off and size are non-zero.
type linkeditBound struct {
	off uint32
	end uint32
}

// linkeditField names one (offset-field, size-field) pair inside a
// linkedit-bearing command, by byte offset relative to the command's start.
type linkeditField struct {
	offField int
	sizeField int
	// sizeIsCount, when true, means sizeField holds an element count, not
	// a byte size; elemSize gives the per-element byte size so the push
	// and patch rules operate on a byte range either way.
	sizeIsCount bool
	elemSize    uint32
}

// linkeditFieldsFor returns the (offset, size) field pairs §3's table
// defines for tag, or nil if tag carries no linkedit-bearing fields.
func linkeditFieldsFor(tag types.LoadCmd) []linkeditField {
	switch tag {
	case types.LC_SYMTAB:
		return []linkeditField{
			{offField: 8, sizeField: 12, sizeIsCount: true, elemSize: 16}, // symoff, nsyms
			{offField: 16, sizeField: 20},                                // stroff, strsize
		}
	case types.LC_DYSYMTAB:
		return []linkeditField{
			{offField: 32, sizeField: 36, sizeIsCount: true, elemSize: 8},  // tocoffset, ntoc
			{offField: 40, sizeField: 44, sizeIsCount: true, elemSize: 56}, // modtaboff, nmodtab
			{offField: 48, sizeField: 52, sizeIsCount: true, elemSize: 4},  // extrefsymoff, nextrefsyms
			{offField: 56, sizeField: 60, sizeIsCount: true, elemSize: 4},  // indirectsymoff, nindirectsyms
			{offField: 64, sizeField: 68, sizeIsCount: true, elemSize: 8},  // extreloff, nextrel
			{offField: 72, sizeField: 76, sizeIsCount: true, elemSize: 8},  // locreloff, nlocrel
		}
	case types.LC_DYLD_INFO, types.LC_DYLD_INFO_ONLY:
		return []linkeditField{
			{offField: 8, sizeField: 12},   // rebase_off, rebase_size
			{offField: 16, sizeField: 20},  // bind_off, bind_size
			{offField: 24, sizeField: 28},  // weak_bind_off, weak_bind_size
			{offField: 32, sizeField: 36},  // lazy_bind_off, lazy_bind_size
			{offField: 40, sizeField: 44},  // export_off, export_size
		}
	case types.LC_FUNCTION_STARTS, types.LC_DATA_IN_CODE, types.LC_CODE_SIGNATURE,
		types.LC_DYLD_EXPORTS_TRIE, types.LC_DYLD_CHAINED_FIXUPS:
		return []linkeditField{
			{offField: 8, sizeField: 12}, // dataoff, datasize
		}
	default:
		return nil
	}
}

// pushBound appends (off, off+byteSize) to bounds, but only if both off and
// byteSize are non-zero.
func pushBound(bounds *[]linkeditBound, off, byteSize uint32) {
	if off != 0 && byteSize != 0 {
		*bounds = append(*bounds, linkeditBound{off: off, end: off + byteSize})
	}
}

// byteSize resolves a linkeditField's size-field reading to an actual byte
// count, expanding element counts where needed.
func (f linkeditField) byteSize(raw uint32) uint32 {
	if f.sizeIsCount {
		return raw * f.elemSize
	}
	return raw
}

// collectSegments walks the command buffer once, recording every
// LC_SEGMENT_64 and the union of linkedit sub-ranges referenced by
// linkedit-bearing commands.
func collectSegments(cmdBuf *commandBuffer) ([]segmentInfo, []linkeditBound, error) {
	cmds, err := cmdBuf.commands()
	if err != nil {
		return nil, nil, err
	}

	var segments []segmentInfo
	var bounds []linkeditBound

	for _, c := range cmds {
		if c.tag == types.LC_SEGMENT_64 {
			off := c.offset
			segments = append(segments, segmentInfo{
				name:        cString16(cmdBuf.buf[off+8 : off+24]),
				vmaddr:      cmdBuf.u64(off + 24),
				vmsize:      cmdBuf.u64(off + 32),
				oldFileoff:  cmdBuf.u64(off + 40),
				oldFilesize: cmdBuf.u64(off + 48),
				nsects:      cmdBuf.u32(off + 64),
				cmdOffset:   off,
			})
			continue
		}

		for _, field := range linkeditFieldsFor(c.tag) {
			rawOff := cmdBuf.u32(c.offset + field.offField)
			rawSize := cmdBuf.u32(c.offset + field.sizeField)
			pushBound(&bounds, rawOff, field.byteSize(rawSize))
		}
	}

	return segments, bounds, nil
}

func cString16(name []byte) string {
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	return string(name[:n])
}

// findLinkedit returns a pointer to the __LINKEDIT entry in segments, or
// nil if there is none.
func findLinkedit(segments []segmentInfo) *segmentInfo {
	for i := range segments {
		if segments[i].name == "__LINKEDIT" {
			return &segments[i]
		}
	}
	return nil
}
