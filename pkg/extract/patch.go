package extract

import (
	"fmt"

	"github.com/appsworld/go-dsc/types"
)

const (
	segCmdSectionsStart = 72 // byte offset of the first trailing Section64 within an LC_SEGMENT_64 command
	section64Size       = 80
)

// patch rewrites cmdBuf in place: header flags (P1), segment/section file
// offsets (P2), then every linkedit-bearing command's offset fields (P3).
func patch(cmdBuf *commandBuffer, plan *layoutPlan) error {
	patchHeaderFlags(cmdBuf)

	if err := patchSegmentsAndSections(cmdBuf, plan); err != nil {
		return err
	}

	return patchLinkeditCommands(cmdBuf, plan)
}

// patchHeaderFlags clears MH_DYLIB_IN_CACHE, preserving every other bit.
func patchHeaderFlags(cmdBuf *commandBuffer) {
	const flagsOffset = 24
	flags := cmdBuf.u32(flagsOffset)
	flags &^= uint32(types.DylibInCache)
	cmdBuf.putU32(flagsOffset, flags)
}

// patchSegmentsAndSections writes each segment's new fileoff/filesize (and,
// for __LINKEDIT, vmaddr/vmsize), then rebases non-linkedit sections'
// offset and reloff fields.
func patchSegmentsAndSections(cmdBuf *commandBuffer, plan *layoutPlan) error {
	const (
		fileoffField  = 40
		filesizeField = 48
		vmaddrField   = 24
		vmsizeField   = 32
	)

	for _, seg := range plan.segments {
		cmdBuf.putU64(seg.cmdOffset+fileoffField, seg.newFileoff)
		cmdBuf.putU64(seg.cmdOffset+filesizeField, seg.newFilesize)

		if seg.isLinkedit {
			cmdBuf.putU64(seg.cmdOffset+vmaddrField, seg.newVmaddr)
			cmdBuf.putU64(seg.cmdOffset+vmsizeField, seg.newVmsize)
			continue
		}

		delta := int64(seg.newFileoff) - int64(seg.oldFileoff)
		sectionsStart := seg.cmdOffset + segCmdSectionsStart
		for i := uint32(0); i < seg.nsects; i++ {
			so := sectionsStart + int(i)*section64Size
			if so+section64Size > len(cmdBuf.buf) {
				return fmt.Errorf("segment %s: section %d overruns command buffer", seg.name, i)
			}

			const (
				offsetField = 48
				reloffField = 56
				flagsField  = 64
			)

			flags := types.SectionFlag(cmdBuf.u32(so + flagsField))
			if !flags.IsZerofill() {
				if off := cmdBuf.u32(so + offsetField); off != 0 {
					cmdBuf.putU32(so+offsetField, uint32(int64(off)+delta))
				}
			}

			if reloff := cmdBuf.u32(so + reloffField); reloff != 0 {
				if reloff < plan.minOff || reloff >= plan.maxEnd {
					return fmt.Errorf("segment %s: section %d reloff %#x outside linkedit range [%#x, %#x)", seg.name, i, reloff, plan.minOff, plan.maxEnd)
				}
				cmdBuf.putU32(so+reloffField, uint32(plan.linkeditNewFileoff)+(reloff-plan.minOff))
			}
		}
	}

	return nil
}

// patchLinkeditCommands rebases or clears every linkedit-bearing command's
// offset fields.
func patchLinkeditCommands(cmdBuf *commandBuffer, plan *layoutPlan) error {
	cmds, err := cmdBuf.commands()
	if err != nil {
		return err
	}

	for _, c := range cmds {
		for _, field := range linkeditFieldsFor(c.tag) {
			off := cmdBuf.u32(c.offset + field.offField)
			size := field.byteSize(cmdBuf.u32(c.offset + field.sizeField))

			switch {
			case off != 0 && size != 0:
				cmdBuf.putU32(c.offset+field.offField, uint32(plan.linkeditNewFileoff)+(off-plan.minOff))
			case off != 0 && size == 0:
				cmdBuf.putU32(c.offset+field.offField, 0)
			}
		}
	}

	return nil
}
