package extract

import "fmt"

// assemble allocates the output buffer and places every segment's payload
// into it, then overlays the patched header and command stream last so
// the copied __TEXT payload (which starts at file offset 0, underneath
// the header) never clobbers the patched commands.
func assemble(cache CacheView, cmdBuf *commandBuffer, plan *layoutPlan) ([]byte, []string, error) {
	out := make([]byte, plan.totalSize)
	var warnings []string

	for _, seg := range plan.segments {
		if seg.isLinkedit {
			continue
		}
		if seg.newFilesize == 0 {
			continue
		}

		data, off, ok := cache.DataAndOffsetForAddress(seg.newVmaddr)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("segment %s: vmaddr %#x unresolved, leaving zero-filled hole", seg.name, seg.newVmaddr))
			continue
		}

		n := seg.newFilesize
		avail := uint64(len(data)) - off
		if avail < n {
			warnings = append(warnings, fmt.Sprintf("segment %s: wanted %d bytes at vmaddr %#x, only %d available, truncating", seg.name, n, seg.newVmaddr, avail))
			n = avail
		}

		copy(out[seg.newFileoff:seg.newFileoff+n], data[off:off+n])
	}

	linkedit := plan.segments[len(plan.segments)-1]
	if !linkedit.isLinkedit {
		return nil, nil, fmt.Errorf("internal error: last planned segment is not __LINKEDIT")
	}

	data, off, ok := cache.DataAndOffsetForAddress(plan.linkeditSrcVMAddr)
	if !ok {
		return nil, nil, fmt.Errorf("__LINKEDIT: vmaddr %#x unresolved", plan.linkeditSrcVMAddr)
	}

	n := plan.linkeditExtractSize
	avail := uint64(len(data)) - off
	if avail < n {
		warnings = append(warnings, fmt.Sprintf("__LINKEDIT: wanted %d bytes at vmaddr %#x, only %d available, truncating", n, plan.linkeditSrcVMAddr, avail))
		n = avail
	}
	copy(out[linkedit.newFileoff:linkedit.newFileoff+n], data[off:off+n])

	copy(out[0:len(cmdBuf.buf)], cmdBuf.buf)

	return out, warnings, nil
}
