package extract

import "fmt"

// newSegLayout is the planned on-disk placement for one segment, still
// tagged with everything the Patcher and Assembler need to act on it.
type newSegLayout struct {
	name        string
	cmdOffset   int
	nsects      uint32
	oldFileoff  uint64
	newFileoff  uint64
	newFilesize uint64
	newVmaddr   uint64
	newVmsize   uint64
	isLinkedit  bool
}

// layoutPlan is the LayoutPlanner's full output: the placement for every
// segment (in original load-command order) plus the linkedit extraction
// window and the final file size.
type layoutPlan struct {
	segments            []newSegLayout
	minOff              uint32
	maxEnd              uint32
	linkeditExtractSize uint64
	linkeditNewFileoff  uint64
	linkeditSrcVMAddr   uint64 // resolves the source address to copy __LINKEDIT bytes from
	totalSize           uint64
}

// planLayout computes the new on-disk layout: __TEXT at 0, other
// non-linkedit segments page-aligned in original load-command order, and
// __LINKEDIT last.
func planLayout(segments []segmentInfo, bounds []linkeditBound, linkedit segmentInfo) (*layoutPlan, error) {
	var minOff, maxEnd uint32
	if len(bounds) > 0 {
		minOff, maxEnd = bounds[0].off, bounds[0].end
		for _, b := range bounds[1:] {
			if b.off < minOff {
				minOff = b.off
			}
			if b.end > maxEnd {
				maxEnd = b.end
			}
		}
	} else {
		minOff = uint32(linkedit.oldFileoff)
		maxEnd = uint32(linkedit.oldFileoff + linkedit.oldFilesize)
	}
	if maxEnd < minOff {
		return nil, fmt.Errorf("linkedit bounds invalid: min_off=%#x max_end=%#x", minOff, maxEnd)
	}
	linkeditExtractSize := uint64(maxEnd - minOff)

	out := make([]newSegLayout, 0, len(segments))
	var cursor uint64
	sawText := false

	for _, s := range segments {
		if s.name == "__LINKEDIT" {
			continue
		}
		var newFileoff uint64
		if s.name == "__TEXT" {
			newFileoff = 0
			sawText = true
		} else {
			newFileoff = AlignUp(cursor, PageSize)
		}
		cursor = newFileoff + s.oldFilesize

		out = append(out, newSegLayout{
			name:        s.name,
			cmdOffset:   s.cmdOffset,
			nsects:      s.nsects,
			oldFileoff:  s.oldFileoff,
			newFileoff:  newFileoff,
			newFilesize: s.oldFilesize,
			newVmaddr:   s.vmaddr,
			newVmsize:   s.vmsize,
		})
	}
	if !sawText {
		return nil, fmt.Errorf("no __TEXT segment")
	}

	linkeditNewFileoff := AlignUp(cursor, PageSize)
	linkeditNewVmaddr := linkedit.vmaddr + (uint64(minOff) - linkedit.oldFileoff)

	out = append(out, newSegLayout{
		name:        "__LINKEDIT",
		cmdOffset:   linkedit.cmdOffset,
		nsects:      linkedit.nsects,
		oldFileoff:  linkedit.oldFileoff,
		newFileoff:  linkeditNewFileoff,
		newFilesize: linkeditExtractSize,
		newVmaddr:   linkeditNewVmaddr,
		newVmsize:   linkeditExtractSize,
		isLinkedit:  true,
	})

	return &layoutPlan{
		segments:            out,
		minOff:              minOff,
		maxEnd:              maxEnd,
		linkeditExtractSize: linkeditExtractSize,
		linkeditNewFileoff:  linkeditNewFileoff,
		linkeditSrcVMAddr:   linkedit.vmaddr + (uint64(minOff) - linkedit.oldFileoff),
		totalSize:           linkeditNewFileoff + linkeditExtractSize,
	}, nil
}
