package main

import (
	"fmt"

	"github.com/appsworld/go-dsc/pkg/dsccache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:           "dump <cache-path> <vmaddr> [<size>]",
	Short:         "Hex-dump raw bytes at a cache virtual address",
	Args:          cobra.RangeArgs(2, 3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		vmaddr, err := parseUintArg(args[1])
		if err != nil {
			return errors.Wrapf(err, "parsing vmaddr %q", args[1])
		}

		size := uint64(256)
		if len(args) == 3 {
			size, err = parseUintArg(args[2])
			if err != nil {
				return errors.Wrapf(err, "parsing size %q", args[2])
			}
		}

		cache, err := dsccache.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "opening cache %s", args[0])
		}

		data, off, ok := cache.DataAndOffsetForAddress(vmaddr)
		if !ok {
			return fmt.Errorf("vmaddr %#x not covered by any mapping", vmaddr)
		}
		if off+size > uint64(len(data)) {
			size = uint64(len(data)) - off
		}
		buf := data[off : off+size]

		if img := nearestImage(cache, vmaddr); img != nil {
			headerData, headerOff := img.HeaderBytes()
			if mf, err := openImageMacho(headerData, headerOff); err == nil {
				if syms, err := mf.FindAddressSymbols(vmaddr); err == nil && len(syms) > 0 {
					fmt.Printf("%#x is in %s\n", vmaddr, syms[0].String(mf))
				}
				mf.Close()
			}
		}

		hexDump(vmaddr, buf)
		return nil
	},
}

// nearestImage returns the image whose Mach-O header is closest at or below
// vmaddr, a cheap heuristic good enough to annotate a dump with context.
func nearestImage(cache *dsccache.Cache, vmaddr uint64) *dsccache.Image {
	var best *dsccache.Image
	for _, img := range cache.Images() {
		if img.LoadAddr <= vmaddr && (best == nil || img.LoadAddr > best.LoadAddr) {
			best = img
		}
	}
	return best
}

func hexDump(base uint64, data []byte) {
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]

		fmt.Printf("%#09x  ", base+uint64(i))
		for j := 0; j < 16; j++ {
			if j < len(row) {
				fmt.Printf("%02x ", row[j])
			} else {
				fmt.Print("   ")
			}
			if j == 7 {
				fmt.Print(" ")
			}
		}
		fmt.Print(" |")
		for _, b := range row {
			if b >= 0x20 && b < 0x7f {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}
		fmt.Println("|")
	}
}
