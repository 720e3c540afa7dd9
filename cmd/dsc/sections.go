package main

import (
	"fmt"

	"github.com/appsworld/go-dsc/pkg/dsccache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var sectionsCmd = &cobra.Command{
	Use:           "sections <cache-path>",
	Short:         "List the segments and sections of one or more images",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		module, _ := cmd.Flags().GetString("module")

		cache, err := dsccache.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "opening cache %s", args[0])
		}

		images := cache.Images()
		if module != "" {
			img, err := cache.Image(module)
			if err != nil {
				return err
			}
			images = []*dsccache.Image{img}
		}

		for _, img := range images {
			data, off := img.HeaderBytes()
			mf, err := openImageMacho(data, off)
			if err != nil {
				return errors.Wrapf(err, "parsing %s", img.Path())
			}

			fmt.Printf("%s\n", img.Path())
			for _, seg := range mf.Segments() {
				fmt.Printf("  %s\n", seg.String())
				for _, sec := range mf.GetSectionsForSegment(seg.Name) {
					zerofill := ""
					if sec.Flags.IsZerofill() {
						zerofill = " zerofill"
					}
					fmt.Printf("    %-20s addr=%#09x size=%#x off=%#x flags=%#x%s\n", sec.Name, sec.Addr, sec.Size, sec.Offset, uint32(sec.Flags), zerofill)
				}
			}
			mf.Close()
		}

		return nil
	},
}

func init() {
	sectionsCmd.Flags().StringP("module", "m", "", "limit to one image's install-name path")
}
