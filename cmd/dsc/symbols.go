package main

import (
	"fmt"

	"github.com/apex/log"
	"github.com/appsworld/go-dsc/pkg/dsccache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var symbolsCmd = &cobra.Command{
	Use:           "symbols <cache-path>",
	Short:         "List defined, imported, and re-exported symbols of one or more images",
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

			if mf.Symtab != nil {
				for _, sym := range mf.Symtab.Syms {
					fmt.Printf("  [defined]  %s\n", sym.String(mf))
				}
			}

			if imported, err := mf.ImportedSymbols(); err == nil {
				for _, sym := range imported {
					fmt.Printf("  [imported] %s\n", sym.String(mf))
				}
			}

			for _, fn := range mf.GetFunctions() {
				fmt.Printf("  [function] %#016x-%#016x %s\n", fn.StartAddr, fn.EndAddr, fn.Name)
			}

			if exports, err := mf.DyldExports(); err == nil {
				for _, e := range exports {
					if e.ReExport != "" {
						fmt.Printf("  [reexport] %s -> %s\n", e.Name, e.ReExport)
					} else {
						fmt.Printf("  [exported] %#016x %s\n", e.Address, e.Name)
					}
				}
			} else {
				log.WithField("image", img.Path()).Debugf("no export trie: %v", err)
			}

			mf.Close()
		}

		return nil
	},
}

func init() {
	symbolsCmd.Flags().StringP("module", "m", "", "limit to one image's install-name path")
}
