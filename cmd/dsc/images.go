package main

import (
	"fmt"

	"github.com/apex/log"
	"github.com/appsworld/go-dsc/pkg/dsccache"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:           "images <cache-path>",
	Short:         "List every image in a dyld_shared_cache",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		cache, err := dsccache.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "opening cache %s", args[0])
		}

		for _, img := range cache.Images() {
			if !verbose {
				fmt.Println(img.Name())
				continue
			}

			headerData, headerOff := img.HeaderBytes()
			mf, err := openImageMacho(headerData, headerOff)
			if err != nil {
				log.WithField("image", img.Path()).Warnf("parsing header: %v", err)
				fmt.Printf("%#016x  %s\n", img.LoadAddr, img.Path())
				continue
			}

			uuid := "no-uuid"
			if u := mf.UUID(); u != nil {
				uuid = u.String()
			}
			dylibID := img.Path()
			if d := mf.DylibID(); d != nil {
				dylibID = d.String()
			}

			fixups := ""
			if mf.HasFixups() {
				fixups = "  (chained fixups)"
			}

			fmt.Printf("%#016x  %-8s %-12s %s  %s%s\n", img.LoadAddr, mf.CPU, mf.SubCPU.String(mf.CPU), uuid, dylibID, fixups)
			mf.Close()
		}

		log.Debugf("listed %d images", len(cache.Images()))
		return nil
	},
}
