package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/appsworld/go-dsc/pkg/dsccache"
	"github.com/appsworld/go-dsc/pkg/extract"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

var extractCmd = &cobra.Command{
	Use:           "extract <cache-path> <dylib-path> [<output-path>]",
	Short:         "Reconstruct a standalone dylib from a dyld_shared_cache image",
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetString("all")
		force, _ := cmd.Flags().GetBool("force")

		if all != "" && len(args) > 1 {
			return fmt.Errorf("cannot specify a dylib path when using --all")
		}
		if all == "" && len(args) < 2 {
			return fmt.Errorf("must specify a dylib path to extract, or --all <output-dir>")
		}

		cache, err := dsccache.Open(args[0])
		if err != nil {
			return errors.Wrapf(err, "opening cache %s", args[0])
		}
		view := cacheAdapter{cache: cache}
		writer := osFileWriter{}

		if all != "" {
			return extractAll(view, cache, all, force)
		}

		dylibPath := args[1]
		outputPath := filepath.Base(dylibPath)
		if len(args) == 3 {
			outputPath = args[2]
		}

		if !force {
			if _, err := os.Stat(outputPath); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", outputPath)
			}
		}

		n, warnings, err := extract.ExtractAndWrite(view, dylibPath, outputPath, writer)
		if err != nil {
			return errors.Wrapf(err, "extracting %s", dylibPath)
		}
		for _, w := range warnings {
			log.WithField("dylib", dylibPath).Warn(w)
		}
		log.Infof("Extracted %s -> %s (%d bytes)", dylibPath, outputPath, n)
		return nil
	},
}

func extractAll(view extract.CacheView, cache *dsccache.Cache, outputDir string, force bool) error {
	images := cache.Images()

	p := mpb.New(mpb.WithWidth(80))
	bar := p.New(int64(len(images)),
		mpb.BarStyle().Lbound("[").Filler("=").Tip(">").Padding("-").Rbound("|"),
		mpb.PrependDecorators(decor.Name("extract", decor.WC{W: len("extract") + 1, C: decor.DidentRight})),
		mpb.AppendDecorators(decor.CountersNoUnit("%d/%d")),
	)

	var failed []string
	writer := osFileWriter{}

	for _, img := range images {
		outputPath := filepath.Join(outputDir, img.Path())

		if !force {
			if _, err := os.Stat(outputPath); err == nil {
				bar.Increment()
				continue
			}
		}

		n, warnings, err := extract.ExtractAndWrite(view, img.Path(), outputPath, writer)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", img.Path(), err))
			bar.Increment()
			continue
		}
		for _, w := range warnings {
			log.WithField("dylib", img.Path()).Warn(w)
		}
		log.Debugf("Extracted %s -> %s (%d bytes)", img.Path(), outputPath, n)
		bar.Increment()
	}

	p.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d image(s) failed to extract:\n  %s", len(failed), strings.Join(failed, "\n  "))
	}
	return nil
}

func init() {
	extractCmd.Flags().StringP("all", "a", "", "extract every image in the cache into this directory")
	extractCmd.Flags().Bool("force", false, "overwrite an existing extracted file")
}
