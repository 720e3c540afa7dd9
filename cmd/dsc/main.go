// Command dsc inspects and extracts dynamic libraries from a Dyld Shared
// Cache. It is a thin shell over pkg/dsccache (the cache reader) and
// pkg/extract (the dylib reconstructor); every subcommand parses flags,
// opens the cache, and hands the real work to those packages.
package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	log.SetHandler(cli.Default)
}

var rootCmd = &cobra.Command{
	Use:           "dsc",
	Short:         "Inspect and extract dylibs from a dyld_shared_cache",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose debug logging")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(sectionsCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(extractCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
