// Command prollipop is a small CLI exercising the prollipop library
// end to end against a directory-backed block store.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tabcat/prollipop/internal/plog"
)

var (
	storeDir string
	average  uint32
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "prollipop",
	Short: "Build, diff, merge, and inspect prolly trees",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			plog.Log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", ".prollipop", "directory holding bucket files")
	rootCmd.PersistentFlags().Uint32Var(&average, "average", 32, "target bucket size for newly created trees")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		plog.Log.Error(err)
		os.Exit(1)
	}
}
