// Command bgfill runs the compositing and tint pipeline on local files,
// without the background removal service.
//
// Usage:
//
//	bgfill composite --foreground cutout.png --background bg.png -o out.png
//	bgfill tint --in in.png -o out.png
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bgfill/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "bgfill",
		Short:         "Composite cutouts onto backgrounds and tint images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger.Init(level, "text")
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newCompositeCmd(), newTintCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
