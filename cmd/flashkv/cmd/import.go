package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flashkv/flashkv/internal/flashimg"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore a flash image from a snapshot",
	Long:  "Decompress a snapshot into the configured image path, replacing its contents. The flash geometry comes from the snapshot header. Use - for stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) (err error) {
	in := os.Stdin
	if args[0] != "-" {
		in, err = os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open snapshot file: %w", err)
		}
		defer in.Close()
	}

	img, err := flashimg.Restore(imagePath(), in)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(os.Stderr, "Restored %s: %d regions of %d bytes\n", img.Path(), img.Regions(), img.RegionSize())
	return nil
}
