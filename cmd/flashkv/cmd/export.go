package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export a compressed snapshot of the flash image",
	Long:  "Write a zstd-compressed snapshot of the flash image, including its geometry, to the given file. Use - for stdout.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	img, err := openImage()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out := os.Stdout
	if args[0] != "-" {
		out, err = os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create snapshot file: %w", err)
		}
		defer func() {
			if cerr := out.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
	}

	if err := img.Export(out); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %s\n", img.Path())
	return nil
}
