package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialise a flash image as a key-value store",
	Long:  "Create or adopt a flash image and prepare it for key-value storage. An already initialised image is left unchanged.",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) (err error) {
	img, store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := store.Initialise(); err != nil {
		return fmt.Errorf("initialise failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Initialised %s: %d regions of %d bytes\n", img.Path(), img.Regions(), img.RegionSize())
	return nil
}
