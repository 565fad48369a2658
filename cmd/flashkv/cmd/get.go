package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Retrieve the value stored under a key",
	Long:  "Look up a key and write its value to stdout. The stored checksum is verified before anything is printed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) (err error) {
	img, store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	buf := make([]byte, store.RegionSize())
	n, err := store.Get([]byte(args[0]), buf)
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	if _, err := os.Stdout.Write(buf[:n]); err != nil {
		return err
	}
	return nil
}
