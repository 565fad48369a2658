package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <key> [value]",
	Short: "Store a value under a key",
	Long:  "Append a key-value pair to the store. With no value argument the value is read from stdin. Keys are write-once; delete first to replace.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) (err error) {
	key := []byte(args[0])

	var value []byte
	if len(args) > 1 {
		value = []byte(args[1])
	} else {
		value, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read value from stdin: %w", err)
		}
	}

	img, store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := store.Append(key, value); err != nil {
		return fmt.Errorf("put failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Stored %d bytes under %q\n", len(value), args[0])
	return nil
}
