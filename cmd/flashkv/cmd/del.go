package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var delZeroise bool

var delCmd = &cobra.Command{
	Use:   "del <key>",
	Short: "Delete the value stored under a key",
	Long:  "Mark a key's object as deleted. With --zeroise the stored value bytes are also overwritten with zeros. Space is reclaimed later by gc.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDel,
}

func init() {
	delCmd.Flags().BoolVar(&delZeroise, "zeroise", false, "also overwrite the stored value with zeros")
	rootCmd.AddCommand(delCmd)
}

func runDel(cmd *cobra.Command, args []string) (err error) {
	img, store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	key := []byte(args[0])
	if delZeroise {
		err = store.Zeroise(key)
	} else {
		err = store.Invalidate(key)
	}
	if err != nil {
		return fmt.Errorf("del failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Deleted %q\n", args[0])
	return nil
}
