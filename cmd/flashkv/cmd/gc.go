package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim regions whose objects are all deleted",
	Long:  "Erase every region that holds only deleted objects. Regions with any live object are left untouched.",
	Args:  cobra.NoArgs,
	RunE:  runGC,
}

func init() {
	rootCmd.AddCommand(gcCmd)
}

func runGC(cmd *cobra.Command, args []string) (err error) {
	img, store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	freed, err := store.GarbageCollect()
	if err != nil {
		return fmt.Errorf("gc failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Freed %d bytes\n", freed)
	return nil
}
