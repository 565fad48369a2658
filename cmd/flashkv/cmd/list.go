package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flashkv/flashkv"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List objects stored in the flash image",
	Long:  "Walk every region and print the objects it holds. By default only live objects are shown; --all includes deleted ones.",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "include deleted objects")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	img, err := openImage()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	count := 0
	buf := make([]byte, img.RegionSize())
	for region := 0; region < img.Regions(); region++ {
		if err := img.ReadRegion(region, 0, buf); err != nil {
			return err
		}

		objects, err := flashkv.ScanRegionData(buf)
		if err != nil {
			return fmt.Errorf("region %d: %w", region, err)
		}

		for _, obj := range objects {
			if !obj.Live && !listAll {
				continue
			}
			state := "live"
			if !obj.Live {
				state = "deleted"
			}
			fmt.Printf("region %d\toffset %d\thash %016x\t%d bytes\t%s\n",
				region, obj.Offset, obj.HashedKey, obj.ValueLen, state)
			count++
		}
	}

	if count == 0 {
		fmt.Println("(no objects)")
	}

	return nil
}
