package cmd

import (
	"fmt"
	"hash"
	"hash/fnv"
	"os"
	"runtime"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/flashkv/flashkv"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the checksums of every stored object",
	Long:  "Scan all regions in parallel, recompute the checksum of every live object and report mismatches. Exits non-zero if any object fails.",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

type regionReport struct {
	region  int
	objects []flashkv.ObjectInfo
}

func runVerify(cmd *cobra.Command, args []string) (err error) {
	img, err := openImage()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := img.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	p := pool.NewWithResults[regionReport]().
		WithMaxGoroutines(runtime.NumCPU()).
		WithErrors()

	for region := 0; region < img.Regions(); region++ {
		p.Go(func() (regionReport, error) {
			buf := make([]byte, img.RegionSize())
			if err := img.ReadRegion(region, 0, buf); err != nil {
				return regionReport{}, err
			}
			objects, err := flashkv.VerifyRegionData(buf, newHash)
			if err != nil {
				return regionReport{}, fmt.Errorf("region %d: %w", region, err)
			}
			return regionReport{region: region, objects: objects}, nil
		})
	}

	reports, err := p.Wait()
	if err != nil {
		return err
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].region < reports[j].region })

	checked, failed := 0, 0
	for _, report := range reports {
		for _, obj := range report.objects {
			if !obj.Live {
				continue
			}
			checked++
			if !obj.ChecksumOK {
				failed++
				fmt.Printf("region %d\toffset %d\thash %016x\tCHECKSUM MISMATCH\n",
					report.region, obj.Offset, obj.HashedKey)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "Checked %d objects, %d failed\n", checked, failed)
	if failed > 0 {
		return fmt.Errorf("%d objects failed verification", failed)
	}
	return nil
}

// newHash matches the store's default key-hash function.
func newHash() hash.Hash64 { return fnv.New64a() }
