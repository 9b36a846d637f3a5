package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/scenario-sim/scenario-collector/collector/archive"
)

var (
	// CLI flags for the inspect command
	inspectPrefix  string // Only shards whose file name starts with this prefix
	inspectWorkers int    // Shards read concurrently
)

// ShardSummary describes one shard on disk.
type ShardSummary struct {
	Path       string
	Samples    int
	FirstKey   string
	LastKey    string
	ImageBytes int64
	Collisions int
}

// inspectCmd summarises the shards of a collection directory
var inspectCmd = &cobra.Command{
	Use:   "inspect <dir>",
	Short: "Summarise archive shards in a directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel(logLevel)
		summaries, err := inspectShards(cmd.Context(), args[0], inspectPrefix, inspectWorkers)
		if err != nil {
			logrus.Fatalf("Failed to inspect %s: %v", args[0], err)
		}
		printSummaries(cmd.OutOrStdout(), summaries)
	},
}

// inspectShards reads every shard under dir, at most workers at a time.
// Summaries keep the shard order.
func inspectShards(ctx context.Context, dir, prefix string, workers int) ([]ShardSummary, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		found, err := archive.FindShards(path, prefix)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if workers < 1 {
		workers = 1
	}
	summaries := make([]ShardSummary, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := summarise(p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			summaries[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func summarise(path string) (ShardSummary, error) {
	samples, err := archive.ReadShard(path)
	if err != nil {
		return ShardSummary{}, err
	}
	s := ShardSummary{Path: path, Samples: len(samples)}
	for i, smp := range samples {
		if i == 0 {
			s.FirstKey = smp.Key
		}
		s.LastKey = smp.Key
		s.ImageBytes += int64(len(smp.Image))
		if c, ok := smp.Metadata["collision"].(bool); ok && c {
			s.Collisions++
		}
	}
	return s, nil
}

func printSummaries(w io.Writer, summaries []ShardSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHARD\tSAMPLES\tFIRST\tLAST\tIMAGE BYTES\tCOLLISIONS")
	total := 0
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\n", s.Path, s.Samples, s.FirstKey, s.LastKey, s.ImageBytes, s.Collisions)
		total += s.Samples
	}
	tw.Flush()
	fmt.Fprintf(w, "%d shards, %d samples\n", len(summaries), total)
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPrefix, "prefix", "", "Only shards whose file name starts with this prefix")
	inspectCmd.Flags().IntVar(&inspectWorkers, "workers", 4, "Shards read concurrently")
}
