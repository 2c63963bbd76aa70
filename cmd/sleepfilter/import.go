package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vjranagit/sleepfilter/pkg/storage"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [dataset]",
		Short: "Parse a dataset and store it as a snapshot",
		Long: `Parse a dataset and store it as a snapshot, replacing any previous
snapshot of the same file. Later runs load the snapshot instead of parsing
as long as the file is unchanged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.Dataset.Path = args[0]
			}
			cfg.Storage.EnableSnapshots = true

			if _, err := openDataset(cmd.Context(), cfg, log, true); err != nil {
				return err
			}

			scfg := cfg.ToStorageConfig()
			scfg.Logger = log
			store, err := storage.NewStorage(scfg)
			if err != nil {
				return err
			}
			defer store.Close()

			snaps, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			return printSnapshots(cmd.OutOrStdout(), snaps)
		},
	}
	return cmd
}

func printSnapshots(w io.Writer, snaps []storage.SnapshotInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tRECORDS\tCHECKSUM\tLOCATION\tCREATED")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%016x\t%s\t%s\n", s.Name, humanize.Comma(int64(s.Count)), s.Checksum, s.Location, humanize.Time(s.Created))
	}
	return tw.Flush()
}
