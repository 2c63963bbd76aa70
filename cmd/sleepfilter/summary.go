package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vjranagit/sleepfilter/pkg/crossfilter"
	"github.com/vjranagit/sleepfilter/pkg/dashboard"
)

func summaryCmd() *cobra.Command {
	var (
		filters []string
		nights  int
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print chart totals and the night list for a set of filters",
		Example: `  sleepfilter summary --filter hours=7:9 --filter zq=90:
  sleepfilter summary --filter pillow=:23 --nights 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openDataset(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			db, err := dashboard.New(store, dashboard.WithLocation(loc), dashboard.WithLogger(log))
			if err != nil {
				return err
			}

			for _, f := range filters {
				if err := applyFilter(db, f); err != nil {
					return err
				}
			}

			if nights < 1 {
				nights = cfg.Dataset.ListSize
			}
			return printSummary(cmd.OutOrStdout(), db, nights)
		},
	}
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "chart filter as name=lo:hi, repeatable")
	cmd.Flags().IntVarP(&nights, "nights", "n", 0, "number of nights to list")
	return cmd
}

// applyFilter brushes a chart from a name=lo:hi argument
func applyFilter(db *dashboard.Dashboard, arg string) error {
	name, spec, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("filter %q is not of the form name=lo:hi", arg)
	}
	r, err := crossfilter.ParseRange(spec)
	if err != nil {
		return fmt.Errorf("filter %s: %w", name, err)
	}
	return db.Brush(strings.TrimSpace(name), r.Lo, r.Hi)
}

func printSummary(w io.Writer, db *dashboard.Dashboard, n int) error {
	s := db.Summary()
	fmt.Fprintf(w, "%s of %s nights selected\n\n", humanize.Comma(int64(s.Selected)), humanize.Comma(int64(s.Total)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range s.Charts {
		filter := "all"
		if c.Filter != nil {
			filter = c.Filter.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t", c.Name, filter)

		if c.Name == dashboard.ChartDate {
			// One bar per day; show the span instead
			var days int
			for _, b := range c.Buckets {
				if b.Value > 0 {
					days++
				}
			}
			fmt.Fprintf(tw, "%d days from %s to %s\n", days,
				db.DayTime(c.Domain[0]).Format("2006-01-02"),
				db.DayTime(c.Domain[1]).Format("2006-01-02"))
			continue
		}

		parts := make([]string, 0, len(c.Buckets))
		for _, b := range c.Buckets {
			parts = append(parts, fmt.Sprintf("%g:%g", b.Key, b.Value))
		}
		fmt.Fprintln(tw, strings.Join(parts, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, night := range db.Nights(n) {
		mark := ""
		if night.Good {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", night.Date, night.Pillow, night.Wake, night.Hours, mark)
	}
	return tw.Flush()
}
