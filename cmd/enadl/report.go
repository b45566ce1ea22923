package main

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/italolelis/enadl/internal/cleanup"
	"github.com/italolelis/enadl/internal/config"
	"github.com/italolelis/enadl/internal/downloader"
	"github.com/italolelis/enadl/internal/metadata"
	"github.com/italolelis/enadl/internal/workdir"
)

const maxListedFailures = 5

func printBanner(w io.Writer, command string, l workdir.Layout, cfg *config.Config) {
	fmt.Fprintf(w, "enadl %s: %s %s\n", version, command, l.Project)
	fmt.Fprintf(w, "  output:      %s\n", l.Root)
	fmt.Fprintf(w, "  parallel:    %d\n", cfg.MaxParallel)
	fmt.Fprintf(w, "  keep failed: %t  force: %t  verify existing: %t\n", cfg.KeepFailed, cfg.ForceRedownload, cfg.VerifyExisting)
}

// printOverview lists the organisms and platforms of a run table, plus strategies, layouts
// and download status when s is given.
func printOverview(w io.Writer, t *metadata.Table, s *downloader.Summary) {
	fmt.Fprintf(w, "%d runs\n", len(t.Runs))

	printCounts(w, "Organisms", t.Count("scientific_name"))
	printCounts(w, "Platforms", t.Count("instrument_platform"))

	if s == nil {
		return
	}

	printCounts(w, "Strategies", t.Count("library_strategy"))
	printCounts(w, "Layouts", t.Count("library_layout"))

	fmt.Fprintf(w, "Download status:\n  %s\n", s)
}

// printCounts prints values by descending count, then by name.
func printCounts(w io.Writer, title string, counts map[string]int) {
	fmt.Fprintf(w, "%s:\n", title)

	keys := slices.SortedFunc(maps.Keys(counts), func(a, b string) int {
		return cmp.Or(cmp.Compare(counts[b], counts[a]), strings.Compare(a, b))
	})

	for _, k := range keys {
		fmt.Fprintf(w, "  %-40s %d\n", k, counts[k])
	}
}

func printSummary(w io.Writer, s downloader.Summary, failed []string) {
	fmt.Fprintf(w, "\nTotal files:       %d\n", s.Total())
	fmt.Fprintf(w, "Downloaded (OK):   %d\n", s.OK)
	fmt.Fprintf(w, "Already existed:   %d\n", s.Exists)
	fmt.Fprintf(w, "Failed:            %d\n", s.Error)
	fmt.Fprintf(w, "Not attempted:     %d\n", s.NotAttempted)

	if len(failed) == 0 {
		return
	}

	shown := failed
	if len(shown) > maxListedFailures {
		shown = shown[:maxListedFailures]
	}

	fmt.Fprintf(w, "Failed runs: %s", strings.Join(shown, ", "))

	if more := len(failed) - len(shown); more > 0 {
		fmt.Fprintf(w, " (and %d more)", more)
	}

	fmt.Fprintln(w, "\nRetry them with: enadl rerun-failed <project>")
}

func printCleanup(w io.Writer, res cleanup.Result) {
	fmt.Fprintf(w, "removed %d files (%s)\n", len(res.Removed), humanize.IBytes(uint64(res.Bytes)))

	for _, p := range res.Removed {
		fmt.Fprintf(w, "  %s\n", p)
	}
}
