package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lolerskatez/jellysso-sub000/internal/api/handlers"
	"github.com/lolerskatez/jellysso-sub000/internal/scheduler"
)

func newCachesCommand(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "caches",
		Short: "List caches and their statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Caches []handlers.CacheSummary `json:"caches"`
			}
			if err := newAdminClient(flags).do(cmd.Context(), http.MethodGet, "/api/admin/caches", nil, &resp); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, resp.Caches)
			}

			rows := make([][]string, 0, len(resp.Caches))
			for _, c := range resp.Caches {
				maxSize := strconv.Itoa(c.Stats.MaxSize)
				if c.Stats.MaxSize < 0 {
					maxSize = "unbounded"
				}
				rows = append(rows, []string{
					c.Name,
					strconv.Itoa(c.Stats.Size),
					maxSize,
					strconv.FormatUint(c.Stats.Hits, 10),
					strconv.FormatUint(c.Stats.Misses, 10),
					c.Stats.HitRate,
					strconv.FormatUint(c.Stats.Evictions, 10),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Cache", "Size", "Max", "Hits", "Misses", "Hit rate", "Evictions"},
				rows, 2, 3, 4, 5, 6, 7,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newInvalidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <cache> <pattern>",
		Short: "Remove keys matching a regular expression",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Removed int `json:"removed"`
			}
			path := "/api/admin/caches/" + url.PathEscape(args[0]) + "/invalidate"
			if err := newAdminClient(flags).do(cmd.Context(), http.MethodPost, path, map[string]string{"pattern": args[1]}, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d keys from %s\n", resp.Removed, args[0])
			return nil
		},
	}
}

func newClearCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <cache>",
		Short: "Remove every entry of a cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/admin/caches/" + url.PathEscape(args[0]) + "/clear"
			if err := newAdminClient(flags).do(cmd.Context(), http.MethodPost, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", args[0])
			return nil
		},
	}
}

func newJobsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List maintenance jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Jobs []scheduler.JobStatus `json:"jobs"`
			}
			if err := newAdminClient(flags).do(cmd.Context(), http.MethodGet, "/api/admin/jobs", nil, &resp); err != nil {
				return err
			}
			const stampLayout = "2006-01-02 15:04:05"
			rows := make([][]string, 0, len(resp.Jobs))
			for _, j := range resp.Jobs {
				last := "never"
				if !j.LastRun.IsZero() {
					last = j.LastRun.Local().Format(stampLayout)
				}
				rows = append(rows, []string{j.Name, j.Schedule, last, j.NextRun.Local().Format(stampLayout), strconv.Itoa(j.Runs), j.LastError})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Schedule", "Last run", "Next run", "Runs", "Last error"},
				rows, 5,
			))
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run <job>",
		Short: "Run a maintenance job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				OK    bool   `json:"ok"`
				Error string `json:"error"`
			}
			path := "/api/admin/jobs/" + url.PathEscape(args[0]) + "/run"
			if err := newAdminClient(flags).do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("job %s failed: %s", args[0], resp.Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s finished\n", args[0])
			return nil
		},
	})
	return cmd
}
