package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/karzamisca/TaskManager-sub000/internal/audit"
	"github.com/karzamisca/TaskManager-sub000/internal/config"
	"github.com/karzamisca/TaskManager-sub000/internal/database"
	"github.com/karzamisca/TaskManager-sub000/internal/profile"
	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

// withConnection runs fn against a manager connected with the stored
// profile, then disconnects.
func withConnection(ctx context.Context, timeout time.Duration, fn func(*sftpmanager.Manager) error) error {
	cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, err := profile.Load()
	if err != nil {
		return err
	}
	mgr := newManager()
	defer mgr.Disconnect(context.Background())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := mgr.Connect(ctx, cfg); err != nil {
		return err
	}
	return fn(mgr)
}

func newListCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "ls [path|folder]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			return withConnection(cmd.Context(), timeout, func(m *sftpmanager.Manager) error {
				folders, err := config.LoadFolders(config.Cfg.FoldersFile)
				if err != nil {
					return err
				}
				if dir, ok := folders.Resolve(target); ok {
					target = dir
				}
				entries, err := m.ListFiles(cmd.Context(), target)
				if err != nil {
					return err
				}
				return printEntries(cmd.OutOrStdout(), entries)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "connect timeout")
	return cmd
}

func printEntries(out io.Writer, entries []sftpmanager.FileEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tSIZE\tMODIFIED\tNAME")
	for _, e := range entries {
		name := e.Name
		if e.IsDir() {
			name += "/"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Permissions, e.Size, e.ModifiedAt.Format(time.RFC3339), name)
	}
	return tw.Flush()
}

func newStatusCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect once with the stored profile and report the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConnection(cmd.Context(), timeout, func(m *sftpmanager.Manager) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(m.StatusInfo())
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "connect timeout")
	return cmd
}

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit log maintenance",
	}

	var days int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete audit entries older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanup, err := bootstrap()
			if err != nil {
				return err
			}
			defer cleanup()

			if days == 0 {
				days = config.Cfg.AuditRetentionDays
			}
			a, err := audit.NewAuditor(database.DB, days)
			if err != nil {
				return err
			}
			n, err := a.PurgeOlderThan(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d audit entries older than %d days\n", n, days)
			return nil
		},
	}
	purge.Flags().IntVar(&days, "days", 0, "retention in days (default from DOCDESK_AUDIT_RETENTION_DAYS)")
	cmd.AddCommand(purge)
	return cmd
}
