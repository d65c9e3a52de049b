package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "apply",
		Aliases: []string{"create"},
		Short:   "Create the configured container in SQL Server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				if err := s.connector.CreateContainer(ctx, a.container); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "container %s.%s is ready\n", s.connector.Schema(), a.container.Name)
				return nil
			})
		},
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "verify",
		Aliases: []string{"upgrade"},
		Short:   "Bring an existing container up to the current layout",
		Long: `Add missing property columns, recreate outdated table types and check the
container tables for columns this version requires. Incompatible tables are
reported and make the command fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				report, err := s.connector.VerifyExistingContainer(ctx, a.stream())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, c := range report.AddedColumns {
					fmt.Fprintf(out, "added column %s\n", c)
				}
				for _, t := range report.ArchivedTypes {
					fmt.Fprintf(out, "archived type %s\n", t)
				}
				for _, e := range report.Incompatible {
					fmt.Fprintf(out, "incompatible: %v\n", e)
				}
				if len(report.Incompatible) > 0 {
					return fmt.Errorf("%d incompatible table(s) in container %s", len(report.Incompatible), a.container.Name)
				}
				fmt.Fprintf(out, "container %s.%s is up to date\n", s.connector.Schema(), a.container.Name)
				return nil
			})
		},
	}
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Rename the container tables and types with a timestamp suffix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				tables, err := s.connector.ArchiveContainer(ctx, a.container)
				if err != nil {
					return err
				}
				for _, t := range tables {
					fmt.Fprintf(cmd.OutOrStdout(), "archived %s\n", t)
				}
				return nil
			})
		},
	}
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <new-name>",
		Short: "Rename the configured container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				if err := s.connector.RenameContainer(ctx, a.container, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", a.container.Name, args[0])
				return nil
			})
		},
	}
}

// NewEmptyCommand creates the empty command.
func NewEmptyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "empty",
		Short: "Delete every row of the configured container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				return s.connector.EmptyContainer(ctx, a.container)
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Drop every table and type of the configured container",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("remove drops data; pass --yes to confirm")
			}
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				return s.connector.RemoveContainer(ctx, a.container)
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm dropping the container")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the containers recorded in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				records, err := s.connector.ListContainers(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SCHEMA\tNAME\tMODE\tSTATUS\tPROPERTIES\tUPDATED")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
						r.Schema, r.Name, r.Mode, r.Status, len(r.Properties), r.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}
}

// NewPurgeArchivesCommand creates the purge-archives command.
func NewPurgeArchivesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "purge-archives",
		Short: "Drop archived tables and types of the configured schema",
		Long: `Drop the tables and table types that archive or verify renamed with a
timestamp suffix, when that timestamp is older than --older-than. Runs as a dry
run unless --dry-run=false is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				objects, err := s.connector.PurgeArchives(ctx, olderThan, dryRun)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if dryRun {
					fmt.Fprintln(out, "DRY RUN - no changes will be made")
				}
				for _, obj := range objects {
					fmt.Fprintf(out, "  %s %s (archived %s)\n", obj.Kind, obj.Name, obj.ArchivedAt.Format(time.RFC3339))
				}
				fmt.Fprintf(out, "%d archived object(s)\n", len(objects))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "only purge objects archived longer ago than this")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "show what would be dropped without dropping it")
	return cmd
}
