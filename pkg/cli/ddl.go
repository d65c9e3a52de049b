package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/sqlgen"
)

// NewDDLCommand creates the ddl command.
func NewDDLCommand(rootOpts *RootOptions) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the DDL of the configured container",
		Long: `Print the statements that create the configured container, one batch per
statement separated by GO. Nothing is executed. With --remove the statements
that drop the container are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck

			t, err := sqlgen.TargetForCreateContainer(a.container, a.cfg.Connector.Schema)
			if err != nil {
				return err
			}
			g, err := sqlgen.NewGenerator(
				sqlgen.DefaultBuilders(sqlgen.Options{NarrowTypes: a.cfg.Connector.NarrowTypes}),
				sqlgen.WithLogger(a.logger))
			if err != nil {
				return err
			}

			commands, err := g.CreateContainer(t)
			if remove {
				commands, err = g.RemoveContainer(t)
			}
			if err != nil {
				return err
			}
			return writeBatches(cmd.OutOrStdout(), commands)
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "print the statements that drop the container")
	return cmd
}

func writeBatches(w io.Writer, commands []sqlgen.Command) error {
	for _, c := range commands {
		if _, err := fmt.Fprintf(w, "%s\nGO\n\n", c.Text); err != nil {
			return err
		}
	}
	return nil
}
