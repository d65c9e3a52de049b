package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-graphsink/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/config"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/retry"
	"github.com/ekaya-inc/ekaya-graphsink/pkg/stream"
)

// NewConsumeCommand creates the consume command.
func NewConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "consume",
		Aliases: []string{"run"},
		Short:   "Apply the snapshot topic to the configured container",
		Long: `Verify the configured container, then read entity snapshots from Kafka and
store them until interrupted. Offsets are committed after each applied message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withSession(cmd, rootOpts, func(ctx context.Context, a *app, s *session) error {
				desc := a.stream()
				report, err := s.connector.VerifyExistingContainer(ctx, desc)
				if err != nil {
					return err
				}
				if len(report.Incompatible) > 0 {
					return fmt.Errorf("container %s has %d incompatible table(s); run verify for details",
						a.container.Name, len(report.Incompatible))
				}

				reader, err := stream.NewKafkaReader(a.cfg.Kafka)
				if err != nil {
					return err
				}
				defer func() {
					if err := reader.Close(); err != nil {
						a.logger.Warn("Failed to close Kafka reader", zap.Error(err))
					}
				}()

				consumer, err := stream.NewConsumer(reader, s.connector, stream.Config{
					Stream:    desc,
					RateLimit: a.cfg.Kafka.RateLimit,
					Burst:     a.cfg.Kafka.Burst,
					Retry:     retryConfig(a.cfg.Retry),
				}, a.logger)
				if err != nil {
					return err
				}

				a.logger.Info("Consuming snapshots",
					zap.Strings("brokers", a.cfg.Kafka.Brokers),
					zap.String("topic", a.cfg.Kafka.Topic),
					zap.String("group_id", a.cfg.Kafka.GroupID))
				return consumer.Run(ctx)
			})
		},
	}
}

// retryConfig retries SQL Server transient errors on top of the generic
// connection and lock patterns.
func retryConfig(cfg config.RetryConfig) *retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxRetries = cfg.MaxRetries
	if cfg.InitialDelay > 0 {
		rc.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		rc.MaxDelay = cfg.MaxDelay
	}
	rc.Retryable = mssql.IsTransient
	return rc
}
