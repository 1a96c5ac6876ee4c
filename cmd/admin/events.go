package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/tenant-billing/pkg/messaging"
	"github.com/jwalitptl/tenant-billing/pkg/messaging/redis"
)

var tailEventsCmd = &cobra.Command{
	Use:   "tail-events",
	Short: "Print billing events published by the worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		broker, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
		}, nil)
		if err != nil {
			return err
		}
		defer broker.Close()

		messages, err := broker.Subscribe(ctx, cfg.Outbox.Channel)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for data := range messages {
			msg, err := messaging.Decode(data)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping message: %v\n", err)
				continue
			}
			org := "-"
			if msg.OrgID != nil {
				org = msg.OrgID.String()
			}
			fmt.Fprintf(out, "%s %-24s org=%s %s\n", msg.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), msg.Type, org, msg.Payload)
		}
		return nil
	},
}
