package main

import (
	"airline-booking/internal/kafka"

	"github.com/spf13/cobra"
)

func topicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Manage the booking Kafka topics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create any missing booking topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := setup()
			defer log.Close()
			names := kafka.TopicNames(cfg.Kafka.Topics)
			if err := kafka.EnsureTopicsExist(cmd.Context(), cfg.Kafka.Brokers, names, log); err != nil {
				return err
			}
			for _, name := range names {
				cmd.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all topics on the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := setup()
			defer log.Close()
			topics, err := kafka.ListTopics(cmd.Context(), cfg.Kafka.Brokers)
			if err != nil {
				return err
			}
			for _, t := range topics {
				cmd.Println(t)
			}
			return nil
		},
	})

	return cmd
}
