package main

import (
	"fmt"
	"text/tabwriter"

	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/database"
	orderredis "airline-booking/internal/order/redis"
	"airline-booking/internal/reconcile"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Inspect and drive the captured-payment reconciliation queue",
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass now",
		RunE:  runSweep,
	}
	sweep.Flags().Int("batch", 0, "Entries to process (defaults to RECONCILE_BATCH_SIZE)")
	sweep.Flags().Bool("no-lock", false, "Skip the Redis payment lock")

	cmd.AddCommand(sweep)
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Count reconciliation entries by status",
		RunE:  runReconcileStatus,
	})
	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	defer log.Close()
	ctx := cmd.Context()

	if cfg.Razorpay.KeySecret == "" {
		return fmt.Errorf("RAZORPAY_KEY_SECRET is required to re-verify receipts")
	}
	if batch, _ := cmd.Flags().GetInt("batch"); batch > 0 {
		cfg.Reconciler.BatchSize = batch
	}

	db, err := database.ConnectPGDriver(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := reconcile.NewService(&reconcile.DB{Bun: db}, &bookingdb.DB{Bun: db}, cfg.Razorpay.KeySecret,
		cfg.Reconciler.MaxAttempts, cfg.Reconciler.BatchSize, log)

	if noLock, _ := cmd.Flags().GetBool("no-lock"); !noLock {
		rdb, err := database.ConnectRedis(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		defer rdb.Close()
		svc.Locker = orderredis.NewLock(rdb, cfg.Reconciler.Interval)
	}

	stats, err := svc.Sweep(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("resolved=%d retrying=%d manual=%d skipped=%d\n", stats.Resolved, stats.Retrying, stats.Manual, stats.Skipped)
	return nil
}

func runReconcileStatus(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	defer log.Close()

	db, err := database.ConnectPGDriver(cmd.Context(), cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := (&reconcile.DB{Bun: db}).CountByStatus(cmd.Context())
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		cmd.Println("no reconciliation entries")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%d\n", c.Status, c.Count)
	}
	return w.Flush()
}
