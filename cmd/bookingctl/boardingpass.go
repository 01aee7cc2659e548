package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"airline-booking/internal/boardingpass"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/checkin"
	"airline-booking/internal/database"

	"github.com/spf13/cobra"
)

func boardingPassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boarding-pass [passenger-id]",
		Short: "Reprint the boarding pass of a checked-in passenger",
		Args:  cobra.ExactArgs(1),
		RunE:  runBoardingPass,
	}
	cmd.Flags().StringP("out", "o", ".", "Output directory")
	cmd.Flags().Bool("png", false, "Write the QR code PNG instead of the PDF")
	return cmd
}

func runBoardingPass(cmd *cobra.Command, args []string) error {
	passengerID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || passengerID <= 0 {
		return fmt.Errorf("passenger id must be a positive integer, got %q", args[0])
	}

	cfg, log := setup()
	defer log.Close()
	if cfg.BoardingPass.QRSecret == "" {
		return fmt.Errorf("QR_SECRET_KEY is required")
	}

	db, err := database.ConnectPGDriver(cmd.Context(), cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	store := &bookingdb.DB{Bun: db}
	svc := checkin.NewCheckInService(store, &checkin.DB{Bun: db},
		boardingpass.NewQRGenerator(cfg.BoardingPass.QRSecret),
		boardingpass.NewPDFGenerator("", cfg.BoardingPass.FontPath), log)

	// reprints act on behalf of the booking owner
	p, err := store.GetPassenger(cmd.Context(), passengerID)
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	var data []byte
	var name string
	if png, _ := cmd.Flags().GetBool("png"); png {
		data, err = svc.BoardingPassQR(cmd.Context(), passengerID, p.UserID)
		name = fmt.Sprintf("boarding_pass_%d.png", passengerID)
	} else {
		var cred boardingpass.Credential
		data, cred, err = svc.BoardingPassPDF(cmd.Context(), passengerID, p.UserID)
		name = cred.FileName()
	}
	if err != nil {
		return err
	}

	path := filepath.Join(outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	cmd.Println(path)
	return nil
}
