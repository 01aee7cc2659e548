package checkin

import (
	"context"
	"errors"
	"fmt"

	"airline-booking/internal/boardingpass"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/models"
)

// Credential builds the boarding credential of a checked-in passenger.
func (s *CheckInService) Credential(ctx context.Context, passengerID int64, userID string) (boardingpass.Credential, error) {
	p, err := s.ownedPassenger(ctx, passengerID, userID)
	if err != nil {
		return boardingpass.Credential{}, err
	}

	var flight *models.Flight
	f, err := s.Reader.GetFlight(ctx, p.FlightID)
	switch {
	case err == nil:
		flight = f
	case !errors.Is(err, bookingdb.ErrFlightNotFound):
		s.Logger.Warn("DATABASE", fmt.Sprintf("Flight %s lookup failed: %v", p.FlightID, err))
	}

	return boardingpass.NewCredential(*p, flight, s.now())
}

// BoardingPassQR returns the QR PNG. Rendering errors never touch check-in state.
func (s *CheckInService) BoardingPassQR(ctx context.Context, passengerID int64, userID string) ([]byte, error) {
	c, err := s.Credential(ctx, passengerID, userID)
	if err != nil {
		return nil, err
	}
	img, err := s.QR.GeneratePNG(c)
	if err != nil {
		s.Logger.Error("BOARDING", fmt.Sprintf("QR generation failed for passenger %d: %v", passengerID, err))
		return nil, err
	}
	return img, nil
}

// BoardingPassPDF returns the printable pass and the credential it encodes.
func (s *CheckInService) BoardingPassPDF(ctx context.Context, passengerID int64, userID string) ([]byte, boardingpass.Credential, error) {
	c, err := s.Credential(ctx, passengerID, userID)
	if err != nil {
		return nil, c, err
	}
	img, err := s.QR.GeneratePNG(c)
	if err != nil {
		s.Logger.Error("BOARDING", fmt.Sprintf("QR generation failed for passenger %d: %v", passengerID, err))
		return nil, c, err
	}
	pdf, err := s.PDF.Generate(c, img)
	if err != nil {
		s.Logger.Error("BOARDING", fmt.Sprintf("PDF generation failed for passenger %d: %v", passengerID, err))
		return nil, c, err
	}
	return pdf, c, nil
}

// Scan validates a QR payload at the gate against the stored passenger.
func (s *CheckInService) Scan(ctx context.Context, encoded string) (boardingpass.Credential, error) {
	c, err := s.QR.Decrypt(encoded)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", err.Error())
		return c, err
	}

	p, err := s.Reader.GetPassenger(ctx, c.PassengerID)
	if err != nil {
		return c, err
	}
	if p.BookingID != c.BookingID || p.SeatNumber != c.Seat {
		s.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("passenger=%d booking=%s seat=%s", c.PassengerID, c.BookingID, c.Seat))
		return c, ErrCredentialMismatch
	}
	if !p.CheckedIn {
		return c, fmt.Errorf("%w: passenger %d", boardingpass.ErrNotCheckedIn, p.ID)
	}

	s.Logger.LogBooking("SCANNED", p.BookingID, fmt.Sprintf("passenger %d seat %s", p.ID, p.SeatNumber))
	return c, nil
}
