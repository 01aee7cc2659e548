package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"airline-booking/internal/boardingpass"
	bookingdb "airline-booking/internal/booking/db"
	"airline-booking/internal/logger"
	"airline-booking/internal/models"
)

var (
	ErrCheckInFailed      = errors.New("check-in failed")
	ErrCredentialMismatch = errors.New("boarding pass does not match passenger record")
)

type PassengerReader interface {
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListPassengers(ctx context.Context, bookingID string) ([]models.PassengerRecord, error)
	GetPassenger(ctx context.Context, passengerID int64) (*models.PassengerRecord, error)
	GetFlight(ctx context.Context, flightID string) (*models.Flight, error)
}

type CheckInWriter interface {
	MarkCheckedIn(ctx context.Context, passengerID int64, at time.Time) (bool, error)
	MarkAllCheckedIn(ctx context.Context, bookingID string, at time.Time) ([]int64, error)
}

type CheckInPublisher interface {
	PublishPassengerCheckedIn(ctx context.Context, event models.PassengerCheckedInEvent) error
}

type UpdateEmitter interface {
	Emit(update models.CheckInUpdate)
}

type CheckInService struct {
	Reader    PassengerReader
	Writer    CheckInWriter
	Publisher CheckInPublisher
	Emitter   UpdateEmitter
	QR        *boardingpass.QRGenerator
	PDF       *boardingpass.PDFGenerator
	Logger    *logger.Logger
	now       func() time.Time
}

func NewCheckInService(reader PassengerReader, writer CheckInWriter, qr *boardingpass.QRGenerator, pdf *boardingpass.PDFGenerator, log *logger.Logger) *CheckInService {
	return &CheckInService{
		Reader: reader,
		Writer: writer,
		QR:     qr,
		PDF:    pdf,
		Logger: log,
		now:    time.Now,
	}
}

// ownedPassenger hides passengers of other users behind not-found.
func (s *CheckInService) ownedPassenger(ctx context.Context, passengerID int64, userID string) (*models.PassengerRecord, error) {
	p, err := s.Reader.GetPassenger(ctx, passengerID)
	if err != nil {
		return nil, err
	}
	if userID != "" && p.UserID != userID {
		return nil, bookingdb.ErrPassengerNotFound
	}
	return p, nil
}

func (s *CheckInService) ownedBooking(ctx context.Context, bookingID, userID string) (*models.Booking, error) {
	b, err := s.Reader.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if userID != "" && b.UserID != userID {
		return nil, bookingdb.ErrBookingNotFound
	}
	return b, nil
}

// CheckInOne checks in a single passenger. Checking in twice is a no-op.
func (s *CheckInService) CheckInOne(ctx context.Context, passengerID int64, userID string) (*models.PassengerRecord, error) {
	p, err := s.ownedPassenger(ctx, passengerID, userID)
	if err != nil {
		return nil, err
	}
	if p.CheckedIn {
		return p, nil
	}

	at := s.now().UTC()
	changed, err := s.Writer.MarkCheckedIn(ctx, passengerID, at)
	if err != nil {
		s.Logger.Error("CHECKIN", fmt.Sprintf("Failed to check in passenger %d: %v", passengerID, err))
		return nil, fmt.Errorf("%w: %w", ErrCheckInFailed, err)
	}

	p.CheckedIn = true
	if changed {
		p.CheckedInAt = at
		s.Logger.LogBooking("CHECKED_IN", p.BookingID, fmt.Sprintf("passenger %d", p.ID))
		s.announce(ctx, p.BookingID, []models.PassengerRecord{*p})
	}
	return p, nil
}

// CheckInAll checks in every pending passenger of the booking in one batch
// and returns how many were newly checked in.
func (s *CheckInService) CheckInAll(ctx context.Context, bookingID, userID string) (int, error) {
	b, err := s.ownedBooking(ctx, bookingID, userID)
	if err != nil {
		return 0, err
	}

	at := s.now().UTC()
	ids, err := s.Writer.MarkAllCheckedIn(ctx, bookingID, at)
	if err != nil {
		s.Logger.Error("CHECKIN", fmt.Sprintf("Bulk check-in failed for booking %s: %v", bookingID, err))
		return 0, fmt.Errorf("%w: %w", ErrCheckInFailed, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	changed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		changed[id] = true
	}
	var newly []models.PassengerRecord
	for _, p := range b.Passengers {
		if changed[p.ID] {
			p.CheckedIn = true
			p.CheckedInAt = at
			newly = append(newly, p)
		}
	}

	s.Logger.LogBooking("CHECKED_IN_ALL", bookingID, fmt.Sprintf("%d passengers", len(ids)))
	s.announce(ctx, bookingID, newly)
	return len(ids), nil
}

func (s *CheckInService) Summary(ctx context.Context, bookingID, userID string) (models.CheckInSummary, error) {
	b, err := s.ownedBooking(ctx, bookingID, userID)
	if err != nil {
		return models.CheckInSummary{}, err
	}
	flight, err := s.Reader.GetFlight(ctx, b.FlightID)
	if err != nil {
		flight = nil
		if !errors.Is(err, bookingdb.ErrFlightNotFound) {
			s.Logger.Warn("DATABASE", fmt.Sprintf("Flight %s lookup failed: %v", b.FlightID, err))
		}
	}
	return models.NewCheckInSummary(bookingID, flight, b.Passengers), nil
}

// announce publishes one event per newly checked-in passenger and pushes the
// booking's new counts to SSE subscribers. Failures are logged only.
func (s *CheckInService) announce(ctx context.Context, bookingID string, newly []models.PassengerRecord) {
	ids := make([]int64, 0, len(newly))
	for _, p := range newly {
		ids = append(ids, p.ID)
		if s.Publisher == nil {
			continue
		}
		event := models.PassengerCheckedInEvent{
			BookingID:     p.BookingID,
			PassengerID:   p.ID,
			PassengerName: p.Name,
			FlightID:      p.FlightID,
			SeatNumber:    p.SeatNumber,
			CheckedInAt:   p.CheckedInAt,
		}
		if err := s.Publisher.PublishPassengerCheckedIn(ctx, event); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("passenger.checked_in not published for %d: %v", p.ID, err))
		}
	}

	if s.Emitter == nil {
		return
	}
	passengers, err := s.Reader.ListPassengers(ctx, bookingID)
	if err != nil {
		s.Logger.Warn("SSE", fmt.Sprintf("Could not load passengers for update of %s: %v", bookingID, err))
		return
	}
	summary := models.NewCheckInSummary(bookingID, nil, passengers)
	s.Emitter.Emit(models.CheckInUpdate{
		BookingID:    bookingID,
		PassengerIDs: ids,
		Total:        summary.Total,
		CheckedIn:    summary.CheckedIn,
		Pending:      summary.Pending,
		At:           s.now().UTC(),
	})
}
