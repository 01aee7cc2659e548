package boardingpass

import (
	"bytes"
	"fmt"
	"image/png"
	"time"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Ticket stock is 220 x 85 mm, landscape.
const (
	pageWidth  = 220.0
	pageHeight = 85.0
	headerH    = 14.0
	stubX      = 150.0
	qrSide     = 48.0
)

type PDFGenerator struct {
	Airline  string
	FontPath string
}

func NewPDFGenerator(airline, fontPath string) *PDFGenerator {
	if airline == "" {
		airline = "AIR INDIA"
	}
	return &PDFGenerator{Airline: airline, FontPath: fontPath}
}

func (g *PDFGenerator) loadFonts(pdf *gopdf.GoPdf) error {
	if g.FontPath != "" {
		if err := pdf.AddTTFFont("body", g.FontPath); err != nil {
			return fmt.Errorf("failed to load font %s: %w", g.FontPath, err)
		}
		return pdf.AddTTFFont("bold", g.FontPath)
	}
	if err := pdf.AddTTFFontData("body", goregular.TTF); err != nil {
		return fmt.Errorf("failed to load font: %w", err)
	}
	return pdf.AddTTFFontData("bold", gobold.TTF)
}

// Generate lays out one boarding pass with qrCode (PNG) on the stub.
func (g *PDFGenerator) Generate(c Credential, qrCode []byte) ([]byte, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{Unit: gopdf.UnitMM, PageSize: gopdf.Rect{W: pageWidth, H: pageHeight}})
	pdf.AddPage()

	if err := g.loadFonts(pdf); err != nil {
		return nil, err
	}

	if err := g.addHeader(pdf); err != nil {
		return nil, err
	}
	if err := addPassengerInfo(pdf, c); err != nil {
		return nil, err
	}
	if err := addStub(pdf, c, qrCode); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) addHeader(pdf *gopdf.GoPdf) error {
	pdf.SetFillColor(183, 28, 28)
	pdf.RectFromUpperLeftWithStyle(0, 0, pageWidth, headerH, "F")

	if err := pdf.SetFont("bold", "", 14); err != nil {
		return fmt.Errorf("failed to set font: %w", err)
	}
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(8, 4)
	if err := pdf.Cell(nil, g.Airline); err != nil {
		return err
	}
	pdf.SetXY(80, 4)
	if err := pdf.Cell(nil, "BOARDING PASS"); err != nil {
		return err
	}
	pdf.SetXY(stubX+20, 4)
	return pdf.Cell(nil, "ECONOMY")
}

func addPassengerInfo(pdf *gopdf.GoPdf, c Credential) error {
	route := c.Origin + " -> " + c.Destination
	if c.Origin == "" && c.Destination == "" {
		route = "-"
	}
	info := []struct {
		Label string
		Value string
	}{
		{"Name", c.PassengerName},
		{"Flight", c.FlightNumber},
		{"Route", route},
		{"Date", formatDate(c)},
		{"Departure", formatClock(c.DepartureTime)},
		{"Arrival", formatClock(c.ArrivalTime)},
		{"Seat", c.Seat},
		{"Booking", c.BookingID},
	}

	pdf.SetTextColor(33, 33, 33)
	y := headerH + 5
	for _, item := range info {
		if err := pdf.SetFont("bold", "", 9); err != nil {
			return err
		}
		pdf.SetXY(8, y)
		if err := pdf.Cell(nil, item.Label+":"); err != nil {
			return err
		}
		if err := pdf.SetFont("body", "", 9); err != nil {
			return err
		}
		pdf.SetXY(32, y)
		if err := pdf.Cell(nil, item.Value); err != nil {
			return err
		}
		y += 7
	}

	pdf.SetTextColor(117, 117, 117)
	if err := pdf.SetFont("body", "", 7); err != nil {
		return err
	}
	pdf.SetXY(8, pageHeight-6)
	return pdf.Cell(nil, "Boarding closes 45 minutes before departure")
}

func addStub(pdf *gopdf.GoPdf, c Credential, qrCode []byte) error {
	pdf.SetStrokeColor(204, 204, 204)
	pdf.SetLineWidth(0.5)
	pdf.SetLineType("dashed")
	pdf.Line(stubX, headerH+2, stubX, pageHeight-2)
	pdf.SetLineType("solid")

	if len(qrCode) == 0 {
		return nil
	}
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		return fmt.Errorf("failed to decode QR code: %w", err)
	}
	x := stubX + (pageWidth-stubX-qrSide)/2
	if err := pdf.ImageFrom(img, x, headerH+4, &gopdf.Rect{W: qrSide, H: qrSide}); err != nil {
		return fmt.Errorf("failed to draw QR code: %w", err)
	}

	pdf.SetTextColor(33, 33, 33)
	if err := pdf.SetFont("bold", "", 10); err != nil {
		return err
	}
	pdf.SetXY(x, headerH+qrSide+7)
	return pdf.Cell(nil, "Seat "+c.Seat)
}

func formatDate(c Credential) string {
	if c.DepartureTime.IsZero() {
		return c.IssuedAt.Format("02 Jan 2006")
	}
	return c.DepartureTime.Format("02 Jan 2006")
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04")
}
