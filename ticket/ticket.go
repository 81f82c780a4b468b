/*
Package ticket renders a confirmed booking into a deliverable document.

PURPOSE:
  The booking core hands over a flat snapshot of a CONFIRMED booking and
  gets back PDF bytes plus the scannable payload embedded in the QR code.
  Rendering happens after the booking has committed; a render failure
  never touches booking state.

QR PAYLOAD:
  PNR:<pnr>|Date:<yyyy-mm-dd>|From:<source>|To:<destination>|Class:<class>

SEE ALSO:
  - notify: delivers the rendered ticket
  - booking/engine.go: dispatches rendering asynchronously after create
*/
package ticket

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// =============================================================================
// DATA - flat snapshot handed over by the booking core
// =============================================================================

// PassengerLine is one passenger row on the ticket.
type PassengerLine struct {
	Name       string
	Age        int
	Gender     string
	SeatNumber string
}

// Data carries everything the renderer needs. It deliberately has no
// dependency on the booking package: the renderer is a collaborator, not
// part of the core.
type Data struct {
	PNR         string
	TrainName   string
	TrainNumber string
	Source      string
	Destination string
	JourneyDate time.Time
	Class       string
	Passengers  []PassengerLine
	TotalFare   decimal.Decimal
}

// Ticket is the rendered result.
type Ticket struct {
	PDF       []byte
	QRPayload string
}

// Renderer produces a ticket document for a confirmed booking.
type Renderer interface {
	Render(ctx context.Context, d Data) (Ticket, error)
}

// =============================================================================
// PDF RENDERER - gofpdf + QR code
// =============================================================================

// PDFRenderer renders an A4 e-ticket with an embedded QR code.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// QRPayload builds the scannable string for a ticket.
func QRPayload(d Data) string {
	return fmt.Sprintf("PNR:%s|Date:%s|From:%s|To:%s|Class:%s",
		d.PNR, d.JourneyDate.Format("2006-01-02"), d.Source, d.Destination, d.Class)
}

func (r *PDFRenderer) Render(_ context.Context, d Data) (Ticket, error) {
	payload := QRPayload(d)
	qrPNG, err := qrcode.Encode(payload, qrcode.Medium, 200)
	if err != nil {
		return Ticket{}, fmt.Errorf("failed to encode qr code: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+d.PNR, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "TRAIN E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("PNR       : %s", d.PNR),
		fmt.Sprintf("Train     : %s (%s)", d.TrainName, d.TrainNumber),
		fmt.Sprintf("Route     : %s -> %s", d.Source, d.Destination),
		fmt.Sprintf("Date      : %s", d.JourneyDate.Format("02 Jan 2006")),
		fmt.Sprintf("Class     : %s", d.Class),
		fmt.Sprintf("Total Fare: %s", d.TotalFare.StringFixed(2)),
	}
	for _, line := range lines {
		pdf.Cell(0, 8, line)
		pdf.Ln(8)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Passengers")
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "", 11)
	for i, p := range d.Passengers {
		seat := p.SeatNumber
		if seat == "" {
			seat = "-"
		}
		pdf.Cell(0, 7, fmt.Sprintf("%d. %s  (age %d, %s)  seat %s", i+1, p.Name, p.Age, p.Gender, seat))
		pdf.Ln(7)
	}

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr-"+d.PNR, opts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("qr-"+d.PNR, 150, 20, 40, 40, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Ticket{}, fmt.Errorf("failed to render pdf: %w", err)
	}

	return Ticket{PDF: buf.Bytes(), QRPayload: payload}, nil
}
