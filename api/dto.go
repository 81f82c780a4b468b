/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts travel as strings ("450.00"), never JSON numbers. Clients must
  not round-trip fares through float.

VALIDATION:
  Validation is done in handlers and the booking engine, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/ledger"
	"github.com/transitrail/booking-engine/reporting"
)

// =============================================================================
// BOOKINGS
// =============================================================================

// PassengerDTO is one traveller on a booking.
type PassengerDTO struct {
	Name       string `json:"name"`
	Age        int    `json:"age"`
	Gender     string `json:"gender,omitempty"`
	SeatNumber string `json:"seat_number,omitempty"`
}

// CreateBookingRequest is the request to create a booking.
type CreateBookingRequest struct {
	RunID         int64          `json:"run_id"`
	TravelClass   string         `json:"travel_class"`
	JourneyDate   string         `json:"journey_date"` // YYYY-MM-DD
	Passengers    []PassengerDTO `json:"passengers"`
	PaymentMethod string         `json:"payment_method"`
}

// BookingDTO represents a booking in API responses.
type BookingDTO struct {
	ID          int64          `json:"id"`
	PNR         string         `json:"pnr"`
	RunID       int64          `json:"run_id"`
	TravelClass string         `json:"travel_class"`
	JourneyDate string         `json:"journey_date"`
	Passengers  []PassengerDTO `json:"passengers"`
	TotalFare   string         `json:"total_fare"`
	Status      string         `json:"status"`
	BookedAt    string         `json:"booked_at"`
}

func toBookingDTO(b booking.Booking) BookingDTO {
	passengers := make([]PassengerDTO, len(b.Passengers))
	for i, p := range b.Passengers {
		passengers[i] = PassengerDTO{
			Name: p.Name, Age: p.Age, Gender: p.Gender, SeatNumber: p.SeatNumber,
		}
	}
	return BookingDTO{
		ID:          int64(b.ID),
		PNR:         b.PNR,
		RunID:       int64(b.RunID),
		TravelClass: string(b.Class),
		JourneyDate: b.JourneyDate.Format("2006-01-02"),
		Passengers:  passengers,
		TotalFare:   b.TotalFare.StringFixed(2),
		Status:      string(b.Status),
		BookedAt:    b.BookedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// WALLET
// =============================================================================

// WalletDTO represents a wallet in API responses.
type WalletDTO struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at"`
}

func toWalletDTO(w ledger.Wallet) WalletDTO {
	return WalletDTO{
		ID:        int64(w.ID),
		UserID:    int64(w.UserID),
		Balance:   w.Balance.StringFixed(2),
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}

// AddFundsRequest is the request to top up a wallet.
type AddFundsRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method"`
}

// TransactionDTO represents one ledger entry.
type TransactionDTO struct {
	ID          int64  `json:"id"`
	TxnRef      string `json:"txn_ref"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	BookingID   *int64 `json:"booking_id,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toTransactionDTO(t ledger.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          t.ID,
		TxnRef:      t.TxnRef,
		Amount:      t.Amount.StringFixed(2),
		Type:        string(t.Type),
		Method:      string(t.Method),
		Status:      string(t.Status),
		Description: t.Description,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
	if t.BookingID != nil {
		id := int64(*t.BookingID)
		dto.BookingID = &id
	}
	return dto
}

// =============================================================================
// SCHEDULES
// =============================================================================

// RunDTO represents a scheduled run in search results.
type RunDTO struct {
	ID             int64  `json:"id"`
	TrainID        int64  `json:"train_id"`
	SourceID       int64  `json:"source_id"`
	DestinationID  int64  `json:"destination_id"`
	Departure      string `json:"departure"` // HH:MM, local to the run
	Arrival        string `json:"arrival"`
	TotalSeats     int    `json:"total_seats"`
	AvailableSeats int    `json:"available_seats"`
}

func toRunDTO(r directory.ScheduledRun) RunDTO {
	return RunDTO{
		ID:             int64(r.ID),
		TrainID:        int64(r.TrainID),
		SourceID:       int64(r.SourceID),
		DestinationID:  int64(r.DestinationID),
		Departure:      formatClock(r.DepartureTime),
		Arrival:        formatClock(r.ArrivalTime),
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
	}
}

func formatClock(d time.Duration) string {
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(d).Format("15:04")
}

// =============================================================================
// REPORTS
// =============================================================================

// RevenueReportDTO represents a revenue report.
type RevenueReportDTO struct {
	From              string            `json:"from"`
	To                string            `json:"to"`
	TotalRevenue      string            `json:"total_revenue"`
	TotalRefunds      string            `json:"total_refunds"`
	NetRevenue        string            `json:"net_revenue"`
	TotalBookings     int               `json:"total_bookings"`
	CancelledBookings int               `json:"cancelled_bookings"`
	RevenueByClass    map[string]string `json:"revenue_by_class"`
	DailyRevenue      map[string]string `json:"daily_revenue"`
}

func toRevenueReportDTO(r reporting.RevenueReport) RevenueReportDTO {
	byClass := make(map[string]string, len(r.RevenueByClass))
	for class, amount := range r.RevenueByClass {
		byClass[string(class)] = amount.StringFixed(2)
	}
	daily := make(map[string]string, len(r.DailyRevenue))
	for day, amount := range r.DailyRevenue {
		daily[day] = amount.StringFixed(2)
	}
	return RevenueReportDTO{
		From:              r.From.Format("2006-01-02"),
		To:                r.To.Format("2006-01-02"),
		TotalRevenue:      r.TotalRevenue.StringFixed(2),
		TotalRefunds:      r.TotalRefunds.StringFixed(2),
		NetRevenue:        r.NetRevenue.StringFixed(2),
		TotalBookings:     r.TotalBookings,
		CancelledBookings: r.CancelledBookings,
		RevenueByClass:    byClass,
		DailyRevenue:      daily,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
