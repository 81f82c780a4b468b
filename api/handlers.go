/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the booking core via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Bookings:
    POST   /api/bookings               Create booking
    GET    /api/bookings               List caller's bookings
    GET    /api/bookings/{id}          Get one booking
    DELETE /api/bookings/{id}          Cancel booking (refund + release)
    GET    /api/bookings/{id}/ticket   Download the e-ticket PDF

  Wallet:
    GET    /api/wallet                 Current balance
    POST   /api/wallet/funds           Top up
    GET    /api/wallet/transactions    Transaction history, newest first

  Schedules:
    GET    /api/schedules/search       Runs by route and journey date
    GET    /api/schedules/{id}/seats   Booked seat numbers on a run

  Reports:
    GET    /api/reports/revenue        Revenue report for a date range

IDENTITY:
  The caller is identified by the X-User-ID header, set by the gateway
  after authentication. The core trusts it; there is no credential
  handling here. Requests without it get 401.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing identity
  - 402: Insufficient wallet funds
  - 404: Resource not found (including not-owned bookings)
  - 409: Conflict (already cancelled, no seats, window closed)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/transitrail/booking-engine/booking"
	"github.com/transitrail/booking-engine/directory"
	"github.com/transitrail/booking-engine/fare"
	"github.com/transitrail/booking-engine/inventory"
	"github.com/transitrail/booking-engine/ledger"
	"github.com/transitrail/booking-engine/logging"
	"github.com/transitrail/booking-engine/reporting"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *booking.Engine
	Ledger    *ledger.Ledger
	Directory directory.Lookup
	Reports   *reporting.Service
	Log       logging.Logger
}

// NewHandler creates a handler over the domain services.
func NewHandler(engine *booking.Engine, l *ledger.Ledger, dir directory.Lookup, reports *reporting.Service, log logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{Engine: engine, Ledger: l, Directory: dir, Reports: reports, Log: log}
}

// identity resolves the caller from the X-User-ID header. Returns false
// after writing a 401 when the header is missing or malformed.
func identity(w http.ResponseWriter, r *http.Request) (booking.Identity, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "Missing X-User-ID header", nil)
		return booking.Identity{}, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnauthorized, "Invalid X-User-ID header", err)
		return booking.Identity{}, false
	}
	return booking.Identity{
		UserID: booking.UserID(id),
		Email:  r.Header.Get("X-User-Email"),
	}, true
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking creates a booking for the caller.
// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	journeyDate, err := time.Parse("2006-01-02", req.JourneyDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid journey_date format (use YYYY-MM-DD)", err)
		return
	}

	passengers := make([]booking.Passenger, len(req.Passengers))
	for i, p := range req.Passengers {
		passengers[i] = booking.Passenger{
			Name: p.Name, Age: p.Age, Gender: p.Gender, SeatNumber: p.SeatNumber,
		}
	}

	method := ledger.PaymentMethod(req.PaymentMethod)
	if method == "" {
		method = ledger.MethodWallet
	}

	b, err := h.Engine.Create(r.Context(), booking.CreateRequest{
		User:        user,
		RunID:       directory.RunID(req.RunID),
		Class:       fare.TravelClass(req.TravelClass),
		JourneyDate: journeyDate,
		Passengers:  passengers,
		Method:      method,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create booking", err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookingDTO(*b))
}

// ListBookings returns the caller's bookings, newest first.
// GET /api/bookings
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}

	bs, err := h.Engine.ListForUser(r.Context(), user.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}

	dtos := make([]BookingDTO, len(bs))
	for i, b := range bs {
		dtos[i] = toBookingDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBooking returns one booking the caller owns.
// GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	b, err := h.Engine.Get(r.Context(), id, user.UserID)
	if err != nil {
		h.writeDomainError(w, "Failed to get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// CancelBooking cancels a booking, refunding the fare and releasing seats.
// DELETE /api/bookings/{id}
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	b, err := h.Engine.Cancel(r.Context(), id, user.UserID)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// GetTicket renders and returns the e-ticket PDF.
// GET /api/bookings/{id}/ticket
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	id, ok := bookingIDParam(w, r)
	if !ok {
		return
	}

	t, err := h.Engine.Ticket(r.Context(), id, user.UserID)
	if err != nil {
		h.writeDomainError(w, "Failed to render ticket", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=ticket.pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(t.PDF)
}

func bookingIDParam(w http.ResponseWriter, r *http.Request) (booking.BookingID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid booking id", err)
		return 0, false
	}
	return booking.BookingID(id), true
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// GetWallet returns the caller's wallet.
// GET /api/wallet
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}

	wallet, err := h.Ledger.Balance(r.Context(), user.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			writeError(w, http.StatusNotFound, "Wallet not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get wallet", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// AddFunds tops up the caller's wallet, creating it on first use.
// POST /api/wallet/funds
func (h *Handler) AddFunds(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}

	var req AddFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	method := ledger.PaymentMethod(req.Method)
	if method == "" {
		method = ledger.MethodUPI
	}

	wallet, err := h.Ledger.AddFunds(r.Context(), user.UserID, amount, method)
	if err != nil {
		if errors.Is(err, ledger.ErrNonPositiveAmount) {
			writeError(w, http.StatusBadRequest, "Amount must be positive", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to add funds", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletDTO(wallet))
}

// GetTransactions returns the caller's wallet history, newest first.
// GET /api/wallet/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}

	wallet, err := h.Ledger.Balance(r.Context(), user.UserID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			writeError(w, http.StatusNotFound, "Wallet not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get wallet", err)
		return
	}

	txns, err := h.Ledger.Transactions(r.Context(), wallet.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(txns))
	for i, t := range txns {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// SearchSchedules returns runs on a route for a journey date.
// GET /api/schedules/search?source=1&destination=2&date=2026-10-01
func (h *Handler) SearchSchedules(w http.ResponseWriter, r *http.Request) {
	src, err := strconv.ParseInt(r.URL.Query().Get("source"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid source station id", err)
		return
	}
	dst, err := strconv.ParseInt(r.URL.Query().Get("destination"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid destination station id", err)
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	runs, err := h.Directory.SearchRuns(r.Context(), directory.StationID(src), directory.StationID(dst), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search schedules", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBookedSeats returns the assigned seat numbers on a run.
// GET /api/schedules/{id}/seats
func (h *Handler) GetBookedSeats(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid run id", err)
		return
	}

	seats, err := h.Engine.BookedSeats(r.Context(), directory.RunID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to get booked seats", err)
		return
	}
	if seats == nil {
		seats = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"booked_seats": seats})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetRevenueReport aggregates bookings and refunds for a date range.
// GET /api/reports/revenue?from=2026-01-01&to=2026-01-31
func (h *Handler) GetRevenueReport(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	// Make "to" inclusive through end of day.
	to = to.Add(24*time.Hour - time.Nanosecond)

	report, err := h.Reports.Revenue(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}
	writeJSON(w, http.StatusOK, toRevenueReportDTO(report))
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps domain errors onto HTTP statuses. Anything not a
// recognized business-rule rejection is a 500, logged with detail but
// returned opaque.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound) || directory.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, message, err)
	case errors.Is(err, booking.ErrAlreadyCancelled) ||
		errors.Is(err, booking.ErrCancellationNotAllowed) ||
		errors.Is(err, inventory.ErrInsufficientSeats):
		writeError(w, http.StatusConflict, message, err)
	case booking.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.Log.Error("request failed", "message", message, "error", err)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
