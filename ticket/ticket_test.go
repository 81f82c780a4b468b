package ticket_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitrail/booking-engine/ticket"
)

func sampleData() ticket.Data {
	return ticket.Data{
		PNR:         "PNR123456789",
		TrainName:   "Shatabdi Express",
		TrainNumber: "12002",
		Source:      "New Delhi",
		Destination: "Agra Cantt",
		JourneyDate: time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC),
		Class:       "SECOND_CLASS",
		Passengers: []ticket.PassengerLine{
			{Name: "Asha Rao", Age: 34, Gender: "F", SeatNumber: "A1"},
			{Name: "Vikram Rao", Age: 36, Gender: "M"},
		},
		TotalFare: decimal.RequireFromString("120.00"),
	}
}

func TestQRPayload_Format(t *testing.T) {
	// GIVEN: a ticket snapshot
	// WHEN: building the QR payload
	// THEN: pipe-separated fields in the documented order

	payload := ticket.QRPayload(sampleData())
	assert.Equal(t,
		"PNR:PNR123456789|Date:2026-10-05|From:New Delhi|To:Agra Cantt|Class:SECOND_CLASS",
		payload)
}

func TestRender_ProducesPDF(t *testing.T) {
	// GIVEN: a ticket snapshot
	// WHEN: rendering
	// THEN: valid PDF bytes and the matching QR payload come back

	r := ticket.NewPDFRenderer()
	tk, err := r.Render(context.Background(), sampleData())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(tk.PDF, []byte("%PDF")), "output does not start with a PDF header")
	assert.Greater(t, len(tk.PDF), 1000)
	assert.Equal(t, ticket.QRPayload(sampleData()), tk.QRPayload)
}

func TestRender_Deterministic_PayloadStable(t *testing.T) {
	// Rendering twice yields the same payload; PDF bytes may embed
	// timestamps, so only the payload is compared.

	r := ticket.NewPDFRenderer()
	a, err := r.Render(context.Background(), sampleData())
	require.NoError(t, err)
	b, err := r.Render(context.Background(), sampleData())
	require.NoError(t, err)
	assert.Equal(t, a.QRPayload, b.QRPayload)
}
