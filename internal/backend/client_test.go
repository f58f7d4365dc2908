package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-seat-booking/internal/flow"
	"github.com/iliyamo/library-seat-booking/internal/gateway"
)

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/users/exists", r.URL.Path)
		assert.Equal(t, "who@example.test", r.URL.Query().Get("email"))
		_ = json.NewEncoder(w).Encode(map[string]bool{"exists": true})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	exists, err := c.Resolve(context.Background(), "who@example.test")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestResolveErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Resolve(context.Background(), "who@example.test")
	assert.Error(t, err, "the flow fails closed on this error, so it must surface")
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "who@example.test", req["userEmail"])
		assert.Equal(t, float64(7), req["libraryId"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"orderReference": "O1",
			"amountDue": 4500,
			"gatewayParams": {"keyId": "pk_test", "description": "Monthly seat"}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	op, err := c.CreateOrder(context.Background(), "who@example.test", 7)
	require.NoError(t, err)
	assert.Equal(t, "O1", op.OrderRef)
	assert.Equal(t, uint32(4500), op.AmountCents)
	assert.Equal(t, "pk_test", op.Gateway.KeyID)
	assert.Equal(t, "O1", op.Gateway.OrderRef)
}

func TestCreateOrderNoSeatsIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": "no seats available"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	_, err := c.CreateOrder(context.Background(), "who@example.test", 7)

	var term *flow.TerminalError
	require.ErrorAs(t, err, &term)
	assert.Equal(t, "no seats available", term.Reason)
}

func TestCreateOrderServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	_, err := c.CreateOrder(context.Background(), "who@example.test", 7)
	require.Error(t, err)

	var term *flow.TerminalError
	assert.False(t, errors.As(err, &term), "a transient server error must stay retryable")
}

func TestVerifyPassesProofThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders/verify", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "O1", req["orderReference"])
		assert.Equal(t, "P1", req["paymentReference"])
		assert.Equal(t, "sig-untouched", req["signature"])

		_, _ = w.Write([]byte(`{
			"confirmed": true,
			"booking": {"seatNumber": "A-12", "validUntil": "2026-10-01T00:00:00Z"}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	res, err := c.Verify(context.Background(), gateway.Proof{
		OrderRef: "O1", PaymentRef: "P1", Signature: "sig-untouched",
	}, "who@example.test")
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, "A-12", res.SeatLabel)
	assert.Equal(t, 2026, res.ValidUntil.Year())
}

func TestVerifyNotConfirmedIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"confirmed": false}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1")
	res, err := c.Verify(context.Background(), gateway.Proof{OrderRef: "O1"}, "who@example.test")
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Empty(t, res.SeatLabel)
}
