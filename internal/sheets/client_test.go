package sheets_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/BrandonDHaskell/summer-academy/internal/academy/errors"
	"github.com/BrandonDHaskell/summer-academy/internal/sheets"
)

func TestClient_AppendSendsRowsAndKey(t *testing.T) {
	var got struct {
		Data []sheets.Row `json:"data"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Leads", r.URL.Query().Get("sheet"))
		assert.Equal(t, "Bearer k-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"created":1}`))
	}))
	defer ts.Close()

	c := sheets.New(ts.URL+"/api/v1/abc", "k-1")
	require.NoError(t, c.Append(context.Background(), "Leads", sheets.Row{"email": "jane@x.com"}))
	require.Len(t, got.Data, 1)
	assert.Equal(t, "jane@x.com", got.Data[0]["email"])
}

func TestClient_SearchAndUpdate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/search":
			assert.Equal(t, "abc-123", r.URL.Query().Get("correlation_id"))
			_, _ = w.Write([]byte(`[{"correlation_id":"abc-123","status":"PENDING"}]`))
		case r.Method == http.MethodPatch && r.URL.Path == "/correlation_id/abc-123":
			_, _ = w.Write([]byte(`{"updated":1}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := sheets.New(ts.URL, "")
	rows, err := c.Search(context.Background(), "Leads", "correlation_id", "abc-123")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "PENDING", rows[0]["status"])

	n, err := c.Update(context.Background(), "Leads", "correlation_id", "abc-123", sheets.Row{"status": "PAID"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClient_VendorErrorCarriesBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	err := sheets.New(ts.URL, "").Append(context.Background(), "Audit", sheets.Row{"a": "b"})
	require.Error(t, err)
	var re *apperrors.RelayError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusTooManyRequests, re.StatusCode)
	assert.Contains(t, re.Body, "quota")
}

func TestClient_TransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := sheets.New(url, "").Append(context.Background(), "Audit", sheets.Row{"a": "b"})
	assert.ErrorIs(t, err, apperrors.ErrTransport)
}
