package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestParseJSON tests the parseJSON helper function.
// This is an internal test (package handlers, not handlers_test) because
// parseJSON is unexported.
func TestParseJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	t.Run("decodes a well-formed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":"btc","count":3}`))

		got, err := parseJSON[payload](req)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}

		if got.Name != "btc" {
			t.Errorf("Expected name 'btc', got '%s'", got.Name)
		}
		if got.Count != 3 {
			t.Errorf("Expected count 3, got %d", got.Count)
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":"btc","cuont":3}`))

		_, err := parseJSON[payload](req)
		if err == nil {
			t.Fatal("Expected an error for an unknown field")
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":`))

		_, err := parseJSON[payload](req)
		if err == nil {
			t.Fatal("Expected an error for truncated JSON")
		}
	})
}
