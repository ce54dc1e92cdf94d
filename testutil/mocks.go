// Package testutil provides httptest-backed mocks for the external HTTP APIs
// the bot calls.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockGeminiServer creates a test server that mocks the Gemini generateContent API
type MockGeminiServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockGeminiServer creates a new mock Gemini API server
func NewMockGeminiServer(t *testing.T) *MockGeminiServer {
	t.Helper()
	m := &MockGeminiServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockGenerateResponse registers a handler for the model's generateContent
// endpoint returning the given text as the single candidate.
func (m *MockGeminiServer) MockGenerateResponse(model, text string) {
	m.Handlers["/models/"+model+":generateContent"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content": map[string]interface{}{
						"role": "model",
						"parts": []map[string]string{
							{"text": text},
						},
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockEmptyResponse registers a handler returning a successful call with no
// candidates.
func (m *MockGeminiServer) MockEmptyResponse(model string) {
	m.Handlers["/models/"+model+":generateContent"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}}) //nolint:errcheck // test mock response
	}
}

// MockErrorResponse registers a handler failing with the given status.
func (m *MockGeminiServer) MockErrorResponse(model string, status int, body string) {
	m.Handlers["/models/"+model+":generateContent"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// MockW2GServer creates a test server that mocks the Watch2Gether rooms API
type MockW2GServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	// LastCreatePayload captures the most recent room-creation request body.
	LastCreatePayload map[string]string
}

// NewMockW2GServer creates a new mock Watch2Gether API server
func NewMockW2GServer(t *testing.T) *MockW2GServer {
	t.Helper()
	m := &MockW2GServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockCreateRoomResponse registers a handler for /rooms/create.json.
func (m *MockW2GServer) MockCreateRoomResponse(id int, streamKey string) {
	m.Handlers["/rooms/create.json"] = func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		_ = json.NewDecoder(r.Body).Decode(&payload) //nolint:errcheck // test mock request
		m.LastCreatePayload = payload

		response := map[string]interface{}{
			"id":        id,
			"streamkey": streamKey,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
