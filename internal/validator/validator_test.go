package validator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidate_ValidVerdict(t *testing.T) {
	var gotReq validateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/validate" {
			t.Errorf("Expected path /validate, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		score := 87.5
		json.NewEncoder(w).Encode(validateResponse{
			Status:         true,
			SyntaxCorrect:  true,
			CompilableCode: true,
			Score:          &score,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL})
	verdict, err := client.Validate(context.Background(), "Write a counter", "contract Counter {}")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !verdict.Valid || !verdict.SyntaxCorrect || !verdict.Compilable {
		t.Errorf("Expected fully positive verdict, got %+v", verdict)
	}
	if verdict.Score == nil || *verdict.Score != 87.5 {
		t.Errorf("Expected score 87.5, got %v", verdict.Score)
	}
	if gotReq.ProblemStatement != "Write a counter" || gotReq.Code != "contract Counter {}" {
		t.Errorf("Expected request to carry problem and code, got %+v", gotReq)
	}
}

func TestValidate_NegativeVerdictIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validateResponse{
			Status:        false,
			SyntaxCorrect: true,
			Error:         "missing increment function",
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL})
	verdict, err := client.Validate(context.Background(), "problem", "code")
	if err != nil {
		t.Fatalf("Expected no error for negative verdict, got %v", err)
	}
	if verdict.Valid {
		t.Error("Expected invalid verdict")
	}
	if verdict.ErrorText != "missing increment function" {
		t.Errorf("Expected error text to pass through, got %q", verdict.ErrorText)
	}
}

func TestValidate_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := client.Validate(context.Background(), "problem", "code")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestValidate_UnreachableServiceIsUnavailable(t *testing.T) {
	client := NewHTTPClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Validate(context.Background(), "problem", "code")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestValidate_MalformedResponseIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL})
	_, err := client.Validate(context.Background(), "problem", "code")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestValidate_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient(Config{BaseURL: srv.URL})
	if _, err := client.Validate(ctx, "problem", "code"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("Expected path /health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewHTTPClient(Config{BaseURL: srv.URL})
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy, got %v", err)
	}

	client = NewHTTPClient(Config{BaseURL: "http://127.0.0.1:1"})
	if err := client.Health(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}
