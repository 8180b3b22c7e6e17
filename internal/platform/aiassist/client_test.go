package aiassist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/platform/apperr"
)

func TestClient_Suggest(t *testing.T) {
	var received Intake
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode intake: %v", err)
		}
		w.Write([]byte(`{"primary_diagnosis":"Influenza","severity":"moderate"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", 5*time.Second, 2, zerolog.Nop())
	got, err := c.Suggest(context.Background(), Intake{
		Complaint:    "fever and body aches",
		CatalogDrugs: []string{"Amlodipine", "Paracetamol", "Ibuprofen"},
	})
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got.PrimaryDiagnosis != "Influenza" {
		t.Errorf("PrimaryDiagnosis = %q", got.PrimaryDiagnosis)
	}
	if len(received.CatalogDrugs) != 2 {
		t.Errorf("catalog sent = %v, want ranked top 2", received.CatalogDrugs)
	}
	if received.CatalogDrugs[0] != "Paracetamol" {
		t.Errorf("top ranked = %q, want Paracetamol", received.CatalogDrugs[0])
	}
}

func TestClient_Suggest_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 5*time.Second, 3, zerolog.Nop())
	_, err := c.Suggest(context.Background(), Intake{Complaint: "cough"})
	if !errors.Is(err, apperr.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestClient_Suggest_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, "", 5*time.Second, 3, zerolog.Nop())
	if _, err := c.Suggest(ctx, Intake{Complaint: "cough"}); err == nil {
		t.Fatal("expected context deadline error")
	}
}
