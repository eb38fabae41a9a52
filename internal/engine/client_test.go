package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cvforge/internal/document"
)

func testDocument() *document.Document {
	return &document.Document{
		Personal:   document.Personal{Name: "Jane Doe", Email: "jane@example.com"},
		TemplateID: "harvard_compact",
		Sections: []document.Section{{
			ID: "s1", Type: document.SectionSummary, Title: "Summary",
			IsVisible: true, Text: "Go engineer.",
		}},
	}
}

func TestGenerateReturnsPDFBytes(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 fake"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil)
	pdf, err := client.Generate(context.Background(), testDocument(), "en", "tok-123")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(string(pdf), "%PDF") {
		t.Fatalf("unexpected body %q", pdf)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("authorization header: got %q", gotAuth)
	}
	if gotBody["lang"] != "en" {
		t.Fatalf("lang: got %v", gotBody["lang"])
	}
	if gotBody["template_id"] != "harvard_compact" {
		t.Fatalf("generate must not rewrite template: got %v", gotBody["template_id"])
	}
}

func TestGenerateMapsQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"detail": "Guest accounts are limited to 1 download per month.",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil)
	_, err := client.Generate(context.Background(), testDocument(), "en", "")
	quota, ok := err.(*QuotaError)
	if !ok {
		t.Fatalf("expected *QuotaError, got %T: %v", err, err)
	}
	if !strings.Contains(quota.Detail, "Guest") {
		t.Fatalf("detail lost: %q", quota.Detail)
	}
}

func TestGenerateMalformedErrorBodyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("<html>nope</html>"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil)
	_, err := client.Generate(context.Background(), testDocument(), "en", "")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Detail != genericFailureDetail {
		t.Fatalf("detail: got %q want %q", apiErr.Detail, genericFailureDetail)
	}
}

func TestGenerateAbortIsDistinguishable(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := NewClient(srv.URL, 0, nil)
	_, err := client.Generate(ctx, testDocument(), "en", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAbort(err) {
		t.Fatalf("expected abort, got %v", err)
	}
	if IsTimeout(err) {
		t.Fatalf("abort misreported as timeout: %v", err)
	}
}

func TestGenerateTimeoutIsDistinguishable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 50*time.Millisecond, nil)
	_, err := client.Generate(context.Background(), testDocument(), "en", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if IsAbort(err) {
		t.Fatalf("timeout misreported as abort: %v", err)
	}
}

func TestOptimalSizeForcesBaseTemplate(t *testing.T) {
	var gotTemplate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/optimal-size" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		gotTemplate, _ = body["template_id"].(string)
		json.NewEncoder(w).Encode(OptimalSizeResult{
			OptimalSize: document.DensityCompact,
			TemplateID:  "harvard_compact",
		})
	}))
	defer srv.Close()

	doc := testDocument()
	client := NewClient(srv.URL, 0, nil)
	result, err := client.OptimalSize(context.Background(), doc, "en")
	if err != nil {
		t.Fatalf("optimal size: %v", err)
	}
	if gotTemplate != "harvard" {
		t.Fatalf("request template: got %q want base form", gotTemplate)
	}
	if doc.TemplateID != "harvard_compact" {
		t.Fatalf("caller document mutated: %q", doc.TemplateID)
	}
	if result.OptimalSize != document.DensityCompact || result.TemplateID != "harvard_compact" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestOptimalSizeRejectsUnknownBucket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"optimal_size": "gigantic", "template_id": "harvard"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil)
	if _, err := client.OptimalSize(context.Background(), testDocument(), "en"); err == nil {
		t.Fatal("expected error for unknown bucket")
	}
}

func TestImportAssignsFreshSectionIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("file part missing: %v", err)
		}
		w.Write([]byte(`{
			"personal": {"name": "Jane"},
			"sections": [
				{"id": "srv-1", "type": "summary", "title": "Summary", "isVisible": true, "items": "text"},
				{"id": "srv-2", "type": "skills", "title": "Skills", "isVisible": true,
					"items": [{"category": "Langs", "skills": "Go"}]}
			],
			"template_id": "harvard"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil)
	doc, err := client.Import(context.Background(), "cv.pdf", strings.NewReader("%PDF fake"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(doc.Sections) != 2 {
		t.Fatalf("sections: got %d", len(doc.Sections))
	}
	for _, s := range doc.Sections {
		if s.ID == "srv-1" || s.ID == "srv-2" || s.ID == "" {
			t.Fatalf("imported section kept server id %q", s.ID)
		}
	}
	if doc.Sections[1].SkillGroups[0].Skills != "Go" {
		t.Fatalf("grouped skills lost: %+v", doc.Sections[1])
	}
}

func TestImportRejectsSchemaViolations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sections": [{"type": "references", "title": "Refs"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 0, nil)
	if _, err := client.Import(context.Background(), "cv.pdf", strings.NewReader("%PDF")); err == nil {
		t.Fatal("expected schema rejection")
	}
}
