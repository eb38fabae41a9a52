package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cvforge/internal/document"
)

func TestImportStreamEmitsIncrementalEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/import-stream" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("event: status\ndata: {\"status\": \"extracting\"}\n\n"))
		w.Write([]byte("event: personal\ndata: {\"name\": \"Jane\", \"email\": \"jane@example.com\"}\n\n"))
		w.Write([]byte("event: section\ndata: {\"id\": \"srv-1\", \"type\": \"summary\", \"title\": \"Summary\", \"isVisible\": true, \"items\": \"text\"}\n\n"))
		w.Write([]byte("event: complete\ndata: {\"personal\": {\"name\": \"Jane\"}, \"sections\": [], \"template_id\": \"harvard\"}\n\n"))
	}))
	defer srv.Close()

	var events []ImportEvent
	client := NewClient(srv.URL, 0, nil)
	err := client.ImportStream(context.Background(), "cv.pdf", strings.NewReader("%PDF"), func(ev ImportEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("import stream: %v", err)
	}

	if len(events) != 4 {
		t.Fatalf("events: got %d want 4", len(events))
	}
	if events[0].Type != ImportEventStatus || events[0].Status != "extracting" {
		t.Fatalf("status event: %+v", events[0])
	}
	if events[1].Type != ImportEventPersonal || events[1].Personal.Name != "Jane" {
		t.Fatalf("personal event: %+v", events[1])
	}
	if events[2].Type != ImportEventSection {
		t.Fatalf("section event: %+v", events[2])
	}
	if events[2].Section.ID == "srv-1" || events[2].Section.ID == "" {
		t.Fatalf("streamed section kept server id %q", events[2].Section.ID)
	}
	if events[3].Type != ImportEventComplete || events[3].Document.TemplateID != "harvard" {
		t.Fatalf("complete event: %+v", events[3])
	}
}

func TestImportStreamErrorEventFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("event: status\ndata: {\"status\": \"extracting\"}\n\n"))
		w.Write([]byte("event: error\ndata: {\"detail\": \"extraction failed\"}\n\n"))
	}))
	defer srv.Close()

	var events []ImportEvent
	client := NewClient(srv.URL, 0, nil)
	err := client.ImportStream(context.Background(), "cv.pdf", strings.NewReader("%PDF"), func(ev ImportEvent) {
		events = append(events, ev)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "extraction failed") {
		t.Fatalf("detail lost: %v", err)
	}
	if len(events) != 2 || events[1].Type != ImportEventError {
		t.Fatalf("events: %+v", events)
	}
}

func TestParseImportEventSectionPayload(t *testing.T) {
	ev, err := parseImportEvent("section", `{"id": "x", "type": "experiences", "title": "Exp", "isVisible": true,
		"items": [{"title": "Dev", "company": "Acme", "dates": "2020", "highlights": ["a"]}]}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Section.Type != document.SectionExperiences || len(ev.Section.Experiences) != 1 {
		t.Fatalf("section: %+v", ev.Section)
	}
}

func TestParseImportEventUnknownType(t *testing.T) {
	if _, err := parseImportEvent("progress", `{}`); err == nil {
		t.Fatal("expected error for unknown event")
	}
}
