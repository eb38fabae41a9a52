package editor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cvforge/internal/document"
	"cvforge/internal/engine"
)

type stubRenderer struct {
	pdf []byte
	err error
}

func (s *stubRenderer) Generate(context.Context, *document.Document, string, string) ([]byte, error) {
	return s.pdf, s.err
}

func TestExportFilename(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"  John   Doe  ", "John_Doe_CV.pdf"},
		{"John Doe", "John_Doe_CV.pdf"},
		{"Ada", "Ada_CV.pdf"},
		{"", "CV.pdf"},
		{"   ", "CV.pdf"},
	}
	for _, c := range cases {
		if got := ExportFilename(c.name); got != c.want {
			t.Fatalf("ExportFilename(%q): got %q want %q", c.name, got, c.want)
		}
	}
}

func TestExportSuccess(t *testing.T) {
	e := NewExporter(&stubRenderer{pdf: []byte("%PDF ok")}, nil, nil)
	doc := contentDocument()
	doc.Personal.Name = "  John   Doe  "

	result, err := e.Export(context.Background(), doc, "en", "tok")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Filename != "John_Doe_CV.pdf" {
		t.Fatalf("filename: got %q", result.Filename)
	}
	if string(result.PDF) != "%PDF ok" {
		t.Fatalf("pdf: got %q", result.PDF)
	}
	if e.Loading() {
		t.Fatal("loading flag not cleared")
	}
}

func TestExportGuestQuota(t *testing.T) {
	limitCalls := 0
	e := NewExporter(&stubRenderer{
		err: &engine.QuotaError{Detail: "Guest accounts are limited to 1 download per month."},
	}, nil, func() { limitCalls++ })

	_, err := e.Export(context.Background(), contentDocument(), "en", "")
	var quota *QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("expected *QuotaExceededError, got %T: %v", err, err)
	}
	if !quota.Guest {
		t.Fatal("guest detail should select the guest audience")
	}
	if !strings.Contains(quota.Error(), "free account") {
		t.Fatalf("guest message: %q", quota.Error())
	}
	if limitCalls != 1 {
		t.Fatalf("limit callback: got %d calls", limitCalls)
	}
}

func TestExportRegisteredQuota(t *testing.T) {
	e := NewExporter(&stubRenderer{
		err: &engine.QuotaError{Detail: "Monthly download limit reached (20)."},
	}, nil, nil)

	_, err := e.Export(context.Background(), contentDocument(), "en", "tok")
	var quota *QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("expected *QuotaExceededError, got %T: %v", err, err)
	}
	if quota.Guest {
		t.Fatal("registered detail misdetected as guest")
	}
	if !strings.Contains(quota.Error(), "Premium") {
		t.Fatalf("registered message: %q", quota.Error())
	}
}

func TestExportGenericFailurePreservesDetail(t *testing.T) {
	e := NewExporter(&stubRenderer{
		err: &engine.APIError{Status: 500, Detail: "LaTeX compile error"},
	}, nil, nil)

	_, err := e.Export(context.Background(), contentDocument(), "en", "")
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *engine.APIError
	if !errors.As(err, &apiErr) || apiErr.Detail != "LaTeX compile error" {
		t.Fatalf("detail lost: %v", err)
	}
	if e.Loading() {
		t.Fatal("loading flag not cleared on failure")
	}
}
