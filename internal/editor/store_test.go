package editor

import (
	"testing"
	"time"

	"cvforge/internal/document"
)

func contentDocument() *document.Document {
	return &document.Document{
		Personal:   document.Personal{Name: "Jane"},
		TemplateID: "harvard",
		Sections: []document.Section{{
			ID: "s1", Type: document.SectionSummary, Title: "Summary",
			IsVisible: true, Text: "Go engineer.",
		}},
	}
}

func drained(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return false
	case <-time.After(50 * time.Millisecond):
		return true
	}
}

func fired(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(time.Second):
		return false
	}
}

func TestStoreNoOpUpdateKeepsReference(t *testing.T) {
	store := NewStore(contentDocument())
	before := store.Document()
	watch := store.WatchDocument()

	after := store.Update(func(d *document.Document) *document.Document { return d })

	if after != before {
		t.Fatal("no-op update must return the original reference")
	}
	if store.Document() != before {
		t.Fatal("no-op update must not replace the stored document")
	}
	if !drained(watch) {
		t.Fatal("no-op update must not notify subscribers")
	}
}

func TestStoreTemplateChangeSkipsContentWatchers(t *testing.T) {
	store := NewStore(contentDocument())
	content := store.WatchContent()
	all := store.WatchDocument()

	store.Update(func(d *document.Document) *document.Document {
		next := d.Clone()
		next.TemplateID = "harvard_compact"
		return next
	})

	if !fired(all) {
		t.Fatal("document watcher should fire on template change")
	}
	if !drained(content) {
		t.Fatal("content watcher must not fire on a template-only change")
	}
}

func TestStoreContentChangeNotifiesBoth(t *testing.T) {
	store := NewStore(contentDocument())
	content := store.WatchContent()
	all := store.WatchDocument()

	store.Update(func(d *document.Document) *document.Document {
		next := d.Clone()
		next.Personal.Title = "Principal Engineer"
		return next
	})

	if !fired(content) {
		t.Fatal("content watcher should fire")
	}
	if !fired(all) {
		t.Fatal("document watcher should fire")
	}
}

func TestStoreNotificationsCoalesce(t *testing.T) {
	store := NewStore(contentDocument())
	watch := store.WatchDocument()

	for i := 0; i < 5; i++ {
		store.Update(func(d *document.Document) *document.Document {
			next := d.Clone()
			next.Personal.Phone = next.Personal.Phone + "1"
			return next
		})
	}

	if !fired(watch) {
		t.Fatal("expected a pending signal")
	}
	// All five updates collapse into at most one buffered signal.
	if !drained(watch) {
		t.Fatal("signals should coalesce, not queue")
	}
}

func TestNewStoreNilStartsEmpty(t *testing.T) {
	store := NewStore(nil)
	doc := store.Document()
	if doc == nil || doc.TemplateID != document.DefaultTemplateID {
		t.Fatalf("unexpected initial document: %+v", doc)
	}
	if doc.HasContent() {
		t.Fatal("initial document should be empty")
	}
}
