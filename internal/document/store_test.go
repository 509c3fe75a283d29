package document

import (
	"errors"
	"strings"
	"testing"
)

func newTestStore(t *testing.T, size int) *Store {
	t.Helper()
	s, err := NewStore(size)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestUpload(t *testing.T) {
	s := newTestStore(t, 4)
	doc, err := s.Upload(Upload{Title: "Q4 Report", Text: strings.Repeat("x", 6001)})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.PageCount != 3 {
		t.Errorf("PageCount = %d, want 3", doc.PageCount)
	}
	cur := s.Current()
	if !cur.HasDocument || cur.Title != "Q4 Report" {
		t.Errorf("Current() = %+v, want the uploaded document", cur)
	}
}

func TestUpload_Empty(t *testing.T) {
	s := newTestStore(t, 4)
	if _, err := s.Upload(Upload{Title: "x", Text: "  \n"}); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Upload() error = %v, want ErrEmptyDocument", err)
	}
	if s.Current().HasDocument {
		t.Error("Current().HasDocument = true, want false")
	}
}

func TestEstimatePages(t *testing.T) {
	tests := []struct {
		chars int
		want  int
	}{
		{1, 1},
		{3000, 1},
		{3001, 2},
		{9000, 3},
	}
	for _, tt := range tests {
		if got := EstimatePages(strings.Repeat("a", tt.chars)); got != tt.want {
			t.Errorf("EstimatePages(%d chars) = %d, want %d", tt.chars, got, tt.want)
		}
	}
}

func TestSelectAndRemove(t *testing.T) {
	s := newTestStore(t, 4)
	a, _ := s.Upload(Upload{Title: "A", Text: "alpha"})
	b, _ := s.Upload(Upload{Title: "B", Text: "beta"})

	if _, err := s.Select(a.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := s.Current().Title; got != "A" {
		t.Errorf("Current().Title = %q, want %q", got, "A")
	}

	var nf *ErrNotFound
	if _, err := s.Select("missing"); !errors.As(err, &nf) {
		t.Errorf("Select(missing) error = %v, want ErrNotFound", err)
	}

	if !s.Remove(a.ID) {
		t.Fatal("Remove() = false, want true")
	}
	if s.Current().HasDocument {
		t.Error("removing the current document should clear the selection")
	}
	if s.Remove(a.ID) {
		t.Error("second Remove() = true, want false")
	}
	if got := s.List(); len(got) != 1 || got[0].ID != b.ID {
		t.Errorf("List() = %+v, want only B", got)
	}
}

func TestEviction(t *testing.T) {
	s := newTestStore(t, 2)
	a, _ := s.Upload(Upload{Title: "A", Text: "alpha"})
	_, _ = s.Upload(Upload{Title: "B", Text: "beta"})
	_, _ = s.Upload(Upload{Title: "C", Text: "gamma"})

	if _, err := s.Get(a.ID); err == nil {
		t.Error("oldest document should have been evicted")
	}
	list := s.List()
	if len(list) != 2 || list[0].Title != "C" || list[1].Title != "B" {
		t.Errorf("List() = %+v, want C then B", list)
	}
	for _, d := range list {
		if d.Text != "" {
			t.Errorf("List() leaked text of %q", d.Title)
		}
	}
	if got := s.Current().Title; got != "C" {
		t.Errorf("Current().Title = %q, want %q", got, "C")
	}
}

func TestEviction_ClearsCurrent(t *testing.T) {
	s := newTestStore(t, 1)
	a, _ := s.Upload(Upload{Title: "A", Text: "alpha"})
	if _, err := s.Select(a.ID); err != nil {
		t.Fatal(err)
	}
	_, _ = s.Upload(Upload{Title: "B", Text: "beta"})
	if got := s.Current().Title; got != "B" {
		t.Errorf("Current().Title = %q, want %q", got, "B")
	}
}
