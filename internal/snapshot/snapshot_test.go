package snapshot

import (
	"reflect"
	"testing"

	"github.com/magnusoverli/sushe-online-sub002/internal/identity"
	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTake_SkipsMalformedEntries(t *testing.T) {
	entries := []model.Entry{
		{Artist: "A", Title: "One"},
		{}, // no identity, must not poison the snapshot
		{Artist: "B", Title: "Two"},
	}
	snap := Take(entries)
	want := []string{
		identity.Of(entries[0]),
		identity.Of(entries[2]),
	}
	if !reflect.DeepEqual(snap, want) {
		t.Errorf("Take = %v, want %v", snap, want)
	}
}

func TestSaveLoadClear(t *testing.T) {
	tr := newTestTracker(t)

	snap := []string{"a::one::", "b::two::"}
	if err := tr.Save("list-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := tr.Load("list-1"); !reflect.DeepEqual(got, snap) {
		t.Errorf("load = %v, want %v", got, snap)
	}

	// Replaced on every save.
	next := []string{"b::two::", "a::one::"}
	if err := tr.Save("list-1", next); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := tr.Load("list-1"); !reflect.DeepEqual(got, next) {
		t.Errorf("load after resave = %v, want %v", got, next)
	}

	tr.Clear("list-1")
	if got := tr.Load("list-1"); got != nil {
		t.Errorf("load after clear = %v, want nil", got)
	}
}

func TestLoad_Unknown(t *testing.T) {
	tr := newTestTracker(t)
	if got := tr.Load("never-saved"); got != nil {
		t.Errorf("expected nil for unknown list, got %v", got)
	}
}

func TestEmptyListID_NoOps(t *testing.T) {
	tr := newTestTracker(t)

	if err := tr.Save("", []string{"x"}); err != nil {
		t.Errorf("save with empty id should be a no-op, got %v", err)
	}
	if got := tr.Load(""); got != nil {
		t.Errorf("load with empty id = %v, want nil", got)
	}
	tr.Clear("") // must not panic
	tr.MarkLocalSave("")
	if tr.ConsumeLocalSave("") {
		t.Error("consume with empty id should be false")
	}
}

func TestLocalSaveMark_OneShot(t *testing.T) {
	tr := newTestTracker(t)

	if tr.ConsumeLocalSave("list-1") {
		t.Fatal("mark should start unset")
	}

	tr.MarkLocalSave("list-1")
	if !tr.ConsumeLocalSave("list-1") {
		t.Fatal("first consume after mark should be true")
	}
	if tr.ConsumeLocalSave("list-1") {
		t.Fatal("second consume must be false: one save suppresses one echo")
	}

	// Marks are per list.
	tr.MarkLocalSave("list-1")
	if tr.ConsumeLocalSave("list-2") {
		t.Fatal("mark must not leak across lists")
	}
	if !tr.ConsumeLocalSave("list-1") {
		t.Fatal("mark for list-1 should still be set")
	}
}

func TestMemoryOnlyMode(t *testing.T) {
	tr, err := New("")
	if err != nil {
		t.Fatalf("memory tracker: %v", err)
	}
	defer tr.Close()

	snap := []string{"a::one::"}
	if err := tr.Save("list-1", snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := tr.Load("list-1"); !reflect.DeepEqual(got, snap) {
		t.Errorf("load = %v, want %v", got, snap)
	}
	tr.Clear("list-1")
	if got := tr.Load("list-1"); got != nil {
		t.Errorf("load after clear = %v, want nil", got)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := tr.Save("list-1", []string{"a::one::"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	tr.Close()

	tr2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tr2.Close()
	if got := tr2.Load("list-1"); !reflect.DeepEqual(got, []string{"a::one::"}) {
		t.Errorf("snapshot did not survive reopen, got %v", got)
	}
}
