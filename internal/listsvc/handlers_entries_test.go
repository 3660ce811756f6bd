package listsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

const testOwner = "user-owner"

// newWriteTx wires a MockDB whose transaction passes the owner and
// locked-year checks and serves the given entry rows to lockEntries.
// Captured Execs accumulate in the returned slice pointer.
func newWriteTx(t *testing.T, rows [][]any, locked bool) (*MockDB, *[]capturedExec) {
	t.Helper()
	var execs []capturedExec

	mockTx := &MockTx{}
	mockTx.QueryRowFunc = func(ctx context.Context, sql string, args ...any) pgx.Row {
		if strings.Contains(sql, "SELECT owner_id, year, is_main") {
			return &MockRow{ScanFunc: func(dest ...any) error {
				*dest[0].(*string) = testOwner
				y := 2025
				*dest[1].(**int) = &y
				*dest[2].(*bool) = false
				return nil
			}}
		}
		if strings.Contains(sql, "FROM locked_years") {
			return &MockRow{ScanFunc: func(dest ...any) error {
				if !locked {
					return pgx.ErrNoRows
				}
				*dest[0].(*int) = 1
				return nil
			}}
		}
		return &MockRow{ScanFunc: func(dest ...any) error {
			return errors.New("unexpected tx query: " + sql)
		}}
	}
	mockTx.QueryFunc = func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
		if strings.Contains(sql, "FOR UPDATE") {
			return &MockRows{Data: rows}, nil
		}
		return nil, errors.New("unexpected tx rows query: " + sql)
	}
	mockTx.ExecFunc = func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
		execs = append(execs, capturedExec{sql: sql, args: args})
		return pgconn.CommandTag{}, nil
	}

	mockDB := &MockDB{}
	mockDB.BeginTxFunc = func(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
		return mockTx, nil
	}
	return mockDB, &execs
}

type capturedExec struct {
	sql  string
	args []any
}

func doEntriesRequest(t *testing.T, db DB, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doEntriesRequestWith(t, NewServer(db, nil), method, path, body)
}

func doEntriesRequestWith(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	r := srv.Router()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("X-User-Id", testOwner)
	req.Header.Set("X-Socket-Id", "sock-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleReorderEntries_Positions(t *testing.T) {
	// Stored order: A(0), B(1), C(2), D(3).
	rows := [][]any{
		entryRowData("e-a", 0, "a::1::", "A", "1"),
		entryRowData("e-b", 1, "b::2::", "B", "2"),
		entryRowData("e-c", 2, "c::3::", "C", "3"),
		entryRowData("e-d", 3, "d::4::", "D", "4"),
	}

	tests := []struct {
		name      string
		order     []string
		wantMoved int
		// position writes expected, as id -> new position
		wantPositions map[string]int
	}{
		{
			// C to front shifts A and B down one.
			name:      "move C to front",
			order:     []string{"c::3::", "a::1::", "b::2::", "d::4::"},
			wantMoved: 3,
			wantPositions: map[string]int{
				"e-c": 0, "e-a": 1, "e-b": 2,
			},
		},
		{
			name:      "move A to back",
			order:     []string{"b::2::", "c::3::", "d::4::", "a::1::"},
			wantMoved: 4,
			wantPositions: map[string]int{
				"e-b": 0, "e-c": 1, "e-d": 2, "e-a": 3,
			},
		},
		{
			name:          "same order is a no-op",
			order:         []string{"a::1::", "b::2::", "c::3::", "d::4::"},
			wantMoved:     0,
			wantPositions: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, execs := newWriteTx(t, rows, false)
			w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/order",
				map[string]any{"order": tt.order})

			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp struct {
				Moved int `json:"moved"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Moved != tt.wantMoved {
				t.Errorf("moved = %d, want %d", resp.Moved, tt.wantMoved)
			}

			got := map[string]int{}
			for _, ex := range *execs {
				if !strings.Contains(ex.sql, "SET position") {
					t.Errorf("unexpected exec: %s", ex.sql)
					continue
				}
				got[ex.args[0].(string)] = ex.args[1].(int)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.wantPositions) {
				t.Errorf("position writes = %v, want %v", got, tt.wantPositions)
			}
		})
	}
}

func TestHandleReorderEntries_LengthMismatch(t *testing.T) {
	rows := [][]any{
		entryRowData("e-a", 0, "a::1::", "A", "1"),
		entryRowData("e-b", 1, "b::2::", "B", "2"),
	}
	db, _ := newWriteTx(t, rows, false)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/order",
		map[string]any{"order": []string{"a::1::"}})

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleReorderEntries_UnknownIdentity(t *testing.T) {
	rows := [][]any{
		entryRowData("e-a", 0, "a::1::", "A", "1"),
		entryRowData("e-b", 1, "b::2::", "B", "2"),
	}
	db, _ := newWriteTx(t, rows, false)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/order",
		map[string]any{"order": []string{"a::1::", "ghost::x::"}})

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleReorderEntries_DuplicateIdentities(t *testing.T) {
	// Two entries sharing an identity: the order consumes them in stored
	// order, so swapping the pair around a third entry still resolves.
	rows := [][]any{
		entryRowData("e-1", 0, "x::y::", "X", "Y"),
		entryRowData("e-2", 1, "m::n::", "M", "N"),
		entryRowData("e-3", 2, "x::y::", "X", "Y"),
	}
	db, execs := newWriteTx(t, rows, false)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/order",
		map[string]any{"order": []string{"x::y::", "x::y::", "m::n::"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := map[string]int{}
	for _, ex := range *execs {
		if strings.Contains(ex.sql, "SET position") {
			got[ex.args[0].(string)] = ex.args[1].(int)
		}
	}
	// e-1 keeps 0; e-3 moves to 1; e-2 moves to 2.
	want := map[string]int{"e-3": 1, "e-2": 2}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("position writes = %v, want %v", got, want)
	}
}

func TestHandleUpdateEntries_DuplicateAddReported(t *testing.T) {
	rows := [][]any{
		entryRowData("e-1", 0, "queen::innuendo::", "Queen", "Innuendo"),
	}
	db, execs := newWriteTx(t, rows, false)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/entries", model.IncrementalUpdate{
		Added: []model.Entry{{Artist: "Queen", Title: "Innuendo"}},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result model.UpdateResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Added != 0 {
		t.Errorf("added = %d, want 0", result.Added)
	}
	if len(result.Duplicates) != 1 || result.Duplicates[0] != "queen::innuendo::" {
		t.Errorf("duplicates = %v, want [queen::innuendo::]", result.Duplicates)
	}
	for _, ex := range *execs {
		if strings.Contains(ex.sql, "INSERT INTO entries") {
			t.Errorf("duplicate add reached the database: %s", ex.sql)
		}
	}
}

func TestHandleUpdateEntries_MissingRemovedTolerated(t *testing.T) {
	rows := [][]any{
		entryRowData("e-1", 0, "a::1::", "A", "1"),
	}
	db, execs := newWriteTx(t, rows, false)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/entries", model.IncrementalUpdate{
		Removed: []string{"ghost::x::"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result model.UpdateResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Removed != 0 {
		t.Errorf("removed = %d, want 0", result.Removed)
	}
	for _, ex := range *execs {
		if strings.Contains(ex.sql, "DELETE FROM entries") {
			t.Errorf("missing identity produced a delete: %s", ex.sql)
		}
	}
}

func TestHandleUpdateEntries_Mixed(t *testing.T) {
	// Remove B, patch A's comment, add a new entry. Survivor positions are
	// compacted and the addition lands at the tail.
	rows := [][]any{
		entryRowData("e-a", 0, "a::1::", "A", "1"),
		entryRowData("e-b", 1, "b::2::", "B", "2"),
		entryRowData("e-c", 2, "c::3::", "C", "3"),
	}
	db, execs := newWriteTx(t, rows, false)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/entries", model.IncrementalUpdate{
		Added:   []model.Entry{{Artist: "New", Title: "Thing"}},
		Removed: []string{"b::2::"},
		Updated: []model.FieldUpdate{
			{Identity: "a::1::", Patch: map[string]string{"comment": "great"}},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result model.UpdateResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Added != 1 || result.Removed != 1 || result.Updated != 1 {
		t.Errorf("result = %+v, want added/removed/updated all 1", result)
	}

	var sawDelete, sawUpdate, sawCompact, sawInsert bool
	for _, ex := range *execs {
		switch {
		case strings.Contains(ex.sql, "DELETE FROM entries"):
			sawDelete = true
			if ex.args[0].(string) != "e-b" {
				t.Errorf("deleted %v, want e-b", ex.args[0])
			}
		case strings.Contains(ex.sql, "SET identity"):
			sawUpdate = true
			if ex.args[0].(string) != "e-a" {
				t.Errorf("updated %v, want e-a", ex.args[0])
			}
		case strings.Contains(ex.sql, "SET position"):
			sawCompact = true
			// C slides from 2 to 1 after B's removal.
			if ex.args[0].(string) != "e-c" || ex.args[1].(int) != 1 {
				t.Errorf("compacted %v to %v, want e-c to 1", ex.args[0], ex.args[1])
			}
		case strings.Contains(ex.sql, "INSERT INTO entries"):
			sawInsert = true
			// list_id, position, identity, artist, ...
			if ex.args[1].(int) != 2 {
				t.Errorf("insert position = %v, want 2", ex.args[1])
			}
		}
	}
	if !sawDelete || !sawUpdate || !sawCompact || !sawInsert {
		t.Errorf("missing statements: delete=%v update=%v compact=%v insert=%v",
			sawDelete, sawUpdate, sawCompact, sawInsert)
	}
}

func TestHandleUpdateEntries_LockedYear(t *testing.T) {
	rows := [][]any{
		entryRowData("e-a", 0, "a::1::", "A", "1"),
	}
	db, execs := newWriteTx(t, rows, true)

	w := doEntriesRequest(t, db, "PATCH", "/lists/list-1/entries", model.IncrementalUpdate{
		Added: []model.Entry{{Artist: "New", Title: "Thing"}},
	})

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if len(*execs) != 0 {
		t.Errorf("locked year still executed %d statements", len(*execs))
	}
}

func TestHandleReplaceEntries_DedupKeepsFirst(t *testing.T) {
	db, execs := newWriteTx(t, nil, false)

	w := doEntriesRequest(t, db, "PUT", "/lists/list-1/entries", map[string]any{
		"entries": []model.Entry{
			{Artist: "Queen", Title: "Innuendo", Comment: "first"},
			{Artist: "Opeth", Title: "Damnation"},
			{Artist: "queen", Title: "INNUENDO", Comment: "second"},
		},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result model.UpdateResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Added != 2 {
		t.Errorf("added = %d, want 2", result.Added)
	}
	if len(result.Duplicates) != 1 || result.Duplicates[0] != "queen::innuendo::" {
		t.Errorf("duplicates = %v, want [queen::innuendo::]", result.Duplicates)
	}

	inserted := []string{}
	for _, ex := range *execs {
		if strings.Contains(ex.sql, "INSERT INTO entries") {
			inserted = append(inserted, ex.args[8].(string)) // comment column
		}
	}
	if len(inserted) != 2 || inserted[0] != "first" {
		t.Errorf("inserted comments = %v, want the first duplicate kept", inserted)
	}
}

func TestHandleReplaceEntries_RejectsIdentityless(t *testing.T) {
	db, _ := newWriteTx(t, nil, false)

	w := doEntriesRequest(t, db, "PUT", "/lists/list-1/entries", map[string]any{
		"entries": []model.Entry{{Comment: "no artist or title"}},
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
