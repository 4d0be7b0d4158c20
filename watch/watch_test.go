package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func chatDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("CREATE TABLE chat_messages (seq INTEGER PRIMARY KEY AUTOINCREMENT, text TEXT)"); err != nil {
		t.Fatal(err)
	}
	return db
}

func appendRow(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec("INSERT INTO chat_messages (text) VALUES ('hi')"); err != nil {
		t.Fatal(err)
	}
}

func newSeqWatcher(db *sql.DB, debounce time.Duration) *Watcher {
	return New(db, Options{
		Interval: 20 * time.Millisecond,
		Debounce: debounce,
		Detector: MaxColumnDetector("chat_messages", "seq"),
	})
}

func TestPragmaDataVersion(t *testing.T) {
	v, err := PragmaDataVersion(context.Background(), chatDB(t))
	if err != nil {
		t.Fatal(err)
	}
	if v < 0 {
		t.Fatalf("data_version = %d", v)
	}
}

func TestMaxColumnDetector(t *testing.T) {
	db := chatDB(t)
	ctx := context.Background()
	det := MaxColumnDetector("chat_messages", "seq")

	if v, err := det(ctx, db); err != nil || v != 0 {
		t.Fatalf("empty table: v=%d err=%v", v, err)
	}
	appendRow(t, db)
	appendRow(t, db)
	if v, err := det(ctx, db); err != nil || v != 2 {
		t.Fatalf("after two rows: v=%d err=%v", v, err)
	}
}

func TestMaxColumnDetector_QuotesIdentifiers(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("quoteIdent = %s", got)
	}
}

func TestOnChange_FiresPerAppend(t *testing.T) {
	db := chatDB(t)
	var fired atomic.Int32
	w := newSeqWatcher(db, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired.Add(1)
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	appendRow(t, db)
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("after first append: %d", got)
	}

	appendRow(t, db)
	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Fatalf("after second append: %d", got)
	}

	time.Sleep(80 * time.Millisecond)
	if got := fired.Load(); got != 2 {
		t.Fatalf("quiet period fired: %d", got)
	}
	if w.Version() != 2 {
		t.Fatalf("version = %d", w.Version())
	}
}

func TestOnChange_DebounceCoalescesBurst(t *testing.T) {
	db := chatDB(t)
	var fired atomic.Int32
	w := newSeqWatcher(db, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired.Add(1)
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		appendRow(t, db)
		time.Sleep(15 * time.Millisecond)
	}
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired during debounce: %d", got)
	}

	time.Sleep(200 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("debounced fires = %d, want 1", got)
	}
}

func TestOnChange_FailedActionRetries(t *testing.T) {
	db := chatDB(t)
	var calls atomic.Int32
	w := newSeqWatcher(db, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("feed busy")
		}
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	appendRow(t, db)
	time.Sleep(120 * time.Millisecond)

	if got := calls.Load(); got < 2 {
		t.Fatalf("calls = %d, want a retry", got)
	}
	if v := w.Version(); v != 1 {
		t.Fatalf("version = %d, want 1", v)
	}
	if s := w.Stats(); s.Errors == 0 || s.Reloads == 0 || s.Checks == 0 {
		t.Fatalf("stats = %+v", s)
	}
}
