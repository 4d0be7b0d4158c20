package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clippy/dbopen"
	"github.com/hazyhaar/clippy/idgen"
)

var alice = Identity{ID: "u1", Email: "a@x.com"}

func testStore(t *testing.T, opts ...StoreOption) *SQLiteStore {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	return NewSQLiteStore(db, opts...)
}

func testSession(t *testing.T, st Store) *Session {
	t.Helper()
	s, err := NewSession(st, alice)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSession_RequiresUser(t *testing.T) {
	if _, err := NewSession(testStore(t), Identity{}); !errors.Is(err, ErrNoUser) {
		t.Fatalf("err = %v", err)
	}
}

func TestSend_AppendsWithSender(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_123)
	st := testStore(t, WithClock(func() time.Time { return now }), WithIDGenerator(idgen.Sequence("m")))
	s := testSession(t, st)

	m, err := s.Send(context.Background(), "  hello ")
	if err != nil {
		t.Fatal(err)
	}
	want := Message{ID: "m1", Sender: "a@x.com", Text: "hello", Timestamp: now.UnixMilli(), Cursor: "1"}
	if m != want {
		t.Fatalf("message = %+v, want %+v", m, want)
	}
}

func TestSend_Empty(t *testing.T) {
	s := testSession(t, testStore(t))
	if _, err := s.Send(context.Background(), " \n\t"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubscribe_DeliversSentEntry(t *testing.T) {
	st := testStore(t)
	s := testSession(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Message, 4)
	done := make(chan error, 1)
	go func() { done <- s.Subscribe(ctx, func(m Message) { got <- m }) }()

	sent, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-got:
		if m != sent {
			t.Fatalf("subscriber got %+v, want %+v", m, sent)
		}
		if m.Sender != "a@x.com" || m.Text != "hello" || m.Timestamp == 0 {
			t.Fatalf("entry = %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not notified")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Subscribe returned %v", err)
	}
}

func TestSubscribe_ReplaysExistingInOrder(t *testing.T) {
	st := testStore(t)
	s := testSession(t, st)
	ctx := context.Background()
	for _, txt := range []string{"one", "two", "three"} {
		if _, err := s.Send(ctx, txt); err != nil {
			t.Fatal(err)
		}
	}

	sub, cancel := context.WithCancel(ctx)
	var texts []string
	go func() {
		s.Subscribe(sub, func(m Message) {
			texts = append(texts, m.Text)
			if len(texts) == 4 {
				cancel()
			}
		})
	}()
	time.Sleep(20 * time.Millisecond)
	s.Send(ctx, "four")

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not receive the live entry")
	}
	want := []string{"one", "two", "three", "four"}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("order = %v", texts)
		}
	}
}

func TestReset_ClearsLog(t *testing.T) {
	st := testStore(t)
	s := testSession(t, st)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Send(ctx, "msg")
	}
	if h, _ := s.History(ctx); len(h) != 3 {
		t.Fatalf("history len = %d", len(h))
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	h, err := s.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 0 {
		t.Fatalf("history after reset = %v", h)
	}
}

func TestReset_OnlyOwnLog(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.Append(ctx, "u1", "a@x.com", "mine")
	st.Append(ctx, "u2", "b@x.com", "theirs")

	st.Reset(ctx, "u1")
	if msgs, _ := st.List(ctx, "u2", ""); len(msgs) != 1 {
		t.Fatalf("other user's log touched: %v", msgs)
	}
}

func TestAppend_TimestampNeverDecreases(t *testing.T) {
	clock := time.UnixMilli(2_000)
	st := testStore(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	a, _ := st.Append(ctx, "u1", "a@x.com", "first")
	clock = time.UnixMilli(1_000) // server clock stepped back
	b, _ := st.Append(ctx, "u1", "a@x.com", "second")

	if b.Timestamp < a.Timestamp {
		t.Fatalf("timestamps went backwards: %d then %d", a.Timestamp, b.Timestamp)
	}
}

func TestList_AfterCursor(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	a, _ := st.Append(ctx, "u1", "a@x.com", "a")
	st.Append(ctx, "u1", "a@x.com", "b")

	msgs, err := st.List(ctx, "u1", a.Cursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "b" {
		t.Fatalf("msgs = %+v", msgs)
	}
	if _, err := st.List(ctx, "u1", "nope"); !errors.Is(err, ErrBadCursor) {
		t.Fatalf("err = %v", err)
	}
}

func TestWait_ContextDone(t *testing.T) {
	st := testStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := st.Wait(ctx, "u1", ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestWatch_WakesOnExternalInsert(t *testing.T) {
	st := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Watch(ctx, 10*time.Millisecond)

	woke := make(chan error, 1)
	go func() { woke <- st.Wait(ctx, "u1", "") }()
	time.Sleep(30 * time.Millisecond)

	// Simulate another process writing to the same file.
	if _, err := st.db.Exec(`INSERT INTO chat_messages (id, user_id, sender, text, ts) VALUES ('x', 'u1', 'a@x.com', 'ext', 1)`); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-woke:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by watch")
	}
}

func TestStreamMillis(t *testing.T) {
	if ms, err := streamMillis("1700000000123-4"); err != nil || ms != 1700000000123 {
		t.Fatalf("ms=%d err=%v", ms, err)
	}
	for _, bad := range []string{"", "12", "a-1", "1-b"} {
		if _, err := streamMillis(bad); !errors.Is(err, ErrBadCursor) {
			t.Errorf("streamMillis(%q) err = %v", bad, err)
		}
	}
}
