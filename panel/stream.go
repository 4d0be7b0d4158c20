package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/shield"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// frame is one websocket message to the panel.
type frame struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Sender    string      `json:"sender,omitempty"`
	Text      string      `json:"text,omitempty"`
	HTML      string      `json:"html,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Cursor    chat.Cursor `json:"cursor,omitempty"`
}

func messageFrame(m chat.Message) frame {
	return frame{
		Type:      "message",
		ID:        m.ID,
		Sender:    m.Sender,
		Text:      m.Text,
		HTML:      string(formatMessage(m.Text)),
		Timestamp: m.Timestamp,
		Cursor:    m.Cursor,
	}
}

// stream is one websocket connection. Writes are serialised.
type stream struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (st *stream) send(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteMessage(websocket.TextMessage, data)
}

func (st *stream) close() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "signed out"),
		time.Now().Add(time.Second))
	st.conn.Close()
}

// hub tracks open streams per user.
type hub struct {
	mu      sync.Mutex
	streams map[*stream]struct{}
}

func newHub() *hub {
	return &hub{streams: make(map[*stream]struct{})}
}

func (h *hub) add(st *stream) {
	h.mu.Lock()
	h.streams[st] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(st *stream) {
	h.mu.Lock()
	delete(h.streams, st)
	h.mu.Unlock()
}

// broadcast sends f to every stream of userID. Streams that fail are
// closed.
func (h *hub) broadcast(userID string, f frame) {
	h.mu.Lock()
	var targets []*stream
	for st := range h.streams {
		if st.userID == userID {
			targets = append(targets, st)
		}
	}
	h.mu.Unlock()

	for _, st := range targets {
		if err := st.send(f); err != nil {
			h.remove(st)
			st.conn.Close()
		}
	}
}

func (h *hub) closeAll() int {
	h.mu.Lock()
	all := make([]*stream, 0, len(h.streams))
	for st := range h.streams {
		all = append(all, st)
	}
	h.streams = make(map[*stream]struct{})
	h.mu.Unlock()

	for _, st := range all {
		st.close()
	}
	return len(all)
}

// handleStream replays the user's log and then pushes every new entry
// until the client leaves or the user signs out.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r.Context())
	log := shield.GetLogger(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("panel: websocket upgrade failed", "error", err)
		return
	}
	st := &stream{userID: sess.User().ID, conn: conn}
	s.hub.add(st)
	defer func() {
		s.hub.remove(st)
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends data frames; reading only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = sess.Subscribe(ctx, func(m chat.Message) {
		if err := st.send(messageFrame(m)); err != nil {
			cancel()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("panel: stream ended", "error", err)
	}
}
