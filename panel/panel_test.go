package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/clippy/authgate"
	"github.com/hazyhaar/clippy/bridge"
	"github.com/hazyhaar/clippy/chat"
	"github.com/hazyhaar/clippy/dbopen"
	"github.com/hazyhaar/clippy/prefs"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	srv     *Server
	h       http.Handler
	gate    *authgate.Gate
	store   *chat.SQLiteStore
	router  *bridge.Router
	content chan bridge.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(authgate.Schema),
		dbopen.WithSchema(chat.Schema),
		dbopen.WithSchema(prefs.Schema),
	)
	p, err := authgate.NewLocalProvider(db, testSecret, time.Hour, authgate.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.CreateUser(context.Background(), "a@x.com", "correct horse"); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		gate:    authgate.New(p, nil),
		store:   chat.NewSQLiteStore(db),
		router:  bridge.NewRouter(),
		content: make(chan bridge.Message, 4),
	}
	ep := f.router.Attach(bridge.Content)
	record := func(ctx context.Context, m bridge.Message) (bridge.Response, error) {
		f.content <- m
		return bridge.Response{Success: true, Message: "Selection toggled"}, nil
	}
	ep.Handle(bridge.ActionToggleSelection, record)
	ep.Handle(bridge.ActionSetEnabled, record)

	f.srv = New(Config{
		Gate:    f.gate,
		Store:   f.store,
		Router:  f.router,
		Prefs:   prefs.New(db),
		MCP:     mcp.NewServer(&mcp.Implementation{Name: "clippy-test", Version: "0.1.0"}, nil),
		Timeout: time.Second,
	})
	f.h = f.srv.Handler()
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) signIn(t *testing.T) authgate.User {
	t.Helper()
	u, err := f.gate.SignIn(context.Background(), "a@x.com", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func withToken(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestIndex_LoginViewWhenSignedOut(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `id="login-form"`) || strings.Contains(body, `id="chat-form"`) {
		t.Fatalf("expected login view, got:\n%s", body)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Fatal("security headers missing")
	}
}

func TestLogin_SuccessShowsChat(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"email": {"a@x.com"}, "password": {"correct horse"}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}

	var token string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			token = c.Value
		}
	}
	if token == "" || !f.gate.CheckToken(token) {
		t.Fatalf("session cookie = %q", token)
	}

	body := f.do(withToken(httptest.NewRequest("GET", "/", nil), token)).Body.String()
	if !strings.Contains(body, `id="chat-form"`) || !strings.Contains(body, "a@x.com") {
		t.Fatalf("expected chat view, got:\n%s", body)
	}
}

func TestLogin_FailureFlash(t *testing.T) {
	f := newFixture(t)
	form := url.Values{"email": {"a@x.com"}, "password": {"wrong"}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := f.do(req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}

	next := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	body := f.do(next).Body.String()
	if !strings.Contains(body, "Login failed: invalid email or password") {
		t.Fatalf("flash missing:\n%s", body)
	}
	if f.gate.State() != authgate.SignedOut {
		t.Fatal("failed login changed state")
	}
}

func TestIndex_SignedInRefreshesCookie(t *testing.T) {
	f := newFixture(t)
	u := f.signIn(t)
	rec := f.do(httptest.NewRequest("GET", "/", nil))
	var got string
	for _, c := range rec.Result().Cookies() {
		if c.Name == "token" {
			got = c.Value
		}
	}
	if got != u.Token {
		t.Fatalf("cookie = %q", got)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	u := f.signIn(t)
	rec := f.do(withToken(httptest.NewRequest("POST", "/logout", nil), u.Token))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	if f.gate.State() != authgate.SignedOut {
		t.Fatal("still signed in")
	}
}

func TestLogout_WithoutTokenKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	f.do(httptest.NewRequest("POST", "/logout", nil))
	if f.gate.State() != authgate.SignedIn {
		t.Fatal("logout without the session token signed out")
	}
}

func TestChatSend_RequiresSession(t *testing.T) {
	f := newFixture(t)
	f.signIn(t)
	rec := f.do(jsonRequest("POST", "/chat/send", `{"text":"hi"}`))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatSend(t *testing.T) {
	f := newFixture(t)
	u := f.signIn(t)

	rec := f.do(withToken(jsonRequest("POST", "/chat/send", `{"text":"  hi  "}`), u.Token))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	msgs, err := f.store.List(context.Background(), u.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hi" || msgs[0].Sender != "a@x.com" {
		t.Fatalf("log = %+v", msgs)
	}

	rec = f.do(withToken(jsonRequest("POST", "/chat/send", `{"text":"   "}`), u.Token))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty send status = %d", rec.Code)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	u := f.signIn(t)
	ctx := context.Background()
	if _, err := f.store.Append(ctx, u.ID, u.Email, "first\nline"); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(f.h)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/chat/ws"

	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("stream opened without a session token")
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Cookie": {"token=" + u.Token}})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	fr := readFrame(t, conn)
	if fr.Type != "message" || fr.Text != "first\nline" || !strings.Contains(fr.HTML, "<br>") {
		t.Fatalf("replay frame = %+v", fr)
	}

	if _, err := f.store.Append(ctx, u.ID, u.Email, "second"); err != nil {
		t.Fatal(err)
	}
	if fr := readFrame(t, conn); fr.Type != "message" || fr.Text != "second" {
		t.Fatalf("live frame = %+v", fr)
	}

	rec := f.do(withToken(httptest.NewRequest("POST", "/chat/reset", nil), u.Token))
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}
	if fr := readFrame(t, conn); fr.Type != "reset" {
		t.Fatalf("reset frame = %+v", fr)
	}

	if err := f.gate.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after sign-out, got %v", err)
	}
}

func TestAPIMessage_RoutesToContent(t *testing.T) {
	f := newFixture(t)
	rec := f.do(jsonRequest("POST", "/api/message", `{"action":"toggleSelection"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp bridge.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Message != "Selection toggled" {
		t.Fatalf("resp = %+v", resp)
	}
	if m := <-f.content; m != (bridge.ToggleSelection{}) {
		t.Fatalf("content got %#v", m)
	}
}

func TestAPIMessage_NoReceiver(t *testing.T) {
	f := newFixture(t)
	rec := f.do(jsonRequest("POST", "/api/message", `{"action":"openSidePanel"}`))
	var resp bridge.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Success || resp.Error == "" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestAPIMessage_ClipboardAndCaptureNeedSession(t *testing.T) {
	f := newFixture(t)
	bg := f.router.Attach(bridge.Background)
	reached := 0
	handle := func(ctx context.Context, m bridge.Message) (bridge.Response, error) {
		reached++
		return bridge.Response{Success: true, Text: "clip"}, nil
	}
	bg.Handle(bridge.ActionPasteFromClipboard, handle)
	bg.Handle(bridge.ActionElementSelected, handle)
	t.Cleanup(func() { f.router.DetachEndpoint(bg) })

	for _, body := range []string{
		`{"action":"pasteFromClipboard"}`,
		`{"action":"elementSelected","content":"x","selector":"#a"}`,
	} {
		rec := f.do(jsonRequest("POST", "/api/message", body))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s signed out: status = %d", body, rec.Code)
		}
		var resp bridge.Response
		json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp.Success || resp.Error != "not signed in" {
			t.Fatalf("%s signed out: resp = %+v", body, resp)
		}
	}
	if reached != 0 {
		t.Fatalf("background reached %d times while signed out", reached)
	}

	u := f.signIn(t)
	rec := f.do(withToken(jsonRequest("POST", "/api/message", `{"action":"pasteFromClipboard"}`), u.Token))
	var resp bridge.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || !resp.Success || resp.Text != "clip" {
		t.Fatalf("signed in: status = %d resp = %+v", rec.Code, resp)
	}

	// A signed-in gate does not help a caller without the cookie.
	if rec := f.do(jsonRequest("POST", "/api/message", `{"action":"pasteFromClipboard"}`)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: status = %d", rec.Code)
	}
}

func TestHosts_RejectsForeignHost(t *testing.T) {
	f := newFixture(t)
	srv := New(Config{
		Gate:   f.gate,
		Store:  f.store,
		Router: f.router,
		Hosts:  []string{"127.0.0.1:8787", "localhost:8787"},
	})
	t.Cleanup(srv.Close)
	h := srv.Handler()

	req := jsonRequest("POST", "/api/message", `{"action":"toggleSelection"}`)
	req.Host = "rebind.attacker.test:8787"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMisdirectedRequest {
		t.Fatalf("foreign host: status = %d", rec.Code)
	}

	req = httptest.NewRequest("GET", "/popup", nil)
	req.Host = "LOCALHOST:8787"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed host: status = %d", rec.Code)
	}
}

func TestAPIMessage_Rejects(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/api/message", strings.NewReader(`{"action":"toggleSelection"}`))
	req.Header.Set("Content-Type", "text/plain")
	if rec := f.do(req); rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain status = %d", rec.Code)
	}

	if rec := f.do(jsonRequest("POST", "/api/message", `{"action":"launchRocket"}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d", rec.Code)
	}
}

func TestPrefs(t *testing.T) {
	f := newFixture(t)

	var p prefs.Prefs
	json.Unmarshal(f.do(httptest.NewRequest("GET", "/api/prefs", nil)).Body.Bytes(), &p)
	if p != prefs.Defaults() {
		t.Fatalf("initial prefs = %+v", p)
	}

	rec := f.do(jsonRequest("POST", "/api/prefs", `{"enabled":false,"darkMode":true}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Enabled || !p.DarkMode {
		t.Fatalf("prefs = %+v", p)
	}

	select {
	case m := <-f.content:
		if m != (bridge.SetEnabled{Enabled: false}) {
			t.Fatalf("content got %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("setEnabled not posted")
	}

	body := f.do(httptest.NewRequest("GET", "/popup", nil)).Body.String()
	if !strings.Contains(body, `class="popup dark"`) {
		t.Fatalf("popup ignores dark mode:\n%s", body)
	}
}

func TestMCP_RequiresBearer(t *testing.T) {
	f := newFixture(t)
	u := f.signIn(t)

	if rec := f.do(jsonRequest("POST", "/mcp", `{}`)); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}
	req := jsonRequest("POST", "/mcp", `{}`)
	req.Header.Set("Authorization", "Bearer "+u.Token)
	if rec := f.do(req); rec.Code == http.StatusUnauthorized {
		t.Fatal("valid bearer refused")
	}
}

func TestFormatMessage(t *testing.T) {
	got := string(formatMessage("a b\n<i>x</i>"))
	if strings.Contains(got, "<i>") || !strings.Contains(got, "&lt;i&gt;") {
		t.Fatalf("markup not escaped: %q", got)
	}
	if !strings.Contains(got, "<br>") {
		t.Fatalf("newline not kept: %q", got)
	}
	if strings.Contains(got, " ") {
		t.Fatalf("spaces not preserved as nbsp: %q", got)
	}
}

func TestStatic_PanelScript(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest("GET", "/static/panel.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	js := rec.Body.String()
	for _, want := range []string{"copy-button", "navigator.clipboard.writeText", "e.shiftKey", "requestSubmit"} {
		if !strings.Contains(js, want) {
			t.Fatalf("panel.js lacks %q", want)
		}
	}
}
