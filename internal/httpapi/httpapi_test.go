// Package httpapi tests drive the full handler stack with an in-memory
// database and fake FTP servers behind the dialer.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"ftpbridge/internal/auth"
	"ftpbridge/internal/bridge"
	"ftpbridge/internal/db"
	"ftpbridge/internal/ftpx"
	"ftpbridge/internal/ftpx/ftpxtest"
	"ftpbridge/internal/session"
)

// testLogger silences logs during handler tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

// testArgon2Params keeps hashing cheap in tests.
func testArgon2Params() auth.Argon2Params {
	return auth.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32}
}

type testEnv struct {
	handler http.Handler
	cookie  *http.Cookie
	db      *db.DB
	srcID   int64
	dstID   int64
	srcConn *ftpxtest.FakeConn
	dstConn *ftpxtest.FakeConn
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	d, err := db.Open(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	hash, err := auth.HashPassword("secret", testArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	uid, err := d.CreateUser(ctx, "alice", hash)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	srcID, err := d.CreateServer(ctx, db.ServerProfile{
		OwnerID: uid, Host: "src.example.com", Port: 21, Username: "ftpuser", Alias: "src",
	})
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	dstID, err := d.CreateServer(ctx, db.ServerProfile{
		OwnerID: uid, Host: "dst.example.com", Port: 21, Username: "ftpuser", Alias: "dst",
	})
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	srcConn := ftpxtest.NewFakeConn()
	srcConn.AddFile("/pub/a.txt", []byte("alpha"))
	srcConn.AddFile("/pub/sub/b.txt", []byte("bravo"))
	dstConn := ftpxtest.NewFakeConn()
	dstConn.AddDir("/incoming")

	dialer := &ftpx.Dialer{
		Logger: testLogger(),
		DialFunc: func(addr string, secure, insecureSkipVerify bool) (ftpx.Conn, error) {
			switch addr {
			case "src.example.com:21":
				return srcConn, nil
			case "dst.example.com:21":
				return dstConn, nil
			}
			return nil, errors.New("no route to host")
		},
	}

	svc := bridge.NewService(d, session.NewRegistry(testLogger()), dialer, testLogger())
	srv := &Server{DB: d, Bridge: svc, Logger: testLogger()}
	return &testEnv{
		handler: srv.Handler(),
		db:      d,
		srcID:   srcID,
		dstID:   dstID,
		srcConn: srcConn,
		dstConn: dstConn,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	if body != "" {
		r.Header.Set("content-type", "application/json")
	}
	if e.cookie != nil {
		r.AddCookie(e.cookie)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	w := e.do(t, "POST", "/api/login", `{"username":"alice","password":"secret"}`)
	if w.Code != 200 {
		t.Fatalf("login status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			e.cookie = c
			return
		}
	}
	t.Fatal("login set no session cookie")
}

func TestLoginWrongPassword(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "POST", "/api/login", `{"username":"alice","password":"wrong"}`)
	if w.Code != 401 {
		t.Fatalf("status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie && c.Value != "" {
			t.Fatal("failed login set a session cookie")
		}
	}
}

func TestRequiresAuthentication(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, "GET", "/api/servers", "")
	if w.Code != 401 {
		t.Fatalf("status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
}

func TestServersCRUD(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	w := e.do(t, "POST", "/api/servers", `{"host":"third.example.com","port":2121,"username":"u3","alias":"third"}`)
	if w.Code != 200 {
		t.Fatalf("create status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.ID <= 0 {
		t.Fatalf("create body=%s err=%v", w.Body.String(), err)
	}

	w = e.do(t, "GET", "/api/servers", "")
	if w.Code != 200 {
		t.Fatalf("list status=%d", w.Code)
	}
	var listed struct {
		Servers []serverItem `json:"servers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("list body: %v", err)
	}
	if len(listed.Servers) != 3 {
		t.Fatalf("servers = %+v", listed.Servers)
	}

	w = e.do(t, "DELETE", "/api/servers/"+itoa(created.ID), "")
	if w.Code != 200 {
		t.Fatalf("delete status=%d", w.Code)
	}

	w = e.do(t, "GET", "/api/servers/"+itoa(created.ID), "")
	if w.Code != 404 {
		t.Fatalf("get deleted status=%d", w.Code)
	}
}

func TestServerCreateRejectsBadHost(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	w := e.do(t, "POST", "/api/servers", `{"host":"bad host!","port":21,"username":"u","alias":"x"}`)
	if w.Code != 400 {
		t.Fatalf("status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
}

func TestFtpConnectListTransfer(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	w := e.do(t, "POST", "/api/ftp/connect", `{"server_id":`+itoa(e.srcID)+`,"password":"pw"}`)
	if w.Code != 200 {
		t.Fatalf("connect src status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	w = e.do(t, "POST", "/api/ftp/connect", `{"server_id":`+itoa(e.dstID)+`,"password":"pw"}`)
	if w.Code != 200 {
		t.Fatalf("connect dst status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}

	w = e.do(t, "GET", "/api/ftp/list?server_id="+itoa(e.dstID)+"&path=/incoming", "")
	if w.Code != 200 {
		t.Fatalf("list status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}

	body := `{"source_server_id":` + itoa(e.srcID) + `,"destination_server_id":` + itoa(e.dstID) + `,"target":"pub"}`
	w = e.do(t, "POST", "/api/transfer", body)
	if w.Code != 200 {
		t.Fatalf("transfer status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}

	if got, ok := e.dstConn.FileBody("/incoming/a.txt"); !ok || string(got) != "alpha" {
		t.Fatalf("/incoming/a.txt = %q, ok=%v", got, ok)
	}

	w = e.do(t, "GET", "/api/transfer/activity", "")
	if w.Code != 200 {
		t.Fatalf("activity status=%d", w.Code)
	}
	var act struct {
		Activity struct {
			Target  string        `json:"target"`
			Success []mappingItem `json:"success"`
			Pending []mappingItem `json:"pending"`
		} `json:"activity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &act); err != nil {
		t.Fatalf("activity body: %v", err)
	}
	if act.Activity.Target != "pub" || len(act.Activity.Success) != 2 || len(act.Activity.Pending) != 0 {
		t.Fatalf("activity = %+v", act.Activity)
	}
}

func TestTransferWithoutSessionsConflicts(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	body := `{"source_server_id":` + itoa(e.srcID) + `,"destination_server_id":` + itoa(e.dstID) + `,"target":"pub"}`
	w := e.do(t, "POST", "/api/transfer", body)
	if w.Code != 409 {
		t.Fatalf("status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}
}

func TestActivityAbsentIsNull(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	w := e.do(t, "GET", "/api/transfer/activity", "")
	if w.Code != 200 {
		t.Fatalf("status=%d", w.Code)
	}
	var act struct {
		Activity *json.RawMessage `json:"activity"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &act); err != nil {
		t.Fatalf("body: %v", err)
	}
	if act.Activity != nil && string(*act.Activity) != "null" {
		t.Fatalf("activity = %s", *act.Activity)
	}
}

// TestEventsStreamLifecycle opens the SSE feed, runs a transfer, and waits
// for its lifecycle frames on the wire.
func TestEventsStreamLifecycle(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	ts := httptest.NewServer(e.handler)
	t.Cleanup(ts.Close)

	for _, id := range []int64{e.srcID, e.dstID} {
		w := e.do(t, "POST", "/api/ftp/connect", `{"server_id":`+itoa(id)+`,"password":"pw"}`)
		if w.Code != 200 {
			t.Fatalf("connect status=%d", w.Code)
		}
	}
	if w := e.do(t, "GET", "/api/ftp/list?server_id="+itoa(e.dstID)+"&path=/incoming", ""); w.Code != 200 {
		t.Fatalf("list status=%d", w.Code)
	}

	req, err := http.NewRequest("GET", ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.AddCookie(e.cookie)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("events request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if resp.StatusCode != 200 {
		t.Fatalf("events status=%d", resp.StatusCode)
	}

	seen := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, "event: ") {
				seen <- strings.TrimPrefix(line, "event: ")
			}
		}
		close(seen)
	}()

	// The listener registers asynchronously with the request; give the
	// handler a moment before kicking off the transfer.
	time.Sleep(50 * time.Millisecond)
	body := `{"source_server_id":` + itoa(e.srcID) + `,"destination_server_id":` + itoa(e.dstID) + `,"target":"pub"}`
	if w := e.do(t, "POST", "/api/transfer", body); w.Code != 200 {
		t.Fatalf("transfer status=%d body=%s", w.Code, strings.TrimSpace(w.Body.String()))
	}

	deadline := time.After(5 * time.Second)
	var got []string
	for {
		select {
		case ev, ok := <-seen:
			if !ok {
				t.Fatalf("stream closed early, events = %v", got)
			}
			got = append(got, ev)
			if ev == "transfer_completed" {
				if got[0] != "transfer_started" {
					t.Fatalf("events = %v", got)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no transfer_completed frame, events = %v", got)
		}
	}
}

func TestLogoutCleansUp(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	if w := e.do(t, "POST", "/api/ftp/connect", `{"server_id":`+itoa(e.srcID)+`,"password":"pw"}`); w.Code != 200 {
		t.Fatalf("connect status=%d", w.Code)
	}

	if w := e.do(t, "POST", "/api/logout", ""); w.Code != 200 {
		t.Fatalf("logout status=%d", w.Code)
	}
	if e.srcConn.Quits != 1 {
		t.Fatalf("quits = %d, want 1", e.srcConn.Quits)
	}

	// The old cookie no longer authenticates.
	if w := e.do(t, "GET", "/api/servers", ""); w.Code != 401 {
		t.Fatalf("post-logout status=%d", w.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
