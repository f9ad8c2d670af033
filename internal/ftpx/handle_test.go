package ftpx_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"ftpbridge/internal/ftpx"
	"ftpbridge/internal/ftpx/ftpxtest"
)

func newHandle(t *testing.T) (*ftpx.SessionHandle, *ftpxtest.FakeConn) {
	t.Helper()
	fc := ftpxtest.NewFakeConn()
	return ftpx.NewSessionHandle(1, fc, nil), fc
}

func TestListMapsEntries(t *testing.T) {
	h, fc := newHandle(t)
	fc.AddFile("/docs/a.txt", []byte("hello"))
	fc.AddDir("/docs/sub")

	entries, err := h.List("/docs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].Name != "a.txt" || entries[0].Kind != ftpx.KindFile || entries[0].SizeBytes != 5 {
		t.Errorf("file entry = %+v", entries[0])
	}
	if entries[1].Name != "sub" || entries[1].Kind != ftpx.KindDirectory {
		t.Errorf("dir entry = %+v", entries[1])
	}
}

func TestListMissingDirectory(t *testing.T) {
	h, _ := newHandle(t)
	_, err := h.List("/nope")
	if !errors.Is(err, ftpx.ErrPathDoesNotExist) {
		t.Fatalf("err = %v, want ErrPathDoesNotExist", err)
	}
}

func TestChangeDirectoryFailure(t *testing.T) {
	h, _ := newHandle(t)
	err := h.ChangeDirectory("/nope")
	if !errors.Is(err, ftpx.ErrFailedToChangeDirectory) {
		t.Fatalf("err = %v, want ErrFailedToChangeDirectory", err)
	}
}

func TestEnsureDirectoryIdempotent(t *testing.T) {
	h, fc := newHandle(t)
	if err := h.EnsureDirectory("/out"); err != nil {
		t.Fatalf("first EnsureDirectory: %v", err)
	}
	if err := h.EnsureDirectory("/out"); err != nil {
		t.Fatalf("second EnsureDirectory: %v", err)
	}
	if !fc.HasDir("/out") {
		t.Fatal("directory was not created")
	}
}

func TestEnsureDirectoryAndEnterIdempotent(t *testing.T) {
	h, fc := newHandle(t)
	if err := h.EnsureDirectoryAndEnter("/staging"); err != nil {
		t.Fatalf("first EnsureDirectoryAndEnter: %v", err)
	}
	if err := h.EnsureDirectoryAndEnter("/staging"); err != nil {
		t.Fatalf("second EnsureDirectoryAndEnter: %v", err)
	}
	wd, err := h.WorkingDirectory()
	if err != nil {
		t.Fatalf("WorkingDirectory: %v", err)
	}
	if wd != "/staging" {
		t.Fatalf("cwd = %q, want /staging", wd)
	}
	if !fc.HasDir("/staging") {
		t.Fatal("directory was not created")
	}
}

func TestDownloadUploadRoundTrip(t *testing.T) {
	h, fc := newHandle(t)
	fc.AddFile("/src/a.txt", []byte("payload"))

	var buf bytes.Buffer
	if err := h.DownloadInto(&buf, "/src/a.txt"); err != nil {
		t.Fatalf("DownloadInto: %v", err)
	}
	if buf.String() != "payload" {
		t.Fatalf("downloaded %q", buf.String())
	}

	if err := h.UploadFrom(strings.NewReader("payload"), "/dst/a.txt"); err != nil {
		t.Fatalf("UploadFrom: %v", err)
	}
	body, ok := fc.FileBody("/dst/a.txt")
	if !ok || string(body) != "payload" {
		t.Fatalf("uploaded body = %q, ok=%v", body, ok)
	}
}

func TestDownloadEmitsProgress(t *testing.T) {
	h, fc := newHandle(t)
	fc.AddFile("/big.bin", bytes.Repeat([]byte("x"), 300<<10))

	var payloads [][]byte
	h.AddListener("l1", func(eventType string, payload []byte) {
		if eventType != ftpx.EventProgress {
			t.Errorf("event type = %q", eventType)
		}
		payloads = append(payloads, payload)
	})

	if err := h.DownloadInto(&bytes.Buffer{}, "/big.bin"); err != nil {
		t.Fatalf("DownloadInto: %v", err)
	}
	if len(payloads) == 0 {
		t.Fatal("no progress events emitted")
	}
	var last struct {
		ServerID         int64  `json:"server_id"`
		Path             string `json:"path"`
		BytesTransferred int64  `json:"bytes_transferred"`
	}
	if err := json.Unmarshal(payloads[len(payloads)-1], &last); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if last.ServerID != 1 || last.Path != "/big.bin" || last.BytesTransferred != 300<<10 {
		t.Fatalf("final event = %+v", last)
	}
}

func TestRemovedListenerStopsReceiving(t *testing.T) {
	h, fc := newHandle(t)
	fc.AddFile("/big.bin", bytes.Repeat([]byte("x"), 300<<10))

	var events int
	h.AddListener("l1", func(string, []byte) { events++ })
	h.RemoveListener("l1")

	if err := h.DownloadInto(&bytes.Buffer{}, "/big.bin"); err != nil {
		t.Fatalf("DownloadInto: %v", err)
	}
	if events != 0 {
		t.Fatalf("removed listener got %d events", events)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	h, fc := newHandle(t)
	if err := h.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := h.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if fc.Quits != 1 {
		t.Fatalf("quits = %d, want 1", fc.Quits)
	}
	if _, err := h.List("/"); err == nil {
		t.Fatal("List after Disconnect should fail")
	}
}
