package transfer

import (
	"errors"
	"testing"
	"time"
)

func TestStreamCarriesBytes(t *testing.T) {
	s := NewStream()
	go func() {
		_, _ = s.Write([]byte("hello"))
		s.CloseWrite(nil)
	}()
	buf := make([]byte, 16)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("read %q", buf[:n])
	}
}

func TestStreamAbortUnblocksBothEnds(t *testing.T) {
	s := NewStream()

	writeErr := make(chan error, 1)
	go func() {
		// Unconsumed pipe write blocks until the abort tears it down.
		_, err := s.Write(make([]byte, 1024))
		writeErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Abort()
	s.Abort() // repeat aborts are harmless

	select {
	case err := <-writeErr:
		if !errors.Is(err, ErrStreamClosed) {
			t.Fatalf("write err = %v, want ErrStreamClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer still blocked after abort")
	}

	if _, err := s.Read(make([]byte, 8)); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("read err = %v, want ErrStreamClosed", err)
	}
}

func TestStreamCloseWriteWithErrorReachesReader(t *testing.T) {
	s := NewStream()
	boom := errors.New("remote dropped")
	s.CloseWrite(boom)
	if _, err := s.Read(make([]byte, 8)); !errors.Is(err, boom) {
		t.Fatalf("read err = %v, want %v", err, boom)
	}
}
