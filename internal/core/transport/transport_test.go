package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// streamServer upgrades /camera-preview/stream/ws and replays the scripted
// messages, recording the camera_unique_id it was asked for.
func streamServer(t *testing.T, messages []struct {
	mt   int
	data []byte
}) (*httptest.Server, <-chan string) {
	t.Helper()
	gotID := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/camera-preview/stream/ws" {
			http.NotFound(w, r)
			return
		}
		gotID <- r.URL.Query().Get("camera_unique_id")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()
		for _, m := range messages {
			if err := ws.WriteMessage(m.mt, m.data); err != nil {
				return
			}
		}
		// Keep the connection open until the client closes it.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, gotID
}

func TestStreamDialer_RecvBinaryFrame(t *testing.T) {
	frame := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	srv, gotID := streamServer(t, []struct {
		mt   int
		data []byte
	}{
		{websocket.BinaryMessage, frame},
	})

	dialer := NewStreamDialer(srv.URL, testLogger())
	conn, err := dialer.Dial(context.Background(), "cam one/7")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	got, err := conn.RecvFrame(context.Background())
	if err != nil {
		t.Fatalf("RecvFrame() error = %v", err)
	}
	if string(got) != string(frame) {
		t.Fatalf("frame = %v, want %v", got, frame)
	}
	if id := <-gotID; id != "cam one/7" {
		t.Fatalf("camera_unique_id received by server = %q, want the unescaped id", id)
	}
}

func TestStreamDialer_RejectsNonBinaryMessage(t *testing.T) {
	srv, _ := streamServer(t, []struct {
		mt   int
		data []byte
	}{
		{websocket.TextMessage, []byte("hello")},
	})

	dialer := NewStreamDialer(srv.URL, testLogger())
	conn, err := dialer.Dial(context.Background(), "a1b2")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.RecvFrame(context.Background()); err == nil {
		t.Fatal("text message must be rejected")
	}
}

func TestStreamDialer_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"Camera not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	dialer := NewStreamDialer(srv.URL, testLogger())
	if _, err := dialer.Dial(context.Background(), "ghost"); err == nil {
		t.Fatal("dial against a refusing endpoint must fail")
	}
}

func TestStreamDialer_Ping(t *testing.T) {
	srv, _ := streamServer(t, nil)

	dialer := NewStreamDialer(srv.URL, testLogger())
	conn, err := dialer.Dial(context.Background(), "a1b2")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
