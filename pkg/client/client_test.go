package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, drain)
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_ConnectAfterClose(t *testing.T) {
	client := New(Config{URL: "ws://127.0.0.1:1"}, nil)
	if err := client.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := New(Config{URL: "ws://127.0.0.1:1"}, nil)

	if err := client.Send("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClient_Send(t *testing.T) {
	var mu sync.Mutex
	var received []string

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(msg))
			mu.Unlock()
		}
	})
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.Send("deploy example.com"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0] != "deploy example.com" {
		t.Fatalf("received = %q, want one deploy line", received)
	}
}

func TestClient_MessagesInOrder(t *testing.T) {
	lines := []string{"greeting", "one", "two", "three"}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, line := range lines {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				return
			}
		}
		drain(conn)
	})
	defer server.Close()

	client := New(Config{URL: wsURL(server), BufferSize: 1}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	for i, want := range lines {
		select {
		case msg := <-client.Messages():
			if msg.Text != want {
				t.Fatalf("message %d = %q, want %q", i, msg.Text, want)
			}
			if msg.ReceivedAt.IsZero() {
				t.Fatalf("message %d missing receive time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestClient_ServerCloseEndsMessages(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("bye"))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
	})
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	var got []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				if len(got) != 1 || got[0] != "bye" {
					t.Fatalf("messages = %q, want [bye]", got)
				}
				select {
				case err := <-client.Errors():
					t.Fatalf("unexpected error after going-away close: %v", err)
				default:
				}
				if client.IsConnected() {
					t.Fatal("expected client to be disconnected")
				}
				return
			}
			got = append(got, msg.Text)
		case <-timeout:
			t.Fatal("timed out waiting for messages channel to close")
		}
	}
}

func TestClient_AbruptDropReportsError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_ = conn.UnderlyingConn().Close()
	})
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Fatal("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connection error")
	}
}

func TestClient_ConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := New(Config{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("expected handshake failure against plain HTTP handler")
	}
}
