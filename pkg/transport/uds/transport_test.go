package uds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startServer(t *testing.T, register func(*Server)) (*Server, string) {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(sock, quietLogger())
	if register != nil {
		register(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		srv.Shutdown()
		<-errCh
	})

	// Wait for socket to appear
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(sock); err == nil {
			return srv, sock
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket never appeared")
	return nil, ""
}

func dial(t *testing.T, sock string) *Client {
	t.Helper()
	client, err := Dial(sock)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func reqCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPingRoundTrip(t *testing.T) {
	_, sock := startServer(t, func(s *Server) {
		s.Handle(MethodPing, func(_ context.Context, _ *Session, _ Message) (any, error) {
			return PingResponse{Pong: true, Version: "test"}, nil
		})
	})
	client := dial(t, sock)

	var pong PingResponse
	if err := client.Call(reqCtx(t), MethodPing, nil, &pong); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !pong.Pong || pong.Version != "test" {
		t.Errorf("pong = %+v", pong)
	}
}

func TestRequestPayloadReachesHandler(t *testing.T) {
	_, sock := startServer(t, func(s *Server) {
		s.Handle(MethodLogsByDate, func(_ context.Context, _ *Session, req Message) (any, error) {
			var in LogsByDateRequest
			if err := req.UnmarshalData(&in); err != nil {
				return nil, err
			}
			if in.Date != "20240102" {
				return nil, fmt.Errorf("bad date %q", in.Date)
			}
			return LogsByDateResponse{Date: in.Date, Lines: []string{"a", "b"}}, nil
		})
	})
	client := dial(t, sock)

	var out LogsByDateResponse
	if err := client.Call(reqCtx(t), MethodLogsByDate, LogsByDateRequest{Date: "20240102"}, &out); err != nil {
		t.Fatalf("call: %v", err)
	}
	if len(out.Lines) != 2 || out.Lines[1] != "b" {
		t.Errorf("lines = %v", out.Lines)
	}

	err := client.Call(reqCtx(t), MethodLogsByDate, LogsByDateRequest{Date: "x"}, &out)
	if err == nil {
		t.Fatal("expected handler error to surface")
	}
}

func TestUnknownMethod(t *testing.T) {
	_, sock := startServer(t, nil)
	client := dial(t, sock)

	if _, err := client.Request(reqCtx(t), "NoSuchMethod", nil); err == nil {
		t.Error("expected error for unknown method")
	}
}

func TestSessionEventsPrecedeLaterEvents(t *testing.T) {
	_, sock := startServer(t, func(s *Server) {
		s.Handle(MethodLogsSubscribe, func(_ context.Context, sess *Session, _ Message) (any, error) {
			for i := 1; i <= 3; i++ {
				if err := sess.SendEvent(EventLogsLine, LogsLineEvent{Seq: uint64(i), Text: fmt.Sprintf("line %d", i)}); err != nil {
					return nil, err
				}
			}
			go func() {
				_ = sess.SendEvent(EventLogsLine, LogsLineEvent{Seq: 4, Text: "live"})
			}()
			return LogsSubscribeResponse{SubscriberID: 1, Replayed: 3}, nil
		})
	})
	client := dial(t, sock)

	evtCh := make(chan Message, 16)
	client.OnEvent(func(msg Message) { evtCh <- msg })

	var ack LogsSubscribeResponse
	if err := client.Call(reqCtx(t), MethodLogsSubscribe, nil, &ack); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ack.Replayed != 3 {
		t.Errorf("replayed = %d", ack.Replayed)
	}

	for want := uint64(1); want <= 4; want++ {
		select {
		case msg := <-evtCh:
			var line LogsLineEvent
			if err := msg.UnmarshalData(&line); err != nil {
				t.Fatal(err)
			}
			if msg.Method != EventLogsLine || line.Seq != want {
				t.Fatalf("event %s seq %d, want %s seq %d", msg.Method, line.Seq, EventLogsLine, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for seq %d", want)
		}
	}
}

func TestSessionCleanupRunsOnDisconnect(t *testing.T) {
	cleaned := make(chan string, 2)
	srv, sock := startServer(t, func(s *Server) {
		s.Handle(MethodLogsSubscribe, func(_ context.Context, sess *Session, _ Message) (any, error) {
			if !sess.Attach("logs", func() { cleaned <- "logs" }) {
				return nil, errors.New("already subscribed")
			}
			return nil, nil
		})
		s.Handle(MethodLogsUnsubscribe, func(_ context.Context, sess *Session, _ Message) (any, error) {
			if !sess.Detach("logs") {
				return nil, errors.New("not subscribed")
			}
			return nil, nil
		})
	})

	client := dial(t, sock)
	if _, err := client.Request(reqCtx(t), MethodLogsSubscribe, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := client.Request(reqCtx(t), MethodLogsSubscribe, nil); err == nil {
		t.Error("second subscribe should fail")
	}
	if _, err := client.Request(reqCtx(t), MethodLogsUnsubscribe, nil); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if got := <-cleaned; got != "logs" {
		t.Fatalf("cleanup = %q", got)
	}
	if _, err := client.Request(reqCtx(t), MethodLogsUnsubscribe, nil); err == nil {
		t.Error("unsubscribe without subscription should fail")
	}

	if _, err := client.Request(reqCtx(t), MethodLogsSubscribe, nil); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	client.Close()

	select {
	case <-cleaned:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup did not run on disconnect")
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.Sessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d after disconnect", srv.Sessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientDoneOnServerShutdown(t *testing.T) {
	srv, sock := startServer(t, func(s *Server) {
		s.Handle(MethodPing, func(_ context.Context, _ *Session, _ Message) (any, error) {
			return PingResponse{Pong: true}, nil
		})
	})
	client := dial(t, sock)
	if _, err := client.Request(reqCtx(t), MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}

	srv.Shutdown()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not notified of shutdown")
	}
	if _, err := client.Request(reqCtx(t), MethodPing, nil); err == nil {
		t.Error("request after shutdown should fail")
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	got := make(chan *Session, 1)
	_, sock := startServer(t, func(s *Server) {
		s.Handle(MethodPing, func(_ context.Context, se *Session, _ Message) (any, error) {
			got <- se
			return nil, nil
		})
	})
	client := dial(t, sock)
	if _, err := client.Request(reqCtx(t), MethodPing, nil); err != nil {
		t.Fatalf("ping: %v", err)
	}
	sess := <-got
	sess.Close()
	if err := sess.SendEvent(EventLogsStatus, LogsStatusEvent{Degraded: true}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send after close = %v, want ErrSessionClosed", err)
	}
}
