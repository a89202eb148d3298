package stunstack

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	ice "github.com/gortc/iceagent"
	"github.com/gortc/iceagent/udpsocket"
)

func newLoopbackSocket(t *testing.T) *udpsocket.Socket {
	t.Helper()
	s, err := udpsocket.Listen(udpsocket.Options{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartTransactionSuccess(t *testing.T) {
	client := New(zap.NewNop())
	server := New(zap.NewNop())

	clientSock := newLoopbackSocket(t)
	serverSock := newLoopbackSocket(t)

	server.ListenRequests(serverSock, nil, func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error) {
		if !ice.HasAttr(attrs, ice.AttrPriority) {
			t.Error("expected PRIORITY attribute on incoming request")
		}
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan ice.StunResult, 1)
	attrs := []ice.StunAttribute{ice.PriorityAttr(12345)}
	client.StartTransaction(ctx, clientSock, serverSock.LocalAddr(), attrs, nil, ice.RetransmitPolicy{}, func(res ice.StunResult) {
		done <- res
	})

	select {
	case res := <-done:
		if !res.Success {
			t.Fatalf("expected success, got %+v", res)
		}
		if !res.MappedAddr.Equal(clientSock.LocalAddr()) {
			t.Errorf("unexpected mapped address %v, want %v", res.MappedAddr, clientSock.LocalAddr())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transaction result")
	}
}

func TestStartTransactionTimeoutWhenNoResponder(t *testing.T) {
	client := New(zap.NewNop())
	clientSock := newLoopbackSocket(t)
	unreachable := newLoopbackSocket(t)
	dst := unreachable.LocalAddr()
	_ = unreachable.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1200*time.Millisecond)
	defer cancel()

	done := make(chan ice.StunResult, 1)
	client.StartTransaction(ctx, clientSock, dst, nil, nil, ice.RetransmitPolicy{}, func(res ice.StunResult) {
		done <- res
	})

	select {
	case res := <-done:
		if !res.Timeout {
			t.Fatalf("expected timeout, got %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transaction result")
	}
}

func TestStartTransactionCancel(t *testing.T) {
	client := New(zap.NewNop())
	clientSock := newLoopbackSocket(t)
	unreachable := newLoopbackSocket(t)
	dst := unreachable.LocalAddr()
	_ = unreachable.Close()

	ctx := context.Background()
	tx := client.StartTransaction(ctx, clientSock, dst, nil, nil, ice.RetransmitPolicy{}, func(ice.StunResult) {})
	if tx == nil {
		t.Fatal("expected a non-nil transaction")
	}
	tx.Cancel()
	tx.Cancel() // must be idempotent
}

func TestMessageIntegrityMismatchFails(t *testing.T) {
	client := New(zap.NewNop())
	server := New(zap.NewNop())

	clientSock := newLoopbackSocket(t)
	serverSock := newLoopbackSocket(t)

	server.ListenRequests(serverSock, nil, func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error) {
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan ice.StunResult, 1)
	client.StartTransaction(ctx, clientSock, serverSock.LocalAddr(), nil, []byte("client-key-not-known-to-server"), ice.RetransmitPolicy{}, func(res ice.StunResult) {
		done <- res
	})

	select {
	case res := <-done:
		if res.Success {
			t.Fatal("expected integrity check to fail since the response carries no MESSAGE-INTEGRITY")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transaction result")
	}
}

func TestListenRequestsAuthenticatesAndSignsResponse(t *testing.T) {
	client := New(zap.NewNop())
	server := New(zap.NewNop())

	clientSock := newLoopbackSocket(t)
	serverSock := newLoopbackSocket(t)

	key := []byte("shared-short-term-credential-key")
	var handled bool
	server.ListenRequests(serverSock, key, func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error) {
		handled = true
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan ice.StunResult, 1)
	client.StartTransaction(ctx, clientSock, serverSock.LocalAddr(), nil, key, ice.RetransmitPolicy{}, func(res ice.StunResult) {
		done <- res
	})

	select {
	case res := <-done:
		if !res.Success {
			t.Fatalf("expected success once both sides share the integrity key, got %+v", res)
		}
		if !handled {
			t.Error("expected the handler to be invoked for a correctly authenticated request")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transaction result")
	}
}

func TestListenRequestsDropsUnauthenticatedRequest(t *testing.T) {
	client := New(zap.NewNop())
	server := New(zap.NewNop())

	clientSock := newLoopbackSocket(t)
	serverSock := newLoopbackSocket(t)

	var handled bool
	server.ListenRequests(serverSock, []byte("server-side-local-password"), func(from ice.Addr, attrs []ice.StunAttribute) ([]ice.StunAttribute, error) {
		handled = true
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()

	done := make(chan ice.StunResult, 1)
	client.StartTransaction(ctx, clientSock, serverSock.LocalAddr(), nil, nil, ice.RetransmitPolicy{InitialRTO: 100 * time.Millisecond, MaxRTO: 100 * time.Millisecond, MaxSends: 2}, func(res ice.StunResult) {
		done <- res
	})

	select {
	case res := <-done:
		if res.Success {
			t.Fatal("expected no response since the server requires an integrity key the client never sent")
		}
		if handled {
			t.Error("expected the handler never to run for an unauthenticated request")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transaction result")
	}
}
