package connection

import (
	"errors"
	"net"
	"testing"

	"github.com/gobwas/ws"
)

// gobwasPipe wraps the server end of an in-memory pipe; the test writes raw
// client frames to the returned peer.
func gobwasPipe(t *testing.T, cfg ConnConfig) (net.Conn, Conn) {
	t.Helper()
	server, peer := net.Pipe()
	c := NewGobwasConn(server, cfg, nil)
	t.Cleanup(func() {
		peer.Close()
		c.Close()
	})
	return peer, c
}

func clientFrame(op ws.OpCode, fin bool, payload string) ws.Frame {
	return ws.MaskFrame(ws.NewFrame(op, fin, []byte(payload)))
}

func TestGobwas_OversizedHeaderRejectedBeforePayload(t *testing.T) {
	cfg := DefaultConnConfig()
	cfg.MaxMessageSize = 1024
	peer, c := gobwasPipe(t, cfg)

	// Only the header is ever written; reading the payload would block forever.
	go ws.WriteHeader(peer, ws.Header{
		Fin:    true,
		OpCode: ws.OpText,
		Masked: true,
		Mask:   ws.NewMask(),
		Length: 1 << 40,
	})

	r := awaitReceive(t, receiveAsync(c))
	if !errors.Is(r.err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", r.err)
	}
}

func TestGobwas_FragmentsCountTowardLimit(t *testing.T) {
	cfg := DefaultConnConfig()
	cfg.MaxMessageSize = 12
	peer, c := gobwasPipe(t, cfg)

	go func() {
		ws.WriteFrame(peer, clientFrame(ws.OpText, false, `{"message":`))
		ws.WriteFrame(peer, clientFrame(ws.OpContinuation, true, `"hello"}`))
	}()

	r := awaitReceive(t, receiveAsync(c))
	if !errors.Is(r.err, ErrFrameTooLarge) {
		t.Fatalf("err = %v, want ErrFrameTooLarge", r.err)
	}
}

func TestGobwas_PingBetweenFragments(t *testing.T) {
	peer, c := gobwasPipe(t, DefaultConnConfig())

	pong := make(chan ws.OpCode, 1)
	go func() {
		ws.WriteFrame(peer, clientFrame(ws.OpText, false, `{"message":`))
		ws.WriteFrame(peer, clientFrame(ws.OpPing, true, "p"))
		f, err := ws.ReadFrame(peer)
		if err != nil {
			pong <- 0
			return
		}
		pong <- f.Header.OpCode
		ws.WriteFrame(peer, clientFrame(ws.OpContinuation, true, `"hi"}`))
	}()

	r := awaitReceive(t, receiveAsync(c))
	if r.err != nil {
		t.Fatalf("Receive failed: %v", r.err)
	}
	if r.in.Message != "hi" {
		t.Errorf("Message = %q, want hi", r.in.Message)
	}
	if op := <-pong; op != ws.OpPong {
		t.Errorf("reply opcode = %v, want pong", op)
	}
}
