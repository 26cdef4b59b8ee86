package movement

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"
)

func TestServeStream(t *testing.T) {
	logger := golog.NewTestLogger(t)
	axis := newFakeAxis()
	hub := NewHub(0, logger)
	defer hub.Close()
	svc := NewService(axis, hub, logger)

	server, client := net.Pipe()
	defer client.Close()

	served := make(chan error, 1)
	go func() {
		served <- svc.ServeStream(context.Background(), server, RoleOperator)
	}()

	_, err := client.Write([]byte("\n{\"method\":\"status\"}\n"))
	test.That(t, err, test.ShouldBeNil)

	lines := bufio.NewScanner(client)
	var got []map[string]interface{}
	for len(got) < 2 && lines.Scan() {
		var rec map[string]interface{}
		test.That(t, json.Unmarshal(lines.Bytes(), &rec), test.ShouldBeNil)
		got = append(got, rec)
	}
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[0]["Method"], test.ShouldEqual, OnConnectionRequestReceived)
	test.That(t, got[1]["Method"], test.ShouldEqual, StatusMethod)
	status, ok := got[1]["status"].(map[string]interface{})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, status["initialized"], test.ShouldEqual, true)
	test.That(t, hub.Peers(), test.ShouldEqual, 1)

	test.That(t, client.Close(), test.ShouldBeNil)
	test.That(t, <-served, test.ShouldBeNil)
	test.That(t, hub.Peers(), test.ShouldEqual, 0)
}

func TestStreamPeerDropsWhenFull(t *testing.T) {
	p := &streamPeer{id: "x", sendCh: make(chan interface{}, 1), done: make(chan struct{})}
	test.That(t, p.Send(1), test.ShouldBeTrue)
	test.That(t, p.Send(2), test.ShouldBeFalse)
	close(p.done)
	<-p.sendCh
	test.That(t, p.Send(3), test.ShouldBeFalse)
}

// gatedWriter holds its first write until release is closed.
type gatedWriter struct {
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	first bool
	buf   bytes.Buffer
}

func (w *gatedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	if !w.first {
		w.first = true
		w.mu.Unlock()
		close(w.started)
		<-w.release
		w.mu.Lock()
	}
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *gatedWriter) lines() []map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(w.buf.Bytes()), []byte("\n")) {
		var rec map[string]interface{}
		if json.Unmarshal(line, &rec) == nil {
			out = append(out, rec)
		}
	}
	return out
}

func TestServeStreamFlushesAtEOF(t *testing.T) {
	logger := golog.NewTestLogger(t)
	hub := NewHub(0, logger)
	defer hub.Close()
	svc := NewService(newFakeAxis(), hub, logger)

	pr, pw := io.Pipe()
	w := &gatedWriter{started: make(chan struct{}), release: make(chan struct{})}
	rw := struct {
		io.Reader
		io.Writer
	}{pr, w}

	served := make(chan error, 1)
	go func() {
		served <- svc.ServeStream(context.Background(), rw, RoleOperator)
	}()

	_, err := pw.Write([]byte("{\"method\":\"status\"}\n"))
	test.That(t, err, test.ShouldBeNil)
	<-w.started

	// the acknowledgement is stuck in the writer and the status reply waits behind it
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		queued := 0
		for _, p := range hub.peers {
			queued += len(p.(*streamPeer).sendCh)
		}
		test.That(tb, queued, test.ShouldEqual, 1)
	})

	test.That(t, pw.Close(), test.ShouldBeNil)
	close(w.release)
	test.That(t, <-served, test.ShouldBeNil)

	got := w.lines()
	test.That(t, got, test.ShouldHaveLength, 2)
	test.That(t, got[0]["Method"], test.ShouldEqual, OnConnectionRequestReceived)
	test.That(t, got[1]["Method"], test.ShouldEqual, StatusMethod)
}
