package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"github.com/nanoalchemist/movement/services/movement"
)

const errorPrefix = "Error:"

// record is anything the daemon sends: notifications carry Method, display commands carry method.
type record struct {
	Method  string          `json:"Method"`
	Command string          `json:"method"`
	Status  json.RawMessage `json:"status"`
}

type wsClient struct {
	conn    *websocket.Conn
	out     io.Writer
	timeout time.Duration
	linger  time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newClient(c *cli.Context) (*wsClient, error) {
	target, err := url.Parse(c.String(flagAddr))
	if err != nil {
		return nil, errors.Wrapf(err, "bad address %q", c.String(flagAddr))
	}
	if role := c.String(flagRole); role != "" {
		q := target.Query()
		q.Set("role", role)
		target.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(c.Context, target.String(), nil)
	if resp != nil {
		utils.UncheckedError(resp.Body.Close())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", target)
	}
	return &wsClient{
		conn:    conn,
		out:     c.App.Writer,
		timeout: c.Duration(flagTimeout),
		linger:  c.Duration(flagLinger),
	}, nil
}

func (cl *wsClient) Close() error {
	cl.closeOnce.Do(func() {
		utils.UncheckedError(cl.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		))
		cl.closeErr = cl.conn.Close()
	})
	return cl.closeErr
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (cl *wsClient) next(deadline time.Time) (record, []byte, error) {
	var rec record
	utils.UncheckedError(cl.conn.SetReadDeadline(deadline))
	_, data, err := cl.conn.ReadMessage()
	if err != nil {
		return rec, nil, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, nil, errors.Wrap(err, "decoding reply")
	}
	return rec, data, nil
}

// request sends msg and prints what comes back. With done == nil it returns once the linger
// period after the acknowledgement passes; otherwise it returns on the first record done accepts.
func (cl *wsClient) request(msg map[string]interface{}, done func(record) bool) error {
	if err := cl.conn.WriteJSON(msg); err != nil {
		return errors.Wrap(err, "sending request")
	}

	acked := false
	deadline := time.Now().Add(cl.timeout)
	for {
		rec, _, err := cl.next(deadline)
		if err != nil {
			if acked && done == nil && isTimeout(err) {
				return nil
			}
			return errors.Wrap(err, "waiting for the daemon")
		}

		switch {
		case strings.HasPrefix(rec.Method, errorPrefix):
			return errors.New(strings.TrimPrefix(rec.Method, errorPrefix))
		case rec.Method == movement.OnConnectionRequestReceived:
			acked = true
			fmt.Fprintln(cl.out, "accepted")
			if done == nil {
				deadline = time.Now().Add(cl.linger)
			}
		case done != nil && done(rec):
			return nil
		case rec.Method != "":
			fmt.Fprintln(cl.out, rec.Method)
		}
	}
}

// listen prints records until the connection ends or ctx is done.
func (cl *wsClient) listen(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	utils.PanicCapturingGo(func() {
		select {
		case <-ctx.Done():
			utils.UncheckedError(cl.Close())
		case <-stop:
		}
	})

	for {
		rec, data, err := cl.next(time.Time{})
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if rec.Method != "" {
			fmt.Fprintln(cl.out, rec.Method)
			continue
		}
		fmt.Fprintln(cl.out, string(data))
	}
}
