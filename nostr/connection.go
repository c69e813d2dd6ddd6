package nostr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

var ErrDisconnected = errors.New("<disconnected>")

// Connection represents a websocket connection to a Nostr relay.
type Connection struct {
	conn         *ws.Conn
	cancel       context.CancelCauseFunc
	writeQueue   chan writeRequest
	closed       *atomic.Bool
	closedNotify chan struct{}
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

func newConnection(
	ctx context.Context,
	cancel context.CancelCauseFunc,
	dialCtx context.Context,
	url string,
	handleMessage func(string),
	requestHeader http.Header,
) (*Connection, error) {
	log := Logger.With().Str("relay", url).Logger()
	log.Debug().Msg("connecting")

	c, _, err := ws.Dial(dialCtx, url, &ws.DialOptions{HTTPHeader: requestHeader})
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(2 << 20)

	ticker := time.NewTicker(29 * time.Second)

	writeQueue := make(chan writeRequest)
	readQueue := make(chan string)

	conn := &Connection{
		conn:         c,
		cancel:       cancel,
		writeQueue:   writeQueue,
		closed:       &atomic.Bool{},
		closedNotify: make(chan struct{}),
	}

	// main websocket loop
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.doClose(ws.StatusNormalClosure, "")
				log.Debug().Err(context.Cause(ctx)).Msg("closing, context done")
				return
			case <-conn.closedNotify:
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeoutCause(ctx, time.Millisecond*800, errors.New("ping took too long"))
				err := c.Ping(pingCtx)
				cancel()
				if err != nil {
					log.Debug().Err(err).Msg("closing, ping failed")
					conn.doClose(ws.StatusAbnormalClosure, "ping took too long")
					return
				}
			case wr := <-writeQueue:
				log.Trace().Str("msg", string(wr.msg)).Msg("sending")
				writeCtx, cancel := context.WithTimeoutCause(ctx, time.Second*10, errors.New("write took too long"))
				err := c.Write(writeCtx, ws.MessageText, wr.msg)
				cancel()
				if err != nil {
					log.Debug().Err(err).Msg("closing, write failed")
					conn.doClose(ws.StatusAbnormalClosure, "write failed")
					if wr.answer != nil {
						wr.answer <- err
					}
					return
				}
				if wr.answer != nil {
					close(wr.answer)
				}
			case msg := <-readQueue:
				log.Trace().Str("msg", msg).Msg("received")
				handleMessage(msg)
			}
		}
	}()

	// read loop -- loops back to the main loop
	go func() {
		buf := new(bytes.Buffer)

		for {
			buf.Reset()

			_, reader, err := c.Reader(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("closing, reader failure")
				conn.doClose(ws.StatusAbnormalClosure, "failed to get reader")
				return
			}
			if _, err := io.Copy(buf, reader); err != nil {
				log.Debug().Err(err).Msg("closing, read failure")
				conn.doClose(ws.StatusAbnormalClosure, "failed to read")
				return
			}

			select {
			case readQueue <- buf.String():
			case <-conn.closedNotify:
				return
			}
		}
	}()

	return conn, nil
}

func (c *Connection) doClose(code ws.StatusCode, reason string) {
	if wasClosed := c.closed.Swap(true); !wasClosed {
		if code == ws.StatusNormalClosure {
			c.conn.Close(code, reason)
		} else {
			c.conn.CloseNow()
		}
		c.cancel(fmt.Errorf("connection closed: %s", reason))
		close(c.closedNotify)
	}
}
