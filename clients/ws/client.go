// Package ws provides a WebSocket client for the bizclaw gateway.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/coder/websocket"

	wsprotocol "github.com/dohr-michael/bizclaw/internal/gateway/ws"
)

// Client is a WebSocket client for the bizclaw gateway. It is not safe for
// concurrent reads; one goroutine should own Call and ReadFrame.
type Client struct {
	conn   *websocket.Conn
	reqSeq uint64
	ctx    context.Context
	cancel context.CancelFunc

	// OnEvent receives event frames that arrive while Call waits for its response.
	OnEvent func(wsprotocol.Frame)
}

// Dial connects to the gateway WebSocket endpoint. header carries the acting
// user when the gateway expects one.
func Dial(ctx context.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	clientCtx, cancel := context.WithCancel(ctx)

	return &Client{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
	}, nil
}

// Send writes a request frame and returns its ID.
func (c *Client) Send(method wsprotocol.Method, params any) (string, error) {
	seq := atomic.AddUint64(&c.reqSeq, 1)

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return "", fmt.Errorf("encode params: %w", err)
		}
		raw = data
	}

	frame := wsprotocol.Frame{
		Type:   wsprotocol.FrameTypeRequest,
		ID:     fmt.Sprintf("req-%d", seq),
		Method: string(method),
		Params: raw,
	}

	data, err := wsprotocol.MarshalFrame(frame)
	if err != nil {
		return "", err
	}
	return frame.ID, c.conn.Write(c.ctx, websocket.MessageText, data)
}

// Call sends a request and waits for its response, decoding the payload into out
// when out is non-nil.
func (c *Client) Call(method wsprotocol.Method, params, out any) error {
	id, err := c.Send(method, params)
	if err != nil {
		return err
	}
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return err
		}
		if f.Type == wsprotocol.FrameTypeEvent {
			if c.OnEvent != nil {
				c.OnEvent(f)
			}
			continue
		}
		if f.Type != wsprotocol.FrameTypeResponse || f.ID != id {
			continue
		}
		if f.OK == nil || !*f.OK {
			if f.Error == "" {
				return errors.New("request failed")
			}
			return errors.New(f.Error)
		}
		if out != nil && len(f.Payload) > 0 {
			return json.Unmarshal(f.Payload, out)
		}
		return nil
	}
}

// Subscribe narrows the events streamed on this connection.
func (c *Client) Subscribe(params wsprotocol.SubscribeParams) error {
	return c.Call(wsprotocol.MethodSubscribe, params, nil)
}

// ReadFrame reads the next frame from the connection.
func (c *Client) ReadFrame() (wsprotocol.Frame, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return wsprotocol.Frame{}, err
	}
	return wsprotocol.UnmarshalFrame(data)
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
