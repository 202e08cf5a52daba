package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"trade-manager/internal/core"
)

type orderWSConn struct {
	conn *websocket.Conn
	stop chan struct{}
}

// placeOrderWS submits a market order through the WebSocket API. The connection is
// cached and pinged until Close. A failed request drops the connection; the order
// is not resubmitted.
func (c *Client) placeOrderWS(ctx context.Context, order core.OrderResult) (core.OrderResult, error) {
	if c.wsBaseURL == "" {
		return core.OrderResult{}, errors.New("ws base url required")
	}
	c.orderMu.Lock()
	defer c.orderMu.Unlock()

	conn, err := c.ensureOrderConn(ctx)
	if err != nil {
		return core.OrderResult{}, err
	}

	params, err := c.wsOrderParams(order, time.Now().UnixMilli())
	if err != nil {
		return core.OrderResult{}, err
	}
	resp, err := sendWSRequest(ctx, conn, "order.place", params)
	if err != nil {
		var apiErr APIError
		if !errors.As(err, &apiErr) {
			c.resetOrderConn()
		}
		return core.OrderResult{}, err
	}
	var result orderResponse
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return core.OrderResult{}, err
	}
	return result.toResult(order), nil
}

func (c *Client) wsOrderParams(order core.OrderResult, ts int64) (map[string]interface{}, error) {
	if order.Symbol == "" {
		return nil, errors.New("symbol required")
	}
	if order.Qty.Sign() <= 0 {
		return nil, errors.New("invalid order quantity")
	}
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	values := c.marketOrderValues(order)
	values.Set("apiKey", c.apiKey)
	values.Set("timestamp", strconv.FormatInt(ts, 10))
	if c.recvWindow > 0 {
		values.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	}
	params := make(map[string]interface{}, len(values)+1)
	for k := range values {
		params[k] = values.Get(k)
	}
	params["timestamp"] = ts
	if c.recvWindow > 0 {
		params["recvWindow"] = c.recvWindow.Milliseconds()
	}
	params["signature"] = sign(c.apiSecret, values.Encode())
	return params, nil
}

func (c *Client) placeOrderREST(ctx context.Context, order core.OrderResult) (core.OrderResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", c.marketOrderValues(order), AuthSigned)
	if err != nil {
		return core.OrderResult{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.OrderResult{}, err
	}
	return resp.toResult(order), nil
}

func (c *Client) marketOrderValues(order core.OrderResult) url.Values {
	values := url.Values{}
	values.Set("symbol", order.Symbol)
	values.Set("side", string(order.Side))
	values.Set("type", string(core.Market))
	values.Set("quantity", order.Qty.String())
	if order.ClientID != "" {
		values.Set("newClientOrderId", order.ClientID)
	}
	values.Set("newOrderRespType", "RESULT")
	return values
}

func (c *Client) ensureOrderConn(ctx context.Context) (*websocket.Conn, error) {
	if c.orderConn != nil {
		return c.orderConn.conn, nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsBaseURL, nil)
	if err != nil {
		return nil, err
	}
	ow := &orderWSConn{conn: conn, stop: make(chan struct{})}
	c.orderConn = ow
	if c.orderWSKeepalive > 0 {
		go c.orderKeepaliveLoop(ow)
	}
	return conn, nil
}

func (c *Client) resetOrderConn() {
	if c.orderConn == nil {
		return
	}
	close(c.orderConn.stop)
	_ = c.orderConn.conn.Close()
	c.orderConn = nil
}

func (c *Client) orderKeepaliveLoop(ow *orderWSConn) {
	ticker := time.NewTicker(c.orderWSKeepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.orderMu.Lock()
			if c.orderConn == nil || c.orderConn != ow {
				c.orderMu.Unlock()
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, err := sendWSRequest(ctx, ow.conn, "ping", nil)
			cancel()
			if err != nil {
				c.resetOrderConn()
				c.orderMu.Unlock()
				return
			}
			c.orderMu.Unlock()
		case <-ow.stop:
			return
		}
	}
}
