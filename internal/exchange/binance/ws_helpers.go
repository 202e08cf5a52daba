package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsRequest struct {
	ID     string                 `json:"id"`
	Method string                 `json:"method"`
	Params map[string]interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *apiError       `json:"error,omitempty"`
}

func sendWSRequest(ctx context.Context, conn *websocket.Conn, method string, params map[string]interface{}) (wsResponse, error) {
	req := wsRequest{
		ID:     uuid.NewString(),
		Method: method,
		Params: params,
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(req); err != nil {
		return wsResponse{}, err
	}
	return waitForWSResponse(ctx, conn, req.ID)
}

// waitForWSResponse reads until the response with reqID arrives, skipping
// unrelated frames.
func waitForWSResponse(ctx context.Context, conn *websocket.Conn, reqID string) (wsResponse, error) {
	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return wsResponse{}, err
		}
		var resp wsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.ID != reqID {
			continue
		}
		if resp.Status != 200 {
			if resp.Error != nil {
				return resp, wrapAPIError(resp.Error.Code, resp.Error.Msg)
			}
			return resp, fmt.Errorf("binance ws error status %d", resp.Status)
		}
		return resp, nil
	}
}
