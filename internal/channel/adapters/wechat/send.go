package wechat

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/clawpanel/clawpanel/internal/channel"
)

type sendData struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type sendBody struct {
	To     string   `json:"to"`
	IsRoom bool     `json:"isRoom"`
	Data   sendData `json:"data"`
}

// Send posts to /webhook/msg/v2. File sends pass a URL the bridge downloads.
func (a *Adapter) Send(ctx context.Context, req channel.SendRequest) channel.SendResult {
	dataType := "text"
	if req.Kind == channel.SendFile {
		dataType = "fileUrl"
	}
	resp, err := a.client.Request(ctx, http.MethodPost, "/webhook/msg/v2", sendBody{
		To:     req.To,
		IsRoom: req.IsRoom,
		Data:   sendData{Type: dataType, Content: req.Content},
	})
	if err != nil {
		return channel.SendFailure(err.Error(), nil)
	}
	if !resp.Structured() {
		return channel.SendFailure("unexpected response from bridge", resp.Text)
	}
	if resp.Get("success").Type == gjson.True {
		return channel.SendResult{OK: true, Raw: resp.Value()}
	}
	msg := resp.Get("message").String()
	if msg == "" {
		msg = "send rejected by bridge"
	}
	return channel.SendFailure(msg, resp.Value())
}
