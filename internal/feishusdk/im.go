package feishusdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// SendCard sends an interactive card and returns its message id.
func (c *Client) SendCard(ctx context.Context, receiveIDType, receiveID string, card map[string]any) (string, error) {
	content, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("feishu: marshal card: %w", err)
	}
	return c.send(ctx, receiveIDType, receiveID, MsgTypeInteractive, string(content))
}

// SendText sends a plain text message and returns its message id.
func (c *Client) SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error) {
	return c.send(ctx, receiveIDType, receiveID, MsgTypeText, textContent(text))
}

func (c *Client) send(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if strings.TrimSpace(receiveID) == "" {
		return "", errors.New("feishu: receive id is empty")
	}
	if receiveIDType == "" {
		receiveIDType = ReceiveIDOpenID
	}
	api, err := c.messageService()
	if err != nil {
		return "", err
	}
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()
	resp, err := api.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("feishu: send %s message: %w", msgType, err)
	}
	if err := ensureSDKSuccess("send message", resp.Success(), resp.Code, resp.Msg, resp.RequestId()); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", errors.New("feishu: send message response missing message_id")
	}
	return *resp.Data.MessageId, nil
}

// ReplyText replies to a message in its thread context.
func (c *Client) ReplyText(ctx context.Context, messageID, text string) error {
	api, err := c.messageService()
	if err != nil {
		return err
	}
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()
	resp, err := api.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("feishu: reply message: %w", err)
	}
	return ensureSDKSuccess("reply message", resp.Success(), resp.Code, resp.Msg, resp.RequestId())
}

// PatchCard replaces the content of a sent interactive card.
func (c *Client) PatchCard(ctx context.Context, messageID string, card map[string]any) error {
	if strings.TrimSpace(messageID) == "" {
		return errors.New("feishu: message id is empty")
	}
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("feishu: marshal card: %w", err)
	}
	api, err := c.messageService()
	if err != nil {
		return err
	}
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(string(content)).
			Build()).
		Build()
	resp, err := api.Patch(ctx, req)
	if err != nil {
		return fmt.Errorf("feishu: patch card: %w", err)
	}
	return ensureSDKSuccess("patch card", resp.Success(), resp.Code, resp.Msg, resp.RequestId())
}

func ensureSDKSuccess(action string, ok bool, code int, msg, logID string) error {
	if ok {
		return nil
	}
	if strings.TrimSpace(logID) == "" {
		return fmt.Errorf("feishu: %s failed code=%d msg=%s", action, code, msg)
	}
	return fmt.Errorf("feishu: %s failed code=%d msg=%s log_id=%s", action, code, msg, logID)
}

func textContent(text string) string {
	raw, _ := json.Marshal(map[string]string{"text": text})
	return string(raw)
}

// ExtractText returns the text of a text message content payload.
func ExtractText(content string) string {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(payload.Text)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
