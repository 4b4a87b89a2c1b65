package feishusdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher/callback"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/rs/zerolog/log"
)

const (
	messageDedupCacheSize = 2048
	messageDedupTTL       = 10 * time.Minute
)

// IncomingMessage is a received chat message stripped of SDK types.
type IncomingMessage struct {
	MessageID  string
	ChatID     string
	ChatType   string
	SenderID   string
	MsgType    string
	Text       string
	CreateTime time.Time
}

// CardAction is a card callback stripped of SDK types.
type CardAction struct {
	UserID     string
	MessageID  string
	ChatID     string
	Value      map[string]any
	InputValue string
	Option     string
}

// CardActionReply answers a card callback.
type CardActionReply struct {
	ToastType    string
	ToastContent string
	// Card replaces the card in place when set.
	Card map[string]any
}

type (
	MessageHandler    func(ctx context.Context, msg IncomingMessage) error
	CardActionHandler func(ctx context.Context, action CardAction) (CardActionReply, error)
)

// Listener receives events over the Feishu long connection.
type Listener struct {
	client    *Client
	onMessage MessageHandler
	onAction  CardActionHandler

	dedupMu sync.Mutex
	dedup   *lru.Cache[string, time.Time]
	now     func() time.Time
}

// NewListener builds a listener. Either handler may be nil.
func NewListener(client *Client, onMessage MessageHandler, onAction CardActionHandler) (*Listener, error) {
	if client == nil {
		return nil, errors.New("feishu: client is nil")
	}
	cache, err := lru.New[string, time.Time](messageDedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("feishu: init message deduper: %w", err)
	}
	return &Listener{
		client:    client,
		onMessage: onMessage,
		onAction:  onAction,
		dedup:     cache,
		now:       time.Now,
	}, nil
}

// Start connects and blocks until ctx is done or the connection fails.
func (l *Listener) Start(ctx context.Context) error {
	d := dispatcher.NewEventDispatcher(l.client.verificationToken, l.client.encryptKey).
		OnP2MessageReceiveV1(l.handleMessage).
		OnP2CardActionTrigger(l.handleCardAction)

	opts := []larkws.ClientOption{
		larkws.WithEventHandler(d),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	}
	if l.client.baseURL != "" {
		opts = append(opts, larkws.WithDomain(l.client.baseURL))
	}
	ws := larkws.NewClient(l.client.appID, l.client.appSecret, opts...)
	log.Info().Str("app_id", l.client.appID).Msg("feishu: starting long connection")
	if err := ws.Start(ctx); err != nil {
		return fmt.Errorf("feishu: long connection stopped: %w", err)
	}
	return nil
}

func (l *Listener) handleMessage(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	msg, ok := convertMessage(event)
	if !ok {
		return nil
	}
	if l.isDuplicate(msg.MessageID) {
		log.Debug().Str("message_id", msg.MessageID).Msg("feishu: duplicate message dropped")
		return nil
	}
	if l.onMessage == nil {
		return nil
	}
	if err := l.onMessage(ctx, msg); err != nil {
		log.Error().Err(err).
			Str("message_id", msg.MessageID).
			Str("sender_id", msg.SenderID).
			Msg("feishu: message handler failed")
	}
	return nil
}

func (l *Listener) handleCardAction(ctx context.Context, event *callback.CardActionTriggerEvent) (*callback.CardActionTriggerResponse, error) {
	if event == nil || event.Event == nil {
		return &callback.CardActionTriggerResponse{}, nil
	}
	action, err := convertCardAction(event.Event)
	if err != nil {
		log.Error().Err(err).Msg("feishu: decode card action")
		return toastResponse("error", "无法识别的操作"), nil
	}
	if l.onAction == nil {
		return &callback.CardActionTriggerResponse{}, nil
	}
	reply, err := l.onAction(ctx, action)
	if err != nil {
		log.Error().Err(err).
			Str("user_id", action.UserID).
			Str("message_id", action.MessageID).
			Msg("feishu: card action handler failed")
	}
	return buildCardResponse(reply), nil
}

func (l *Listener) isDuplicate(messageID string) bool {
	if messageID == "" {
		return false
	}
	l.dedupMu.Lock()
	defer l.dedupMu.Unlock()

	now := l.now()
	if ts, ok := l.dedup.Get(messageID); ok {
		if now.Sub(ts) <= messageDedupTTL {
			return true
		}
		l.dedup.Remove(messageID)
	}
	l.dedup.Add(messageID, now)
	return false
}

func convertMessage(event *larkim.P2MessageReceiveV1) (IncomingMessage, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return IncomingMessage{}, false
	}
	raw := event.Event.Message
	msg := IncomingMessage{
		MessageID: deref(raw.MessageId),
		ChatID:    deref(raw.ChatId),
		ChatType:  deref(raw.ChatType),
		MsgType:   deref(raw.MessageType),
		SenderID:  extractSenderID(event),
	}
	if msg.MsgType == MsgTypeText {
		msg.Text = ExtractText(deref(raw.Content))
	}
	if ms, err := strconv.ParseInt(deref(raw.CreateTime), 10, 64); err == nil && ms > 0 {
		msg.CreateTime = time.UnixMilli(ms)
	}
	return msg, msg.SenderID != ""
}

func extractSenderID(event *larkim.P2MessageReceiveV1) string {
	sender := event.Event.Sender
	if sender == nil || sender.SenderId == nil {
		return ""
	}
	if id := deref(sender.SenderId.OpenId); id != "" {
		return id
	}
	return deref(sender.SenderId.UserId)
}

// cardActionBody mirrors the wire shape of a card.action.trigger event.
type cardActionBody struct {
	Operator struct {
		OpenID string `json:"open_id"`
		UserID string `json:"user_id"`
	} `json:"operator"`
	Action struct {
		Value      map[string]any `json:"value"`
		Option     string         `json:"option"`
		InputValue string         `json:"input_value"`
	} `json:"action"`
	Context struct {
		OpenMessageID string `json:"open_message_id"`
		OpenChatID    string `json:"open_chat_id"`
	} `json:"context"`
}

func convertCardAction(event any) (CardAction, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return CardAction{}, fmt.Errorf("feishu: encode card action: %w", err)
	}
	return parseCardAction(raw)
}

func parseCardAction(raw []byte) (CardAction, error) {
	var body cardActionBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return CardAction{}, fmt.Errorf("feishu: decode card action: %w", err)
	}
	userID := strings.TrimSpace(body.Operator.OpenID)
	if userID == "" {
		userID = strings.TrimSpace(body.Operator.UserID)
	}
	if userID == "" {
		return CardAction{}, errors.New("feishu: card action without operator")
	}
	return CardAction{
		UserID:     userID,
		MessageID:  body.Context.OpenMessageID,
		ChatID:     body.Context.OpenChatID,
		Value:      body.Action.Value,
		InputValue: body.Action.InputValue,
		Option:     body.Action.Option,
	}, nil
}

func buildCardResponse(reply CardActionReply) *callback.CardActionTriggerResponse {
	resp := &callback.CardActionTriggerResponse{}
	if reply.ToastContent != "" {
		kind := reply.ToastType
		if kind == "" {
			kind = "info"
		}
		resp.Toast = &callback.Toast{Type: kind, Content: reply.ToastContent}
	}
	if reply.Card != nil {
		resp.Card = &callback.Card{Type: "raw", Data: reply.Card}
	}
	return resp
}

func toastResponse(kind, content string) *callback.CardActionTriggerResponse {
	return buildCardResponse(CardActionReply{ToastType: kind, ToastContent: content})
}
