// Package bot routes chat messages and card callbacks to the card composer.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/routinebot/RoutineAgent/internal/feishusdk"
	"github.com/routinebot/RoutineAgent/pkg/card"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/session"
)

// DefaultSelectTTL bounds how long a numbered list answers bare digits.
const DefaultSelectTTL = 5 * time.Minute

const maxSelectCandidates = 10

// Messenger sends and updates chat messages.
type Messenger interface {
	SendCard(ctx context.Context, receiveIDType, receiveID string, card map[string]any) (string, error)
	SendText(ctx context.Context, receiveIDType, receiveID, text string) (string, error)
}

// Options configure a Bot.
type Options struct {
	SelectTTL time.Duration
	// AdminUserIDs may run secret rotation.
	AdminUserIDs []string
	// SecretVars lists the variables secret rotation may write.
	SecretVars []string
	// Persist writes a rotated secret; env.Persist in production.
	Persist func(key, value string) (string, error)
	// RateLimit caps commands per user within RateWindow; negative disables.
	RateLimit  int
	RateWindow time.Duration
}

// Bot answers chat commands and card callbacks.
type Bot struct {
	composer  *card.Composer
	store     *eventstore.Store
	sessions  session.Store
	messenger Messenger
	selectTTL time.Duration
	admins    map[string]struct{}
	secrets   map[string]struct{}
	persist   func(key, value string) (string, error)
	limiter   *userRateLimiter
	now       func() time.Time
}

func New(composer *card.Composer, store *eventstore.Store, sessions session.Store, messenger Messenger, opts Options) (*Bot, error) {
	if composer == nil || store == nil || sessions == nil {
		return nil, errors.New("bot: composer, store and sessions are required")
	}
	if messenger == nil {
		return nil, errors.New("bot: messenger is nil")
	}
	b := &Bot{
		composer:  composer,
		store:     store,
		sessions:  sessions,
		messenger: messenger,
		selectTTL: opts.SelectTTL,
		admins:    toSet(opts.AdminUserIDs),
		secrets:   toSet(opts.SecretVars),
		persist:   opts.Persist,
	}
	if b.selectTTL <= 0 {
		b.selectTTL = DefaultSelectTTL
	}
	if len(b.secrets) == 0 {
		b.secrets = toSet(DefaultSecretVars)
	}
	limit, window := opts.RateLimit, opts.RateWindow
	if limit == 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = DefaultRateWindow
	}
	b.limiter = newUserRateLimiter(limit, window)
	b.now = time.Now
	return b, nil
}

// target is where replies to one message go.
type target struct {
	idType string
	id     string
}

func replyTarget(msg feishusdk.IncomingMessage) target {
	if msg.ChatID != "" {
		return target{idType: feishusdk.ReceiveIDChatID, id: msg.ChatID}
	}
	return target{idType: feishusdk.ReceiveIDOpenID, id: msg.SenderID}
}

// HandleMessage runs the command carried by a chat message.
func (b *Bot) HandleMessage(ctx context.Context, msg feishusdk.IncomingMessage) error {
	if msg.MsgType != feishusdk.MsgTypeText || msg.SenderID == "" {
		return nil
	}
	cmd := ParseCommand(msg.Text)
	to := replyTarget(msg)
	logger := log.With().Str("user_id", msg.SenderID).Str("message_id", msg.MessageID).Logger()

	if cmd.Kind != CmdUnknown && !b.limiter.allow(msg.SenderID, b.now()) {
		logger.Warn().Msg("bot: command throttled")
		return b.sendText(ctx, to, throttledText)
	}

	var err error
	switch cmd.Kind {
	case CmdRecord:
		if cmd.Arg == "" {
			err = b.openSelect(ctx, msg.SenderID, to)
		} else {
			err = b.openRecord(ctx, msg.SenderID, cmd.Arg, to)
		}
	case CmdQuery:
		err = b.openQuery(ctx, msg.SenderID, cmd.Arg, to)
	case CmdSelect:
		err = b.selectByIndex(ctx, msg.SenderID, cmd.Index, to)
	case CmdRotateSecret:
		err = b.rotateSecret(ctx, msg.SenderID, cmd, to)
	default:
		if msg.ChatType == "p2p" {
			err = b.sendText(ctx, to, helpText)
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("bot: command failed")
		_ = b.sendText(ctx, to, "处理失败，请稍后再试")
		return err
	}
	return nil
}

const throttledText = "操作太频繁，请稍后再试"

const helpText = "发送 r <日程名> 记录日程，r 查看最近日程，rs 查看全部日程"

func (b *Bot) openRecord(ctx context.Context, userID, name string, to target) error {
	c, err := b.composer.NewRecordCard(ctx, userID, name)
	if err != nil {
		return err
	}
	return b.sendCard(ctx, c, to)
}

func (b *Bot) openQuery(ctx context.Context, userID, category string, to target) error {
	c, err := b.composer.NewQueryCard(ctx, userID, category)
	if err != nil {
		return err
	}
	return b.sendCard(ctx, c, to)
}

// openSelect sends the numbered list of recent definitions and remembers it
// so that a bare digit can pick one.
func (b *Bot) openSelect(ctx context.Context, userID string, to target) error {
	defs := b.store.LoadDefinitionsOrDefault(ctx, userID)
	sorted := eventstore.SortedDefinitions(defs)
	if len(sorted) == 0 {
		return b.sendText(ctx, to, "还没有日程，发送 r <日程名> 创建第一个")
	}
	candidates := make([]string, 0, maxSelectCandidates)
	for _, def := range sorted {
		if len(candidates) == maxSelectCandidates {
			break
		}
		candidates = append(candidates, def.Name)
	}
	c, err := b.composer.NewSelectCard(ctx, userID, "回复数字或点击按钮记录", candidates)
	if err != nil {
		return err
	}
	sel := selectContext{Candidates: candidates, CardID: c.CardID}
	if err := session.SetJSON(ctx, b.sessions, session.SelectKey(userID), sel, b.selectTTL); err != nil {
		return err
	}
	return b.sendCard(ctx, c, to)
}

type selectContext struct {
	Candidates []string `json:"candidates"`
	CardID     string   `json:"card_id"`
}

func (b *Bot) selectByIndex(ctx context.Context, userID string, index int, to target) error {
	var sel selectContext
	found, err := session.GetJSON(ctx, b.sessions, session.SelectKey(userID), &sel)
	if err != nil {
		return err
	}
	if !found {
		return b.sendText(ctx, to, "选择已失效，请重新发送 r")
	}
	if index < 1 || index > len(sel.Candidates) {
		return b.sendText(ctx, to, "没有这个序号，请重新选择")
	}
	if err := b.sessions.Delete(ctx, session.SelectKey(userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("bot: clear select context failed")
	}
	return b.openRecord(ctx, userID, sel.Candidates[index-1], to)
}

func (b *Bot) sendCard(ctx context.Context, c *card.Card, to target) error {
	messageID, err := b.messenger.SendCard(ctx, to.idType, to.id, b.composer.Render(c))
	if err != nil {
		return errors.Wrap(err, "bot: send card")
	}
	return b.composer.BindMessage(ctx, c, messageID)
}

func (b *Bot) sendText(ctx context.Context, to target, text string) error {
	_, err := b.messenger.SendText(ctx, to.idType, to.id, text)
	return errors.Wrap(err, "bot: send text")
}

// HandleCardAction forwards a card callback to the composer.
func (b *Bot) HandleCardAction(ctx context.Context, action feishusdk.CardAction) (feishusdk.CardActionReply, error) {
	resp, err := b.composer.HandleAction(ctx, card.ActionEvent{
		UserID:     action.UserID,
		MessageID:  action.MessageID,
		ChatID:     action.ChatID,
		Value:      action.Value,
		InputValue: action.InputValue,
		Option:     action.Option,
	})
	reply := feishusdk.CardActionReply{Card: resp.Card}
	if resp.Toast != nil {
		reply.ToastType = resp.Toast.Type
		reply.ToastContent = resp.Toast.Content
	}
	return reply, err
}

// PushWeekly sends a generated weekly report to its user.
func (b *Bot) PushWeekly(ctx context.Context, userID string, report eventstore.WeeklyReport) error {
	c, err := b.composer.NewWeeklyCard(ctx, userID, report)
	if err != nil {
		return err
	}
	return b.sendCard(ctx, c, target{idType: feishusdk.ReceiveIDOpenID, id: userID})
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = struct{}{}
		}
	}
	return out
}
