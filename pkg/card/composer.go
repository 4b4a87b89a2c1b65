// Package card composes the interactive routine cards: typed card data kept
// in a session store, a render table keyed by node kind and an action table
// keyed by callback name.
package card

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
	"github.com/routinebot/RoutineAgent/pkg/session"
)

// DefaultSessionTTL keeps card data for a day.
const DefaultSessionTTL = 24 * time.Hour

// Options configure a Composer.
type Options struct {
	SessionTTL time.Duration
	// DegreeOptions seed the degree choices of new definitions.
	DegreeOptions []string
	Location      *time.Location
	NewID         func() string
}

// Composer owns the card state machine.
type Composer struct {
	store    *eventstore.Store
	sessions session.Store
	ttl      time.Duration
	degrees  []string
	loc      *time.Location
	newID    func() string
	actions  map[Action]actionHandler
}

// NewComposer wires the action table.
func NewComposer(store *eventstore.Store, sessions session.Store, opts Options) (*Composer, error) {
	if store == nil {
		return nil, errors.New("card: event store is nil")
	}
	if sessions == nil {
		return nil, errors.New("card: session store is nil")
	}
	c := &Composer{
		store:    store,
		sessions: sessions,
		ttl:      opts.SessionTTL,
		degrees:  append([]string(nil), opts.DegreeOptions...),
		loc:      opts.Location,
		newID:    opts.NewID,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultSessionTTL
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.NewString() }
	}
	c.actions = c.actionTable()
	return c, nil
}

// Location is the time zone cards render in.
func (c *Composer) Location() *time.Location { return c.loc }

func (c *Composer) newCard(userID string, root Node) *Card {
	return &Card{
		UserID: userID,
		CardID: c.newID(),
		State:  StateUnconfirmed,
		Root:   root,
	}
}

// Save writes the card to the session store.
func (c *Composer) Save(ctx context.Context, card *Card) error {
	raw, err := Encode(card)
	if err != nil {
		return err
	}
	return c.sessions.Set(ctx, session.CardKey(card.UserID, card.CardID), raw, c.ttl)
}

// Load reads a card from the session store. It returns ErrSessionExpired
// when the data is gone.
func (c *Composer) Load(ctx context.Context, userID, cardID string) (*Card, error) {
	raw, found, err := c.sessions.Get(ctx, session.CardKey(userID, cardID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionExpired
	}
	return Decode(raw)
}

// take removes the card from the session store so that only one caller can
// finish it.
func (c *Composer) take(ctx context.Context, userID, cardID string) (*Card, error) {
	raw, found, err := c.sessions.Take(ctx, session.CardKey(userID, cardID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSessionExpired
	}
	return Decode(raw)
}

// Render renders card in the composer's time zone.
func (c *Composer) Render(card *Card) map[string]any {
	return Render(card, c.loc)
}

// BindMessage records the message id a card was sent as.
func (c *Composer) BindMessage(ctx context.Context, card *Card, messageID string) error {
	card.MessageID = messageID
	return c.Save(ctx, card)
}

// NewRecordCard opens a record form for eventName. Unknown names get an
// unsaved instant definition that is persisted on the first confirm.
func (c *Composer) NewRecordCard(ctx context.Context, userID, eventName string) (*Card, error) {
	node, err := c.recordNode(ctx, userID, eventName)
	if err != nil {
		return nil, err
	}
	card := c.newCard(userID, node)
	if err := c.Save(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (c *Composer) recordNode(ctx context.Context, userID, eventName string) (*RecordNode, error) {
	if eventName == "" {
		return nil, errors.New("card: event name is empty")
	}
	defs := c.store.LoadDefinitionsOrDefault(ctx, userID)
	now := c.store.Now()
	node := &RecordNode{Categories: append([]string(nil), defs.Categories...)}
	if existing, ok := defs.Definitions[eventName]; ok {
		node.Definition = *existing
	} else {
		node.Definition = eventstore.NewDefinition(eventName, now)
		node.Definition.Properties.DegreeOptions = append([]string(nil), c.degrees...)
		node.IsNew = true
	}
	node.Record = eventstore.EventRecord{
		EventName: eventName,
		Timestamp: now,
		Degree:    node.Definition.Properties.DefaultDegree,
	}
	return node, nil
}

// NewQueryCard opens the definition list, filtered by category when given.
func (c *Composer) NewQueryCard(ctx context.Context, userID, category string) (*Card, error) {
	defs := c.store.LoadDefinitionsOrDefault(ctx, userID)
	node := &QueryNode{Category: category, Categories: append([]string(nil), defs.Categories...)}
	for _, def := range eventstore.SortedDefinitions(defs) {
		node.Events = append(node.Events, EventSummary{
			Name:           def.Name,
			Category:       def.Category,
			Type:           def.Type,
			RecordCount:    def.Stats.RecordCount,
			LastRecordTime: def.Stats.LastRecordTime,
			AvgMinutes:     def.Stats.Duration.Avg,
		})
	}
	card := c.newCard(userID, node)
	if err := c.Save(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// NewSelectCard opens a numbered quick-select list of candidates.
func (c *Composer) NewSelectCard(ctx context.Context, userID, prompt string, candidates []string) (*Card, error) {
	card := c.newCard(userID, &SelectNode{Prompt: prompt, Candidates: append([]string(nil), candidates...)})
	if err := c.Save(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// NewWeeklyCard wraps a generated weekly report.
func (c *Composer) NewWeeklyCard(ctx context.Context, userID string, report eventstore.WeeklyReport) (*Card, error) {
	card := c.newCard(userID, &WeeklyNode{Report: report})
	if err := c.Save(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// HandleAction runs the handler of a callback and returns the toast and the
// re-rendered card. Missing session data yields an expired card and an
// error toast, never an error.
func (c *Composer) HandleAction(ctx context.Context, ev ActionEvent) (Response, error) {
	payload, err := ParsePayload(ev.Value)
	if err != nil {
		return Response{Toast: toast(ToastError, "无法识别的操作")}, err
	}
	handler, ok := c.actions[payload.Action]
	if !ok {
		return Response{Toast: toast(ToastError, "无法识别的操作")}, errors.Wrapf(ErrUnknownAction, "action %q", payload.Action)
	}
	logger := log.With().
		Str("user_id", ev.UserID).
		Str("card_id", payload.CardID).
		Str("action", string(payload.Action)).
		Logger()

	resp, err := handler(ctx, actionContext{event: ev, payload: payload})
	switch {
	case errors.Is(err, ErrSessionExpired):
		logger.Warn().Msg("card: session data missing")
		return expiredResponse(), nil
	case err != nil:
		logger.Error().Err(err).Msg("card: action failed")
		return resp, err
	}
	logger.Debug().Msg("card: action handled")
	return resp, nil
}

func expiredResponse() Response {
	return Response{Toast: toast(ToastError, "操作已失效"), Card: RenderExpired()}
}
