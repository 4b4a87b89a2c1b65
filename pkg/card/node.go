package card

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
)

// MaxDepth bounds the chain of embedded sub cards.
const MaxDepth = 10

var (
	// ErrSessionExpired reports that the card's session data is gone.
	ErrSessionExpired = errors.New("card: session expired")
	ErrUnknownAction  = errors.New("card: unknown action")
	ErrDepthExceeded  = errors.New("card: sub card depth exceeded")
	errUnknownKind    = errors.New("card: unknown node kind")
)

// Kind tags the node variants.
type Kind string

const (
	KindRecord Kind = "record"
	KindQuery  Kind = "query"
	KindSelect Kind = "select"
	KindWeekly Kind = "weekly"
)

// ConfigKey returns the callback config key of the kind.
func (k Kind) ConfigKey() ConfigKey {
	switch k {
	case KindQuery:
		return ConfigRoutineQuery
	case KindSelect:
		return ConfigRoutineSelect
	case KindWeekly:
		return ConfigRoutineWeekly
	default:
		return ConfigRoutineRecord
	}
}

// State is the lifecycle of a card instance.
type State string

const (
	StateUnconfirmed State = "unconfirmed"
	StateConfirmed   State = "confirmed"
	StateCancelled   State = "cancelled"
)

const (
	ResultConfirmed = "确认"
	ResultCancelled = "取消"
)

// Node is one variant of card business data. A node may embed one child.
type Node interface {
	Kind() Kind
	Sub() Node
	SetSub(Node)
}

type subHolder struct {
	sub Node
}

func (h *subHolder) Sub() Node     { return h.sub }
func (h *subHolder) SetSub(n Node) { h.sub = n }

// RecordNode is the record confirmation form.
type RecordNode struct {
	subHolder
	Definition eventstore.EventDefinition `json:"definition"`
	Record     eventstore.EventRecord     `json:"record"`
	// IsNew marks a definition that is not persisted yet.
	IsNew      bool     `json:"is_new"`
	Categories []string `json:"categories,omitempty"`
	// StoredRecordID is set once the record is confirmed.
	StoredRecordID string `json:"stored_record_id,omitempty"`
}

func (n *RecordNode) Kind() Kind { return KindRecord }

// EventSummary is one row of the query list.
type EventSummary struct {
	Name           string               `json:"name"`
	Category       string               `json:"category"`
	Type           eventstore.EventType `json:"type"`
	RecordCount    int                  `json:"record_count"`
	LastRecordTime *time.Time           `json:"last_record_time,omitempty"`
	AvgMinutes     float64              `json:"avg_minutes,omitempty"`
}

// QueryNode lists the user's definitions, optionally filtered by category.
type QueryNode struct {
	subHolder
	Category   string         `json:"category,omitempty"`
	Categories []string       `json:"categories,omitempty"`
	Events     []EventSummary `json:"events"`
}

func (n *QueryNode) Kind() Kind { return KindQuery }

// Visible returns the events matching the current filter.
func (n *QueryNode) Visible() []EventSummary {
	if n.Category == "" {
		return n.Events
	}
	out := make([]EventSummary, 0, len(n.Events))
	for _, ev := range n.Events {
		if ev.Category == n.Category {
			out = append(out, ev)
		}
	}
	return out
}

// SelectNode is a numbered quick-select list.
type SelectNode struct {
	subHolder
	Prompt     string   `json:"prompt,omitempty"`
	Candidates []string `json:"candidates"`
}

func (n *SelectNode) Kind() Kind { return KindSelect }

// WeeklyNode shows a weekly report with suggestion toggles.
type WeeklyNode struct {
	subHolder
	Report eventstore.WeeklyReport `json:"report"`
}

func (n *WeeklyNode) Kind() Kind { return KindWeekly }

// Card is one interactive card instance keyed by (UserID, CardID).
type Card struct {
	UserID    string
	CardID    string
	MessageID string
	State     State
	Result    string
	Root      Node
}

// Terminal reports whether the card accepts no more actions.
func (c *Card) Terminal() bool {
	return c.State == StateConfirmed || c.State == StateCancelled
}

// Chain returns the root followed by its embedded sub nodes.
func (c *Card) Chain() []Node {
	var out []Node
	for n := c.Root; n != nil && len(out) < MaxDepth; n = n.Sub() {
		out = append(out, n)
	}
	return out
}

// Record returns the deepest record form of the card.
func (c *Card) Record() (*RecordNode, bool) {
	chain := c.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		if rec, ok := chain[i].(*RecordNode); ok {
			return rec, true
		}
	}
	return nil, false
}

// Find returns the deepest node of kind k.
func (c *Card) Find(k Kind) (Node, bool) {
	chain := c.Chain()
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].Kind() == k {
			return chain[i], true
		}
	}
	return nil, false
}

// Attach embeds child below parent, replacing any previous child. parent
// must be part of the card's chain.
func (c *Card) Attach(parent, child Node) error {
	level := 0
	for i, n := range c.Chain() {
		if n == parent {
			level = i + 1
			break
		}
	}
	if level == 0 {
		return errors.New("card: parent node is not part of the card")
	}
	if level+depth(child) > MaxDepth {
		return ErrDepthExceeded
	}
	parent.SetSub(child)
	return nil
}

func depth(n Node) int {
	d := 0
	for ; n != nil; n = n.Sub() {
		d++
		if d > MaxDepth {
			break
		}
	}
	return d
}

// Detach removes the deepest sub card. It reports false when the card has no
// sub card.
func (c *Card) Detach() bool {
	chain := c.Chain()
	if len(chain) < 2 {
		return false
	}
	chain[len(chain)-2].SetSub(nil)
	return true
}

type wireNode struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
	Sub  *wireNode       `json:"sub,omitempty"`
}

type wireCard struct {
	UserID    string    `json:"user_id"`
	CardID    string    `json:"card_id"`
	MessageID string    `json:"message_id,omitempty"`
	State     State     `json:"state"`
	Result    string    `json:"result,omitempty"`
	Node      *wireNode `json:"node"`
}

// Encode serializes a card for the session store.
func Encode(c *Card) ([]byte, error) {
	node, err := encodeNode(c.Root, 1)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(wireCard{
		UserID:    c.UserID,
		CardID:    c.CardID,
		MessageID: c.MessageID,
		State:     c.State,
		Result:    c.Result,
		Node:      node,
	})
	return raw, errors.Wrap(err, "card: encode failed")
}

func encodeNode(n Node, level int) (*wireNode, error) {
	if n == nil {
		return nil, nil
	}
	if level > MaxDepth {
		return nil, ErrDepthExceeded
	}
	data, err := json.Marshal(n)
	if err != nil {
		return nil, errors.Wrapf(err, "card: encode %s node failed", n.Kind())
	}
	sub, err := encodeNode(n.Sub(), level+1)
	if err != nil {
		return nil, err
	}
	return &wireNode{Kind: n.Kind(), Data: data, Sub: sub}, nil
}

// Decode restores a card written by Encode.
func Decode(raw []byte) (*Card, error) {
	var wc wireCard
	if err := json.Unmarshal(raw, &wc); err != nil {
		return nil, errors.Wrap(err, "card: decode failed")
	}
	root, err := decodeNode(wc.Node, 1)
	if err != nil {
		return nil, err
	}
	return &Card{
		UserID:    wc.UserID,
		CardID:    wc.CardID,
		MessageID: wc.MessageID,
		State:     wc.State,
		Result:    wc.Result,
		Root:      root,
	}, nil
}

func decodeNode(w *wireNode, level int) (Node, error) {
	if w == nil {
		return nil, nil
	}
	if level > MaxDepth {
		return nil, ErrDepthExceeded
	}
	var n Node
	switch w.Kind {
	case KindRecord:
		n = &RecordNode{}
	case KindQuery:
		n = &QueryNode{}
	case KindSelect:
		n = &SelectNode{}
	case KindWeekly:
		n = &WeeklyNode{}
	default:
		return nil, errors.Wrapf(errUnknownKind, "kind %q", w.Kind)
	}
	if err := json.Unmarshal(w.Data, n); err != nil {
		return nil, errors.Wrapf(err, "card: decode %s node failed", w.Kind)
	}
	sub, err := decodeNode(w.Sub, level+1)
	if err != nil {
		return nil, err
	}
	n.SetSub(sub)
	return n, nil
}
