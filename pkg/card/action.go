package card

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Action names a card callback.
type Action string

const (
	ActionConfirmRecord        Action = "confirm_record"
	ActionCancelRecord         Action = "cancel_record"
	ActionUpdateRecordDegree   Action = "update_record_degree"
	ActionUpdateRecordNote     Action = "update_record_note"
	ActionUpdateRecordDuration Action = "update_record_duration"
	ActionUpdateRecordProgress Action = "update_record_progress"
	ActionUpdateRecordTime     Action = "update_record_time"
	ActionUpdateRecordType     Action = "update_record_type"
	ActionUpdateRecordCategory Action = "update_record_category"
	ActionUpdateQueryCategory  Action = "update_query_category"
	ActionQueryRecordEvent     Action = "query_record_event"
	ActionQuickSelectRecord    Action = "quick_select_record"
	ActionCloseSubCard         Action = "close_sub_card"
	ActionToggleSuggestion     Action = "toggle_suggestion"
)

// ConfigKey identifies the card family an action belongs to.
type ConfigKey string

const (
	ConfigRoutineRecord ConfigKey = "routine_record"
	ConfigRoutineQuery  ConfigKey = "routine_query"
	ConfigRoutineSelect ConfigKey = "routine_select"
	ConfigRoutineWeekly ConfigKey = "routine_weekly"
)

// Value keys carried by every interactive element.
const (
	keyAction       = "card_action"
	keyConfigKey    = "card_config_key"
	keyCardID       = "card_id"
	keyBuildMethod  = "container_build_method"
	keyEventName    = "event_name"
	keyIndex        = "index"
	keyField        = "field"
	keySuggestionID = "suggestion_id"
	keyWeekKey      = "week_key"
)

// Payload is the decoded value of a callback.
type Payload struct {
	Action               Action
	ConfigKey            ConfigKey
	CardID               string
	ContainerBuildMethod string
	Extra                map[string]string
}

// Get returns an extra value.
func (p Payload) Get(key string) string {
	return p.Extra[key]
}

// ParsePayload decodes a callback value map. Non-string extras are
// stringified.
func ParsePayload(value map[string]any) (Payload, error) {
	p := Payload{Extra: map[string]string{}}
	for k, v := range value {
		s := stringify(v)
		switch k {
		case keyAction:
			p.Action = Action(s)
		case keyConfigKey:
			p.ConfigKey = ConfigKey(s)
		case keyCardID:
			p.CardID = s
		case keyBuildMethod:
			p.ContainerBuildMethod = s
		default:
			p.Extra[k] = s
		}
	}
	if p.Action == "" {
		return p, errors.Errorf("card: callback value has no %s", keyAction)
	}
	return p, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// actionValue builds the callback value of an interactive element.
func actionValue(c *Card, action Action, key ConfigKey, extra ...string) map[string]any {
	v := map[string]any{
		keyAction:    string(action),
		keyConfigKey: string(key),
		keyCardID:    c.CardID,
	}
	if c.Root != nil {
		v[keyBuildMethod] = string(c.Root.Kind())
	}
	for i := 0; i+1 < len(extra); i += 2 {
		v[extra[i]] = extra[i+1]
	}
	return v
}

// ActionEvent is a card callback stripped of transport details.
type ActionEvent struct {
	UserID    string
	MessageID string
	ChatID    string
	Value     map[string]any
	// InputValue carries the text of input elements.
	InputValue string
	// Option carries select and picker choices.
	Option string
}

// Input returns the submitted text or choice of the event.
func (e ActionEvent) Input() string {
	if s := strings.TrimSpace(e.Option); s != "" {
		return s
	}
	return strings.TrimSpace(e.InputValue)
}

// Toast types.
const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastInfo    = "info"
	ToastWarning = "warning"
)

// Toast is the transient message shown after a callback.
type Toast struct {
	Type    string
	Content string
}

// Response answers a callback with an optional toast and the re-rendered
// card.
type Response struct {
	Toast *Toast
	Card  map[string]any
}

func toast(kind, content string) *Toast {
	return &Toast{Type: kind, Content: content}
}
