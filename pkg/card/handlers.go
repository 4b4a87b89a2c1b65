package card

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/routinebot/RoutineAgent/pkg/eventstore"
)

type actionContext struct {
	event   ActionEvent
	payload Payload
}

func (a actionContext) userID() string { return a.event.UserID }
func (a actionContext) cardID() string { return a.payload.CardID }

type actionHandler func(ctx context.Context, a actionContext) (Response, error)

func (c *Composer) actionTable() map[Action]actionHandler {
	return map[Action]actionHandler{
		ActionConfirmRecord:        c.confirmRecord,
		ActionCancelRecord:         c.cancelRecord,
		ActionUpdateRecordDegree:   c.updateRecord(setDegree),
		ActionUpdateRecordNote:     c.updateRecord(setNote),
		ActionUpdateRecordDuration: c.updateRecord(setDuration),
		ActionUpdateRecordProgress: c.updateRecord(setProgress),
		ActionUpdateRecordTime:     c.updateRecord(c.setTime),
		ActionUpdateRecordType:     c.updateRecord(setType),
		ActionUpdateRecordCategory: c.updateRecord(setCategory),
		ActionUpdateQueryCategory:  c.updateQueryCategory,
		ActionQueryRecordEvent:     c.openSubRecord(KindQuery),
		ActionQuickSelectRecord:    c.openSubRecord(KindSelect),
		ActionCloseSubCard:         c.closeSubCard,
		ActionToggleSuggestion:     c.toggleSuggestion,
	}
}

// mutate loads the card, applies fn and saves and re-renders it. A non-nil
// toast from fn is returned without saving.
func (c *Composer) mutate(ctx context.Context, a actionContext, fn func(card *Card) (*Toast, error)) (Response, error) {
	card, err := c.Load(ctx, a.userID(), a.cardID())
	if err != nil {
		return Response{}, err
	}
	if card.Terminal() {
		return Response{Toast: toast(ToastError, "操作已失效"), Card: c.Render(card)}, nil
	}
	if t, err := fn(card); err != nil || t != nil {
		return Response{Toast: t, Card: c.Render(card)}, err
	}
	if err := c.Save(ctx, card); err != nil {
		return Response{Toast: toast(ToastError, "保存失败，请稍后再试")}, err
	}
	return Response{Card: c.Render(card)}, nil
}

func (c *Composer) confirmRecord(ctx context.Context, a actionContext) (Response, error) {
	card, err := c.take(ctx, a.userID(), a.cardID())
	if err != nil {
		return Response{}, err
	}
	node, ok := card.Record()
	if !ok || card.Terminal() {
		return expiredResponse(), nil
	}
	if msg := validateRecord(node); msg != "" {
		return c.restore(ctx, card, toast(ToastError, msg), nil)
	}
	stored, err := c.store.ConfirmRecord(ctx, card.UserID, node.Definition, node.Record)
	if err != nil {
		return c.restore(ctx, card, toast(ToastError, "记录保存失败，请稍后再试"), err)
	}
	node.Record = stored
	node.StoredRecordID = stored.RecordID
	node.IsNew = false
	card.State = StateConfirmed
	card.Result = ResultConfirmed
	return Response{
		Toast: toast(ToastSuccess, fmt.Sprintf("已记录 %s", node.Definition.Name)),
		Card:  c.Render(card),
	}, nil
}

// restore puts a taken card back after a failed confirm.
func (c *Composer) restore(ctx context.Context, card *Card, t *Toast, cause error) (Response, error) {
	if err := c.Save(ctx, card); err != nil && cause == nil {
		cause = err
	}
	return Response{Toast: t, Card: c.Render(card)}, cause
}

func validateRecord(node *RecordNode) string {
	rec := node.Record
	switch node.Definition.Type {
	case eventstore.EventOngoing:
		if _, ok := rec.End(); !ok {
			return "长期持续事项需要填写结束时间或耗时"
		}
	case eventstore.EventEnd:
		if node.Definition.Properties.RelatedStartEvent == "" && rec.DurationMinutes <= 0 {
			return "结束事项需要关联开始事项或填写耗时"
		}
	}
	if rec.EndTime != nil && !rec.EndTime.After(rec.Timestamp) {
		return "结束时间必须晚于开始时间"
	}
	return ""
}

func (c *Composer) cancelRecord(ctx context.Context, a actionContext) (Response, error) {
	card, err := c.take(ctx, a.userID(), a.cardID())
	if err != nil {
		return Response{}, err
	}
	card.State = StateCancelled
	card.Result = ResultCancelled
	return Response{Toast: toast(ToastInfo, "已取消"), Card: c.Render(card)}, nil
}

type recordSetter func(node *RecordNode, input, field string) string

func (c *Composer) updateRecord(set recordSetter) actionHandler {
	return func(ctx context.Context, a actionContext) (Response, error) {
		input := a.event.Input()
		return c.mutate(ctx, a, func(card *Card) (*Toast, error) {
			node, ok := card.Record()
			if !ok {
				return nil, ErrSessionExpired
			}
			if msg := set(node, input, a.payload.Get(keyField)); msg != "" {
				return toast(ToastError, msg), nil
			}
			return nil, nil
		})
	}
}

func setDegree(node *RecordNode, input, _ string) string {
	node.Record.Degree = input
	return ""
}

func setNote(node *RecordNode, input, _ string) string {
	node.Record.Note = input
	return ""
}

func setDuration(node *RecordNode, input, _ string) string {
	if input == "" {
		node.Record.DurationMinutes = 0
		return ""
	}
	v, err := strconv.ParseFloat(input, 64)
	if err != nil || v < 0 {
		return "耗时需要是非负数字（分钟）"
	}
	node.Record.DurationMinutes = v
	return ""
}

func setProgress(node *RecordNode, input, _ string) string {
	if input == "" {
		node.Record.ProgressValue = 0
		return ""
	}
	v, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return "进度需要是数字"
	}
	node.Record.ProgressValue = v
	return ""
}

func (c *Composer) setTime(node *RecordNode, input, field string) string {
	t, err := ParseTime(input, c.loc)
	if err != nil {
		return "无法识别的时间"
	}
	if field == "end" {
		node.Record.EndTime = &t
		return ""
	}
	node.Record.Timestamp = t
	return ""
}

func setType(node *RecordNode, input, _ string) string {
	t := eventstore.EventType(input)
	if !t.Valid() {
		return "无效的事项类型"
	}
	node.Definition.Type = t
	if t != eventstore.EventOngoing {
		node.Record.EndTime = nil
	}
	return ""
}

func setCategory(node *RecordNode, input, _ string) string {
	node.Definition.Category = input
	return ""
}

var timeLayouts = []string{
	"2006-01-02 15:04 -0700",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts the picker formats and plain date-times in loc.
func ParseTime(input string, loc *time.Location) (time.Time, error) {
	input = strings.TrimSpace(input)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, input, loc); err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(input, 10, 64); err == nil && ms > 1e11 {
		return time.UnixMilli(ms).In(loc), nil
	}
	return time.Time{}, errors.Errorf("card: unrecognized time %q", input)
}

func (c *Composer) updateQueryCategory(ctx context.Context, a actionContext) (Response, error) {
	category := a.event.Input()
	return c.mutate(ctx, a, func(card *Card) (*Toast, error) {
		n, ok := card.Find(KindQuery)
		if !ok {
			return nil, ErrSessionExpired
		}
		n.(*QueryNode).Category = category
		return nil, nil
	})
}

// openSubRecord embeds a record form below the node of kind parent.
func (c *Composer) openSubRecord(parent Kind) actionHandler {
	return func(ctx context.Context, a actionContext) (Response, error) {
		name := a.payload.Get(keyEventName)
		return c.mutate(ctx, a, func(card *Card) (*Toast, error) {
			n, ok := card.Find(parent)
			if !ok {
				return nil, ErrSessionExpired
			}
			if sel, isSelect := n.(*SelectNode); isSelect && name == "" {
				idx, err := strconv.Atoi(a.payload.Get(keyIndex))
				if err != nil || idx < 1 || idx > len(sel.Candidates) {
					return toast(ToastError, "无效的序号"), nil
				}
				name = sel.Candidates[idx-1]
			}
			if name == "" {
				return toast(ToastError, "缺少事项名称"), nil
			}
			rec, err := c.recordNode(ctx, card.UserID, name)
			if err != nil {
				return nil, err
			}
			if err := card.Attach(n, rec); err != nil {
				return toast(ToastError, "卡片层级过深"), nil
			}
			return nil, nil
		})
	}
}

func (c *Composer) closeSubCard(ctx context.Context, a actionContext) (Response, error) {
	return c.mutate(ctx, a, func(card *Card) (*Toast, error) {
		if !card.Detach() {
			return toast(ToastInfo, "没有可收起的内容"), nil
		}
		return nil, nil
	})
}

// toggleSuggestion flips a suggestion's stored acceptance. The report is
// reloaded from the event store when the card session is gone.
func (c *Composer) toggleSuggestion(ctx context.Context, a actionContext) (Response, error) {
	suggestionID := a.payload.Get(keySuggestionID)
	weekKey := a.payload.Get(keyWeekKey)

	card, err := c.Load(ctx, a.userID(), a.cardID())
	if errors.Is(err, ErrSessionExpired) && weekKey != "" {
		reports, loadErr := c.store.LoadWeeklyReports(ctx, a.userID())
		if loadErr != nil {
			return Response{}, loadErr
		}
		report, ok := reports.Reports[weekKey]
		if !ok {
			return Response{}, ErrSessionExpired
		}
		card = &Card{UserID: a.userID(), CardID: a.cardID(), State: StateUnconfirmed, Root: &WeeklyNode{Report: *report}}
		err = nil
	}
	if err != nil {
		return Response{}, err
	}
	n, ok := card.Find(KindWeekly)
	if !ok {
		return Response{}, ErrSessionExpired
	}
	node := n.(*WeeklyNode)
	if weekKey == "" {
		weekKey = node.Report.WeekKey
	}
	report, accepted, err := c.store.ToggleSuggestion(ctx, card.UserID, weekKey, suggestionID)
	if errors.Is(err, eventstore.ErrSuggestionNotFound) {
		return Response{Toast: toast(ToastError, "建议不存在"), Card: c.Render(card)}, nil
	}
	if err != nil {
		return Response{Toast: toast(ToastError, "保存失败，请稍后再试"), Card: c.Render(card)}, err
	}
	node.Report = *report
	if err := c.Save(ctx, card); err != nil {
		return Response{Card: c.Render(card)}, err
	}
	msg := "已取消采纳"
	if accepted {
		msg = "已采纳"
	}
	return Response{Toast: toast(ToastSuccess, msg), Card: c.Render(card)}, nil
}
