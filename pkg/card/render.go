package card

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/routinebot/RoutineAgent/pkg/eventstore"
)

const pickerLayout = "2006-01-02 15:04"

// renderFunc renders the elements of one node. Sub nodes are rendered by
// the caller through the same table.
type renderFunc func(r *renderer, n Node) []Element

type renderer struct {
	card *Card
	loc  *time.Location
}

var renderers = map[Kind]renderFunc{
	KindRecord: renderRecord,
	KindQuery:  renderQuery,
	KindSelect: renderSelect,
	KindWeekly: renderWeekly,
}

// Render builds the complete card JSON of c.
func Render(c *Card, loc *time.Location) map[string]any {
	if loc == nil {
		loc = time.Local
	}
	r := &renderer{card: c, loc: loc}
	var elements []Element
	for level, n := range c.Chain() {
		fn, ok := renderers[n.Kind()]
		if !ok {
			continue
		}
		if level > 0 {
			elements = append(elements, Hr())
		}
		elements = append(elements, fn(r, n)...)
	}
	title, subtitle, template := r.header()
	return Document(title, subtitle, template, elements)
}

// RenderExpired is the terminal card shown when the session data is gone.
func RenderExpired() map[string]any {
	return Document("操作已失效", "", TemplateGrey, []Element{
		Markdown("这张卡片的数据已过期或已处理，请重新发起。"),
	})
}

func (r *renderer) header() (string, string, string) {
	c := r.card
	var title, template string
	switch root := c.Root.(type) {
	case *RecordNode:
		title = "记录 · " + root.Definition.Name
		if root.IsNew {
			title = "新事项 · " + root.Definition.Name
		}
		template = TemplateBlue
	case *QueryNode:
		title = "日程"
		template = TemplateViolet
	case *SelectNode:
		title = "快速记录"
		template = TemplateOrange
	case *WeeklyNode:
		title = "周报 · " + root.Report.WeekKey
		template = TemplateGreen
	default:
		title = "日程"
		template = TemplateGrey
	}
	switch c.State {
	case StateConfirmed:
		return title, "已" + ResultConfirmed, TemplateGreen
	case StateCancelled:
		return title, "已" + ResultCancelled, TemplateGrey
	}
	return title, "", template
}

func (r *renderer) terminal() bool {
	return r.card.Terminal()
}

func (r *renderer) value(n Node, action Action, extra ...string) map[string]any {
	return actionValue(r.card, action, n.Kind().ConfigKey(), extra...)
}

func (r *renderer) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(r.loc).Format(pickerLayout)
}

func renderRecord(r *renderer, n Node) []Element {
	node := n.(*RecordNode)
	def := node.Definition
	rec := node.Record

	if r.terminal() {
		if r.card.State == StateConfirmed {
			lines := []string{fmt.Sprintf("✅ 已记录 **%s**", def.Name)}
			lines = append(lines, recordSummary(r, node)...)
			return []Element{Markdown(strings.Join(lines, "\n"))}
		}
		return []Element{Markdown(fmt.Sprintf("已取消记录 **%s**", def.Name))}
	}

	info := []string{fmt.Sprintf("**%s** · %s", def.Name, def.Type.Label())}
	if def.Category != "" {
		info = append(info, "分类："+def.Category)
	}
	if def.Stats.LastRecordTime != nil {
		info = append(info, "上次记录："+r.formatTime(*def.Stats.LastRecordTime))
	}
	if def.Stats.Duration.Avg > 0 {
		info = append(info, fmt.Sprintf("近期平均耗时：%.0f 分钟", def.Stats.Duration.Avg))
	}
	if def.Stats.LastNote != "" {
		info = append(info, "上次备注："+def.Stats.LastNote)
	}
	elements := []Element{Markdown(strings.Join(info, "\n"))}

	if node.IsNew {
		typeOptions := make([]Option, 0, len(eventstore.EventTypes))
		for _, t := range eventstore.EventTypes {
			typeOptions = append(typeOptions, Option{Label: t.Label(), Value: string(t)})
		}
		elements = append(elements, SelectStatic("事项类型", typeOptions, string(def.Type), r.value(n, ActionUpdateRecordType)))
	}
	if len(node.Categories) > 0 {
		elements = append(elements, SelectStatic("分类", options(node.Categories), def.Category, r.value(n, ActionUpdateRecordCategory)))
	}
	if len(def.Properties.DegreeOptions) > 0 {
		elements = append(elements, SelectStatic("程度", options(def.Properties.DegreeOptions), rec.Degree, r.value(n, ActionUpdateRecordDegree)))
	}
	elements = append(elements, PickerDatetime("时间", r.formatTime(rec.Timestamp), r.value(n, ActionUpdateRecordTime, keyField, "start")))
	if def.Type == eventstore.EventOngoing {
		end := ""
		if rec.EndTime != nil {
			end = r.formatTime(*rec.EndTime)
		}
		elements = append(elements, PickerDatetime("结束时间", end, r.value(n, ActionUpdateRecordTime, keyField, "end")))
	}
	if def.Type != eventstore.EventStart {
		elements = append(elements, Input("duration", "耗时（分钟）", formatNumber(rec.DurationMinutes), r.value(n, ActionUpdateRecordDuration)))
	}
	if def.Properties.NeedProgress {
		placeholder := "进度"
		if def.Properties.ProgressUnit != "" {
			placeholder += "（" + def.Properties.ProgressUnit + "）"
		}
		elements = append(elements, Input("progress", placeholder, formatNumber(rec.ProgressValue), r.value(n, ActionUpdateRecordProgress)))
	}
	elements = append(elements, Input("note", "备注", rec.Note, r.value(n, ActionUpdateRecordNote)))

	buttons := []Element{
		Column(1, Button("确认", "primary_filled", r.value(n, ActionConfirmRecord))),
		Column(1, Button("取消", "danger", r.value(n, ActionCancelRecord))),
	}
	if r.card.Root != n {
		buttons = append(buttons, Column(1, Button("收起", "default", r.value(n, ActionCloseSubCard))))
	}
	return append(elements, ColumnSet(buttons...))
}

func recordSummary(r *renderer, node *RecordNode) []string {
	rec := node.Record
	var lines []string
	lines = append(lines, "时间："+r.formatTime(rec.Timestamp))
	if rec.Degree != "" {
		lines = append(lines, "程度："+rec.Degree)
	}
	if rec.DurationMinutes > 0 {
		lines = append(lines, fmt.Sprintf("耗时：%s 分钟", formatNumber(rec.DurationMinutes)))
	}
	if rec.ProgressValue != 0 {
		lines = append(lines, fmt.Sprintf("进度：%s%s", formatNumber(rec.ProgressValue), node.Definition.Properties.ProgressUnit))
	}
	if rec.Note != "" {
		lines = append(lines, "备注："+rec.Note)
	}
	if node.StoredRecordID != "" {
		lines = append(lines, "编号："+node.StoredRecordID)
	}
	return lines
}

const queryListLimit = 20

func renderQuery(r *renderer, n Node) []Element {
	node := n.(*QueryNode)
	visible := node.Visible()
	if r.terminal() {
		return []Element{Markdown(fmt.Sprintf("共 %d 个事项", len(visible)))}
	}
	filter := append([]Option{{Label: "全部", Value: ""}}, options(node.Categories)...)
	elements := []Element{
		SelectStatic("按分类筛选", filter, node.Category, r.value(n, ActionUpdateQueryCategory)),
	}
	if len(visible) == 0 {
		return append(elements, Markdown("还没有记录过的事项，发送 `r 事项名` 开始记录。"))
	}
	for i, ev := range visible {
		if i >= queryListLimit {
			elements = append(elements, Markdown(fmt.Sprintf("还有 %d 个事项未显示", len(visible)-queryListLimit)))
			break
		}
		line := fmt.Sprintf("**%s** · %s", ev.Name, categoryLabel(ev.Category))
		if ev.LastRecordTime != nil {
			line += " · 上次 " + ev.LastRecordTime.In(r.loc).Format("01-02 15:04")
		}
		if ev.AvgMinutes > 0 {
			line += fmt.Sprintf(" · 平均 %.0f 分钟", ev.AvgMinutes)
		}
		elements = append(elements, ColumnSet(
			Column(3, Markdown(line)),
			Column(1, Button("记录", "default", r.value(n, ActionQueryRecordEvent, keyEventName, ev.Name))),
		))
	}
	return elements
}

func renderSelect(r *renderer, n Node) []Element {
	node := n.(*SelectNode)
	if r.terminal() {
		return nil
	}
	prompt := node.Prompt
	if prompt == "" {
		prompt = "回复数字或点击按钮快速记录："
	}
	elements := []Element{Markdown(prompt)}
	var columns []Element
	for i, name := range node.Candidates {
		label := fmt.Sprintf("%d. %s", i+1, name)
		columns = append(columns, Column(1, Button(label, "default", r.value(n, ActionQuickSelectRecord, keyIndex, strconv.Itoa(i+1), keyEventName, name))))
		if len(columns) == 3 {
			elements = append(elements, ColumnSet(columns...))
			columns = nil
		}
	}
	if len(columns) > 0 {
		elements = append(elements, ColumnSet(columns...))
	}
	return elements
}

func renderWeekly(r *renderer, n Node) []Element {
	node := n.(*WeeklyNode)
	report := node.Report
	var elements []Element
	if report.Error != "" || report.Narrative.Empty() {
		elements = append(elements, Markdown("本周报告生成失败，已保存空白占位。"))
	} else {
		narrative := report.Narrative
		sections := []struct{ title, body string }{
			{"总结", narrative.Summary},
			{"时间分配", narrative.TimeAllocation},
			{"节律洞察", narrative.RhythmInsight},
			{"未记录时间", narrative.UnrecordedInsight},
			{"亮点", narrative.Highlights},
			{"风险", narrative.Risks},
		}
		for i, sec := range sections {
			if sec.body == "" {
				continue
			}
			if i == 0 {
				elements = append(elements, Markdown("**"+sec.title+"**\n"+sec.body))
				continue
			}
			elements = append(elements, CollapsiblePanel("**"+sec.title+"**", false, Markdown(sec.body)))
		}
		elements = append(elements, Markdown(fmt.Sprintf("报告质量：%d / 10", narrative.QualityScore)))
	}
	if report.MainColor != "" {
		elements = append(elements, Markdown("本周主色："+report.MainColor))
	}
	if len(report.Suggestions) == 0 {
		return elements
	}
	elements = append(elements, Hr(), Markdown("**行动建议**"))
	for _, s := range report.Suggestions {
		text := fmt.Sprintf("**%d. %s**\n%s", s.Rank, s.Title, s.Action)
		if s.Reason != "" {
			text += "\n<font color='grey'>" + s.Reason + "</font>"
		}
		var toggle Element
		switch {
		case r.terminal():
			toggle = DisabledButton(acceptLabel(s.Accepted))
		case s.Accepted:
			toggle = Button(acceptLabel(true), "primary", r.value(n, ActionToggleSuggestion, keySuggestionID, s.ID, keyWeekKey, report.WeekKey))
		default:
			toggle = Button(acceptLabel(false), "default", r.value(n, ActionToggleSuggestion, keySuggestionID, s.ID, keyWeekKey, report.WeekKey))
		}
		elements = append(elements, ColumnSet(Column(4, Markdown(text)), Column(1, toggle)))
	}
	return elements
}

func acceptLabel(accepted bool) string {
	if accepted {
		return "已采纳"
	}
	return "采纳"
}

func options(values []string) []Option {
	out := make([]Option, 0, len(values))
	for _, v := range values {
		out = append(out, Option{Label: v, Value: v})
	}
	return out
}

func categoryLabel(category string) string {
	if category == "" {
		return "未分类"
	}
	return category
}

func formatNumber(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
