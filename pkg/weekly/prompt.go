package weekly

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/routinebot/RoutineAgent/pkg/eventstore"
)

const systemInstruction = `你是一位温和而敏锐的个人作息分析师。根据用户上一周的原子时间线和统计数据，
写出结构化的周报：总结、时间分配、节律洞察、未记录时间的解读、亮点与风险，并给出恰好 5 条按优先级排序的行动建议。
参考上周报告保持连续性，参考历史建议的采纳情况避免重复推荐已被拒绝的方向。只输出符合 schema 的 JSON。`

// promptInput gathers the sections of the user prompt.
type promptInput struct {
	WeekKey     string
	AtomicCSV   string
	SummaryCSV  string
	ColorPrompt string
	Previous    *eventstore.WeeklyReport
	History     []historyItem
}

type previousSuggestion struct {
	Rank   int    `json:"rank"`
	Title  string `json:"title"`
	Action string `json:"action"`
	Reason string `json:"reason"`
}

type previousReport struct {
	WeekKey     string                     `json:"week_key"`
	Narrative   eventstore.WeeklyNarrative `json:"narrative"`
	Suggestions []previousSuggestion       `json:"strategic_action_suggestions"`
}

type historyItem struct {
	WeekKey  string `json:"week_key"`
	Title    string `json:"title"`
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
}

// stripFeedback drops ids and acceptance flags from a stored report.
func stripFeedback(report *eventstore.WeeklyReport) *previousReport {
	if report == nil {
		return nil
	}
	out := &previousReport{WeekKey: report.WeekKey, Narrative: report.Narrative}
	for _, s := range report.Suggestions {
		out.Suggestions = append(out.Suggestions, previousSuggestion{
			Rank:   s.Rank,
			Title:  s.Title,
			Action: s.Action,
			Reason: s.Reason,
		})
	}
	return out
}

// suggestionHistory flattens every stored suggestion in week order.
func suggestionHistory(doc *eventstore.WeeklyReportsDoc, before string) []historyItem {
	if doc == nil {
		return nil
	}
	var out []historyItem
	for _, key := range doc.OrderedWeekKeys() {
		if before != "" && key >= before {
			continue
		}
		for _, s := range doc.Reports[key].Suggestions {
			out = append(out, historyItem{WeekKey: key, Title: s.Title, Action: s.Action, Accepted: s.Accepted})
		}
	}
	return out
}

func buildPrompt(in promptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 周报 %s\n\n", in.WeekKey)
	b.WriteString("## 原子时间线（CSV）\n")
	b.WriteString(in.AtomicCSV)
	b.WriteString("\n## 汇总统计（CSV）\n")
	b.WriteString(in.SummaryCSV)
	if in.ColorPrompt != "" {
		b.WriteString("\n## 本周色彩\n")
		b.WriteString(in.ColorPrompt)
		b.WriteString("\n")
	}
	b.WriteString("\n## 上周报告\n")
	if prev := stripFeedback(in.Previous); prev != nil {
		raw, _ := json.MarshalIndent(prev, "", "  ")
		b.Write(raw)
	} else {
		b.WriteString("无")
	}
	b.WriteString("\n\n## 历史建议采纳情况\n")
	if len(in.History) == 0 {
		b.WriteString("无")
	} else {
		raw, _ := json.MarshalIndent(in.History, "", "  ")
		b.Write(raw)
	}
	b.WriteString("\n")
	return b.String()
}
