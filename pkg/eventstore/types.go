package eventstore

import (
	"time"
)

// EventType controls how a record of an event occupies time.
type EventType string

const (
	EventInstant EventType = "instant"
	EventStart   EventType = "start"
	EventEnd     EventType = "end"
	EventOngoing EventType = "ongoing"
	EventFuture  EventType = "future"
)

// EventTypes lists the selectable event types in display order.
var EventTypes = []EventType{EventInstant, EventStart, EventEnd, EventOngoing, EventFuture}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventInstant, EventStart, EventEnd, EventOngoing, EventFuture:
		return true
	default:
		return false
	}
}

// Label returns the user facing name of the type.
func (t EventType) Label() string {
	switch t {
	case EventInstant:
		return "瞬间完成"
	case EventStart:
		return "开始事项"
	case EventEnd:
		return "结束事项"
	case EventOngoing:
		return "长期持续"
	case EventFuture:
		return "未来事项"
	default:
		return string(t)
	}
}

// CheckCycle is the period after which target counters reset.
type CheckCycle string

const (
	CycleNone    CheckCycle = ""
	CycleDay     CheckCycle = "day"
	CycleWeek    CheckCycle = "week"
	CycleMonth   CheckCycle = "month"
	CycleQuarter CheckCycle = "quarter"
	CycleYear    CheckCycle = "year"
)

// Start returns the first day of the cycle containing t, in t's location.
func (c CheckCycle) Start(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch c {
	case CycleDay:
		return day
	case CycleWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case CycleMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case CycleQuarter:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
	case CycleYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Time{}
	}
}

// IntervalType selects which average interval is displayed for an event.
type IntervalType string

const (
	IntervalDegree IntervalType = "degree"
	IntervalEvent  IntervalType = "event"
	IntervalIgnore IntervalType = "ignore"
)

// TargetType describes what a check cycle target measures.
type TargetType string

const (
	TargetNone     TargetType = ""
	TargetCount    TargetType = "count"
	TargetDuration TargetType = "duration"
)

// Properties hold the user configurable part of a definition.
type Properties struct {
	DegreeOptions     []string     `json:"degree_options,omitempty"`
	DefaultDegree     string       `json:"default_degree,omitempty"`
	TargetType        TargetType   `json:"target_type,omitempty"`
	TargetValue       float64      `json:"target_value,omitempty"`
	CheckCycle        CheckCycle   `json:"check_cycle,omitempty"`
	IntervalType      IntervalType `json:"interval_type,omitempty"`
	RelatedStartEvent string       `json:"related_start_event,omitempty"`
	NeedProgress      bool         `json:"need_progress,omitempty"`
	ProgressUnit      string       `json:"progress_unit,omitempty"`
}

// EffectiveIntervalType defaults an unset interval type to degree.
func (p Properties) EffectiveIntervalType() IntervalType {
	if p.IntervalType == "" {
		return IntervalDegree
	}
	return p.IntervalType
}

// RecentDurationLimit caps the rolling duration window.
const RecentDurationLimit = 10

type DurationStats struct {
	RecentValues []float64 `json:"recent_values,omitempty"`
	Avg          float64   `json:"avg,omitempty"`
}

type Stats struct {
	RecordCount       int           `json:"record_count"`
	CycleCount        int           `json:"cycle_count"`
	CycleDuration     float64       `json:"cycle_duration,omitempty"`
	LastCycleStart    string        `json:"last_cycle_start,omitempty"`
	Duration          DurationStats `json:"duration"`
	LastProgressValue float64       `json:"last_progress_value,omitempty"`
	LastNote          string        `json:"last_note,omitempty"`
	LastRecordTime    *time.Time    `json:"last_record_time,omitempty"`
	LastRefreshDate   string        `json:"last_refresh_date,omitempty"`
}

// EventDefinition is the persistent template of a tracked activity.
type EventDefinition struct {
	Name        string     `json:"name"`
	Type        EventType  `json:"type"`
	Category    string     `json:"category"`
	Properties  Properties `json:"properties"`
	Stats       Stats      `json:"stats"`
	CreatedTime time.Time  `json:"created_time"`
	LastUpdated time.Time  `json:"last_updated"`
}

// NewDefinition returns an instant definition with default properties.
func NewDefinition(name string, now time.Time) EventDefinition {
	return EventDefinition{
		Name:        name,
		Type:        EventInstant,
		Properties:  Properties{IntervalType: IntervalDegree},
		CreatedTime: now,
		LastUpdated: now,
	}
}

// EventRecord is one logged occurrence.
type EventRecord struct {
	RecordID        string     `json:"record_id"`
	EventName       string     `json:"event_name"`
	Timestamp       time.Time  `json:"timestamp"`
	CreateTime      time.Time  `json:"create_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	Degree          string     `json:"degree,omitempty"`
	DurationMinutes float64    `json:"duration_minutes,omitempty"`
	Note            string     `json:"note,omitempty"`
	ProgressValue   float64    `json:"progress_value,omitempty"`
}

// End resolves the end of the record: the explicit end time, otherwise the
// start plus the duration. ok is false for point-in-time records.
func (r EventRecord) End() (time.Time, bool) {
	if r.EndTime != nil && r.EndTime.After(r.Timestamp) {
		return *r.EndTime, true
	}
	if r.DurationMinutes > 0 {
		return r.Timestamp.Add(time.Duration(r.DurationMinutes * float64(time.Minute))), true
	}
	return time.Time{}, false
}

// DefinitionsDoc is the persisted event_definitions document.
type DefinitionsDoc struct {
	UserID      string                      `json:"user_id"`
	Definitions map[string]*EventDefinition `json:"definitions"`
	Categories  []string                    `json:"categories"`
	CreatedTime time.Time                   `json:"created_time"`
	LastUpdated time.Time                   `json:"last_updated"`
}

// RecordsDoc is the persisted event_records document.
type RecordsDoc struct {
	UserID        string                 `json:"user_id"`
	Records       []EventRecord          `json:"records"`
	ActiveRecords map[string]EventRecord `json:"active_records"`
	// Sequences holds the last issued record sequence per event name.
	Sequences   map[string]int `json:"sequences"`
	CreatedTime time.Time      `json:"created_time"`
	LastUpdated time.Time      `json:"last_updated"`
}

// IsActive reports whether the record is an open start record.
func (d *RecordsDoc) IsActive(recordID string) bool {
	if d == nil {
		return false
	}
	for _, active := range d.ActiveRecords {
		if active.RecordID == recordID {
			return true
		}
	}
	return false
}

// WeeklyNarrative holds the generated report sections.
type WeeklyNarrative struct {
	Summary           string `json:"summary"`
	TimeAllocation    string `json:"time_allocation"`
	RhythmInsight     string `json:"rhythm_insight"`
	UnrecordedInsight string `json:"unrecorded_insight"`
	Highlights        string `json:"highlights"`
	Risks             string `json:"risks"`
	QualityScore      int    `json:"quality_score"`
}

// Empty reports whether no section carries text.
func (n WeeklyNarrative) Empty() bool {
	return n.Summary == "" && n.TimeAllocation == "" && n.RhythmInsight == "" &&
		n.UnrecordedInsight == "" && n.Highlights == "" && n.Risks == ""
}

// Suggestion is one ranked strategic action suggestion.
type Suggestion struct {
	ID       string `json:"id"`
	Rank     int    `json:"rank"`
	Title    string `json:"title"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	Accepted bool   `json:"accepted"`
}

// WeeklyReport is stored per week key.
type WeeklyReport struct {
	WeekKey     string          `json:"week_key"`
	WeekStart   time.Time       `json:"week_start"`
	GeneratedAt time.Time       `json:"generated_at"`
	Narrative   WeeklyNarrative `json:"narrative"`
	Suggestions []Suggestion    `json:"strategic_action_suggestions"`
	MainColor   string          `json:"main_color,omitempty"`
	ColorPrompt string          `json:"color_prompt,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// WeeklyReportsDoc maps week keys to reports.
type WeeklyReportsDoc struct {
	UserID      string                   `json:"user_id"`
	Reports     map[string]*WeeklyReport `json:"reports"`
	LastUpdated time.Time                `json:"last_updated"`
}

// WeekKey formats the Monday of a week as YYMMDD.
func WeekKey(weekStart time.Time) string {
	return weekStart.Format("060102")
}
