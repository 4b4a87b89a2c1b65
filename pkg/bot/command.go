package bot

import (
	"strconv"
	"strings"
)

// CommandKind identifies a parsed chat command.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdRecord
	CmdQuery
	CmdSelect
	CmdRotateSecret
)

// Command is a parsed chat message.
type Command struct {
	Kind CommandKind
	// Arg is the event name of CmdRecord or the category filter of CmdQuery.
	Arg string
	// Index is the 1-based choice of CmdSelect.
	Index int
	// Var and Value are the CmdRotateSecret operands.
	Var   string
	Value string
}

var (
	recordTriggers = []string{"r", "日程"}
	queryTriggers  = []string{"rs", "查看日程"}
)

const rotateTrigger = "whisk令牌"

// ParseCommand parses a text message. Unrecognized text yields CmdUnknown.
func ParseCommand(text string) Command {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}
	}
	head := strings.ToLower(fields[0])
	rest := strings.Join(fields[1:], " ")

	switch {
	case matches(head, recordTriggers):
		return Command{Kind: CmdRecord, Arg: rest}
	case matches(head, queryTriggers):
		return Command{Kind: CmdQuery, Arg: rest}
	case head == rotateTrigger:
		if len(fields) != 3 {
			return Command{Kind: CmdRotateSecret}
		}
		return Command{Kind: CmdRotateSecret, Var: fields[1], Value: fields[2]}
	}
	if len(fields) == 1 && isDigits(head) {
		n, err := strconv.Atoi(head)
		if err == nil && n > 0 {
			return Command{Kind: CmdSelect, Index: n}
		}
	}
	return Command{}
}

func matches(head string, triggers []string) bool {
	for _, t := range triggers {
		if head == t {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
