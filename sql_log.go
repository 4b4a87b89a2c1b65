package routineagent

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// maxLoggedArg caps string arguments so document payloads do not flood logs.
const maxLoggedArg = 96

// FormatSQLForLog interpolates positional parameters into a SQL query string for logging only.
func FormatSQLForLog(query string, args ...any) string {
	query = strings.Join(strings.Fields(query), " ")
	if query == "" || len(args) == 0 {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + len(args)*8)
	next := 0
	for _, ch := range query {
		if ch == '?' && next < len(args) {
			b.WriteString(FormatSQLArg(args[next]))
			next++
			continue
		}
		b.WriteRune(ch)
	}
	if next < len(args) {
		rest := make([]string, 0, len(args)-next)
		for _, arg := range args[next:] {
			rest = append(rest, FormatSQLArg(arg))
		}
		b.WriteString(" /* args: " + strings.Join(rest, ", ") + " */")
	}
	return b.String()
}

// FormatSQLArg formats a SQL argument for logging only.
func FormatSQLArg(arg any) string {
	switch v := arg.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteSQL(v)
	case []byte:
		return quoteSQL(string(v))
	case time.Time:
		return quoteSQL(v.Format(time.RFC3339))
	case fmt.Stringer:
		return quoteSQL(v.String())
	default:
		return fmt.Sprintf("%v", arg)
	}
}

func quoteSQL(s string) string {
	if utf8.RuneCountInString(s) > maxLoggedArg {
		runes := []rune(s)
		s = string(runes[:maxLoggedArg]) + "…"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
