package fstab

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/zoro11031/netmount/internal/common"
)

type lineKind int

const (
	kindBlank lineKind = iota
	kindComment
	kindEntry
	kindAnomaly
)

// Anomaly is a line that is neither a comment nor a valid entry. It is kept
// verbatim.
type Anomaly struct {
	Line   int
	Text   string
	Reason string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("line %d: %s: %q", a.Line, a.Reason, a.Text)
}

type line struct {
	raw     string
	kind    lineKind
	entry   Entry
	comment string
	reason  string
}

// table is the parsed file. Joining raw lines with "\n", plus a final
// newline when finalNewline is set, reproduces the input exactly.
type table struct {
	lines        []line
	finalNewline bool
}

func parseTable(data []byte) *table {
	t := &table{}
	if len(data) == 0 {
		return t
	}

	text := string(data)
	if strings.HasSuffix(text, "\n") {
		t.finalNewline = true
		text = text[:len(text)-1]
	}
	for _, raw := range strings.Split(text, "\n") {
		t.lines = append(t.lines, classifyLine(raw))
	}
	return t
}

func classifyLine(raw string) line {
	l := line{raw: raw}
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		l.kind = kindBlank
		return l
	case strings.HasPrefix(trimmed, "#"):
		l.kind = kindComment
		return l
	}

	content, comment := splitComment(trimmed)
	fields := strings.Fields(content)
	if len(fields) < 4 || len(fields) > 6 {
		l.kind = kindAnomaly
		l.reason = fmt.Sprintf("expected 4 to 6 fields, found %d", len(fields))
		return l
	}

	e := Entry{
		Device:     common.UnescapeTableField(fields[0]),
		MountPoint: common.UnescapeTableField(fields[1]),
		Type:       fields[2],
	}
	if fields[3] != "defaults" {
		e.Options = strings.Split(fields[3], ",")
	}

	var err error
	if len(fields) > 4 {
		if e.Dump, err = strconv.Atoi(fields[4]); err != nil || e.Dump < 0 {
			l.kind = kindAnomaly
			l.reason = fmt.Sprintf("dump field %q is not a number", fields[4])
			return l
		}
	}
	if len(fields) > 5 {
		if e.Pass, err = strconv.Atoi(fields[5]); err != nil || e.Pass < 0 {
			l.kind = kindAnomaly
			l.reason = fmt.Sprintf("pass field %q is not a number", fields[5])
			return l
		}
	}

	l.kind = kindEntry
	l.entry = e
	l.comment = comment
	return l
}

// splitComment separates a trailing "# comment" that follows whitespace
func splitComment(s string) (content, comment string) {
	for i := 1; i < len(s); i++ {
		if s[i] == '#' && (s[i-1] == ' ' || s[i-1] == '\t') {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		}
	}
	return s, ""
}

func (t *table) bytes() []byte {
	var buf bytes.Buffer
	for i, l := range t.lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(l.raw)
	}
	if t.finalNewline && len(t.lines) > 0 {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func (t *table) entries() []Entry {
	var out []Entry
	for _, l := range t.lines {
		if l.kind == kindEntry {
			out = append(out, l.entry)
		}
	}
	return out
}

func (t *table) anomalies() []Anomaly {
	var out []Anomaly
	for i, l := range t.lines {
		if l.kind == kindAnomaly {
			out = append(out, Anomaly{Line: i + 1, Text: l.raw, Reason: l.reason})
		}
	}
	return out
}

// indexes returns the positions of entries with key k
func (t *table) indexes(k Key) []int {
	var idx []int
	for i, l := range t.lines {
		if l.kind == kindEntry && l.entry.Key() == k {
			idx = append(idx, i)
		}
	}
	return idx
}

func renderLine(e Entry, comment string) line {
	raw := e.Line()
	if comment != "" {
		raw += " # " + comment
	}
	return line{raw: raw, kind: kindEntry, entry: e, comment: comment}
}

func (t *table) append(e Entry) {
	t.lines = append(t.lines, renderLine(e, ""))
	t.finalNewline = true
}

// replace puts e at the first line with its key and drops later duplicates.
// It reports false when there was no such line.
func (t *table) replace(e Entry) bool {
	idx := t.indexes(e.Key())
	if len(idx) == 0 {
		return false
	}
	first := idx[0]
	t.lines[first] = renderLine(e, t.lines[first].comment)
	t.drop(idx[1:])
	return true
}

// remove drops every line with key k and reports how many were removed
func (t *table) remove(k Key) int {
	idx := t.indexes(k)
	t.drop(idx)
	return len(idx)
}

func (t *table) drop(idx []int) {
	if len(idx) == 0 {
		return
	}
	skip := make(map[int]bool, len(idx))
	for _, i := range idx {
		skip[i] = true
	}
	kept := t.lines[:0]
	for i, l := range t.lines {
		if !skip[i] {
			kept = append(kept, l)
		}
	}
	t.lines = kept
}
