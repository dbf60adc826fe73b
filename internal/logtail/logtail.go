package logtail

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Read returns at most maxLines from the end of the file at path. A missing
// file yields no lines and no error.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is one parsed zerolog JSON line.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	Fields  []Field
	Raw     string
	JSON    bool
}

// Field is a key/value pair beyond the standard zerolog keys, sorted by key.
type Field struct {
	Key   string
	Value string
}

// Parse decodes a zerolog JSON line. Lines that are not JSON objects come
// back with JSON=false and the text in Message.
func Parse(line string) Entry {
	entry := Entry{Raw: line, Message: line}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return entry
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return entry
	}

	entry.JSON = true
	entry.Message = ""
	for key, value := range obj {
		switch key {
		case "time":
			if s, ok := value.(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					entry.Time = ts
				}
			}
		case "level":
			entry.Level, _ = value.(string)
		case "message":
			entry.Message, _ = value.(string)
		default:
			entry.Fields = append(entry.Fields, Field{Key: key, Value: render(value)})
		}
	}
	sort.Slice(entry.Fields, func(i, j int) bool { return entry.Fields[i].Key < entry.Fields[j].Key })
	return entry
}

// LevelAbbrev returns the three-letter level tag used by zerolog's console
// writer.
func (e Entry) LevelAbbrev() string {
	switch strings.ToLower(e.Level) {
	case "trace":
		return "TRC"
	case "debug":
		return "DBG"
	case "info":
		return "INF"
	case "warn", "warning":
		return "WRN"
	case "error":
		return "ERR"
	case "fatal":
		return "FTL"
	case "panic":
		return "PNC"
	case "":
		return "???"
	}
	return strings.ToUpper(e.Level)
}

// Format renders an entry as "15:04:05 INF message key=value" in loc.
func Format(e Entry, loc *time.Location) string {
	if !e.JSON {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		if loc != nil {
			b.WriteString(e.Time.In(loc).Format("15:04:05"))
		} else {
			b.WriteString(e.Time.Format("15:04:05"))
		}
		b.WriteByte(' ')
	}
	b.WriteString(e.LevelAbbrev())
	if e.Message != "" {
		b.WriteByte(' ')
		b.WriteString(e.Message)
	}
	for _, f := range e.Fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// FormatLines parses and formats each line.
func FormatLines(lines []string, loc *time.Location) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Format(Parse(line), loc)
	}
	return out
}

func render(v any) string {
	switch val := v.(type) {
	case string:
		if strings.ContainsAny(val, " \t") {
			return fmt.Sprintf("%q", val)
		}
		return val
	case json.Number:
		return val.String()
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}
