package logging

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxListValues caps how many elements of a numeric slice the console shows.
const maxListValues = 8

// attrString renders v without quoting, for subject fields such as run_id.
func attrString(v slog.Value) string {
	v = v.Resolve()
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return plainValue(v)
}

// formatValue renders v for key=value output, quoting when the text would
// break tokenization.
func formatValue(v slog.Value) string {
	return quoteIfNeeded(plainValue(v.Resolve()))
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return formatFloat(v.Float64())
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		switch val := v.Any().(type) {
		case error:
			return val.Error()
		case []float64:
			return formatList(len(val), func(i int) string { return formatFloat(val[i]) })
		case []int:
			return formatList(len(val), func(i int) string { return strconv.Itoa(val[i]) })
		default:
			return fmt.Sprint(val)
		}
	default:
		return v.String()
	}
}

// formatFloat keeps six significant digits.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(f, 'g', 6, 64)
}

func formatList(n int, item func(int) string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < n && i < maxListValues; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(item(i))
	}
	if n > maxListValues {
		fmt.Fprintf(&b, ",...+%d", n-maxListValues)
	}
	b.WriteByte(']')
	return b.String()
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return strconv.Quote(s)
		}
	}
	return s
}
