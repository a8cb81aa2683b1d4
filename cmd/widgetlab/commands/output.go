package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// maxColumnWidth is the maximum width for table columns before truncation
const maxColumnWidth = 50

func truncateString(s string) string {
	if len(s) <= maxColumnWidth {
		return s
	}
	return s[:maxColumnWidth-3] + "..."
}

// writeTable prints rows under the given column headers, padded to the
// widest cell.
func writeTable(w io.Writer, columns []string, rows [][]string) {
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len(truncateString(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var header, separator strings.Builder
	for i, col := range columns {
		if i > 0 {
			header.WriteString(" | ")
			separator.WriteString("-+-")
		}
		fmt.Fprintf(&header, "%-*s", widths[i], col)
		separator.WriteString(strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w, strings.TrimRight(header.String(), " "))
	fmt.Fprintln(w, separator.String())

	for _, row := range rows {
		var line strings.Builder
		for i, cell := range row {
			if i > 0 {
				line.WriteString(" | ")
			}
			fmt.Fprintf(&line, "%-*s", widths[i], truncateString(cell))
		}
		fmt.Fprintln(w, strings.TrimRight(line.String(), " "))
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// flatten turns nested state into sorted dot-path rows, the same paths a
// scenario's expect lines use.
func flatten(state map[string]interface{}) [][]string {
	var rows [][]string
	var walk func(prefix string, v interface{})
	walk = func(prefix string, v interface{}) {
		switch val := v.(type) {
		case map[string]interface{}:
			if len(val) == 0 {
				rows = append(rows, []string{prefix, "{}"})
				return
			}
			for k, child := range val {
				walk(join(prefix, k), child)
			}
		case []interface{}:
			if len(val) == 0 {
				rows = append(rows, []string{prefix, "[]"})
				return
			}
			for i, child := range val {
				walk(join(prefix, strconv.Itoa(i)), child)
			}
		case nil:
			rows = append(rows, []string{prefix, ""})
		default:
			rows = append(rows, []string{prefix, fmt.Sprint(val)})
		}
	}
	for k, v := range state {
		walk(k, v)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })
	return rows
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
