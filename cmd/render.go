package cmd

import (
	"fmt"
	"io"
	"strings"
)

// TableColumn represents a column in a table
type TableColumn struct {
	Header string
	Key    string // key to extract from data map
	Width  int    // calculated width
}

// renderTable renders a table with dynamic column width calculation
func renderTable(w io.Writer, columns []TableColumn, data []map[string]interface{}) {
	if len(data) == 0 {
		fmt.Fprintln(w, "No data to display")
		return
	}

	for i := range columns {
		columns[i].Width = len(columns[i].Header)
		for _, row := range data {
			if value, exists := row[columns[i].Key]; exists {
				if n := len(fmt.Sprintf("%v", value)); n > columns[i].Width {
					columns[i].Width = n
				}
			}
		}
	}

	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%-*s", col.Width, col.Header)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))

	for i, col := range columns {
		parts[i] = strings.Repeat("-", col.Width)
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))

	for _, row := range data {
		for i, col := range columns {
			value := ""
			if v, exists := row[col.Key]; exists {
				value = fmt.Sprintf("%v", v)
			}
			parts[i] = fmt.Sprintf("%-*s", col.Width, value)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
}
