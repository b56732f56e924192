// Package seed loads the demo dataset: the resource catalog plus a
// couple of pre-diagnosed sample conversations.
package seed

import (
	_ "embed"
	"fmt"
	"strings"

	"qeek/pkg/store"
)

//go:embed testdata.sql
var testdata string

// Run executes the embedded statements one at a time so a failed
// statement is reported individually.
func Run(st store.Store) error {
	for i, stmt := range statements(testdata) {
		if err := st.ExecSQL(stmt); err != nil {
			return fmt.Errorf("seed statement %d: %w", i+1, err)
		}
	}
	return nil
}

// statements splits the script on semicolons, dropping comment lines
// and blanks. The embedded data contains no semicolons inside string
// literals, so a simple split is enough.
func statements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
