// Package pstree inspects the processes running inside a container and
// arranges them into a tree, so tests can assert on exactly what a container
// is running. The primary path execs ps inside the container, which reports
// PIDs and usernames in the container's own namespaces.
package pstree

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// psColumns is the column set requested from ps. BusyBox ps is the baseline
// for available functionality, so only columns it understands are used.
var psColumns = []string{"pid", "ppid", "ruser", "args"}

// PsRow is one process list entry.
type PsRow struct {
	PID   int
	PPID  int
	RUser string
	Args  string
}

// PsTree is a node in a process tree, linking a row to its child processes.
type PsTree struct {
	Row      PsRow
	Children []*PsTree
}

// Count returns the number of processes in this subtree.
func (t *PsTree) Count() int {
	n := 1
	for _, child := range t.Children {
		n += child.Count()
	}
	return n
}

// Execer runs a command inside a container and returns its combined output.
// *dockersource.ContainerSource satisfies it.
type Execer interface {
	ExecOutput(ctx context.Context, cmd []string) ([]byte, error)
}

// ListContainerProcesses lists the processes running inside a container. The
// row for ps itself is filtered out.
func ListContainerProcesses(ctx context.Context, execer Execer) ([]PsRow, error) {
	cmd := []string{"ps", "ax", "-o", strings.Join(psColumns, ",")}
	output, err := execer.ExecOutput(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("list container processes: %w", err)
	}

	rows, err := ParsePs(string(output))
	if err != nil {
		return nil, err
	}

	cmdString := strings.Join(cmd, " ")
	filtered := rows[:0]
	for _, row := range rows {
		if row.Args != cmdString {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// ParsePs parses ps output into rows. Header alignment differs between ps
// implementations, so columns are treated as whitespace-separated with only
// the last column (args) allowed to contain spaces.
func ParsePs(output string) ([]PsRow, error) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	if len(lines) < 1 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("empty ps output")
	}

	header := strings.Fields(lines[0])
	if len(header) != len(psColumns) {
		return nil, fmt.Errorf("unexpected ps header %q", lines[0])
	}

	var rows []PsRow
	for _, line := range lines[1:] {
		fields := splitColumns(line, len(psColumns))
		if len(fields) != len(psColumns) {
			return nil, fmt.Errorf("unexpected ps row %q", line)
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("bad pid in ps row %q: %w", line, err)
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("bad ppid in ps row %q: %w", line, err)
		}

		rows = append(rows, PsRow{PID: pid, PPID: ppid, RUser: fields[2], Args: fields[3]})
	}
	return rows, nil
}

// splitColumns splits a row into at most n whitespace-separated fields, with
// the final field keeping its internal spaces.
func splitColumns(line string, n int) []string {
	var fields []string
	rest := strings.TrimSpace(line)
	for len(fields) < n-1 {
		i := strings.IndexFunc(rest, isSpace)
		if i < 0 {
			break
		}
		fields = append(fields, rest[:i])
		rest = strings.TrimLeftFunc(rest[i:], isSpace)
	}
	if rest != "" {
		fields = append(fields, rest)
	}
	return fields
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

// BuildTree arranges rows into a process tree rooted at the single process
// with ppid 0. Duplicate PIDs, multiple roots, a missing root and processes
// unreachable from the root are all reported as errors.
func BuildTree(rows []PsRow) (*PsTree, error) {
	var root *PsTree
	for _, row := range rows {
		if row.PPID == 0 {
			if root != nil {
				return nil, fmt.Errorf("too many process tree roots (ppid=0) found")
			}
			root = &PsTree{Row: row}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("no process tree root (ppid=0) found")
	}

	seen := map[int]bool{root.Row.PID: true}
	if err := buildSubtree(rows, root, seen); err != nil {
		return nil, err
	}
	if root.Count() < len(rows) {
		return nil, fmt.Errorf("unreachable processes detected")
	}
	return root, nil
}

func buildSubtree(rows []PsRow, node *PsTree, seen map[int]bool) error {
	for _, row := range rows {
		if row.PPID != node.Row.PID {
			continue
		}
		if seen[row.PID] {
			return fmt.Errorf("duplicate pid found: %d", row.PID)
		}
		seen[row.PID] = true

		child := &PsTree{Row: row}
		node.Children = append(node.Children, child)
		if err := buildSubtree(rows, child, seen); err != nil {
			return err
		}
	}
	return nil
}
