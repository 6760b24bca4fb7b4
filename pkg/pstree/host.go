package pstree

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// HostTree builds a process tree for a process on the host, as seen from the
// host's namespaces. Useful when the container runtime shares the host PID
// namespace. Per-process attributes that cannot be read are left empty.
func HostTree(pid int32) (*PsTree, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find host process %d: %w", pid, err)
	}
	return hostSubtree(proc)
}

func hostSubtree(proc *process.Process) (*PsTree, error) {
	node := &PsTree{Row: hostRow(proc)}

	children, err := proc.Children()
	if err != nil && err != process.ErrorNoChildren {
		return nil, fmt.Errorf("list children of host process %d: %w", proc.Pid, err)
	}
	for _, child := range children {
		sub, err := hostSubtree(child)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

func hostRow(proc *process.Process) PsRow {
	row := PsRow{PID: int(proc.Pid)}
	if ppid, err := proc.Ppid(); err == nil {
		row.PPID = int(ppid)
	}
	if user, err := proc.Username(); err == nil {
		row.RUser = user
	}
	if args, err := proc.CmdlineSlice(); err == nil {
		row.Args = strings.Join(args, " ")
	}
	return row
}
