// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/stardust/lib/admin"
	"github.com/bureau-foundation/stardust/lib/client"
)

// renderer writes command output, styled or plain.
type renderer struct {
	out    io.Writer
	width  int
	header lipgloss.Style
	label  lipgloss.Style
	dim    lipgloss.Style
	state  map[string]lipgloss.Style
}

func newRenderer(out io.Writer, styled bool, width int) *renderer {
	r := &renderer{
		out:    out,
		width:  width,
		header: lipgloss.NewStyle(),
		label:  lipgloss.NewStyle(),
		dim:    lipgloss.NewStyle(),
		state:  map[string]lipgloss.Style{},
	}
	if !styled {
		return r
	}
	r.header = lipgloss.NewStyle().Bold(true).Underline(true)
	r.label = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	r.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	r.state = map[string]lipgloss.Style{
		"active":      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"handshaking": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"closing":     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	return r
}

func (r *renderer) line(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *renderer) status(status admin.Status) {
	rows := [][2]string{
		{"version", status.Version},
		{"protocol", fmt.Sprint(status.Protocol)},
		{"instance", status.Instance},
		{"uptime", status.Uptime.Truncate(time.Second).String()},
		{"frame", fmt.Sprint(status.Frame)},
		{"clients", fmt.Sprint(status.Clients)},
		{"nodes", fmt.Sprint(status.Nodes)},
		{"pending calls", fmt.Sprint(status.Pending)},
	}
	for _, row := range rows {
		r.line("%s %s", r.label.Render(fmt.Sprintf("%-14s", row[0])), row[1])
	}
}

func (r *renderer) clients(clients []client.Snapshot) {
	if len(clients) == 0 {
		r.line("%s", r.dim.Render("no clients connected"))
		return
	}
	columns := []string{"ID", "NAME", "STATE", "PID", "QUEUES", "COMMAND"}
	rows := make([][]string, 0, len(clients))
	for _, snapshot := range clients {
		command := snapshot.Peer.Command
		if command == "" {
			command = snapshot.Peer.Address
		}
		rows = append(rows, []string{
			fmt.Sprint(uint64(snapshot.ID)),
			snapshot.Name,
			snapshot.State,
			fmt.Sprint(snapshot.Peer.PID),
			fmt.Sprintf("%d/%d", snapshot.Inbound, snapshot.Outbound),
			command,
		})
	}
	r.table(columns, rows, 2)
}

// table prints aligned columns. The cell in stateColumn is colored by
// client state; the last column is truncated to fit the width.
func (r *renderer) table(columns []string, rows [][]string, stateColumn int) {
	widths := make([]int, len(columns))
	for i, column := range columns {
		widths[i] = len(column)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	used := 0
	for _, width := range widths[:len(widths)-1] {
		used += width + 2
	}
	last := len(columns) - 1
	widths[last] = max(8, min(widths[last], r.width-used))

	render := func(cells []string, style func(int, string) string) {
		var builder strings.Builder
		for i, cell := range cells {
			if i == last {
				cell = truncate(cell, widths[i])
			}
			padded := cell + strings.Repeat(" ", max(0, widths[i]-lipgloss.Width(cell)))
			builder.WriteString(style(i, padded))
			if i < last {
				builder.WriteString("  ")
			}
		}
		r.line("%s", strings.TrimRight(builder.String(), " "))
	}

	render(columns, func(_ int, cell string) string { return r.header.Render(cell) })
	for _, row := range rows {
		render(row, func(i int, cell string) string {
			if i == stateColumn {
				if style, ok := r.state[strings.TrimSpace(cell)]; ok {
					return style.Render(cell)
				}
			}
			return cell
		})
	}
}

func truncate(text string, width int) string {
	if lipgloss.Width(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func (r *renderer) tree(roots []admin.TreeNode) {
	slices.SortFunc(roots, func(a, b admin.TreeNode) int { return cmp.Compare(a.ID, b.ID) })
	for _, root := range roots {
		r.treeNode(root, "", "")
	}
}

func (r *renderer) treeNode(node admin.TreeNode, prefix, childPrefix string) {
	detail := fmt.Sprintf("owner %d  [%s]", uint64(node.Owner), strings.Join(node.Aspects, " "))
	if !node.Enabled {
		detail += " disabled"
	}
	r.line("%s%s  %s", prefix, r.label.Render(node.ID.String()), r.dim.Render(detail))
	for i, child := range node.Children {
		if i == len(node.Children)-1 {
			r.treeNode(child, childPrefix+"└─ ", childPrefix+"   ")
		} else {
			r.treeNode(child, childPrefix+"├─ ", childPrefix+"│  ")
		}
	}
}
