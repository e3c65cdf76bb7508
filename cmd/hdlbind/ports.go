package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"hdlbind/internal/ports"
)

var portsCmd = &cobra.Command{
	Use:   "ports [module...]",
	Short: "Show how module ports map onto storage classes",
	RunE:  runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	mods, err := selectModules(cfg, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, mod := range mods {
		if i > 0 {
			fmt.Fprintln(out)
		}
		writePortTable(out, mod)
	}
	return nil
}

var portHeader = []string{"PORT", "DIR", "RANGE", "WIDTH", "CLASS", "WORDS", "ROLE"}

func portRows(mod *ports.Module) [][]string {
	rows := make([][]string, 0, len(mod.Ports))
	for _, p := range mod.Ports {
		role := ""
		switch p.Name() {
		case mod.Clock:
			role = "clock"
		case mod.Reset:
			role = "reset"
		}
		rows = append(rows, []string{
			p.Name(),
			p.Direction().String(),
			fmt.Sprintf("[%d:%d]", p.MSB(), p.LSB()),
			strconv.Itoa(p.Width()),
			p.Class().String(),
			strconv.Itoa(p.Class().Words()),
			role,
		})
	}
	return rows
}

func writePortTable(out io.Writer, mod *ports.Module) {
	fmt.Fprintf(out, "%s (%s)\n", mod.Name, mod.SourcePath)
	rows := portRows(mod)
	widths := make([]int, len(portHeader))
	for i, h := range portHeader {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	writeRow := func(cells []string) {
		var b strings.Builder
		b.WriteString(" ")
		for i, cell := range cells {
			b.WriteString(" ")
			b.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		fmt.Fprintln(out, strings.TrimRight(b.String(), " "))
	}
	writeRow(portHeader)
	for _, row := range rows {
		writeRow(row)
	}
}
