package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/warthog-wasm/warthog/internal/wasm"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))
)

// dumper writes the report of a Host. Styles are only applied when color is set.
type dumper struct {
	w     io.Writer
	color bool
}

func (d *dumper) header(s string) {
	if d.color {
		s = headerStyle.Render(s)
	}
	fmt.Fprintln(d.w, s)
}

func (d *dumper) section(s string) {
	if d.color {
		s = sectionStyle.Render(s)
	}
	fmt.Fprintln(d.w, s)
}

func (d *dumper) printf(format string, args ...interface{}) {
	s := fmt.Sprintf(format, args...)
	if d.color {
		s = entryStyle.Render(s)
	}
	fmt.Fprintln(d.w, s)
}

// dumpHost reports every function and memory of h, then every module instance. entryPoint is marked.
func (d *dumper) dumpHost(h *wasm.Host, entryPoint wasm.ModuleAddr) {
	d.header("Host information:")
	d.dumpFunctions(h)
	d.dumpMemories(h)
	d.dumpInstances(h, entryPoint)
}

func (d *dumper) dumpFunctions(h *wasm.Host) {
	d.section("  Functions:")
	for i, f := range h.Functions() {
		if f.Kind == wasm.FunctionKindExternal {
			d.printf("  * %04d %s <extern>", i+1, f.Type)
			continue
		}
		d.printf("  * %04d %s %s %04d", i+1, f.Type, f.Module, f.CodeIndex)
	}
}

func (d *dumper) dumpMemories(h *wasm.Host) {
	d.section("  Memories:")
	for i, m := range h.Memories() {
		limit := "<unlimited>"
		if m.Max != nil {
			limit = fmt.Sprintf("%d", *m.Max)
		}
		d.printf("  * %04d %d %s", i+1, m.Len(), limit)

		d.section("    Initialized Ranges:")
		for _, r := range m.InitializedRanges() {
			d.printf("    * 0x%08x - 0x%08x (size: %d)", r.Start, r.End-1, r.Size())
		}
	}
}

func (d *dumper) dumpInstances(h *wasm.Host, entryPoint wasm.ModuleAddr) {
	for i, m := range h.Modules() {
		d.header(fmt.Sprintf("%04d Instance '%s':", i+1, m.Name))
		if wasm.ModuleAddr(i) == entryPoint {
			d.printf("  Entry Point")
		}

		if len(m.Functions) > 0 {
			d.section("  Functions:")
			for j, addr := range m.Functions {
				d.printf("  * %04d %s", j, addr)
			}
		}
		if len(m.Memories) > 0 {
			d.section("  Memories:")
			for j, addr := range m.Memories {
				d.printf("  * %04d %s", j, addr)
			}
		}
		if len(m.Exports) > 0 {
			d.section("  Exports:")
			for j, e := range m.Exports {
				d.printf("  * %04d %s %s", j, e.Name, e)
			}
		}
		if m.Names != nil {
			d.dumpNames(m.Names)
		}
	}
}

// dumpNames lists each named function with its local names. Functions with only local names are "<no name>".
func (d *dumper) dumpNames(names *wasm.NameSection) {
	d.section("  Debug Names:")
	if names.ModuleName != "" {
		d.printf("    Module: %s", names.ModuleName)
	}

	functions := map[wasm.Index]string{}
	locals := map[wasm.Index]wasm.NameMap{}
	var indices []wasm.Index
	for _, n := range names.FunctionNames {
		if _, ok := functions[n.Index]; !ok {
			indices = append(indices, n.Index)
		}
		functions[n.Index] = n.Name
	}
	for _, l := range names.LocalNames {
		if _, ok := functions[l.Index]; !ok {
			if _, ok = locals[l.Index]; !ok {
				indices = append(indices, l.Index)
			}
		}
		locals[l.Index] = l.NameMap
	}
	if len(indices) == 0 {
		return
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	d.section("    Functions:")
	for _, idx := range indices {
		if name, ok := functions[idx]; ok {
			d.printf("    * %04d %s", idx, name)
		} else {
			d.printf("    * %04d <no name>", idx)
		}
		for _, l := range locals[idx] {
			d.printf("      * %04d %s", l.Index, l.Name)
		}
	}
}
