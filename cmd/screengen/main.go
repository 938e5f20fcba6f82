// Command screengen lints screen files and prints the views they project to.
//
//	screengen -screens screens -enums reference/enums [-screen customers]
//
// It exits with status 1 when a screen fails to load or lint reports errors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"adminkit/internal/controls"
	"adminkit/internal/project"
	"adminkit/internal/reference"
	"adminkit/internal/resolve"
	"adminkit/internal/schema"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type item struct {
	project.Resolved
	Visible bool             `json:"visible"`
	Control controls.Control `json:"control"`
}

type screenOut struct {
	Screen string         `json:"screen"`
	Source string         `json:"source"`
	Search []item         `json:"search"`
	Table  []item         `json:"table"`
	Create []item         `json:"create"`
	Edit   []item         `json:"edit"`
	Issues []schema.Issue `json:"issues,omitempty"`
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("screengen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	screensDir := fs.String("screens", "screens", "Path to screens directory")
	enumsDir := fs.String("enums", "", "Path to enums directory")
	only := fs.String("screen", "", "Print only this screen")
	lintOnly := fs.Bool("lint", false, "Print lint issues only")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var b schema.Bindings
	if *enumsDir != "" {
		cat, err := reference.LoadEnumCatalog(*enumsDir)
		if err != nil {
			fmt.Fprintf(stderr, "enums: %v\n", err)
			return 1
		}
		b.Catalogs = cat
	}
	client := &http.Client{Timeout: 10 * time.Second}
	b.URLFetcher = func(tmpl string) schema.OptionFetcher { return controls.HTTPFetcher(client, tmpl) }

	screens, err := schema.LoadAllScreens(*screensDir, b)
	if err != nil {
		fmt.Fprintf(stderr, "screens: %v\n", err)
		return 1
	}

	names := make([]string, 0, len(screens))
	for n := range screens {
		if *only == "" || n == *only {
			names = append(names, n)
		}
	}
	if *only != "" && len(names) == 0 {
		fmt.Fprintf(stderr, "screen %q not found\n", *only)
		return 1
	}
	sort.Strings(names)

	reg := controls.NewRegistry()
	blocking := false
	var out []screenOut
	var issues []schema.Issue
	for _, n := range names {
		scr := screens[n]
		is := scr.Lint()
		blocking = blocking || schema.Blocking(is)
		issues = append(issues, is...)
		if *lintOnly {
			continue
		}
		out = append(out, screenOut{
			Screen: scr.Name,
			Source: scr.Source,
			Search: items(reg, scr.Fields, project.Search, ""),
			Table:  items(reg, scr.Fields, project.Table, ""),
			Create: items(reg, scr.Fields, project.Form, project.Create),
			Edit:   items(reg, scr.Fields, project.Form, project.Edit),
			Issues: is,
		})
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	var v any = out
	if *lintOnly {
		v = issues
	}
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "write: %v\n", err)
		return 1
	}
	if blocking {
		fmt.Fprintln(stderr, "blocking issues found")
		return 1
	}
	return 0
}

// items projects fields for empty values, the state a view mounts with.
func items(reg *controls.Registry, fields schema.Schema, v project.View, m project.Mode) []item {
	r := &resolve.Resolver{Logger: quiet{}}
	rs := project.Project(fields, v, m)
	out := make([]item, 0, len(rs))
	for _, it := range rs {
		st := r.Resolve(it.Field, schema.Values{})
		out = append(out, item{Resolved: it, Visible: st.Visible, Control: it.Control(reg, st, nil)})
	}
	return out
}

type quiet struct{}

func (quiet) Printf(string, ...any) {}
