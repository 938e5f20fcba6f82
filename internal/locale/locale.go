// Package locale translates message keys from YAML catalogs.
package locale

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Translator resolves a message key. vars fill {name} placeholders.
type Translator interface {
	Translate(key string, vars map[string]any) string
}

// Keys is the identity translator: it returns the key itself.
type Keys struct{}

func (Keys) Translate(key string, vars map[string]any) string { return substitute(key, vars) }

// Catalogs holds one flat key → message table per language.
type Catalogs map[string]map[string]string

// Load reads every <lang>.yaml / <lang>.yml file in dir. Nested maps are
// flattened with dots, so
//
//	crud:
//	  created: Saved
//
// defines "crud.created".
func Load(dir string) (Catalogs, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := Catalogs{}
	for _, e := range entries {
		name := e.Name()
		ext := filepath.Ext(name)
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		lang := strings.TrimSuffix(name, ext)
		if _, dup := out[lang]; dup {
			return nil, fmt.Errorf("%s: duplicate language %q", name, lang)
		}
		table := map[string]string{}
		flatten("", raw, table)
		out[lang] = table
	}
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			flatten(key, t, out)
		case nil:
		default:
			out[key] = fmt.Sprint(t)
		}
	}
}

// Languages returns the loaded languages, sorted.
func (c Catalogs) Languages() []string {
	out := make([]string, 0, len(c))
	for l := range c {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Translator returns a translator for lang that falls back to the fallback
// languages in order, then to the key.
func (c Catalogs) Translator(lang string, fallback ...string) Translator {
	chain := make([]map[string]string, 0, 1+len(fallback))
	for _, l := range append([]string{lang}, fallback...) {
		if t, ok := c[l]; ok {
			chain = append(chain, t)
		}
	}
	return &translator{chain: chain}
}

type translator struct {
	chain []map[string]string
}

func (t *translator) Translate(key string, vars map[string]any) string {
	for _, table := range t.chain {
		if msg, ok := table[key]; ok {
			return substitute(msg, vars)
		}
	}
	return substitute(key, vars)
}

func substitute(msg string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(msg, "{") {
		return msg
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
