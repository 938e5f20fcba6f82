package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Capabilities names the capability tokens guarding CRUD affordances. An empty
// token means the affordance is always available.
type Capabilities struct {
	Create string `json:"create,omitempty" yaml:"create,omitempty"`
	Edit   string `json:"edit,omitempty" yaml:"edit,omitempty"`
	Delete string `json:"delete,omitempty" yaml:"delete,omitempty"`
}

// Screen is one schema together with its CRUD binding.
type Screen struct {
	Name         string
	Title        string
	Endpoint     string
	Refresh      string
	PageSize     int
	RowKey       string
	Capabilities Capabilities
	Fields       Schema
	Source       string

	// declared keeps the per-field declarations for lint.
	declared []fieldDoc
}

// CatalogSource resolves named enum catalogs.
type CatalogSource interface {
	Catalog(name string) (ValueEnum, OptionList, bool)
}

// Bindings resolves the names a screen file refers to into Go functions.
type Bindings struct {
	Fetchers   map[string]OptionFetcher
	Renderers  map[string]Renderer
	Validators map[string]Validator
	Catalogs   CatalogSource
	// URLFetcher builds a fetcher for `options: {url: ...}` sources.
	URLFetcher func(tmpl string) OptionFetcher
}

type fileDoc struct {
	Screen       string       `json:"screen" yaml:"screen"`
	Title        string       `json:"title,omitempty" yaml:"title,omitempty"`
	Endpoint     string       `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Refresh      string       `json:"refresh,omitempty" yaml:"refresh,omitempty"`
	PageSize     int          `json:"pageSize,omitempty" yaml:"pageSize,omitempty"`
	RowKey       string       `json:"rowKey,omitempty" yaml:"rowKey,omitempty"`
	Capabilities Capabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Fields       []fieldDoc   `json:"fields" yaml:"fields"`
}

type fieldDoc struct {
	Key       string `json:"key,omitempty" yaml:"key,omitempty"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
	ValueType string `json:"valueType,omitempty" yaml:"valueType,omitempty"`
	ViewFlags `yaml:",inline"`
	Props      map[string]any       `json:"props,omitempty" yaml:"props,omitempty"`
	ValueEnum  map[string]EnumEntry `json:"valueEnum,omitempty" yaml:"valueEnum,omitempty"`
	Enum       string               `json:"enum,omitempty" yaml:"enum,omitempty"`
	Options    *optionsDoc          `json:"options,omitempty" yaml:"options,omitempty"`
	Dependency *DependencySpec      `json:"dependency,omitempty" yaml:"dependency,omitempty"`
	Render     string               `json:"render,omitempty" yaml:"render,omitempty"`
	Rules      []ruleDoc            `json:"rules,omitempty" yaml:"rules,omitempty"`
	Tooltip    string               `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
	Width      int                  `json:"width,omitempty" yaml:"width,omitempty"`
	Sortable   bool                 `json:"sortable,omitempty" yaml:"sortable,omitempty"`
	Capability string               `json:"capability,omitempty" yaml:"capability,omitempty"`
	Default    any                  `json:"default,omitempty" yaml:"default,omitempty"`
}

type optionsDoc struct {
	Catalog   string   `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	Fetcher   string   `json:"fetcher,omitempty" yaml:"fetcher,omitempty"`
	URL       string   `json:"url,omitempty" yaml:"url,omitempty"`
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

type ruleDoc struct {
	Kind      string  `json:"kind" yaml:"kind"`
	Pattern   string  `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Limit     float64 `json:"limit,omitempty" yaml:"limit,omitempty"`
	Message   string  `json:"message,omitempty" yaml:"message,omitempty"`
	Validator string  `json:"validator,omitempty" yaml:"validator,omitempty"`
}

var screenNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// LoadScreen reads a .yaml, .yml, .json or .cue screen file.
func LoadScreen(path string, b Bindings) (*Screen, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScreen(data, filepath.Ext(path), b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Source = path
	return s, nil
}

// ParseScreen decodes a screen document; format is a file extension.
func ParseScreen(data []byte, format string, b Bindings) (*Screen, error) {
	var doc fileDoc
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case "cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename("screen.cue"))
		if err := v.Err(); err != nil {
			return nil, err
		}
		if err := v.Decode(&doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported screen format %q", format)
	}
	return doc.build(b)
}

func (d fileDoc) build(b Bindings) (*Screen, error) {
	name := strings.TrimSpace(d.Screen)
	if !screenNameRe.MatchString(name) {
		return nil, &ConfigError{Screen: name, Problems: []string{"screen name must match " + screenNameRe.String()}}
	}
	s := &Screen{
		Name:         name,
		Title:        d.Title,
		Endpoint:     strings.TrimSpace(d.Endpoint),
		Refresh:      strings.ToLower(strings.TrimSpace(d.Refresh)),
		PageSize:     d.PageSize,
		RowKey:       d.RowKey,
		Capabilities: d.Capabilities,
		declared:     d.Fields,
	}
	if s.RowKey == "" {
		s.RowKey = "id"
	}
	if s.Title == "" {
		s.Title = s.Name
	}
	switch s.Refresh {
	case "", "reset", "reload":
	default:
		return nil, &ConfigError{Screen: name, Problems: []string{fmt.Sprintf("unknown refresh strategy %q", d.Refresh)}}
	}

	var problems []string
	for i, fd := range d.Fields {
		f, err := fd.build(b)
		if err != nil {
			label := fd.Key
			if label == "" {
				label = fmt.Sprintf("#%d", i)
			}
			problems = append(problems, fmt.Sprintf("field %s: %v", label, err))
			continue
		}
		s.Fields = append(s.Fields, f)
	}
	if len(problems) > 0 {
		return nil, &ConfigError{Screen: name, Problems: problems}
	}
	if err := s.Fields.Check(); err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Screen = name
		}
		return nil, err
	}
	return s, nil
}

func (fd fieldDoc) build(b Bindings) (Field, error) {
	f := Field{
		Key:        strings.TrimSpace(fd.Key),
		Label:      fd.Label,
		ValueType:  ValueType(fd.ValueType),
		ViewFlags:  fd.ViewFlags,
		Tooltip:    fd.Tooltip,
		Width:      fd.Width,
		Sortable:   fd.Sortable,
		Capability: fd.Capability,
		Default:    fd.Default,
	}
	if len(fd.Props) > 0 {
		f.Props = Props(fd.Props)
	}
	if len(fd.ValueEnum) > 0 {
		f.ValueEnum = ValueEnum(fd.ValueEnum)
	}

	if fd.Enum != "" {
		if b.Catalogs == nil {
			return f, fmt.Errorf("enum catalog %q: no catalogs loaded", fd.Enum)
		}
		ve, opts, ok := b.Catalogs.Catalog(fd.Enum)
		if !ok {
			return f, fmt.Errorf("unknown enum catalog %q", fd.Enum)
		}
		if f.ValueEnum == nil {
			f.ValueEnum = ve
		}
		f.Props = withOptions(f.Props, opts)
	}

	if o := fd.Options; o != nil {
		switch {
		case o.Catalog != "":
			if b.Catalogs == nil {
				return f, fmt.Errorf("options catalog %q: no catalogs loaded", o.Catalog)
			}
			_, opts, ok := b.Catalogs.Catalog(o.Catalog)
			if !ok {
				return f, fmt.Errorf("unknown options catalog %q", o.Catalog)
			}
			f.Props = withOptions(f.Props, opts)
		case o.Fetcher != "":
			fn, ok := b.Fetchers[o.Fetcher]
			if !ok {
				return f, fmt.Errorf("unknown options fetcher %q", o.Fetcher)
			}
			f.AsyncOptions = &AsyncOptions{Fetch: fn, DependsOn: o.DependsOn}
		case o.URL != "":
			if b.URLFetcher == nil {
				return f, fmt.Errorf("options url %q: no url fetcher bound", o.URL)
			}
			f.AsyncOptions = &AsyncOptions{Fetch: b.URLFetcher(o.URL), DependsOn: o.DependsOn}
		default:
			return f, fmt.Errorf("options need one of catalog, fetcher or url")
		}
	}

	if fd.Dependency != nil {
		dep, err := fd.Dependency.Compile()
		if err != nil {
			return f, fmt.Errorf("dependency: %w", err)
		}
		f.Dependency = dep
	}

	if fd.Render != "" {
		fn, ok := b.Renderers[fd.Render]
		if !ok {
			return f, fmt.Errorf("unknown renderer %q", fd.Render)
		}
		f.Render = fn
	}

	for i, rd := range fd.Rules {
		r := Rule{Kind: RuleKind(rd.Kind), Pattern: rd.Pattern, Limit: rd.Limit, Message: rd.Message}
		switch r.Kind {
		case RuleRequired, RuleMin, RuleMax, RuleLen:
		case RulePattern:
			if _, err := regexp.Compile(rd.Pattern); err != nil {
				return f, fmt.Errorf("rules[%d]: bad pattern: %w", i, err)
			}
		case RuleCustom:
			fn, ok := b.Validators[rd.Validator]
			if !ok {
				return f, fmt.Errorf("rules[%d]: unknown validator %q", i, rd.Validator)
			}
			r.Validator = fn
		default:
			return f, fmt.Errorf("rules[%d]: unknown rule kind %q", i, rd.Kind)
		}
		f.Rules = append(f.Rules, r)
	}
	return f, nil
}

func withOptions(p Props, opts OptionList) Props {
	out := p.Clone()
	out["options"] = opts
	return out
}

// LoadAllScreens walks root and loads every screen file, keyed by screen name.
func LoadAllScreens(root string, b Bindings) (map[string]*Screen, error) {
	result := make(map[string]*Screen)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".yaml", ".yml", ".json", ".cue":
		default:
			return nil
		}

		s, err := LoadScreen(path, b)
		if err != nil {
			return err
		}
		if prev, exists := result[s.Name]; exists {
			return fmt.Errorf("duplicate screen %q (files: %s, %s)", s.Name, prev.Source, path)
		}
		result[s.Name] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
