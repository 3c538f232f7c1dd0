package config

import (
	"cmp"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/degraphmalizer/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Index is one configured target index.
type Index struct {
	Name string

	// Settings are passed to the index store when the index is created.
	// Nil when the configuration declares none.
	Settings ir.Document

	// Types maps each target type to its declaration.
	Types map[string]Type
}

// TypeNames returns the target type names in sorted order.
func (ix Index) TypeNames() []string {
	return slices.Sorted(maps.Keys(ix.Types))
}

// Type is one target type of an Index.
type Type struct {
	Config ir.TypeConfig

	// Mapping is the search engine mapping installed for the type. It does
	// not affect how documents are transformed.
	Mapping ir.Document
}

type sourceKey struct {
	index string
	typ   string
}

// Configuration is a parsed, validated type configuration.
//
// Thread-safety: immutable after construction and safe for concurrent use.
// Slices and maps returned by its methods must not be modified.
type Configuration struct {
	indices  map[string]Index
	bySource map[sourceKey][]ir.TypeConfig
}

// Empty returns a configuration with no indices.
func Empty() *Configuration {
	return &Configuration{
		indices:  map[string]Index{},
		bySource: map[sourceKey][]ir.TypeConfig{},
	}
}

// ConfigurationsFor returns the type configs whose source is (index, typ),
// ordered by target index then target type.
func (c *Configuration) ConfigurationsFor(index, typ string) []ir.TypeConfig {
	return c.bySource[sourceKey{index, typ}]
}

// Index returns the named target index.
func (c *Configuration) Index(name string) (Index, bool) {
	ix, ok := c.indices[name]
	return ix, ok
}

// Indices returns every target index, sorted by name.
func (c *Configuration) Indices() []Index {
	out := make([]Index, 0, len(c.indices))
	for _, name := range c.TargetIndexNames() {
		out = append(out, c.indices[name])
	}
	return out
}

// TargetIndexNames returns the target index names in sorted order.
func (c *Configuration) TargetIndexNames() []string {
	return slices.Sorted(maps.Keys(c.indices))
}

// SourceIndexNames returns every index read by some type config, sorted
// and without duplicates.
func (c *Configuration) SourceIndexNames() []string {
	var out []string
	for k := range c.bySource {
		out = append(out, k.index)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// All returns every type config ordered by target index then target type.
func (c *Configuration) All() []ir.TypeConfig {
	var out []ir.TypeConfig
	for _, ix := range c.Indices() {
		for _, name := range ix.TypeNames() {
			out = append(out, ix.Types[name].Config)
		}
	}
	return out
}

// Parse compiles a single CUE source. filename is used in error positions.
func Parse(filename string, src []byte) (*Configuration, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, cueError(filename, err)
	}
	return fromValue(ctx, v)
}

// Load compiles the CUE package in dir.
func Load(dir string) (*Configuration, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Path: dir, Message: fmt.Sprintf("config directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &Error{Path: dir, Message: "not a directory"}
	}
	files, err := cueFiles(dir)
	if err != nil {
		return nil, &Error{Path: dir, Message: fmt.Sprintf("scan: %v", err)}
	}
	if len(files) == 0 {
		return nil, &Error{Path: dir, Message: "no CUE files found"}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Path: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueError(dir, inst.Err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, cueError(dir, err)
	}
	return fromValue(ctx, v)
}

func cueFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func fromValue(ctx *cue.Context, v cue.Value) (*Configuration, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	v = schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError("", err)
	}

	cfg := Empty()
	indexVal := v.LookupPath(cue.ParsePath("index"))
	if !indexVal.Exists() {
		return cfg, nil
	}
	iter, err := indexVal.Fields()
	if err != nil {
		return nil, cueError("index", err)
	}
	for iter.Next() {
		ix, err := parseIndex(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		cfg.indices[ix.Name] = ix
		for _, name := range ix.TypeNames() {
			tc := ix.Types[name].Config
			k := sourceKey{tc.SourceIndex, tc.SourceType}
			cfg.bySource[k] = append(cfg.bySource[k], tc)
		}
	}
	for _, list := range cfg.bySource {
		slices.SortFunc(list, func(a, b ir.TypeConfig) int {
			return cmp.Or(cmp.Compare(a.TargetIndex, b.TargetIndex), cmp.Compare(a.TargetType, b.TargetType))
		})
	}
	return cfg, nil
}

func parseIndex(name string, v cue.Value) (Index, error) {
	path := "index." + name
	ix := Index{Name: name, Types: map[string]Type{}}

	if s := v.LookupPath(cue.ParsePath("settings")); s.Exists() {
		doc, err := decodeDocument(path+".settings", s)
		if err != nil {
			return Index{}, err
		}
		ix.Settings = doc
	}

	iter, err := v.LookupPath(cue.ParsePath("types")).Fields()
	if err != nil {
		return Index{}, cueError(path+".types", err)
	}
	for iter.Next() {
		typ, err := parseType(name, iter.Label(), iter.Value())
		if err != nil {
			return Index{}, err
		}
		ix.Types[iter.Label()] = typ
	}
	if len(ix.Types) == 0 {
		return Index{}, &Error{Path: path, Message: "index declares no types", Pos: v.Pos()}
	}
	return ix, nil
}

func parseType(index, name string, v cue.Value) (Type, error) {
	path := "index." + index + ".types." + name
	tc := ir.TypeConfig{Name: name, TargetIndex: index, TargetType: name}

	var err error
	if tc.SourceIndex, err = v.LookupPath(cue.ParsePath("source_index")).String(); err != nil {
		return Type{}, cueError(path+".source_index", err)
	}
	if tc.SourceType, err = v.LookupPath(cue.ParsePath("source_type")).String(); err != nil {
		return Type{}, cueError(path+".source_type", err)
	}
	if f := v.LookupPath(cue.ParsePath("fields")); f.Exists() {
		if err := f.Decode(&tc.Mapping.Fields); err != nil {
			return Type{}, cueError(path+".fields", err)
		}
	}
	if r := v.LookupPath(cue.ParsePath("rename")); r.Exists() {
		if err := r.Decode(&tc.Mapping.Rename); err != nil {
			return Type{}, cueError(path+".rename", err)
		}
	}
	if s := v.LookupPath(cue.ParsePath("static")); s.Exists() {
		doc, err := decodeDocument(path+".static", s)
		if err != nil {
			return Type{}, err
		}
		tc.Mapping.Static = doc
	}

	typ := Type{Config: tc}
	if m := v.LookupPath(cue.ParsePath("mapping")); m.Exists() {
		doc, err := decodeDocument(path+".mapping", m)
		if err != nil {
			return Type{}, err
		}
		typ.Mapping = doc
	}
	return typ, nil
}

// decodeDocument goes through JSON so numbers stay json.Number.
func decodeDocument(path string, v cue.Value) (ir.Document, error) {
	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, cueError(path, err)
	}
	doc, err := ir.DecodeDocument(raw)
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error(), Pos: v.Pos()}
	}
	return doc, nil
}
