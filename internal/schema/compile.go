package schema

import (
	"fmt"
	"sync"
)

// Compiled is a schema ready to validate payloads. It is immutable after
// compilation and safe for concurrent use.
type Compiled struct {
	name        string
	version     string
	description string
	strict      bool
	allowExtra  bool
	fields      []*compiledField
	byName      map[string]*compiledField
}

// Name returns the schema's name.
func (s *Compiled) Name() string { return s.name }

// Version returns the schema's declared version, possibly empty.
func (s *Compiled) Version() string { return s.version }

// Description returns the schema's free-form description.
func (s *Compiled) Description() string { return s.description }

type compiledField struct {
	def    *FieldDef
	checks []checkFunc
	item   *Compiled // list of nested objects
	nested *Compiled // dict with a nested schema
}

type cacheKey struct {
	name    string
	version string
}

// Compiler compiles schema definitions, resolving references and caching the
// results by (name, version). Custom predicates registered here become
// available to "custom" validators.
type Compiler struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
	cache      map[cacheKey]*Compiled
}

// NewCompiler returns an empty compiler.
func NewCompiler() *Compiler {
	return &Compiler{
		predicates: make(map[string]Predicate),
		cache:      make(map[cacheKey]*Compiled),
	}
}

// RegisterPredicate makes a named pure predicate available to custom
// validators. Re-registering a name replaces the previous predicate.
func (c *Compiler) RegisterPredicate(name string, p Predicate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.predicates[name] = p
}

// Lookup returns a previously compiled schema. Version may be empty when the
// schema was declared without one.
func (c *Compiler) Lookup(name, version string) (*Compiled, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.cache[cacheKey{name: name, version: version}]
	return s, ok
}

// LookupByName returns any cached version of the named schema.
func (c *Compiler) LookupByName(name string) (*Compiled, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, s := range c.cache {
		if k.name == name {
			return s, true
		}
	}
	return nil, false
}

// Compile compiles a single definition. References to other schemas resolve
// against the compiler's cache only.
func (c *Compiler) Compile(def *Definition) (*Compiled, error) {
	out, err := c.CompileBatch([]Definition{*def})
	if err != nil {
		return nil, err
	}
	return out[def.Name], nil
}

// CompileBatch compiles a set of definitions together. References between
// members of the batch resolve within it; anything else must already be in
// the cache. Reference cycles are rejected. On success every compiled schema
// enters the cache, replacing any previous entry with the same name+version.
func (c *Compiler) CompileBatch(defs []Definition) (map[string]*Compiled, error) {
	byName := make(map[string]*Definition, len(defs))
	for i := range defs {
		def := &defs[i]
		if err := def.check(); err != nil {
			return nil, err
		}
		if _, dup := byName[def.Name]; dup {
			return nil, &ParseError{Schema: def.Name, Msg: "schema names must be unique within a batch"}
		}
		byName[def.Name] = def
	}

	if cycle := findRefCycle(byName); cycle != "" {
		return nil, &ParseError{Schema: cycle, Msg: "schema reference cycle"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Two passes: allocate shells first so in-batch references can link,
	// then fill in fields.
	compiled := make(map[string]*Compiled, len(defs))
	for name, def := range byName {
		compiled[name] = &Compiled{
			name:        def.Name,
			version:     def.Version,
			description: def.Description,
			strict:      def.Strict,
			allowExtra:  def.AllowExtra,
			byName:      make(map[string]*compiledField, len(def.Fields)),
		}
	}

	resolve := func(name string) (*Compiled, error) {
		if s, ok := compiled[name]; ok {
			return s, nil
		}
		// Fall back to any cached version of the named schema.
		for k, s := range c.cache {
			if k.name == name {
				return s, nil
			}
		}
		return nil, fmt.Errorf("unresolved schema reference %q", name)
	}

	for name, def := range byName {
		target := compiled[name]
		for i := range def.Fields {
			fd := def.Fields[i]
			cf := &compiledField{def: &fd}

			for j := range fd.Validators {
				check, err := compileValidator(&fd.Validators[j], fd.Name, c.predicates)
				if err != nil {
					return nil, &ParseError{Schema: name, Field: fd.Name, Msg: err.Error(), Err: err}
				}
				cf.checks = append(cf.checks, check)
			}

			if fd.ItemSchema != "" {
				ref, err := resolve(fd.ItemSchema)
				if err != nil {
					return nil, &ParseError{Schema: name, Field: fd.Name, Msg: err.Error(), Err: err}
				}
				cf.item = ref
			}
			if fd.NestedSchema != "" {
				ref, err := resolve(fd.NestedSchema)
				if err != nil {
					return nil, &ParseError{Schema: name, Field: fd.Name, Msg: err.Error(), Err: err}
				}
				cf.nested = ref
			}

			target.fields = append(target.fields, cf)
			target.byName[fd.Name] = cf
		}
	}

	for name, s := range compiled {
		c.cache[cacheKey{name: name, version: s.version}] = s
	}
	return compiled, nil
}

// findRefCycle detects reference cycles among the batch's definitions.
// References leaving the batch cannot cycle back: cached schemas are already
// compiled, so they only reference other compiled schemas.
func findRefCycle(defs map[string]*Definition) string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := make(map[string]int, len(defs))

	var visit func(name string) string
	visit = func(name string) string {
		def, ok := defs[name]
		if !ok {
			return ""
		}
		switch state[name] {
		case grey:
			return name
		case black:
			return ""
		}
		state[name] = grey
		for i := range def.Fields {
			f := &def.Fields[i]
			for _, ref := range []string{f.ItemSchema, f.NestedSchema} {
				if ref == "" {
					continue
				}
				if hit := visit(ref); hit != "" {
					return hit
				}
			}
		}
		state[name] = black
		return ""
	}

	for name := range defs {
		if hit := visit(name); hit != "" {
			return hit
		}
	}
	return ""
}
