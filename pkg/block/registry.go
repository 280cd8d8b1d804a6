package block

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"
)

// Source identifies which of the three discovery roots a block came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceCustom  Source = "custom"
	SourceUser    Source = "user"
)

// Info is the registry's public view of one block: schema + source +
// availability + declared dependencies + error if unavailable.
type Info struct {
	Contract
	Source    Source `json:"source"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type entry struct {
	factory   Factory
	contract  Contract
	source    Source
	available bool
	err       string
}

// Registry discovers blocks from three directory roots — builtin (compiled
// in), custom (system-level extensions, loaded as Go plugins) and user
// (mounted at runtime, also plugins) — and tracks each one's source and
// availability. Builtin identifiers shadow user/custom identifiers on
// collision. Readers take a read lock and Register/Unregister take the
// write lock, so each single entry changes atomically; DiscoverDir
// registers its plugins one at a time, so a reader during discovery may
// see some of that pass's entries and not yet the others.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry. Call RegisterBuiltin for each
// compiled-in block, then DiscoverDir for the custom/user plugin directories.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// RegisterBuiltin registers a compiled-in block. Builtin registrations
// always win ties against custom/user directory discovery (see DiscoverDir).
func (r *Registry) RegisterBuiltin(name string, factory Factory, contract Contract) {
	r.Register(name, factory, contract, SourceBuiltin, true, "")
}

// Register installs (or replaces) one entry. Source "builtin" blocks are
// never overwritten by a later call with a different source for the same
// name — discovery must call Register for builtin blocks first.
func (r *Registry) Register(name string, factory Factory, contract Contract, source Source, available bool, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[name]; ok && existing.source == SourceBuiltin && source != SourceBuiltin {
		return
	}
	r.entries[name] = entry{factory: factory, contract: contract, source: source, available: available, err: errMsg}
}

// Unregister removes a block type. No-op if absent.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// GetClass returns the factory for a block type, or false if unknown —
// the Go analogue of Python's get_block_class.
func (r *Registry) GetClass(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.factory, true
}

// GetContract returns the declared contract for a block type.
func (r *Registry) GetContract(name string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Contract{}, false
	}
	return e.contract, true
}

// ListTypes returns every registered block type name.
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSource returns the source of a block type, if known.
func (r *Registry) GetSource(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return "", false
	}
	return e.source, true
}

// List returns every registered block's Info, for the block-list API.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Info{Contract: e.contract, Source: e.source, Available: e.available, Error: e.err})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BlockDef is the {type, config} shape pipelines store per block.
type BlockDef struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// ComputeAccumulatedStateSchema returns the sorted, deduplicated union of
// every declared output field across the given block list, used by the
// review UI to propose editable fields.
func (r *Registry) ComputeAccumulatedStateSchema(blocks []BlockDef) []string {
	fields := make(map[string]struct{})
	for _, b := range blocks {
		contract, ok := r.GetContract(b.Type)
		if !ok {
			continue
		}
		for _, o := range contract.Outputs {
			fields[o] = struct{}{}
		}
	}
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// pluginSymbolFactory and pluginSymbolContract are the exported symbol
// names every custom/user block plugin (.so) must define:
//
//	var BlockFactory block.Factory
//	var BlockContract block.Contract
const (
	pluginSymbolFactory  = "BlockFactory"
	pluginSymbolContract = "BlockContract"
)

// DiscoverDir loads each *.so plugin path in files (the caller lists
// them; dir itself is not scanned) and registers the block it exposes
// under the given source. Load failures are recorded as
// unavailable entries (name derived from the file stem) rather than
// aborting discovery — one bad plugin must not hide the others.
func (r *Registry) DiscoverDir(dir string, source Source, files []string) []error {
	var errs []error
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".so")
		p, err := plugin.Open(path)
		if err != nil {
			r.Register(name, nil, Contract{Name: name}, source, false, err.Error())
			errs = append(errs, fmt.Errorf("loading plugin %s: %w", path, err))
			continue
		}
		factorySym, err := p.Lookup(pluginSymbolFactory)
		if err != nil {
			r.Register(name, nil, Contract{Name: name}, source, false, err.Error())
			errs = append(errs, fmt.Errorf("plugin %s missing %s: %w", path, pluginSymbolFactory, err))
			continue
		}
		factory, ok := factorySym.(*Factory)
		if !ok {
			err := fmt.Errorf("plugin %s: %s has wrong type", path, pluginSymbolFactory)
			r.Register(name, nil, Contract{Name: name}, source, false, err.Error())
			errs = append(errs, err)
			continue
		}
		var contract Contract
		if contractSym, err := p.Lookup(pluginSymbolContract); err == nil {
			if c, ok := contractSym.(*Contract); ok {
				contract = *c
			}
		}
		if contract.Name == "" {
			contract.Name = name
		}
		r.Register(contract.Name, *factory, contract, source, true, "")
	}
	return errs
}
