package data

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/core/value"
	"github.com/seum-lang/worldcore/internal/patch"
	"github.com/seum-lang/worldcore/internal/world"
)

// ValueSpec is the YAML form of a rich value:
//
//	{type: fixed, value: "1.5"}
//	{type: unit, value: "3", dim: KRW}
//	{type: list, items: [...]}
//	{type: map, entries: [{key: ..., value: ...}]}
type ValueSpec struct {
	Type    string      `yaml:"type"`
	Value   string      `yaml:"value"`
	Dim     string      `yaml:"dim"`
	Items   []ValueSpec `yaml:"items"`
	Entries []EntrySpec `yaml:"entries"`
}

type EntrySpec struct {
	Key   ValueSpec `yaml:"key"`
	Value ValueSpec `yaml:"value"`
}

type entitySpec struct {
	ID         uint64            `yaml:"id"`
	Components map[string]string `yaml:"components"`
}

type setupSpec struct {
	JSON     map[string]string    `yaml:"json"`
	Fixed64  map[string]string    `yaml:"fixed64"`
	Handles  map[string]string    `yaml:"handles"` // "#<16 hex>" or content to address
	Values   map[string]ValueSpec `yaml:"values"`
	Entities []entitySpec         `yaml:"entities"`
}

type originSpec struct {
	Entity *uint64 `yaml:"entity"`
	System string  `yaml:"system"`
}

type opSpec struct {
	Op      string     `yaml:"op"`
	Entity  uint64     `yaml:"entity"`
	Tag     string     `yaml:"tag"`
	Key     string     `yaml:"key"`
	Value   string     `yaml:"value"`
	Rich    *ValueSpec `yaml:"rich"`
	Dim     string     `yaml:"dim"`
	Rule    string     `yaml:"rule"`
	Name    string     `yaml:"name"`
	Targets []string   `yaml:"targets"`
}

type tickSpec struct {
	Tick   uint64     `yaml:"tick"`
	Origin originSpec `yaml:"origin"`
	Ops    []opSpec   `yaml:"ops"`
}

type scenarioFile struct {
	Name             string     `yaml:"name"`
	ExcludedPrefixes []string   `yaml:"excluded_prefixes"`
	Setup            setupSpec  `yaml:"setup"`
	Ticks            []tickSpec `yaml:"ticks"`
	Expect           struct {
		StateHash    string `yaml:"state_hash"`
		FilteredHash string `yaml:"filtered_hash"`
	} `yaml:"expect"`
}

// TickPatch is one scenario patch scheduled for a tick.
type TickPatch struct {
	Tick  uint64
	Patch patch.Patch
}

// Scenario is a loaded scenario: bootstrap state plus scheduled patches.
// All keys and tags are NFC-normalised so composed and decomposed Hangul
// name the same slot.
type Scenario struct {
	Name             string
	ExcludedPrefixes []string

	setup   setupSpec
	patches []TickPatch

	expectFull     string
	expectFiltered string
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := ParseScenario(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(raw []byte) (*Scenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc := &Scenario{
		Name:           f.Name,
		setup:          f.Setup,
		expectFull:     strings.ToLower(f.Expect.StateHash),
		expectFiltered: strings.ToLower(f.Expect.FilteredHash),
	}
	for _, p := range f.ExcludedPrefixes {
		sc.ExcludedPrefixes = append(sc.ExcludedPrefixes, Normalize(p))
	}
	for i, ts := range f.Ticks {
		if ts.Tick == 0 {
			return nil, fmt.Errorf("tick entry %d: tick 0 is the bootstrap state", i)
		}
		p, err := compilePatch(ts)
		if err != nil {
			return nil, fmt.Errorf("tick entry %d (tick %d): %w", i, ts.Tick, err)
		}
		sc.patches = append(sc.patches, TickPatch{Tick: ts.Tick, Patch: p})
	}
	// stable: patches of one tick keep file order
	slices.SortStableFunc(sc.patches, func(a, b TickPatch) int { return cmp.Compare(a.Tick, b.Tick) })
	// validate setup eagerly so Bootstrap cannot fail half way
	if err := sc.Bootstrap(world.New()); err != nil {
		return nil, err
	}
	return sc, nil
}

// Normalize returns the NFC form of s.
func Normalize(s string) string { return norm.NFC.String(s) }

// Bootstrap writes the setup state into w using the plain setters. Keys are
// visited in NFC order; two keys that normalise to the same slot are an error.
func (sc *Scenario) Bootstrap(w *world.World) error {
	keys, err := normalizedKeys("setup json", sc.setup.JSON)
	if err != nil {
		return err
	}
	for _, k := range keys {
		w.SetResourceJSON(k.norm, sc.setup.JSON[k.raw])
	}

	if keys, err = normalizedKeys("setup fixed64", sc.setup.Fixed64); err != nil {
		return err
	}
	for _, k := range keys {
		f, err := fixed.Parse(sc.setup.Fixed64[k.raw])
		if err != nil {
			return fmt.Errorf("setup fixed64 %s: %w", k.raw, err)
		}
		w.SetResourceFixed64(k.norm, f)
	}

	if keys, err = normalizedKeys("setup handles", sc.setup.Handles); err != nil {
		return err
	}
	for _, k := range keys {
		h, err := ParseHandleSpec(sc.setup.Handles[k.raw])
		if err != nil {
			return fmt.Errorf("setup handle %s: %w", k.raw, err)
		}
		w.SetResourceHandle(k.norm, h)
	}

	if keys, err = normalizedKeys("setup values", sc.setup.Values); err != nil {
		return err
	}
	for _, k := range keys {
		v, err := sc.setup.Values[k.raw].Build()
		if err != nil {
			return fmt.Errorf("setup value %s: %w", k.raw, err)
		}
		w.SetResourceValue(k.norm, v)
	}

	for i, e := range sc.setup.Entities {
		tags, err := normalizedKeys(fmt.Sprintf("setup entity %d components", i), e.Components)
		if err != nil {
			return err
		}
		id := ecs.EntityID(e.ID)
		if id.IsZero() {
			id = w.Spawn()
		} else {
			w.EnsureEntity(id)
		}
		for _, tag := range tags {
			w.SetComponent(id, ecs.Tag(tag.norm), e.Components[tag.raw])
		}
	}
	return nil
}

type normKey struct {
	raw, norm string
}

// normalizedKeys returns m's keys ordered by their NFC form.
func normalizedKeys[V any](section string, m map[string]V) ([]normKey, error) {
	keys := make([]normKey, 0, len(m))
	for raw := range m {
		keys = append(keys, normKey{raw: raw, norm: Normalize(raw)})
	}
	slices.SortFunc(keys, func(a, b normKey) int {
		if c := strings.Compare(a.norm, b.norm); c != 0 {
			return c
		}
		return strings.Compare(a.raw, b.raw)
	})
	for i := 1; i < len(keys); i++ {
		if keys[i].norm == keys[i-1].norm {
			return nil, fmt.Errorf("%s: key %q duplicates %q after NFC normalisation", section, keys[i].raw, keys[i-1].raw)
		}
	}
	return keys, nil
}

// PatchesFor returns the patches scheduled for tick, in file order.
func (sc *Scenario) PatchesFor(tick uint64) []patch.Patch {
	var out []patch.Patch
	for _, tp := range sc.patches {
		if tp.Tick == tick {
			out = append(out, tp.Patch)
		}
	}
	return out
}

// Patches returns every scheduled patch ordered by tick.
func (sc *Scenario) Patches() []TickPatch { return slices.Clone(sc.patches) }

// LastTick is the highest scheduled tick, or zero.
func (sc *Scenario) LastTick() uint64 {
	if len(sc.patches) == 0 {
		return 0
	}
	return sc.patches[len(sc.patches)-1].Tick
}

// ExpectedHash returns the expected final full hash, if the file has one.
func (sc *Scenario) ExpectedHash() (world.Digest, bool) {
	return world.ParseDigest(sc.expectFull)
}

// ExpectedFilteredHash returns the expected hash excluding ExcludedPrefixes.
func (sc *Scenario) ExpectedFilteredHash() (world.Digest, bool) {
	return world.ParseDigest(sc.expectFiltered)
}

// ParseHandleSpec reads "#<16 hex digits>" literally; anything else is
// content whose handle is derived.
func ParseHandleSpec(s string) (value.Handle, error) {
	if hexPart, ok := strings.CutPrefix(s, "#"); ok {
		h, ok := value.ParseHandle(hexPart)
		if !ok {
			return 0, fmt.Errorf("bad handle literal %q", s)
		}
		return h, nil
	}
	return value.HandleOf([]byte(s)), nil
}

// Build converts a ValueSpec into a value.
func (s ValueSpec) Build() (value.Value, error) {
	switch s.Type {
	case "", "none":
		return value.None{}, nil
	case "bool":
		switch s.Value {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		}
		return nil, fmt.Errorf("bad bool %q", s.Value)
	case "fixed":
		f, err := fixed.Parse(s.Value)
		if err != nil {
			return nil, err
		}
		return value.FixedOf(f), nil
	case "unit":
		f, err := fixed.Parse(s.Value)
		if err != nil {
			return nil, err
		}
		return value.Unit{Amount: f, Dim: value.Dim(Normalize(s.Dim))}, nil
	case "string":
		return value.String(Normalize(s.Value)), nil
	case "handle":
		return ParseHandleSpec(s.Value)
	case "list", "set":
		items := make([]value.Value, 0, len(s.Items))
		for i, it := range s.Items {
			v, err := it.Build()
			if err != nil {
				return nil, fmt.Errorf("%s item %d: %w", s.Type, i, err)
			}
			items = append(items, v)
		}
		if s.Type == "set" {
			return value.NewSet(items...), nil
		}
		return value.NewList(items...), nil
	case "map":
		entries := make([]value.MapEntry, 0, len(s.Entries))
		for i, e := range s.Entries {
			k, err := e.Key.Build()
			if err != nil {
				return nil, fmt.Errorf("map key %d: %w", i, err)
			}
			v, err := e.Value.Build()
			if err != nil {
				return nil, fmt.Errorf("map value %d: %w", i, err)
			}
			entries = append(entries, value.MapEntry{Key: k, Value: v})
		}
		return value.NewMap(entries...), nil
	}
	return nil, fmt.Errorf("unknown value type %q", s.Type)
}

func compilePatch(ts tickSpec) (patch.Patch, error) {
	var origin patch.Origin
	switch {
	case ts.Origin.Entity != nil:
		origin = patch.FromEntity(ecs.EntityID(*ts.Origin.Entity))
	case ts.Origin.System != "":
		origin = patch.FromSystem(Normalize(ts.Origin.System))
	default:
		origin = patch.FromSystem("scenario")
	}
	ops := make([]patch.Op, 0, len(ts.Ops))
	for i, spec := range ts.Ops {
		op, err := compileOp(spec)
		if err != nil {
			return patch.Patch{}, fmt.Errorf("op %d (%s): %w", i, spec.Op, err)
		}
		ops = append(ops, op)
	}
	return patch.New(origin, ops...), nil
}

func compileOp(s opSpec) (patch.Op, error) {
	id := ecs.EntityID(s.Entity)
	tag := ecs.Tag(Normalize(s.Tag))
	key := Normalize(s.Key)
	switch s.Op {
	case "set_component":
		return patch.SetComponent{Entity: id, Tag: tag, Value: s.Value}, nil
	case "remove_component":
		return patch.RemoveComponent{Entity: id, Tag: tag}, nil
	case "set_resource_json":
		return patch.SetResourceJSON{Key: key, JSON: s.Value}, nil
	case "set_resource_fixed64":
		f, err := fixed.Parse(s.Value)
		if err != nil {
			return nil, err
		}
		return patch.SetResourceFixed64{Key: key, Value: f}, nil
	case "set_resource_handle":
		h, err := ParseHandleSpec(s.Value)
		if err != nil {
			return nil, err
		}
		return patch.SetResourceHandle{Key: key, Handle: h}, nil
	case "set_resource_value":
		if s.Rich == nil {
			return patch.SetResourceValue{Key: key, Value: value.None{}}, nil
		}
		v, err := s.Rich.Build()
		if err != nil {
			return nil, err
		}
		return patch.SetResourceValue{Key: key, Value: v}, nil
	case "div_assign_resource_fixed64":
		f, err := fixed.Parse(s.Value)
		if err != nil {
			return nil, err
		}
		return patch.DivAssignResourceFixed64{Key: key, RHS: value.Unit{Amount: f, Dim: value.Dim(Normalize(s.Dim))}}, nil
	case "emit_signal":
		sig := signal.Signal{Kind: signal.KindCustom, Name: s.Name, Targets: s.Targets}
		if s.Entity != 0 {
			sig = sig.ForEntity(id)
		}
		if s.Rich != nil {
			v, err := s.Rich.Build()
			if err != nil {
				return nil, err
			}
			sig.Payload = v
		}
		return patch.EmitSignal{Signal: sig}, nil
	case "guard_violation":
		return patch.GuardViolation{Entity: id, RuleID: s.Rule}, nil
	}
	return nil, fmt.Errorf("unknown op %q", s.Op)
}
