package scripting

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/seum-lang/worldcore/internal/core/ecs"
	"github.com/seum-lang/worldcore/internal/core/fixed"
	"github.com/seum-lang/worldcore/internal/core/signal"
	"github.com/seum-lang/worldcore/internal/core/value"
	"github.com/seum-lang/worldcore/internal/data"
	"github.com/seum-lang/worldcore/internal/patch"
	"github.com/seum-lang/worldcore/internal/world"
)

// TickFunc is the global Lua function called once per tick.
const TickFunc = "on_tick"

// Engine wraps a single gopher-lua VM that turns world state into one patch
// per tick. Scripts read the world through the `world` table and describe
// mutations through the `patch` table; they never mutate the world directly.
// Single-goroutine access only.
type Engine struct {
	vm     *lua.LState
	log    *zap.Logger
	system string

	// valid only during BuildPatch
	w      *world.World
	ops    []patch.Op
	origin patch.Origin
}

// NewEngine creates a VM and loads every .lua file in scriptsDir in name
// order. system names the origin of patches that do not set one.
func NewEngine(scriptsDir, system string, log *zap.Logger) (*Engine, error) {
	e := newEngine(system, log)
	if err := e.loadDir(scriptsDir); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("load scripts: %w", err)
	}
	return e, nil
}

// NewEngineFromSource creates a VM running a single in-memory script.
func NewEngineFromSource(src, system string, log *zap.Logger) (*Engine, error) {
	e := newEngine(system, log)
	if err := e.vm.DoString(src); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	return e, nil
}

func newEngine(system string, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{vm: vm, log: log, system: system}
	e.registerWorld()
	e.registerPatch()
	return e
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// HasTick reports whether the loaded scripts define on_tick.
func (e *Engine) HasTick() bool {
	return e.vm.GetGlobal(TickFunc) != lua.LNil
}

// BuildPatch calls on_tick(tick) against a read-only view of w and returns
// the patch it described. ok is false when no on_tick is defined.
func (e *Engine) BuildPatch(w *world.World, tick uint64) (p patch.Patch, ok bool, err error) {
	fn := e.vm.GetGlobal(TickFunc)
	if fn == lua.LNil {
		return patch.Patch{}, false, nil
	}
	e.w = w
	e.ops = nil
	e.origin = patch.FromSystem(e.system)
	defer func() { e.w = nil }()

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(tick)); err != nil {
		return patch.Patch{}, true, fmt.Errorf("lua %s(%d): %w", TickFunc, tick, err)
	}
	return patch.New(e.origin, e.ops...), true, nil
}

func (e *Engine) Close() {
	e.vm.Close()
}

func (e *Engine) registerWorld() {
	t := e.vm.NewTable()
	e.vm.SetFuncs(t, map[string]lua.LGFunction{
		"get_component": e.luaGetComponent,
		"query":         e.luaQuery,
		"get_json":      e.luaGetJSON,
		"get_fixed":     e.luaGetFixed,
		"get_handle":    e.luaGetHandle,
		"next_entity":   e.luaNextEntity,
		"state_hash":    e.luaStateHash,
	})
	e.vm.SetGlobal("world", t)
}

func (e *Engine) registerPatch() {
	t := e.vm.NewTable()
	e.vm.SetFuncs(t, map[string]lua.LGFunction{
		"origin_entity":    e.luaOriginEntity,
		"origin_system":    e.luaOriginSystem,
		"set_component":    e.luaSetComponent,
		"remove_component": e.luaRemoveComponent,
		"set_json":         e.luaSetJSON,
		"set_fixed":        e.luaSetFixed,
		"set_handle":       e.luaSetHandle,
		"set_value":        e.luaSetValue,
		"div_fixed":        e.luaDivFixed,
		"guard_violation":  e.luaGuardViolation,
		"emit":             e.luaEmit,
	})
	e.vm.SetGlobal("patch", t)
}

var errNoWorld = errors.New("world is only readable inside on_tick")

func (e *Engine) checkWorld(L *lua.LState) *world.World {
	if e.w == nil {
		L.RaiseError("%s", errNoWorld)
	}
	return e.w
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	v := float64(L.CheckNumber(n))
	if v < 0 || v >= math.MaxUint64 || math.Trunc(v) != v {
		L.ArgError(n, "entity id must be a non-negative integer")
	}
	return ecs.EntityID(v)
}

func checkTag(L *lua.LState, n int) ecs.Tag {
	return ecs.Tag(data.Normalize(L.CheckString(n)))
}

func checkKey(L *lua.LState, n int) string {
	return data.Normalize(L.CheckString(n))
}

// checkFixed accepts a decimal string or a Lua number. Strings are exact;
// numbers go through their shortest decimal form.
func checkFixed(L *lua.LState, n int) fixed.Fixed64 {
	var s string
	switch v := L.Get(n).(type) {
	case lua.LString:
		s = string(v)
	case lua.LNumber:
		s = strconv.FormatFloat(float64(v), 'f', -1, 64)
	default:
		L.TypeError(n, lua.LTString)
	}
	f, err := fixed.Parse(s)
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return f
}

func (e *Engine) luaGetComponent(L *lua.LState) int {
	w := e.checkWorld(L)
	v, ok := w.GetComponent(checkEntity(L, 1), checkTag(L, 2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v))
	return 1
}

func (e *Engine) luaQuery(L *lua.LState) int {
	w := e.checkWorld(L)
	tags := make([]ecs.Tag, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		tags = append(tags, checkTag(L, i))
	}
	out := L.NewTable()
	for _, id := range w.QueryAllTags(tags...) {
		out.Append(lua.LNumber(id))
	}
	L.Push(out)
	return 1
}

func (e *Engine) luaGetJSON(L *lua.LState) int {
	w := e.checkWorld(L)
	if v, ok := w.GetResourceJSON(checkKey(L, 1)); ok {
		L.Push(lua.LString(v))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (e *Engine) luaGetFixed(L *lua.LState) int {
	w := e.checkWorld(L)
	if v, ok := w.GetResourceFixed64(checkKey(L, 1)); ok {
		L.Push(lua.LString(v.String()))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (e *Engine) luaGetHandle(L *lua.LState) int {
	w := e.checkWorld(L)
	if v, ok := w.GetResourceHandle(checkKey(L, 1)); ok {
		L.Push(lua.LString("#" + v.String()))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

func (e *Engine) luaNextEntity(L *lua.LState) int {
	w := e.checkWorld(L)
	L.Push(lua.LNumber(w.NextEntityID()))
	return 1
}

func (e *Engine) luaStateHash(L *lua.LState) int {
	w := e.checkWorld(L)
	var prefixes []string
	for i := 1; i <= L.GetTop(); i++ {
		prefixes = append(prefixes, checkKey(L, i))
	}
	L.Push(lua.LString(w.StateHashExcluding(prefixes).Hex()))
	return 1
}

func (e *Engine) luaOriginEntity(L *lua.LState) int {
	e.origin = patch.FromEntity(checkEntity(L, 1))
	return 0
}

func (e *Engine) luaOriginSystem(L *lua.LState) int {
	e.origin = patch.FromSystem(data.Normalize(L.CheckString(1)))
	return 0
}

func (e *Engine) luaSetComponent(L *lua.LState) int {
	e.ops = append(e.ops, patch.SetComponent{Entity: checkEntity(L, 1), Tag: checkTag(L, 2), Value: L.CheckString(3)})
	return 0
}

func (e *Engine) luaRemoveComponent(L *lua.LState) int {
	e.ops = append(e.ops, patch.RemoveComponent{Entity: checkEntity(L, 1), Tag: checkTag(L, 2)})
	return 0
}

func (e *Engine) luaSetJSON(L *lua.LState) int {
	e.ops = append(e.ops, patch.SetResourceJSON{Key: checkKey(L, 1), JSON: L.CheckString(2)})
	return 0
}

func (e *Engine) luaSetFixed(L *lua.LState) int {
	e.ops = append(e.ops, patch.SetResourceFixed64{Key: checkKey(L, 1), Value: checkFixed(L, 2)})
	return 0
}

func (e *Engine) luaSetHandle(L *lua.LState) int {
	h, err := data.ParseHandleSpec(L.CheckString(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	e.ops = append(e.ops, patch.SetResourceHandle{Key: checkKey(L, 1), Handle: h})
	return 0
}

func (e *Engine) luaSetValue(L *lua.LState) int {
	key := checkKey(L, 1)
	v, err := toValue(L.Get(2))
	if err != nil {
		L.ArgError(2, err.Error())
	}
	e.ops = append(e.ops, patch.SetResourceValue{Key: key, Value: v})
	return 0
}

func (e *Engine) luaDivFixed(L *lua.LState) int {
	key := checkKey(L, 1)
	rhs := value.Unit{Amount: checkFixed(L, 2), Dim: value.Dim(data.Normalize(L.OptString(3, "")))}
	e.ops = append(e.ops, patch.DivAssignResourceFixed64{Key: key, RHS: rhs})
	return 0
}

func (e *Engine) luaGuardViolation(L *lua.LState) int {
	e.ops = append(e.ops, patch.GuardViolation{Entity: checkEntity(L, 1), RuleID: L.CheckString(2)})
	return 0
}

func (e *Engine) luaEmit(L *lua.LState) int {
	sig := signal.Signal{Kind: signal.KindCustom, Name: L.CheckString(1)}
	if tbl, ok := L.Get(2).(*lua.LTable); ok {
		for i := 1; i <= tbl.Len(); i++ {
			sig.Targets = append(sig.Targets, lua.LVAsString(tbl.RawGetInt(i)))
		}
	}
	if L.GetTop() >= 3 {
		v, err := toValue(L.Get(3))
		if err != nil {
			L.ArgError(3, err.Error())
		}
		sig.Payload = v
	}
	e.ops = append(e.ops, patch.EmitSignal{Signal: sig})
	return 0
}

// toValue converts a Lua value: nil→None, boolean→Bool, string→String,
// number→Fixed, sequence table→List, other table→Map. A table may not mix
// sequence and keyed entries, reference itself, or hold two keys that name
// the same map key after NFC normalisation and fixed-point truncation.
func toValue(lv lua.LValue) (value.Value, error) {
	return convert(lv, make(map[*lua.LTable]bool))
}

// convert tracks the tables on the current path in open.
func convert(lv lua.LValue, open map[*lua.LTable]bool) (value.Value, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return value.None{}, nil
	case lua.LBool:
		return value.Bool(bool(v)), nil
	case lua.LString:
		return value.String(data.Normalize(string(v))), nil
	case lua.LNumber:
		f, err := fixed.Parse(strconv.FormatFloat(float64(v), 'f', -1, 64))
		if err != nil {
			return nil, err
		}
		return value.FixedOf(f), nil
	case *lua.LTable:
		if open[v] {
			return nil, errCyclicTable
		}
		open[v] = true
		defer delete(open, v)
		return convertTable(v, open)
	}
	return nil, fmt.Errorf("unsupported lua type %s", lv.Type())
}

var errCyclicTable = errors.New("table references itself")

func convertTable(t *lua.LTable, open map[*lua.LTable]bool) (value.Value, error) {
	var keys []lua.LValue
	t.ForEach(func(k, _ lua.LValue) { keys = append(keys, k) })

	if n := t.Len(); n > 0 {
		if len(keys) > n {
			return nil, errors.New("table mixes sequence and keyed entries")
		}
		items := make([]value.Value, 0, n)
		for i := 1; i <= n; i++ {
			it, err := convert(t.RawGetInt(i), open)
			if err != nil {
				return nil, err
			}
			items = append(items, it)
		}
		return value.NewList(items...), nil
	}

	for _, k := range keys {
		switch k.(type) {
		case lua.LString, lua.LNumber, lua.LBool:
		default:
			return nil, fmt.Errorf("map key of type %s", k.Type())
		}
	}
	// ForEach walks Go maps; fix the order before anything depends on it
	slices.SortFunc(keys, compareLuaKeys)
	entries := make([]value.MapEntry, 0, len(keys))
	seen := make(map[string]lua.LValue, len(keys))
	for _, k := range keys {
		kv, err := convert(k, open)
		if err != nil {
			return nil, err
		}
		ck := value.CanonKey(kv)
		if prev, dup := seen[ck]; dup {
			return nil, fmt.Errorf("map keys %q and %q collide as %s", prev.String(), k.String(), ck)
		}
		seen[ck] = k
		vv, err := convert(t.RawGet(k), open)
		if err != nil {
			return nil, err
		}
		entries = append(entries, value.MapEntry{Key: kv, Value: vv})
	}
	return value.NewMap(entries...), nil
}

// compareLuaKeys orders raw keys by type, then by content.
func compareLuaKeys(a, b lua.LValue) int {
	if c := cmp.Compare(a.Type(), b.Type()); c != 0 {
		return c
	}
	switch x := a.(type) {
	case lua.LNumber:
		return cmp.Compare(float64(x), float64(b.(lua.LNumber)))
	case lua.LString:
		return strings.Compare(string(x), string(b.(lua.LString)))
	case lua.LBool:
		return cmp.Compare(boolRank(bool(x)), boolRank(bool(b.(lua.LBool))))
	}
	return 0
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
