package scripting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/game/random"
)

// globalAreaID is the reserved key for shared scripts loaded via LoadGlobal.
// CallHook falls back to this VM when no area VM is found.
const globalAreaID = "__global__"

// EnemyInfo is a snapshot of an enemy passed to Lua callbacks.
type EnemyInfo struct {
	ID    string
	Kind  string
	HP    float64
	MaxHP float64
}

// vm is one sandboxed LState. An LState is single-threaded, so every call
// holds mu.
type vm struct {
	mu     sync.Mutex
	L      *lua.LState
	cancel context.CancelFunc
	limit  int
}

// Manager owns one sandboxed LState per area plus an optional global one and
// exposes hook dispatch. All methods are safe for concurrent use; calls into
// the same VM are serialized.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	src    random.Source
	logger *zap.Logger

	// Injected after construction. nil = engine.enemy.get returns nil.
	GetEnemy func(id string) *EnemyInfo
}

// NewManager creates a Manager.
//
// Precondition: src and logger must be non-nil.
// Postcondition: Returns a non-nil Manager with no VMs loaded.
func NewManager(src random.Source, logger *zap.Logger) *Manager {
	if src == nil {
		panic("scripting.NewManager: src must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		vms:    make(map[string]*vm),
		src:    src,
		logger: logger,
	}
}

// LoadArea creates a sandboxed VM for areaID, registers all engine.* modules,
// then executes every *.lua file in scriptDir in lexicographic order.
//
// Precondition: areaID must be non-empty; scriptDir must be a readable directory.
// Postcondition: Area VM is registered, replacing any previous one; returns
// error on Lua load failure.
func (m *Manager) LoadArea(areaID, scriptDir string, instLimit int) error {
	if areaID == "" {
		return fmt.Errorf("scripting: area id must not be empty")
	}
	return m.loadInto(areaID, scriptDir, instLimit)
}

// LoadGlobal creates the shared VM used as a CallHook fallback from any area.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Global VM is registered; returns error on Lua load failure.
func (m *Manager) LoadGlobal(scriptDir string, instLimit int) error {
	return m.loadInto(globalAreaID, scriptDir, instLimit)
}

// HasScripts reports whether an area VM or the global VM is loaded for areaID.
func (m *Manager) HasScripts(areaID string) bool {
	return m.lookup(areaID) != nil
}

func (m *Manager) loadInto(key, scriptDir string, instLimit int) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", scriptDir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L, cancel := NewSandboxedState(instLimit)
	m.RegisterModules(L)
	for _, path := range luaFiles {
		err := WithInstructionLimit(L, instLimit, func() error { return L.DoFile(path) })
		if err != nil {
			cancel()
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	old := m.vms[key]
	m.vms[key] = &vm{L: L, cancel: cancel, limit: instLimit}
	m.mu.Unlock()

	if old != nil {
		old.close()
	}
	m.logger.Debug("scripts loaded", zap.String("area", key), zap.Int("files", len(luaFiles)))
	return nil
}

func (m *Manager) lookup(areaID string) *vm {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.vms[areaID]; ok {
		return v
	}
	return m.vms[globalAreaID]
}

// CallHook calls the named Lua global function in areaID's VM. If the area has
// no VM, the global VM is tried as a fallback. Returns (LNil, nil) if the
// hook is not defined or no VM exists. Lua runtime errors, including an
// exhausted instruction budget, are logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(areaID, hook string, args ...lua.LValue) (lua.LValue, error) {
	v := m.lookup(areaID)
	if v == nil {
		m.logger.Debug("scripting: no VM for area",
			zap.String("area", areaID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.L == nil {
		return lua.LNil, nil
	}

	fn := v.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return lua.LNil, nil
	}

	err := WithInstructionLimit(v.L, v.limit, func() error {
		return v.L.CallByParam(lua.P{
			Fn:      fn,
			NRet:    1,
			Protect: true,
		}, args...)
	})
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("area", areaID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		v.L.SetTop(0)
		return lua.LNil, nil
	}

	ret := v.L.Get(-1)
	v.L.Pop(1)
	return ret, nil
}

// Close releases every VM. Later CallHook calls return LNil.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()

	for _, v := range vms {
		v.close()
	}
}

func (v *vm) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.L == nil {
		return
	}
	v.cancel()
	v.L.Close()
	v.L = nil
}
