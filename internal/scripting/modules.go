package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers all engine.* Lua tables into L:
//
//	engine.log.debug/info/warn/error(msg)
//	engine.random.float()   -- [0, 1) from the Manager's random source
//	engine.random.int(n)    -- [1, n]
//	engine.enemy.get(id)    -- {id, kind, hp, max_hp} or nil
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()
	L.SetField(engine, "log", m.logModule(L))
	L.SetField(engine, "random", m.randomModule(L))
	L.SetField(engine, "enemy", m.enemyModule(L))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	levels := map[string]func(string, ...zap.Field){
		"debug": m.logger.Debug,
		"info":  m.logger.Info,
		"warn":  m.logger.Warn,
		"error": m.logger.Error,
	}
	for name, logFn := range levels {
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			logFn(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}))
	}
	return mod
}

func (m *Manager) randomModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "float", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(m.src.Float64()))
		return 1
	}))
	L.SetField(mod, "int", L.NewFunction(func(L *lua.LState) int {
		n := L.CheckInt(1)
		if n < 1 {
			L.ArgError(1, "n must be >= 1")
			return 0
		}
		L.Push(lua.LNumber(m.src.Intn(n) + 1))
		return 1
	}))
	return mod
}

func (m *Manager) enemyModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "get", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		if m.GetEnemy == nil {
			L.Push(lua.LNil)
			return 1
		}
		info := m.GetEnemy(id)
		if info == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(enemyToTable(L, info))
		return 1
	}))
	return mod
}

func enemyToTable(L *lua.LState, info *EnemyInfo) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "id", lua.LString(info.ID))
	L.SetField(tbl, "kind", lua.LString(info.Kind))
	L.SetField(tbl, "hp", lua.LNumber(info.HP))
	L.SetField(tbl, "max_hp", lua.LNumber(info.MaxHP))
	return tbl
}
