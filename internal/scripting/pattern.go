package scripting

import (
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ChooseAttackHook is the Lua global consulted before every enemy telegraph:
//
//	function choose_attack(enemy_id, kind, corruption)
//	  return { windup = 0.8, direction = "left", damage = 12 }
//	end
//
// windup is in seconds; direction is "left", "right" or "any". Any field may
// be omitted to keep the enemy's default.
const ChooseAttackHook = "choose_attack"

// AttackPattern parameterizes one enemy telegraph.
type AttackPattern struct {
	Windup time.Duration
	// Direction is "", "left" or "right"; "" accepts either evade side.
	Direction  string
	BaseDamage float64
}

// AttackRequest identifies the enemy asking for its next attack.
type AttackRequest struct {
	AreaID     string
	EnemyID    string
	Kind       string
	Corruption int
}

// ChooseAttack asks the area's choose_attack hook for the next attack pattern.
// Fields the hook omits or returns out of range keep the fallback's value.
//
// Postcondition: Returns fallback unchanged when no hook is loaded, the hook
// fails, or it returns anything other than a table.
func (m *Manager) ChooseAttack(req AttackRequest, fallback AttackPattern) AttackPattern {
	ret, _ := m.CallHook(req.AreaID, ChooseAttackHook,
		lua.LString(req.EnemyID),
		lua.LString(req.Kind),
		lua.LNumber(req.Corruption),
	)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return fallback
	}

	p := fallback
	if v, ok := tbl.RawGetString("windup").(lua.LNumber); ok {
		if d := time.Duration(float64(v) * float64(time.Second)); d > 0 {
			p.Windup = d
		} else {
			m.rejectField(req, "windup", v.String())
		}
	}
	if v, ok := tbl.RawGetString("direction").(lua.LString); ok {
		switch string(v) {
		case "left", "right":
			p.Direction = string(v)
		case "any", "":
			p.Direction = ""
		default:
			m.rejectField(req, "direction", string(v))
		}
	}
	if v, ok := tbl.RawGetString("damage").(lua.LNumber); ok {
		if v >= 0 {
			p.BaseDamage = float64(v)
		} else {
			m.rejectField(req, "damage", v.String())
		}
	}
	return p
}

func (m *Manager) rejectField(req AttackRequest, field, value string) {
	m.logger.Warn("scripting: choose_attack returned invalid field",
		zap.String("area", req.AreaID),
		zap.String("enemy", req.EnemyID),
		zap.String("field", field),
		zap.String("value", value),
	)
}
