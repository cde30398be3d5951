package encounter

import "time"

// Sound cues passed to Effects.PlaySound.
const (
	SoundWindup      = "telegraph_windup"
	SoundImminent    = "telegraph_imminent"
	SoundEvade       = "evade"
	SoundBlock       = "block"
	SoundPerfect     = "perfect_defense"
	SoundPlayerHurt  = "player_hurt"
	SoundEnemyHit    = "enemy_hit"
	SoundEnemyDeath  = "enemy_death"
	SoundPlayerDeath = "player_death"
)

// Effects receives the presentation side effects of an encounter. The
// encounter never renders or plays anything itself. Calls are synchronous
// and happen inside Tick.
type Effects interface {
	// Hitstop asks the presentation layer to freeze for d.
	Hitstop(d time.Duration)
	// CameraShake asks for a shake of the given intensity in [0, 1].
	CameraShake(intensity float64)
	PlaySound(name string)
}

// NopEffects discards every effect.
type NopEffects struct{}

func (NopEffects) Hitstop(time.Duration) {}
func (NopEffects) CameraShake(float64)   {}
func (NopEffects) PlaySound(string)      {}
