package service

import (
	"errors"

	"grid_adequacy/internal/models"
)

// ErrNotLoaded is returned by playback intents issued before the frame set is loaded.
var ErrNotLoaded = errors.New("frame set not loaded")

// TimerEffect is the side effect a playback transition asks the owner to apply.
type TimerEffect int

const (
	KeepTimer TimerEffect = iota
	ArmTimer
	DisarmTimer
)

func (e TimerEffect) String() string {
	switch e {
	case ArmTimer:
		return "arm"
	case DisarmTimer:
		return "disarm"
	default:
		return "keep"
	}
}

// Playback is the cursor state machine. It owns no timer; every transition
// reports whether the auto-advance timer must be armed or disarmed.
//
//	Loading --Load--> Idle(playing=autoplay)
//	Idle(p) --TogglePlay--> Idle(!p)
//	Idle(true) --Tick--> Idle(true), index=(index+1) mod len
//	Idle(*) --Scrub(k)--> Idle(false), index=clamp(k)
type Playback struct {
	loaded  bool
	length  int
	index   int
	playing bool
}

// NewPlayback returns a controller in the Loading state.
func NewPlayback() *Playback {
	return &Playback{}
}

// Load leaves the Loading state for a series of length years, positioned on the last one.
func (p *Playback) Load(length int, autoplay bool) TimerEffect {
	before := p.timerWanted()
	p.loaded = true
	p.length = length
	p.index = 0
	if length > 0 {
		p.index = length - 1
	}
	p.playing = autoplay
	return effect(before, p.timerWanted())
}

// TogglePlay flips playing.
func (p *Playback) TogglePlay() (TimerEffect, error) {
	if !p.loaded {
		return KeepTimer, ErrNotLoaded
	}
	before := p.timerWanted()
	p.playing = !p.playing
	return effect(before, p.timerWanted()), nil
}

// Tick advances one year circularly. It reports false when it did not apply.
func (p *Playback) Tick() bool {
	if !p.timerWanted() {
		return false
	}
	p.index = (p.index + 1) % p.length
	return true
}

// Scrub moves to clamp(k, 0, len-1) and always pauses.
func (p *Playback) Scrub(k int) (TimerEffect, error) {
	if !p.loaded {
		return KeepTimer, ErrNotLoaded
	}
	before := p.timerWanted()
	p.playing = false
	if p.length > 0 {
		p.index = clamp(k, 0, p.length-1)
	}
	return effect(before, p.timerWanted()), nil
}

// State returns the current cursor.
func (p *Playback) State() models.PlaybackState {
	return models.PlaybackState{Index: p.index, Playing: p.playing}
}

// Loaded reports whether Load was called.
func (p *Playback) Loaded() bool { return p.loaded }

// Len is the series length the controller was loaded with.
func (p *Playback) Len() int { return p.length }

func (p *Playback) timerWanted() bool {
	return p.loaded && p.playing && p.length > 0
}

func effect(before, after bool) TimerEffect {
	switch {
	case !before && after:
		return ArmTimer
	case before && !after:
		return DisarmTimer
	default:
		return KeepTimer
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
