package world

import (
	"encoding/json"

	"github.com/google/uuid"

	"ctfbuddy.ai/internal/protocol"
)

// Presenter emits audio, visual and text cues. Calls are fire-and-forget.
type Presenter interface {
	PlaySound(at Location, sound string, volume, pitch float64)
	PlaySoundTo(player *Entity, sound string, volume, pitch float64)
	StopSound(player *Entity, sound string)
	ActionBar(player *Entity, text string)
	Message(player *Entity, color, text string)
	Particles(at Location, particle string, count int)
	PickupAnimation(collector, item *Entity)
}

// Presentation event names.
const (
	CueSound     = "SOUND"
	CueStopSound = "STOP_SOUND"
	CueActionBar = "ACTION_BAR"
	CueMessage   = "MESSAGE"
	CueParticles = "PARTICLES"
	CuePickup    = "PICKUP_ANIMATION"
)

func (w *World) PlaySound(at Location, sound string, volume, pitch float64) {
	w.broadcast(at.Realm, protocol.Event{
		"type":   CueSound,
		"sound":  sound,
		"realm":  at.Realm,
		"pos":    at.Pos.ToArray(),
		"volume": volume,
		"pitch":  pitch,
	})
}

func (w *World) PlaySoundTo(player *Entity, sound string, volume, pitch float64) {
	if player == nil {
		return
	}
	loc := player.Location()
	w.sendTo(player.ID(), protocol.Event{
		"type":   CueSound,
		"sound":  sound,
		"realm":  loc.Realm,
		"pos":    loc.Pos.ToArray(),
		"volume": volume,
		"pitch":  pitch,
	})
}

func (w *World) StopSound(player *Entity, sound string) {
	if player == nil {
		return
	}
	w.sendTo(player.ID(), protocol.Event{"type": CueStopSound, "sound": sound})
}

func (w *World) ActionBar(player *Entity, text string) {
	if player == nil {
		return
	}
	w.sendTo(player.ID(), protocol.Event{"type": CueActionBar, "text": text})
}

func (w *World) Message(player *Entity, color, text string) {
	if player == nil {
		return
	}
	w.sendTo(player.ID(), protocol.Event{"type": CueMessage, "color": color, "text": text})
}

func (w *World) Particles(at Location, particle string, count int) {
	w.broadcast(at.Realm, protocol.Event{
		"type":     CueParticles,
		"particle": particle,
		"realm":    at.Realm,
		"pos":      at.Pos.ToArray(),
		"count":    count,
	})
}

func (w *World) PickupAnimation(collector, item *Entity) {
	if collector == nil || item == nil {
		return
	}
	loc := collector.Location()
	w.broadcast(loc.Realm, protocol.Event{
		"type":      CuePickup,
		"collector": collector.ID().String(),
		"item":      item.ID().String(),
	})
}

func (w *World) encodeEvent(ev protocol.Event) []byte {
	b, err := json.Marshal(protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            w.CurrentTick(),
		Event:           ev,
	})
	if err != nil {
		return nil
	}
	return b
}

// broadcast sends ev to every connected player in realm.
func (w *World) broadcast(realm string, ev protocol.Event) {
	b := w.encodeEvent(ev)
	if b == nil {
		return
	}
	for _, p := range w.PlayersIn(realm) {
		w.mu.RLock()
		out := w.clients[p.ID()]
		w.mu.RUnlock()
		if out != nil {
			sendLatest(out, b)
		}
	}
}

func (w *World) sendTo(id uuid.UUID, ev protocol.Event) {
	w.mu.RLock()
	out := w.clients[id]
	w.mu.RUnlock()
	if out == nil {
		return
	}
	if b := w.encodeEvent(ev); b != nil {
		sendLatest(out, b)
	}
}

// Send delivers a raw message to one client without blocking.
func (w *World) Send(id uuid.UUID, b []byte) {
	w.mu.RLock()
	out := w.clients[id]
	w.mu.RUnlock()
	if out != nil {
		sendLatest(out, b)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
