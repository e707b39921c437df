// Package command implements the chat commands players use to set up the flag.
package command

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"ctfbuddy.ai/internal/ctf/tracker"
	"ctfbuddy.ai/internal/protocol"
	"ctfbuddy.ai/internal/sim/world"
)

const (
	CmdMakeFlag = "makeflag"
	CmdInfo     = "ctfbuddy"

	ArgItem   = "item"
	ArgEntity = "entity"

	Usage = "Usage: /makeflag <item|entity> [uuid]"

	ColorRed    = "red"
	ColorYellow = "yellow"

	// targetRange is how far a sender can point at an entity.
	targetRange = 10
	// defaultTrackingRange is the host default; flags tracked at or below it are hard to find.
	defaultTrackingRange = 48
)

// TrackingRanges are the distances at which clients see each entity category.
type TrackingRanges struct {
	Players  int
	Animals  int
	Monsters int
	Misc     int
}

func DefaultTrackingRanges() TrackingRanges {
	return TrackingRanges{Players: 48, Animals: 48, Monsters: 48, Misc: 32}
}

func (r TrackingRanges) get(category string) int {
	switch category {
	case "players":
		return r.Players
	case "animals":
		return r.Animals
	case "monsters":
		return r.Monsters
	default:
		return r.Misc
	}
}

// Result is the feedback of one command.
type Result struct {
	OK    bool
	Code  string
	Lines []protocol.ResultLine
}

func (r *Result) say(color, text string) {
	r.Lines = append(r.Lines, protocol.ResultLine{Color: color, Text: text})
}

func (r *Result) fail(code, text string) {
	r.OK = false
	r.Code = code
	r.say(ColorRed, text)
}

type Dispatcher struct {
	w       *world.World
	tr      *tracker.Tracker
	ranges  TrackingRanges
	version string
	logger  *log.Logger
}

func NewDispatcher(w *world.World, tr *tracker.Tracker, ranges TrackingRanges, version string, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{w: w, tr: tr, ranges: ranges, version: version, logger: logger}
}

// Info is the text of the ctfbuddy command.
func (d *Dispatcher) Info() string {
	return "CTFBuddy v" + d.version + " made by War Pigeon"
}

// Execute runs line on behalf of sender. uuid.Nil is the console.
func (d *Dispatcher) Execute(ctx context.Context, sender uuid.UUID, line string) Result {
	args := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	res := Result{OK: true}
	if len(args) == 0 {
		res.fail(protocol.ErrBadRequest, "Empty command")
		return res
	}
	switch strings.ToLower(args[0]) {
	case CmdInfo:
		res.say("", d.Info())
	case CmdMakeFlag:
		d.makeFlag(ctx, sender, args[1:], &res)
	default:
		res.fail(protocol.ErrNotFound, "Unknown command: "+args[0])
	}
	return res
}

func (d *Dispatcher) makeFlag(ctx context.Context, sender uuid.UUID, args []string, res *Result) {
	if len(args) == 0 {
		res.fail(protocol.ErrBadRequest, Usage)
		return
	}
	switch strings.ToLower(args[0]) {
	case ArgItem:
		d.checkTracking(res, "players")
		if len(args) != 1 {
			res.fail(protocol.ErrBadRequest, Usage)
			return
		}
		d.makeItemFlag(ctx, sender, res)
	case ArgEntity:
		switch len(args) {
		case 1:
			d.makeTargetFlag(ctx, sender, res)
		case 2:
			d.makeEntityFlag(ctx, args[1], res)
		default:
			res.fail(protocol.ErrBadRequest, Usage)
		}
	default:
		res.fail(protocol.ErrBadRequest, Usage)
	}
}

// player resolves sender to a live player, or nil.
func (d *Dispatcher) player(sender uuid.UUID) *world.Entity {
	if sender == uuid.Nil {
		return nil
	}
	e := d.w.Entity(sender)
	if e == nil || !e.IsPlayer() {
		return nil
	}
	return e
}

func (d *Dispatcher) makeItemFlag(ctx context.Context, sender uuid.UUID, res *Result) {
	if d.player(sender) == nil {
		res.fail(protocol.ErrNoPermission, "You must be a player to use this command")
		return
	}
	var terr error
	err := d.w.DoEntity(ctx, sender, func(_ *world.Region, p *world.Entity) {
		terr = d.tr.TrackItem(p.Equipment().Get(world.SlotMainHand))
	})
	switch {
	case err != nil:
		res.fail(protocol.ErrInternal, err.Error())
	case terr != nil:
		res.fail(protocol.ErrInvalidTarget, "Invalid item in hand")
	default:
		res.say("", "Item in hand set as flag")
	}
}

func (d *Dispatcher) makeTargetFlag(ctx context.Context, sender uuid.UUID, res *Result) {
	if d.player(sender) == nil {
		res.fail(protocol.ErrNoPermission, "You must be a player to use this command")
		return
	}
	var target *world.Entity
	var terr error
	err := d.w.DoEntity(ctx, sender, func(r *world.Region, p *world.Entity) {
		target = r.TargetEntity(p, targetRange)
		if target != nil {
			terr = d.tr.TrackEntity(target)
		}
	})
	switch {
	case err != nil:
		res.fail(protocol.ErrInternal, err.Error())
	case target == nil || terr != nil:
		res.fail(protocol.ErrInvalidTarget, "Not looking at a target")
	default:
		res.say("", "Entity setup as flag")
		d.checkEntityTracking(res, target)
	}
}

func (d *Dispatcher) makeEntityFlag(ctx context.Context, raw string, res *Result) {
	id, err := uuid.Parse(raw)
	if err != nil {
		res.fail(protocol.ErrBadRequest, "Invalid UUID")
		return
	}
	err = d.tr.TrackEntityID(ctx, d.w, id)
	switch {
	case errors.Is(err, tracker.ErrEntityNotFound):
		res.fail(protocol.ErrNotFound, "Entity not found")
	case errors.Is(err, tracker.ErrInvalidTarget):
		res.fail(protocol.ErrInvalidTarget, "Entity not found")
	case err != nil:
		res.fail(protocol.ErrInternal, err.Error())
	default:
		res.say("", "Entity setup as flag")
		d.checkEntityTracking(res, d.w.Entity(id))
	}
}

var animals = map[string]bool{"HORSE": true, "SHEEP": true, "PIG": true}

func (d *Dispatcher) checkEntityTracking(res *Result, e *world.Entity) {
	if e == nil {
		return
	}
	switch {
	case e.Info().Hostile:
		d.checkTracking(res, "monsters")
	case animals[e.Type()]:
		d.checkTracking(res, "animals")
	}
}

// checkTracking warns when category is tracked no farther than the host default.
func (d *Dispatcher) checkTracking(res *Result, category string) {
	if d.ranges.get(category) > defaultTrackingRange {
		return
	}
	msg := "You may want to increase the default tracking range for " + category + " to make the flag easier to find."
	d.logger.Printf("warning: %s", msg)
	res.say(ColorYellow, msg)
}

// Complete returns the options for the last word of a partial line.
func (d *Dispatcher) Complete(line string) []string {
	line = strings.TrimPrefix(strings.TrimLeft(line, " "), "/")
	args := strings.Fields(line)
	if strings.HasSuffix(line, " ") || len(args) == 0 {
		args = append(args, "")
	}
	if len(args) == 1 {
		return prefixed([]string{CmdMakeFlag, CmdInfo}, args[0])
	}
	if strings.ToLower(args[0]) == CmdMakeFlag && len(args) == 2 {
		return prefixed([]string{ArgItem, ArgEntity}, args[1])
	}
	return []string{}
}

func prefixed(options []string, prefix string) []string {
	out := []string{}
	for _, o := range options {
		if strings.HasPrefix(o, strings.ToLower(prefix)) {
			out = append(out, o)
		}
	}
	return out
}
