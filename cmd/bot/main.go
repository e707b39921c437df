package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"ctfbuddy.ai/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		makeFlag = flag.Bool("makeflag", false, "turn the starter banner into a flag and drop it")
		every    = flag.Duration("move_every", 10*time.Second, "wander interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	wander := time.NewTicker(*every)
	defer wander.Stop()

	var pos [3]int
	seq := 0
	nextID := func(prefix string) string {
		seq++
		return fmt.Sprintf("%s_%d", prefix, seq)
	}

	for {
		select {
		case <-stop:
			return
		case <-wander.C:
			pos[0] += rand.IntN(15) - 7
			pos[2] += rand.IntN(15) - 7
			p := pos
			_ = conn.WriteJSON(protocol.ActMsg{
				Type:            protocol.TypeAct,
				ProtocolVersion: protocol.Version,
				ID:              nextID("move"),
				Kind:            protocol.ActMove,
				Pos:             &p,
			})
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				pos = w.Pos
				logger.Printf("WELCOME player_id=%s realm=%s pos=%v", w.PlayerID, w.Realm, w.Pos)
				if *makeFlag {
					_ = conn.WriteJSON(protocol.CommandMsg{
						Type:            protocol.TypeCommand,
						ProtocolVersion: protocol.Version,
						ID:              nextID("cmd"),
						Line:            "makeflag item",
					})
				}

			case protocol.TypeCommandResult:
				var res protocol.CommandResultMsg
				if err := json.Unmarshal(msg, &res); err != nil {
					continue
				}
				for _, l := range res.Lines {
					logger.Printf("%s: %s", res.ID, l.Text)
				}
				if res.OK && *makeFlag {
					_ = conn.WriteJSON(protocol.ActMsg{
						Type:            protocol.TypeAct,
						ProtocolVersion: protocol.Version,
						ID:              nextID("drop"),
						Kind:            protocol.ActDrop,
					})
				}

			case protocol.TypeEvent:
				var ev protocol.EventMsg
				if err := json.Unmarshal(msg, &ev); err != nil {
					continue
				}
				logger.Printf("EVENT tick=%d %v", ev.Tick, ev.Event)

			case protocol.TypeError:
				var e protocol.ErrorMsg
				if err := json.Unmarshal(msg, &e); err != nil {
					continue
				}
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}
