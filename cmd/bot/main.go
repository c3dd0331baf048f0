package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"stagecraft.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "actor name")
		roles = flag.Uint("roles", 0, "role bitset to claim from (0 = any role)")
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
		ActorName:       *name,
		Roles:           uint32(*roles),
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
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
			logger.Printf("WELCOME actor_id=%s tick_rate=%d seed=%d", w.ActorID, w.StageParams.TickRateHz, w.StageParams.Seed)

		case protocol.TypeObs:
			var obs protocol.ObsMsg
			if err := json.Unmarshal(msg, &obs); err != nil {
				continue
			}
			b.handleObs(conn, logger, &obs)
		}
	}
}

type bot struct {
	rng      *rand.Rand
	schedSeq int
}

// handleObs drives a small closed loop: stock planks, schedule haul work,
// claim whatever the director offers, and walk to the gesture's pose gate.
func (b *bot) handleObs(conn *websocket.Conn, logger *log.Logger, obs *protocol.ObsMsg) {
	for _, ev := range obs.Events {
		if t, _ := ev["type"].(string); t == "PERF_COMPLETED" || t == "PERF_FAILED" {
			logger.Printf("%s key=%v", t, ev["key"])
		}
	}

	// A claimed performance waiting on a pose gate: step onto it. MOVE is
	// authoritative, so one instant satisfies the gate.
	if obs.Performance != nil {
		if np := obs.Performance.NextPose; np != nil {
			yaw := obs.Self.Yaw
			if np.Yaw != nil {
				yaw = *np.Yaw
			}
			b.send(conn, obs, protocol.InstantReq{
				ID:   fmt.Sprintf("I_move_%d", obs.Tick),
				Type: protocol.InstantMove,
				Pos:  np.Pos,
				Yaw:  yaw,
			})
		}
		return
	}

	// Keep some stock around for schedules to consume.
	if obs.Tick%150 == 0 {
		b.send(conn, obs, protocol.InstantReq{
			ID:    fmt.Sprintf("I_put_%d", obs.Tick),
			Type:  protocol.InstantPut,
			Item:  "plank",
			Count: 4,
		})
	}

	// Publish a haul job every ~200 ticks.
	if obs.Tick%200 == 20 {
		b.schedSeq++
		dst := [3]float64{
			obs.Self.Pos[0] + float64(b.rng.Intn(15)-7),
			obs.Self.Pos[1],
			obs.Self.Pos[2] + float64(b.rng.Intn(15)-7),
		}
		b.send(conn, obs, protocol.InstantReq{
			ID:       fmt.Sprintf("I_sched_%d", obs.Tick),
			Type:     protocol.InstantSchedule,
			Key:      fmt.Sprintf("%s-haul-%d", obs.ActorID, b.schedSeq),
			Priority: 5,
			Retry:    true,
			Steps: []protocol.StepSpec{
				{Item: "plank", Count: 2},
				{Pose: &protocol.PoseSpec{Pos: dst}, DurationS: 1.5},
			},
		})
	}

	// Idle: ask for work.
	if obs.Tick%50 == 5 {
		b.send(conn, obs, protocol.InstantReq{
			ID:   fmt.Sprintf("I_claim_%d", obs.Tick),
			Type: protocol.InstantClaim,
		})
	}
}

func (b *bot) send(conn *websocket.Conn, obs *protocol.ObsMsg, instants ...protocol.InstantReq) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Tick:            obs.Tick,
		ActorID:         obs.ActorID,
		Instants:        instants,
	}
	_ = conn.WriteJSON(act)
}
