package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/falcon/internal/metrics"
)

// BirdLevel is the airfield bird-strike risk.
type BirdLevel string

const (
	BirdLow    BirdLevel = "BR_LOW"
	BirdMedium BirdLevel = "BR_MEDIUM"
	BirdHigh   BirdLevel = "BR_HIGH"
)

// ConsoleCode is the numeric code the operator GUI expects on ME_BR lines.
func (l BirdLevel) ConsoleCode() string {
	switch l {
	case BirdHigh:
		return "1"
	case BirdMedium:
		return "2"
	default:
		return "3"
	}
}

func (l BirdLevel) metric() float64 {
	switch l {
	case BirdHigh:
		return 3
	case BirdMedium:
		return 2
	default:
		return 1
	}
}

// RunwayStatus is a per-runway risk cell.
type RunwayStatus string

const (
	RunwayClear   RunwayStatus = "CLEAR"
	RunwayWarning RunwayStatus = "WARNING"
)

// ConsoleCode is the numeric code on ME_RA / ME_RB lines.
func (s RunwayStatus) ConsoleCode() string {
	if s == RunwayWarning {
		return "1"
	}
	return "0"
}

// RiskState is a snapshot of the three cells.
type RiskState struct {
	Bird    BirdLevel
	RunwayA RunwayStatus
	RunwayB RunwayStatus
}

// Availability derives which runways a pilot may use.
func (s RiskState) Availability() string {
	switch {
	case s.RunwayA == RunwayClear && s.RunwayB == RunwayClear:
		return "ALL"
	case s.RunwayA == RunwayClear:
		return "A_ONLY"
	case s.RunwayB == RunwayClear:
		return "B_ONLY"
	default:
		return "NONE"
	}
}

// RiskChange is one accepted transition.
type RiskChange struct {
	Kind  string // BR_CHANGED / RWY_A_STATUS_CHANGED / RWY_B_STATUS_CHANGED
	Prev  string
	Value string
	At    time.Time
}

// ConsoleLine formats the change for the operator link.
func (c RiskChange) ConsoleLine() string {
	switch c.Kind {
	case "BR_CHANGED":
		return "ME_BR:" + BirdLevel(c.Value).ConsoleCode()
	case "RWY_A_STATUS_CHANGED":
		return "ME_RA:" + RunwayStatus(c.Value).ConsoleCode()
	default:
		return "ME_RB:" + RunwayStatus(c.Value).ConsoleCode()
	}
}

// SnapshotStore persists risk state across restarts.
type SnapshotStore interface {
	Load(ctx context.Context) (RiskState, error)
	Save(ctx context.Context, s RiskState) error
}

// RedisSnapshotStore keeps the three cells under falcon:risk:*.
type RedisSnapshotStore struct {
	RDB *redis.Client
}

const (
	keyBird    = "falcon:risk:bird"
	keyRunwayA = "falcon:risk:rwy_a"
	keyRunwayB = "falcon:risk:rwy_b"
)

func (s RedisSnapshotStore) Load(ctx context.Context) (RiskState, error) {
	state := RiskState{Bird: BirdLow, RunwayA: RunwayClear, RunwayB: RunwayClear}

	vals, err := s.RDB.MGet(ctx, keyBird, keyRunwayA, keyRunwayB).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		return state, fmt.Errorf("load risk snapshot: %w", err)
	}
	if v, ok := vals[0].(string); ok && v != "" {
		state.Bird = BirdLevel(v)
	}
	if v, ok := vals[1].(string); ok && v != "" {
		state.RunwayA = RunwayStatus(v)
	}
	if v, ok := vals[2].(string); ok && v != "" {
		state.RunwayB = RunwayStatus(v)
	}
	return state, nil
}

func (s RedisSnapshotStore) Save(ctx context.Context, state RiskState) error {
	if err := s.RDB.MSet(ctx,
		keyBird, string(state.Bird),
		keyRunwayA, string(state.RunwayA),
		keyRunwayB, string(state.RunwayB),
	).Err(); err != nil {
		return fmt.Errorf("save risk snapshot: %w", err)
	}
	return nil
}

// BirdLogAppender records accepted bird transitions; satisfied by
// data.BirdRiskLogModel.
type BirdLogAppender interface {
	Append(ctx context.Context, prev, next string, at time.Time) error
}

type riskCmd struct {
	proposeBird   BirdLevel
	proposeRunway string // "A" or "B", empty when not a runway proposal
	runwayStatus  RunwayStatus
	query         chan RiskState
}

// RiskMachine owns the three risk cells. All mutation flows through its
// command channel and is serialized by the single Run goroutine; equal-value
// proposals are absorbed silently, accepted ones are snapshotted, logged and
// handed to onChange in acceptance order.
type RiskMachine struct {
	cmds     chan riskCmd
	store    SnapshotStore
	birdLog  BirdLogAppender
	onChange func(RiskChange)

	state RiskState
}

func NewRiskMachine(store SnapshotStore, birdLog BirdLogAppender, onChange func(RiskChange)) *RiskMachine {
	return &RiskMachine{
		cmds:     make(chan riskCmd, 32),
		store:    store,
		birdLog:  birdLog,
		onChange: onChange,
		state:    RiskState{Bird: BirdLow, RunwayA: RunwayClear, RunwayB: RunwayClear},
	}
}

// Run loads the snapshot and serializes all mutations until ctx is done.
func (m *RiskMachine) Run(ctx context.Context) {
	if m.store != nil {
		state, err := m.store.Load(ctx)
		if err != nil {
			log.Printf("[ERROR] Risk: %v (starting from defaults)", err)
		} else {
			m.state = state
		}
	}
	metrics.RiskLevel.Set(m.state.Bird.metric())
	log.Printf("[INFO] Risk: initial state bird=%s rwy_a=%s rwy_b=%s",
		m.state.Bird, m.state.RunwayA, m.state.RunwayB)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.cmds:
			m.handle(ctx, cmd)
		}
	}
}

func (m *RiskMachine) handle(ctx context.Context, cmd riskCmd) {
	if cmd.query != nil {
		cmd.query <- m.state
		return
	}

	var change RiskChange
	switch {
	case cmd.proposeBird != "":
		if cmd.proposeBird == m.state.Bird {
			return
		}
		change = RiskChange{Kind: "BR_CHANGED", Prev: string(m.state.Bird), Value: string(cmd.proposeBird), At: time.Now()}
		m.state.Bird = cmd.proposeBird
		metrics.RiskLevel.Set(m.state.Bird.metric())
		if m.birdLog != nil {
			if err := m.birdLog.Append(ctx, change.Prev, change.Value, change.At); err != nil {
				log.Printf("[ERROR] Risk: %v", err)
			}
		}
	case cmd.proposeRunway == "A":
		if cmd.runwayStatus == m.state.RunwayA {
			return
		}
		change = RiskChange{Kind: "RWY_A_STATUS_CHANGED", Prev: string(m.state.RunwayA), Value: string(cmd.runwayStatus), At: time.Now()}
		m.state.RunwayA = cmd.runwayStatus
	case cmd.proposeRunway == "B":
		if cmd.runwayStatus == m.state.RunwayB {
			return
		}
		change = RiskChange{Kind: "RWY_B_STATUS_CHANGED", Prev: string(m.state.RunwayB), Value: string(cmd.runwayStatus), At: time.Now()}
		m.state.RunwayB = cmd.runwayStatus
	default:
		return
	}

	if m.store != nil {
		if err := m.store.Save(ctx, m.state); err != nil {
			log.Printf("[ERROR] Risk: %v", err)
		}
	}
	log.Printf("[INFO] Risk: %s %s -> %s", change.Kind, change.Prev, change.Value)
	if m.onChange != nil {
		m.onChange(change)
	}
}

// ProposeBird submits a bird-risk level from the bird subsystem.
func (m *RiskMachine) ProposeBird(level BirdLevel) {
	m.cmds <- riskCmd{proposeBird: level}
}

// ProposeRunway submits a runway status ("A" or "B").
func (m *RiskMachine) ProposeRunway(runway string, status RunwayStatus) {
	m.cmds <- riskCmd{proposeRunway: runway, runwayStatus: status}
}

// Snapshot returns the current state via the owning goroutine.
func (m *RiskMachine) Snapshot() RiskState {
	q := make(chan RiskState, 1)
	m.cmds <- riskCmd{query: q}
	return <-q
}
