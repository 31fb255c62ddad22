// Package election implements the leader election of the validators.
//
// Elections proceed in rounds. In every round each validator announces its
// stake, collects the stakes of the others, and draws a winner out of them
// with a pseudo-random generator seeded by the sum of the stakes, so that
// validators who collected the same stakes draw the same winner. The
// validators then exchange their results, and a validator accepts the winner
// as the leader once a quorum of results agree with its own.
//
// Every step of a round waits for messages from a quorum of validators. The
// quorum is a fraction (the tolerance, 2/3 by default) of the number of known
// validators, ourselves included, rounded up. Reaching a quorum doesn't end a
// step immediately: a grace timer gives late validators a chance to be
// counted.
//
//	None -> Announce -> AnnounceGrace -> Elect -> ElectGrace -> Ratify -> None
//
// Messages from earlier rounds are ignored. A message from a later round
// means we fell behind: the current round is abandoned and we join the later
// one, announcing our stake again. A round that doesn't complete within the
// round timeout is abandoned too.
package election

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/stakeledger/src/net"
)

// Names of the timers armed by an Election.
const (
	TaskAnnounceWinner = "announce_winner"
	TaskRatify         = "ratify"
	TaskRoundTimeout   = "round_timeout"
)

// DefaultTolerance is the default fraction of validators that make a quorum.
const DefaultTolerance = 2.0 / 3.0

// Broadcaster sends a message to every known validator except ourselves and
// the excluded ids.
type Broadcaster interface {
	Broadcast(msg interface{}, exclude ...int64)
}

// Scheduler arms and cancels named one-shot timers. Arming a timer that is
// already armed replaces it. When a timer fires, the owner of the Election
// calls the corresponding method: AnnounceWinner, Ratify, or RoundTimeout.
type Scheduler interface {
	After(name string, d time.Duration)
	Cancel(name string)
}

// Outcome is the way an election round ended.
type Outcome int

const (
	// Elected means a quorum agreed with our result.
	Elected Outcome = iota
	// Contested means results disagreed, or nobody could be drawn.
	Contested
	// Abandoned means the round timed out, or was overtaken by a later round.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Elected:
		return "elected"
	case Contested:
		return "contested"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Result is the outcome of a validator's draw. Two validators agree on a
// round if their results are equal.
type Result struct {
	Round          int64
	WinnerID       int64
	RandomSeed     int64
	ValidatorCount int
}

// Config ...
type Config struct {
	ID            int64
	Stake         int64
	Tolerance     float64
	AnnounceGrace time.Duration
	ElectGrace    time.Duration
	RoundTimeout  time.Duration

	// NewSource builds the generator for a seed. Defaults to NewSource.
	NewSource func(seed int64) Source

	// OnOutcome is called at the end of every round. winner is NoWinner
	// unless the outcome is Elected.
	OnOutcome func(round int64, outcome Outcome, winner int64)
}

// Election is the election state machine of one validator. It is not safe
// for concurrent use; all its methods must be called from the node's loop.
type Election struct {
	conf       Config
	validators func() int
	bc         Broadcaster
	sched      Scheduler
	logger     *logrus.Entry

	round   int64
	phase   Phase
	stakes  map[int64]int64
	results map[int64]Result
	local   *Result

	leader    int64
	hasLeader bool
}

// NewElection creates an Election. validators returns the number of known
// validators, ourselves included.
func NewElection(conf Config,
	validators func() int,
	bc Broadcaster,
	sched Scheduler,
	logger *logrus.Entry) *Election {

	if conf.Tolerance <= 0 || conf.Tolerance > 1 {
		conf.Tolerance = DefaultTolerance
	}
	if conf.NewSource == nil {
		conf.NewSource = NewSource
	}

	return &Election{
		conf:       conf,
		validators: validators,
		bc:         bc,
		sched:      sched,
		logger:     logger,
		stakes:     make(map[int64]int64),
		results:    make(map[int64]Result),
		leader:     NoWinner,
	}
}

// Round returns the current round number.
func (e *Election) Round() int64 {
	return e.round
}

// Phase returns the current phase.
func (e *Election) Phase() Phase {
	return e.phase
}

// Running returns true if a round is in progress.
func (e *Election) Running() bool {
	return e.phase != None
}

// Leader returns the winner of the last ratified round.
func (e *Election) Leader() (int64, bool) {
	return e.leader, e.hasLeader
}

// Stakes returns a copy of the stakes collected in the current round.
func (e *Election) Stakes() map[int64]int64 {
	res := make(map[int64]int64, len(e.stakes))
	for id, s := range e.stakes {
		res[id] = s
	}
	return res
}

// Results returns a copy of the results collected in the current round.
func (e *Election) Results() map[int64]Result {
	res := make(map[int64]Result, len(e.results))
	for id, r := range e.results {
		res[id] = r
	}
	return res
}

// Quorum returns the number of validators that make a quorum.
func (e *Election) Quorum() int {
	return Quorum(e.validators(), e.conf.Tolerance)
}

// Quorum returns ceil(validators * tolerance), and at least 1.
func Quorum(validators int, tolerance float64) int {
	q := int(math.Ceil(float64(validators)*tolerance - 1e-9))
	if q < 1 {
		q = 1
	}
	return q
}

func (e *Election) transition(to Phase) error {
	if !CanTransition(e.phase, to) {
		return ProtocolError{Round: e.round, From: e.phase, To: to}
	}

	e.logger.WithFields(logrus.Fields{
		"round": e.round,
		"from":  e.phase,
		"to":    to,
	}).Debug("Election phase")

	e.phase = to

	return nil
}

// reset clears the state of the current round, without changing the round
// number.
func (e *Election) reset() {
	e.sched.Cancel(TaskAnnounceWinner)
	e.sched.Cancel(TaskRatify)
	e.sched.Cancel(TaskRoundTimeout)

	e.phase = None
	e.stakes = make(map[int64]int64)
	e.results = make(map[int64]Result)
	e.local = nil
}

func (e *Election) finish(round int64, outcome Outcome, winner int64) {
	e.logger.WithFields(logrus.Fields{
		"round":   round,
		"outcome": outcome,
		"winner":  winner,
	}).Debug("Election finished")

	if e.conf.OnOutcome != nil {
		e.conf.OnOutcome(round, outcome, winner)
	}
}

// Start opens the current round: it registers our own stake and announces it
// to the other validators.
func (e *Election) Start() error {
	if err := e.transition(Announce); err != nil {
		return err
	}

	e.stakes[e.conf.ID] = e.conf.Stake

	if e.conf.RoundTimeout > 0 {
		e.sched.After(TaskRoundTimeout, e.conf.RoundTimeout)
	}

	e.bc.Broadcast(net.AnnounceParticipation{
		Round:    e.round,
		SenderID: e.conf.ID,
		Stake:    e.conf.Stake,
		OriginID: e.conf.ID,
	})

	e.checkStakes()

	return nil
}

// adopt abandons the current round in favour of a later one.
func (e *Election) adopt(round int64) {
	e.logger.WithFields(logrus.Fields{
		"round":   e.round,
		"adopted": round,
	}).Debug("Adopting later election round")

	abandoned := e.round
	wasRunning := e.Running()

	e.reset()
	e.round = round

	if wasRunning {
		e.finish(abandoned, Abandoned, NoWinner)
	}
}

// HandleParticipation processes a validator's stake announcement.
func (e *Election) HandleParticipation(msg net.AnnounceParticipation) error {
	if msg.Round < e.round {
		e.logger.WithFields(logrus.Fields{
			"round":     e.round,
			"msg_round": msg.Round,
			"sender":    msg.SenderID,
		}).Debug("Ignoring stale participation")
		return nil
	}

	if msg.Round > e.round {
		e.adopt(msg.Round)
	}

	if e.phase == None {
		if err := e.Start(); err != nil {
			return err
		}
	}

	if e.phase != Announce && e.phase != AnnounceGrace {
		e.logger.WithFields(logrus.Fields{
			"round":  e.round,
			"phase":  e.phase,
			"sender": msg.SenderID,
		}).Debug("Ignoring late participation")
		return nil
	}

	if _, ok := e.stakes[msg.SenderID]; ok {
		return nil
	}

	e.stakes[msg.SenderID] = msg.Stake

	relay := msg
	relay.OriginID = e.conf.ID
	e.bc.Broadcast(relay, msg.SenderID, msg.OriginID)

	e.checkStakes()

	return nil
}

func (e *Election) checkStakes() {
	if e.phase != Announce || len(e.stakes) < e.Quorum() {
		return
	}

	if err := e.transition(AnnounceGrace); err != nil {
		e.logger.WithError(err).Error("checkStakes")
		return
	}

	e.sched.After(TaskAnnounceWinner, e.conf.AnnounceGrace)
}

// AnnounceWinner draws the winner out of the collected stakes and announces
// our result.
func (e *Election) AnnounceWinner() error {
	if err := e.transition(Elect); err != nil {
		return err
	}

	e.sched.Cancel(TaskAnnounceWinner)

	seed := Seed(e.stakes)
	winner := Draw(e.conf.NewSource(seed), e.stakes)

	e.local = &Result{
		Round:          e.round,
		WinnerID:       winner,
		RandomSeed:     seed,
		ValidatorCount: len(e.stakes),
	}
	e.results[e.conf.ID] = *e.local

	e.logger.WithFields(logrus.Fields{
		"round":  e.round,
		"winner": winner,
		"seed":   seed,
		"stakes": len(e.stakes),
	}).Debug("Drew election winner")

	e.bc.Broadcast(net.AnnounceWinner{
		Round:          e.round,
		SenderID:       e.conf.ID,
		WinnerID:       winner,
		RandomSeed:     seed,
		ValidatorCount: len(e.stakes),
	})

	e.checkResults()

	return nil
}

// HandleWinner processes a validator's result. from is the id of the
// validator who forwarded it to us.
func (e *Election) HandleWinner(msg net.AnnounceWinner, from int64) error {
	if msg.Round < e.round {
		e.logger.WithFields(logrus.Fields{
			"round":     e.round,
			"msg_round": msg.Round,
			"sender":    msg.SenderID,
		}).Debug("Ignoring stale winner announcement")
		return nil
	}

	if msg.Round > e.round {
		e.adopt(msg.Round)
		return e.Start()
	}

	if e.phase == AnnounceGrace {
		if err := e.AnnounceWinner(); err != nil {
			return err
		}
	}

	if e.phase != Elect && e.phase != ElectGrace {
		e.logger.WithFields(logrus.Fields{
			"round":  e.round,
			"phase":  e.phase,
			"sender": msg.SenderID,
		}).Debug("Ignoring out-of-phase winner announcement")
		return nil
	}

	if _, ok := e.results[msg.SenderID]; ok {
		return nil
	}

	e.results[msg.SenderID] = Result{
		Round:          msg.Round,
		WinnerID:       msg.WinnerID,
		RandomSeed:     msg.RandomSeed,
		ValidatorCount: msg.ValidatorCount,
	}

	e.bc.Broadcast(msg, msg.SenderID, from)

	e.checkResults()

	return nil
}

func (e *Election) checkResults() {
	if e.phase != Elect || len(e.results) < e.Quorum() {
		return
	}

	if err := e.transition(ElectGrace); err != nil {
		e.logger.WithError(err).Error("checkResults")
		return
	}

	e.sched.After(TaskRatify, e.conf.ElectGrace)
}

// Ratify compares the collected results with our own and closes the round.
// If a quorum agrees with us, the winner becomes the leader. Otherwise a new
// election is started straight away.
func (e *Election) Ratify() error {
	if err := e.transition(Ratify); err != nil {
		return err
	}

	local := *e.local
	quorum := e.Quorum()

	matches := 0
	for _, r := range e.results {
		if r == local {
			matches++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"round":   e.round,
		"results": len(e.results),
		"matches": matches,
		"quorum":  quorum,
	}).Debug("Ratify")

	round := e.round
	e.reset()
	e.round++

	if matches >= quorum && local.WinnerID != NoWinner {
		e.leader = local.WinnerID
		e.hasLeader = true
		e.finish(round, Elected, local.WinnerID)
		return nil
	}

	e.finish(round, Contested, NoWinner)

	e.round++

	return e.Start()
}

// RoundTimeout abandons the current round if it hasn't completed yet.
func (e *Election) RoundTimeout() {
	if e.phase == None {
		return
	}

	e.logger.WithFields(logrus.Fields{
		"round":  e.round,
		"phase":  e.phase,
		"stakes": len(e.stakes),
	}).Debug("Election round timed out")

	round := e.round
	e.reset()
	e.round++

	e.finish(round, Abandoned, NoWinner)
}

// Participants returns the ids of the validators whose stake was collected in
// the current round, in ascending order.
func (e *Election) Participants() []int64 {
	res := make([]int64, 0, len(e.stakes))
	for id := range e.stakes {
		res = append(res, id)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
