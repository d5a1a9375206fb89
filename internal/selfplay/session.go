// Package selfplay plays games with a move selection policy and collects the canonicalized
// training examples, see Session. Runner plays many sessions in parallel and flushes the
// examples of every finished game to a dataset Store.
package selfplay

import (
	"github.com/janpfeifer/checkersGo/internal/dataset"
	"github.com/janpfeifer/checkersGo/internal/searchers"
	. "github.com/janpfeifer/checkersGo/internal/state"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Status of a Session.
type Status int

const (
	InProgress Status = iota
	Finished
)

func (s Status) String() string {
	if s == Finished {
		return "Finished"
	}
	return "InProgress"
}

// ErrFinished is returned by Session.Step if the game is already over.
var ErrFinished = errors.New("game already finished")

// Result of a played game.
type Result struct {
	Outcome  Outcome
	NumPlies int

	// Examples are the canonicalized examples from the game, ready to be appended to the dataset.
	Examples []dataset.Example
}

// Session plays one game with the given policy for both sides, and records its plies.
//
// The very first ply of the game is not recorded: only the plies after it are candidates
// to become training examples.
type Session struct {
	game     Game
	policy   searchers.Policy
	status   Status
	outcome  Outcome
	numPlies int
	plies    []dataset.Ply
}

// NewSession creates a session that plays game using policy for both sides.
// The game is owned by the session while it plays.
func NewSession(game Game, policy searchers.Policy) *Session {
	s := &Session{game: game, policy: policy}
	if done, outcome := game.IsFinished(); done {
		s.status, s.outcome = Finished, outcome
	}
	return s
}

// Status returns whether the game is still in progress.
func (s *Session) Status() Status { return s.status }

// Outcome of the game, Undecided while in progress.
func (s *Session) Outcome() Outcome { return s.outcome }

// NumPlies played so far.
func (s *Session) NumPlies() int { return s.numPlies }

// Plies recorded so far. Not to be modified.
func (s *Session) Plies() []dataset.Ply { return s.plies }

// Step plays one ply: the policy selects a move for the current mover, the move is applied,
// and the game is checked for termination.
//
// Any error from the game or the policy (e.g. searchers.ErrNoLegalMoves) is fatal for the session.
func (s *Session) Step() error {
	if s.status == Finished {
		return ErrFinished
	}
	mover := s.game.CurrentMover()
	before := s.game.State()
	move, err := s.policy.Select(s.game)
	if err != nil {
		return errors.WithMessagef(err, "ply #%d: %s failed to select a move", s.numPlies+1, mover)
	}
	if err = s.game.ApplyMove(move); err != nil {
		return errors.WithMessagef(err, "ply #%d: %s failed to play %s", s.numPlies+1, mover, move)
	}
	if s.numPlies > 0 {
		s.plies = append(s.plies, dataset.Ply{Mover: mover, State: before, Move: move})
	}
	s.numPlies++
	if klog.V(2).Enabled() {
		klog.Infof("ply #%d: %s played %s", s.numPlies, mover, move)
	}
	if done, outcome := s.game.IsFinished(); done {
		s.status, s.outcome = Finished, outcome
	}
	return nil
}

// Play steps until the game is finished, and returns the result with the canonicalized examples.
// Once started, a game is always played to the end.
func (s *Session) Play() (Result, error) {
	for s.status == InProgress {
		if err := s.Step(); err != nil {
			return Result{}, err
		}
	}
	return Result{Outcome: s.outcome, NumPlies: s.numPlies, Examples: s.Examples()}, nil
}

// Examples returns the recorded plies canonicalized with the final outcome of the game.
// It returns nil while the game is in progress.
func (s *Session) Examples() []dataset.Example {
	if s.status != Finished {
		return nil
	}
	return dataset.CanonicalizeAll(s.plies, s.outcome)
}
