package app

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"

	"coptic-quiz-service/internal/domain"
	"coptic-quiz-service/internal/scoring"
)

// AnswerResult is what the player sees after answering a round.
type AnswerResult struct {
	Round        *domain.Round
	Correct      bool
	Answer       string
	CorrectCount int
	TotalRounds  int
	// Next is the following round, nil once the session completed.
	Next      *domain.Round
	Completed bool
	XPAwarded int
	// Profile is the post-award profile, set only on completion.
	Profile *domain.UserProfile
}

// ActivityService runs the server-side play loop for each user.
type ActivityService struct {
	sessions  SessionRepository
	generator RoundGenerator
	profiles  *ProfileService
}

func NewActivityService(sessions SessionRepository, generator RoundGenerator, profiles *ProfileService) *ActivityService {
	return &ActivityService{sessions: sessions, generator: generator, profiles: profiles}
}

// NewPlaySession is exported for infrastructure layers that need to seed sessions.
func NewPlaySession(userID string) *PlaySession {
	return &PlaySession{userID: userID}
}

// Start begins a fresh activity, discarding any unfinished one together with
// an award that was still pending. owner names the connection that started it;
// only that owner's Leave drops the session.
func (s *ActivityService) Start(ctx context.Context, userID, owner string, activity domain.ActivityKind) (*domain.Round, error) {
	state, err := scoring.NewSession(activity)
	if err != nil {
		return nil, err
	}
	if _, err := s.profiles.Profile(ctx, userID); err != nil {
		return nil, err
	}
	first, err := s.generator.Generate(activity)
	if err != nil {
		return nil, err
	}
	first.Number = 1

	for {
		session := s.sessions.GetOrCreate(userID)
		session.mu.Lock()
		if session.removed {
			// lost a race with Leave; the store hands out a new one next time
			session.mu.Unlock()
			continue
		}
		session.owner = owner
		session.state = state
		session.round = first
		session.last = nil
		session.pending = false
		session.mu.Unlock()
		return cloneRound(first), nil
	}
}

// Current returns the round awaiting an answer.
func (s *ActivityService) Current(_ context.Context, userID string) (*domain.Round, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed || session.state == nil {
		return nil, domain.ErrSessionNotFound
	}
	if session.state.Finished() {
		return nil, domain.ErrSessionComplete
	}
	return cloneRound(session.round), nil
}

// Answer resolves round number with the selected option. Resubmitting the
// round that was just resolved repeats its result. The final answer applies
// the XP award before the call returns.
func (s *ActivityService) Answer(ctx context.Context, userID string, number int, selected string) (AnswerResult, error) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return AnswerResult{}, domain.ErrSessionNotFound
	}
	s.sessions.Touch(userID)
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.removed || session.state == nil {
		return AnswerResult{}, domain.ErrSessionNotFound
	}

	if last := session.last; last != nil && last.Round.Number == number {
		if session.pending {
			return s.award(ctx, session)
		}
		return cloneResult(*last), nil
	}
	if session.state.Finished() || number < session.round.Number {
		return AnswerResult{}, domain.ErrRoundAlreadyResolved
	}
	if number != session.round.Number {
		return AnswerResult{}, domain.NewValidationError("invalid answer",
			domain.FieldError{Field: "round", Error: fmt.Sprintf("round %d has not been served", number)})
	}

	current := session.round
	correct, err := session.state.Record(current, selected)
	if err != nil {
		return AnswerResult{}, err
	}
	result := AnswerResult{
		Round:        current,
		Correct:      correct,
		Answer:       current.Answer,
		CorrectCount: session.state.CorrectCount,
		TotalRounds:  scoring.TotalRounds,
	}

	if !session.state.Finished() {
		next, err := s.generator.Generate(session.state.Activity)
		if err != nil {
			return AnswerResult{}, err
		}
		next.Number = current.Number + 1
		session.round = next
		result.Next = next
		session.last = &result
		return cloneResult(result), nil
	}

	result.Completed = true
	session.last = &result
	session.pending = true
	return s.award(ctx, session)
}

// award applies the pending XP for a finished session. The caller holds session.mu.
func (s *ActivityService) award(ctx context.Context, session *PlaySession) (AnswerResult, error) {
	xp, err := session.state.Finalize()
	if err != nil {
		return AnswerResult{}, err
	}
	profile, err := s.profiles.ApplyXP(ctx, session.userID, xp)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("apply award for %s: %w", session.userID, err)
	}
	session.pending = false
	session.last.XPAwarded = xp
	session.last.Profile = &profile

	if err := s.profiles.RecordActivity(ctx, session.userID, session.state.Activity, xp); err != nil {
		log.Printf("record activity for user %s: %v", session.userID, err)
	}
	log.Printf("user %s finished %s with %d/%d correct, awarded %d xp",
		session.userID, session.state.Activity, session.state.CorrectCount, scoring.TotalRounds, xp)
	return cloneResult(*session.last), nil
}

// Leave drops the user's session if owner started it. A session restarted
// from another connection of the same user is left alone.
func (s *ActivityService) Leave(_ context.Context, userID, owner string) {
	session, ok := s.sessions.Get(userID)
	if !ok {
		return
	}
	session.mu.Lock()
	if session.removed || session.owner != owner {
		session.mu.Unlock()
		return
	}
	// Start spins on removed sessions, so nothing can claim this one before
	// the store drops it
	session.removed = true
	session.mu.Unlock()
	s.sessions.Delete(userID)
}

// PlaySession is the in-memory state of one user's activity.
type PlaySession struct {
	userID string

	mu      sync.Mutex
	owner   string
	state   *scoring.Session
	round   *domain.Round
	last    *AnswerResult
	pending bool
	removed bool
}

// UserID returns the player the session belongs to.
func (p *PlaySession) UserID() string { return p.userID }

// Retire marks the session as dropped from its store. Stores call it on Delete
// so a concurrent Start cannot revive a session nobody can reach.
func (p *PlaySession) Retire() {
	p.mu.Lock()
	p.removed = true
	p.mu.Unlock()
}

func cloneRound(r *domain.Round) *domain.Round {
	if r == nil {
		return nil
	}
	c := *r
	if r.Letter != nil {
		l := *r.Letter
		c.Letter = &l
	}
	if r.Word != nil {
		w := *r.Word
		c.Word = &w
	}
	c.Options = slices.Clone(r.Options)
	return &c
}

func cloneResult(r AnswerResult) AnswerResult {
	r.Round = cloneRound(r.Round)
	r.Next = cloneRound(r.Next)
	if r.Profile != nil {
		p := *r.Profile
		r.Profile = &p
	}
	return r
}
