package scoring

import "coptic-quiz-service/internal/domain"

// TotalRounds is the fixed length of every activity session.
const TotalRounds = 5

// pointsPerCorrect is the per-answer multiplier for each activity. The last
// round's bonus uses the same value.
var pointsPerCorrect = map[domain.ActivityKind]int{
	domain.ActivityLetterSounds:      2,
	domain.ActivityLetterRecognition: 2,
	domain.ActivityWordPronunciation: 3,
}

// Award converts a finished session into XP:
// correct*k + (lastCorrect ? k : 0), with k = 2 for letter activities and 3 for words.
// The bonus counts the last round twice; that mirrors the deployed behavior.
func Award(activity domain.ActivityKind, correct int, lastCorrect bool) (int, error) {
	k, ok := pointsPerCorrect[activity]
	if !ok {
		return 0, domain.ErrUnknownActivity
	}
	xp := correct * k
	if lastCorrect {
		xp += k
	}
	return xp, nil
}

// MaxAward is the award for a perfect session.
func MaxAward(activity domain.ActivityKind) int {
	xp, err := Award(activity, TotalRounds, true)
	if err != nil {
		return 0
	}
	return xp
}

// Session accumulates answers over one activity attempt.
type Session struct {
	Activity     domain.ActivityKind
	RoundIndex   int
	CorrectCount int
	LastCorrect  bool
}

// NewSession starts an empty session for the activity.
func NewSession(activity domain.ActivityKind) (*Session, error) {
	if !activity.Valid() {
		return nil, domain.ErrUnknownActivity
	}
	return &Session{Activity: activity}, nil
}

// Finished reports whether every round has been answered.
func (s *Session) Finished() bool {
	return s.RoundIndex >= TotalRounds
}

// Record resolves the round with the selected option and advances the
// session. A round can only be answered once.
func (s *Session) Record(r *domain.Round, selected string) (bool, error) {
	if r.Resolved {
		return r.Selected == r.Answer, domain.ErrRoundAlreadyResolved
	}
	if s.Finished() {
		return false, domain.ErrSessionComplete
	}
	correct := selected == r.Answer
	r.Selected = selected
	r.Resolved = true

	s.RoundIndex++
	if correct {
		s.CorrectCount++
	}
	s.LastCorrect = correct
	return correct, nil
}

// Finalize returns the XP award once the last round is resolved.
func (s *Session) Finalize() (int, error) {
	if !s.Finished() {
		return 0, domain.ErrSessionIncomplete
	}
	return Award(s.Activity, s.CorrectCount, s.LastCorrect)
}
