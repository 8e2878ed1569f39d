package scoring

import (
	"errors"
	"testing"

	"coptic-quiz-service/internal/domain"
)

func TestAward(t *testing.T) {
	tests := []struct {
		name        string
		activity    domain.ActivityKind
		correct     int
		lastCorrect bool
		want        int
	}{
		{name: "letters 3 of 5 last correct", activity: domain.ActivityLetterSounds, correct: 3, lastCorrect: true, want: 8},
		{name: "letters 3 of 5 last wrong", activity: domain.ActivityLetterRecognition, correct: 3, lastCorrect: false, want: 6},
		{name: "words 3 of 5 last correct", activity: domain.ActivityWordPronunciation, correct: 3, lastCorrect: true, want: 12},
		{name: "words 3 of 5 last wrong", activity: domain.ActivityWordPronunciation, correct: 3, lastCorrect: false, want: 9},
		{name: "letters perfect", activity: domain.ActivityLetterSounds, correct: 5, lastCorrect: true, want: 12},
		{name: "words none", activity: domain.ActivityWordPronunciation, correct: 0, lastCorrect: false, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Award(tt.activity, tt.correct, tt.lastCorrect)
			if err != nil {
				t.Fatalf("award: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Award() = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := Award("spelling", 1, true); !errors.Is(err, domain.ErrUnknownActivity) {
		t.Fatalf("expected ErrUnknownActivity, got %v", err)
	}
}

func TestMaxAward(t *testing.T) {
	if got := MaxAward(domain.ActivityLetterSounds); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := MaxAward(domain.ActivityWordPronunciation); got != 18 {
		t.Fatalf("expected 18, got %d", got)
	}
}

func TestSessionFlow(t *testing.T) {
	s, err := NewSession(domain.ActivityLetterSounds)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	answers := []bool{true, false, true, true, true}
	for i, right := range answers {
		r := &domain.Round{Activity: s.Activity, Answer: "sh", Options: []string{"sh", "a", "b", "k"}}
		if _, err := s.Finalize(); !errors.Is(err, domain.ErrSessionIncomplete) {
			t.Fatalf("round %d: expected incomplete, got %v", i, err)
		}
		pick := "a"
		if right {
			pick = "sh"
		}
		correct, err := s.Record(r, pick)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if correct != right {
			t.Fatalf("round %d: expected correct=%v", i, right)
		}
		if !r.Resolved || r.Selected != pick {
			t.Fatalf("round %d: expected resolved with %q, got %+v", i, pick, r)
		}
	}
	if !s.Finished() || s.CorrectCount != 4 || !s.LastCorrect {
		t.Fatalf("unexpected session state %+v", s)
	}
	xp, err := s.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if xp != 10 {
		t.Fatalf("expected 10 XP, got %d", xp)
	}

	extra := &domain.Round{Answer: "a"}
	if _, err := s.Record(extra, "a"); !errors.Is(err, domain.ErrSessionComplete) {
		t.Fatalf("expected ErrSessionComplete, got %v", err)
	}
}

func TestRecordRejectsSecondAnswer(t *testing.T) {
	s, _ := NewSession(domain.ActivityWordPronunciation)
	r := &domain.Round{Answer: "mah", Options: []string{"mah", "nan", "heet", "fai"}}

	if correct, err := s.Record(r, "nan"); err != nil || correct {
		t.Fatalf("first answer: correct=%v err=%v", correct, err)
	}
	correct, err := s.Record(r, "mah")
	if !errors.Is(err, domain.ErrRoundAlreadyResolved) {
		t.Fatalf("expected ErrRoundAlreadyResolved, got %v", err)
	}
	if correct {
		t.Fatalf("second answer must not change the outcome")
	}
	if s.RoundIndex != 1 || s.CorrectCount != 0 || r.Selected != "nan" {
		t.Fatalf("session mutated by duplicate answer: %+v round=%+v", s, r)
	}
}

func TestNewSessionUnknownActivity(t *testing.T) {
	if _, err := NewSession("spelling"); !errors.Is(err, domain.ErrUnknownActivity) {
		t.Fatalf("expected ErrUnknownActivity, got %v", err)
	}
}
