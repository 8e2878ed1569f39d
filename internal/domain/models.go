package domain

import "time"

// XPPerLevel is the amount of XP needed to advance one level.
const XPPerLevel = 100

// LevelForXP derives the level from a non-negative XP total.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// ActivityKind identifies one of the quiz activity variants.
type ActivityKind string

const (
	ActivityLetterSounds      ActivityKind = "letter-sounds"
	ActivityLetterRecognition ActivityKind = "letter-recognition"
	ActivityWordPronunciation ActivityKind = "word-pronunciation"
)

// Activities lists the supported activity kinds in display order.
var Activities = []ActivityKind{
	ActivityLetterSounds,
	ActivityLetterRecognition,
	ActivityWordPronunciation,
}

// Valid reports whether k is a known activity.
func (k ActivityKind) Valid() bool {
	for _, a := range Activities {
		if a == k {
			return true
		}
	}
	return false
}

// Difficulty grades vocabulary words.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Letter is an alphabet entry. Symbol is its identity.
type Letter struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Name   string `json:"name" yaml:"name"`
	Sound  string `json:"sound" yaml:"sound"`
}

// Word is a vocabulary entry. Script is its identity.
type Word struct {
	Script        string     `json:"script" yaml:"script"`
	Translation   string     `json:"translation" yaml:"translation"`
	Pronunciation string     `json:"pronunciation" yaml:"pronunciation"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty"`
}

// Round is a single question. Exactly one of Letter or Word is set depending on
// the activity. Answer holds the target's distinguishing value. Number is the
// 1-based position within the session, assigned when the round is served.
type Round struct {
	Number   int
	Activity ActivityKind
	Letter   *Letter
	Word     *Word
	Options  []string
	Answer   string
	Selected string
	Resolved bool
}

// Identity is what the identity provider tells us about a signed-in user.
type Identity struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	AvatarURL   string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

// UserProfile is the durable per-user record.
type UserProfile struct {
	ID                  string    `json:"id"`
	DisplayName         string    `json:"displayName"`
	Email               string    `json:"email,omitempty"`
	AvatarURL           string    `json:"avatarUrl,omitempty"`
	OrganizationID      string    `json:"organizationId,omitempty"`
	OrganizationName    string    `json:"organizationName,omitempty"`
	AdminOrganizationID string    `json:"adminOrganizationId,omitempty"`
	XP                  int       `json:"xp"`
	Level               int       `json:"level"`
	CreatedAt           time.Time `json:"createdAt"`
	LastActiveAt        time.Time `json:"lastActiveAt"`
}

// Organization groups users for leaderboards and admin authority.
type Organization struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Scope restricts a query to one organization. The zero value is global.
type Scope struct {
	OrganizationID string `json:"organizationId,omitempty"`
}

// GlobalScope covers every profile.
func GlobalScope() Scope { return Scope{} }

// OrganizationScope covers the members of one organization.
func OrganizationScope(id string) Scope { return Scope{OrganizationID: id} }

// IsGlobal reports whether the scope is unrestricted.
func (s Scope) IsGlobal() bool { return s.OrganizationID == "" }

// Includes reports whether a profile falls inside the scope.
func (s Scope) Includes(p UserProfile) bool {
	return s.IsGlobal() || p.OrganizationID == s.OrganizationID
}

// LeaderboardEntry is the public projection of a profile.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	XP          int    `json:"xp"`
	Level       int    `json:"level"`
}

// Leaderboard captures the ordered ranking for a scope.
type Leaderboard struct {
	Scope     Scope              `json:"scope"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// ActivityRecord is one entry of a user's activity history.
type ActivityRecord struct {
	Activity  ActivityKind `json:"activity"`
	XPEarned  int          `json:"xpEarned"`
	Timestamp time.Time    `json:"timestamp"`
}

// HistoryLimit caps how many activity records are kept per user.
const HistoryLimit = 50

// Actor is the caller of an administrative operation.
type Actor struct {
	UserID              string
	Email               string
	AdminOrganizationID string
}

// ActorFromProfile builds the actor for a signed-in user.
func ActorFromProfile(p UserProfile) Actor {
	return Actor{UserID: p.ID, Email: p.Email, AdminOrganizationID: p.AdminOrganizationID}
}
