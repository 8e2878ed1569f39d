package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"coptic-quiz-service/internal/app"
	"coptic-quiz-service/internal/domain"
	"coptic-quiz-service/internal/scoring"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler runs the play loop and live profile/leaderboard feeds over one
// WebSocket per signed-in user.
type WSHandler struct {
	auth     *Authenticator
	profiles *app.ProfileService
	orgs     *app.OrganizationService
	activity *app.ActivityService
	upgrader websocket.Upgrader
}

func NewWSHandler(auth *Authenticator, profiles *app.ProfileService, orgs *app.OrganizationService, activity *app.ActivityService) *WSHandler {
	return &WSHandler{
		auth:     auth,
		profiles: profiles,
		orgs:     orgs,
		activity: activity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Activity domain.ActivityKind `json:"activity"`
}

type answerPayload struct {
	Round  int    `json:"round"`
	Answer string `json:"answer"`
}

type leaderboardRequest struct {
	OrganizationID string `json:"organizationId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// roundPayload never carries the answer.
type roundPayload struct {
	Number      int                 `json:"number"`
	TotalRounds int                 `json:"totalRounds"`
	Activity    domain.ActivityKind `json:"activity"`
	Prompt      string              `json:"prompt"`
	Hint        string              `json:"hint,omitempty"`
	Options     []string            `json:"options"`
}

type answerResult struct {
	Round        int    `json:"round"`
	Selected     string `json:"selected"`
	Correct      bool   `json:"correct"`
	Answer       string `json:"answer"`
	CorrectCount int    `json:"correctCount"`
	TotalRounds  int    `json:"totalRounds"`
}

type completedPayload struct {
	Activity     domain.ActivityKind `json:"activity"`
	CorrectCount int                 `json:"correctCount"`
	TotalRounds  int                 `json:"totalRounds"`
	XPAwarded    int                 `json:"xpAwarded"`
	Profile      domain.UserProfile  `json:"profile"`
}

func newRoundPayload(r *domain.Round, total int) roundPayload {
	p := roundPayload{Number: r.Number, TotalRounds: total, Activity: r.Activity, Options: r.Options}
	switch {
	case r.Word != nil:
		p.Prompt, p.Hint = r.Word.Script, r.Word.Translation
	case r.Letter != nil && r.Activity == domain.ActivityLetterRecognition:
		p.Prompt, p.Hint = r.Letter.Name, r.Letter.Sound
	case r.Letter != nil:
		p.Prompt, p.Hint = r.Letter.Symbol, r.Letter.Name
	}
	return p
}

// ServeWS upgrades HTTP requests to websockets and wires them into the activity use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Identify(r)
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.profiles.EnsureProfile(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := profile.ID

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	profiles, cancelProfile, err := h.profiles.SubscribeProfile(ctx, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorBody(err)})
		return
	}
	defer cancelProfile()
	// a user may hold several sockets; each only tears down what it started
	connID := uuid.NewString()
	defer h.activity.Leave(ctx, userID, connID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var forwarders sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblock the reader so the connection is torn down
				_ = conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: typ, Payload: payload}:
		case <-closeSignals:
		}
	}
	forward := func(typ string, next func() (any, bool)) {
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			for {
				v, ok := next()
				if !ok {
					return
				}
				emit(typ, v)
			}
		}()
	}

	forward("profile", func() (any, bool) {
		select {
		case p, ok := <-profiles:
			return p, ok
		case <-closeSignals:
			return nil, false
		}
	})

	var cancelLeaderboard func()
	defer func() {
		if cancelLeaderboard != nil {
			cancelLeaderboard()
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Message: "invalid start payload"})
				continue
			}
			first, err := h.activity.Start(ctx, userID, connID, payload.Activity)
			if err != nil {
				emit("error", errorBody(err))
				continue
			}
			emit("round", newRoundPayload(first, scoring.TotalRounds))
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			res, err := h.activity.Answer(ctx, userID, payload.Round, payload.Answer)
			if errors.Is(err, domain.ErrRoundAlreadyResolved) {
				// a late double-submit from the client; nothing to report
				continue
			}
			if err != nil {
				emit("error", errorBody(err))
				continue
			}
			emit("answerResult", answerResult{
				Round:        res.Round.Number,
				Selected:     res.Round.Selected,
				Correct:      res.Correct,
				Answer:       res.Answer,
				CorrectCount: res.CorrectCount,
				TotalRounds:  res.TotalRounds,
			})
			if res.Completed {
				emit("completed", completedPayload{
					Activity:     res.Round.Activity,
					CorrectCount: res.CorrectCount,
					TotalRounds:  res.TotalRounds,
					XPAwarded:    res.XPAwarded,
					Profile:      *res.Profile,
				})
				continue
			}
			emit("round", newRoundPayload(res.Next, res.TotalRounds))
		case "leaderboard":
			var payload leaderboardRequest
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					emit("error", errorPayload{Message: "invalid leaderboard payload"})
					continue
				}
			}
			if cancelLeaderboard != nil {
				cancelLeaderboard()
				cancelLeaderboard = nil
			}
			updates, cancel, err := h.orgs.SubscribeLeaderboard(ctx, domain.OrganizationScope(payload.OrganizationID))
			if err != nil {
				emit("error", errorBody(err))
				continue
			}
			cancelLeaderboard = cancel
			forward("leaderboard", func() (any, bool) {
				select {
				case lb, ok := <-updates:
					return lb, ok
				case <-closeSignals:
					return nil, false
				}
			})
		default:
			emit("error", errorPayload{Message: "unsupported message type"})
		}
	}

	close(closeSignals)
	forwarders.Wait()
	close(send)
	<-writerDone
}
