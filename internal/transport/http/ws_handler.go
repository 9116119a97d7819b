package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizsync/internal/app"
	"quizsync/internal/domain"
)

// ResultFeed publishes the merged result log after each sync pass.
type ResultFeed interface {
	Subscribe() (<-chan domain.ResultLog, func())
}

type WSHandler struct {
	service  *app.QuizService
	feed     ResultFeed
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler serves one quiz attempt per connection. feed may be nil.
func NewWSHandler(service *app.QuizService, feed ResultFeed, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		feed:    feed,
		log:     log,
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

type answerPayload struct {
	QuestionID int    `json:"questionId"`
	Answer     string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// publicQuestion is a question without its answer key.
type publicQuestion struct {
	ID      int                 `json:"id"`
	Kind    domain.QuestionKind `json:"type"`
	Prompt  string              `json:"question"`
	Options []string            `json:"options,omitempty"`
}

type startedPayload struct {
	SessionID        string           `json:"sessionId"`
	QuizID           string           `json:"quizId"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	Deadline         time.Time        `json:"deadline"`
	Questions        []publicQuestion `json:"questions"`
}

type progressPayload struct {
	Answered         int `json:"answered"`
	Total            int `json:"total"`
	RemainingSeconds int `json:"remainingSeconds"`
}

type resultPayload struct {
	Record   domain.ResultRecord `json:"record"`
	Source   domain.SaveSource   `json:"source"`
	Error    string              `json:"error,omitempty"`
	TimedOut bool                `json:"timedOut"`
}

type syncedPayload struct {
	Results domain.ResultLog `json:"results"`
}

// attempt tracks the session bound to one connection.
type attempt struct {
	mu        sync.Mutex
	session   *app.Session
	submitted bool
}

func (a *attempt) set(session *app.Session) {
	a.mu.Lock()
	a.session = session
	a.submitted = false
	a.mu.Unlock()
}

func (a *attempt) current() *app.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// claim marks the attempt submitted; only the first caller for a session wins.
func (a *attempt) claim() (*app.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil || a.submitted {
		return nil, false
	}
	a.submitted = true
	return a.session, true
}

// ServeWS upgrades HTTP requests to websockets and runs a quiz attempt over them.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quizID := q.Get("quizId")
	if quizID == "" {
		quizID = "default"
	}
	identity := identityFromQuery(q.Get("userId"), q.Get("name"), q.Get("role"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.Start(ctx, quizID, identity)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	current := &attempt{}
	current.set(session)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	timerDone := make(chan struct{})
	rearm := make(chan time.Time, 1)

	emit := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		case <-closeSignals:
		}
	}

	submit := func(timedOut bool) {
		s, ok := current.claim()
		if !ok {
			if timedOut {
				return
			}
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: domain.ErrSessionNotFound.Error()}})
			return
		}
		// the save must finish even when the client has gone away
		outcome, err := h.service.Submit(context.WithoutCancel(ctx), s.ID())
		if err != nil {
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		payload := resultPayload{Record: outcome.Record, Source: outcome.Source, TimedOut: timedOut}
		if outcome.Err != nil {
			payload.Error = outcome.Err.Error()
		}
		emit(outboundMessage[any]{Type: "result", Payload: payload})
	}

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	var updates <-chan domain.ResultLog
	if h.feed != nil {
		var cancel func()
		updates, cancel = h.feed.Subscribe()
		defer cancel()
	}
	go func() {
		defer close(updatesDone)
		for {
			select {
			case log, ok := <-updates:
				if !ok {
					return
				}
				emit(outboundMessage[any]{Type: "synced", Payload: syncedPayload{Results: log}})
			case <-closeSignals:
				return
			}
		}
	}()

	// auto-submit when the countdown runs out
	go func() {
		defer close(timerDone)
		timer := time.NewTimer(time.Until(session.Deadline()))
		defer timer.Stop()
		for {
			select {
			case deadline := <-rearm:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(time.Until(deadline))
			case <-timer.C:
				submit(true)
			case <-closeSignals:
				return
			}
		}
	}()

	emit(outboundMessage[any]{Type: "started", Payload: started(session)})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			s := current.current()
			p, err := h.service.Answer(ctx, s.ID(), payload.QuestionID, payload.Answer)
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			emit(outboundMessage[any]{Type: "progress", Payload: progress(p)})
		case "clear":
			p, err := h.service.Clear(ctx, current.current().ID())
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			emit(outboundMessage[any]{Type: "progress", Payload: progress(p)})
		case "submit":
			submit(false)
		case "reset":
			old := current.current()
			if err := h.service.Reset(ctx, old.ID()); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			next, err := h.service.Start(ctx, old.QuizID(), old.Identity())
			if err != nil {
				emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
				continue
			}
			current.set(next)
			rearm <- next.Deadline()
			emit(outboundMessage[any]{Type: "started", Payload: started(next)})
		default:
			emit(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	// an unsubmitted session dies with its connection
	if s, ok := current.claim(); ok {
		_ = h.service.Reset(context.WithoutCancel(ctx), s.ID())
	}

	close(closeSignals)
	<-updatesDone
	<-timerDone
	close(send)
	<-writerDone
}

func identityFromQuery(userID, name, role string) *domain.Identity {
	if userID == "" && name == "" {
		return nil
	}
	who := &domain.Identity{UserID: userID, UserName: name, Role: domain.Role(role)}
	switch who.Role {
	case domain.RoleTeacher, domain.RoleStudent, domain.RoleGuest:
	default:
		who.Role = domain.RoleStudent
	}
	return who
}

func started(s *app.Session) startedPayload {
	questions := make([]publicQuestion, 0, len(s.Questions()))
	for _, q := range s.Questions() {
		questions = append(questions, publicQuestion{ID: q.ID, Kind: q.Kind, Prompt: q.Prompt, Options: q.Options})
	}
	return startedPayload{
		SessionID:        s.ID(),
		QuizID:           s.QuizID(),
		TimeLimitSeconds: int(s.TimeLimit() / time.Second),
		Deadline:         s.Deadline(),
		Questions:        questions,
	}
}

func progress(p domain.Progress) progressPayload {
	return progressPayload{Answered: p.Answered, Total: p.Total, RemainingSeconds: int(p.Remaining / time.Second)}
}
