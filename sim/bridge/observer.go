package bridge

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Observer receives session notifications as CloudEvents. Observers run
// synchronously on the goroutine that caused the notification (the
// advancing caller, or the session's solve goroutine for the admission into
// Solving, since the pool runs OnAdmit in the submitting goroutine) and
// must not call back into the session.
type Observer func(ctx context.Context, event cloudevents.Event) error

// CloudEvent types published by a session.
const (
	EventTypeTransition = "simopt.session.transition"
	EventTypeReplan     = "simopt.session.replan"
)

// TransitionData is the payload of EventTypeTransition.
type TransitionData struct {
	Session string `json:"session"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Clock   int64  `json:"clock"`
	Reason  string `json:"reason,omitempty"`
}

func newCloudEvent(session, eventType string, data any) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	id, err := uuid.NewV7()
	if err != nil {
		return event, err
	}
	event.SetID(id.String())
	event.SetType(eventType)
	event.SetSource("simopt/bridge")
	event.SetSubject(session)
	event.SetTime(time.Now())
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return event, fmt.Errorf("encoding %s data: %w", eventType, err)
	}
	return event, nil
}

// AddObserver registers o for every later notification.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Session) publish(eventType string, data any) {
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()
	if len(observers) == 0 {
		return
	}
	event, err := newCloudEvent(s.id, eventType, data)
	if err != nil {
		s.log.Warnf("dropping %s notification: %v", eventType, err)
		return
	}
	for _, o := range observers {
		if err := o(context.Background(), event); err != nil {
			s.log.Warnf("observer rejected %s: %v", eventType, err)
		}
	}
}
