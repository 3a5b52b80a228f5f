package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
)

const (
	RealtimeEventConfessionCreated   = "confession-created"
	RealtimeEventConfessionStatus    = "confession-status"
	RealtimeEventConfessionReactions = "confession-reactions"
	RealtimeEventConfessionRemoved   = "confession-removed"
	RealtimeEventCommentAdded        = "comment-added"
	realtimeEventHeartbeat           = "heartbeat"
	realtimeSourceBackend            = "confessions-backend"
)

// Audience selects which realtime messages a subscriber receives.
type Audience int

const (
	// AudiencePublic receives messages about approved confessions only.
	AudiencePublic Audience = iota
	// AudienceModerators receives every message.
	AudienceModerators
)

// RealtimeMessage describes one change to broadcast. Public marks messages
// that concern a confession which is, or was until this change, approved.
type RealtimeMessage struct {
	EventType    string
	ConfessionID string
	Status       confessions.Status
	Reactions    *confessions.Reactions
	CommentID    string
	Public       bool
	Timestamp    time.Time
}

type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[Audience]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[Audience]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber until ctx is done or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, audience Audience) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(audience, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(audience, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message without blocking; a subscriber with a full buffer misses it.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" || message.ConfessionID == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	audiences := []Audience{AudienceModerators}
	if message.Public {
		audiences = append(audiences, AudiencePublic)
	}

	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0)
	for _, audience := range audiences {
		for _, subscriber := range d.subscribers[audience] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()

	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers for an audience.
func (d *RealtimeDispatcher) SubscriberCount(audience Audience) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[audience])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(audience Audience, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[audience]; !ok {
		d.subscribers[audience] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[audience][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(audience Audience, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[audience]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, audience)
		}
	}
	d.mu.Unlock()
}

type realtimePayload struct {
	ConfessionID string                 `json:"confessionId"`
	Status       string                 `json:"status,omitempty"`
	Reactions    *confessions.Reactions `json:"reactions,omitempty"`
	CommentID    string                 `json:"commentId,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

func newRealtimePayload(message RealtimeMessage) realtimePayload {
	return realtimePayload{
		ConfessionID: message.ConfessionID,
		Status:       string(message.Status),
		Reactions:    message.Reactions,
		CommentID:    message.CommentID,
		Timestamp:    message.Timestamp,
	}
}
