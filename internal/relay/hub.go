package relay

import (
	"encoding/json"
	"sync"

	"livecast/native/internal/domain"
	"livecast/native/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "relay")

const sendBuffer = 64

// peer is one connected WebSocket client.
type peer struct {
	id   string
	send chan []byte

	// Guarded by Hub.mu.
	room   domain.BroadcastID
	role   domain.Role
	closed bool
}

// room is a live broadcast: one broadcaster and any number of viewers.
type room struct {
	id          domain.BroadcastID
	broadcaster *peer
	offer       domain.SessionDescription
	// candidates are the broadcaster's, replayed to late joiners.
	candidates []domain.ICECandidate
	viewers    map[string]*peer
	// answeredBy is the viewer whose answer reached the broadcaster.
	// The offer is single-use once it is set.
	answeredBy string
}

// Hub keeps the rooms and routes signaling messages between their members.
type Hub struct {
	metrics metrics.RelayCollector

	mu    sync.Mutex
	peers map[string]*peer
	rooms map[domain.BroadcastID]*room
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m metrics.RelayCollector) *Hub {
	if m == nil {
		m = metrics.NopRelay{}
	}
	return &Hub{
		metrics: m,
		peers:   make(map[string]*peer),
		rooms:   make(map[domain.BroadcastID]*room),
	}
}

func (h *Hub) register() *peer {
	p := &peer{id: uuid.NewString(), send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()

	h.metrics.ClientConnected()
	logger.Debugf("client registered: %s", p.id)
	return p
}

// unregister drops p. A broadcaster leaving ends its room.
func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[p.id]; !ok {
		return
	}
	delete(h.peers, p.id)
	h.leave(p, "broadcaster disconnected")
	p.closed = true
	close(p.send)

	h.metrics.ClientDisconnected()
	logger.Debugf("client unregistered: %s", p.id)
}

// Rooms reports the number of live broadcasts.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// handle routes one inbound frame from p.
func (h *Hub) handle(p *peer, data []byte) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warnf("client %s: unmarshal: %v", p.id, err)
		h.metrics.MessageRejected("unknown", "unmarshal")
		return
	}
	if err := msg.Validate(); err != nil {
		logger.Warnf("client %s: %v", p.id, err)
		h.metrics.MessageRejected(string(msg.Event), "invalid")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch msg.Event {
	case domain.MessageStart:
		h.start(p, msg)
	case domain.MessageStop:
		h.stop(p, msg)
	case domain.MessageJoin:
		h.join(p, msg)
	case domain.MessageAnswer:
		h.answer(p, msg)
	case domain.MessageICECandidate:
		h.candidate(p, msg)
	default:
		h.reject(p, msg, "unexpected")
	}
}

func (h *Hub) start(p *peer, msg domain.Message) {
	if p.room != "" {
		h.refuse(p, msg, "already in a broadcast")
		return
	}
	if _, ok := h.rooms[msg.BroadcastID]; ok {
		h.refuse(p, msg, "broadcast already exists")
		return
	}

	h.rooms[msg.BroadcastID] = &room{
		id:          msg.BroadcastID,
		broadcaster: p,
		offer:       *msg.SDP,
		viewers:     make(map[string]*peer),
	}
	p.room, p.role = msg.BroadcastID, domain.RoleBroadcaster

	h.metrics.RoomOpened()
	h.metrics.MessageRouted(string(msg.Event))
	logger.Infof("broadcast %s started by %s", msg.BroadcastID, p.id)
}

func (h *Hub) stop(p *peer, msg domain.Message) {
	r, ok := h.rooms[msg.BroadcastID]
	if !ok || r.broadcaster != p {
		h.reject(p, msg, "not broadcaster")
		return
	}
	h.closeRoom(r, "broadcast ended")
	p.room, p.role = "", 0
	h.metrics.MessageRouted(string(msg.Event))
}

func (h *Hub) join(p *peer, msg domain.Message) {
	if p.room != "" {
		h.refuse(p, msg, "already in a broadcast")
		return
	}
	r, ok := h.rooms[msg.BroadcastID]
	if !ok {
		h.refuse(p, msg, "no such broadcast")
		return
	}
	if r.answeredBy != "" {
		h.refuse(p, msg, "broadcast already has a viewer")
		return
	}

	r.viewers[p.id] = p
	p.room, p.role = r.id, domain.RoleViewer

	offer := r.offer
	h.deliver(p, domain.Message{Event: domain.MessageOffer, BroadcastID: r.id, SDP: &offer})
	for _, c := range r.candidates {
		h.deliver(p, domain.CandidateMessage(r.id, c))
	}

	h.metrics.MessageRouted(string(msg.Event))
	logger.Infof("viewer %s joined %s", p.id, r.id)
}

func (h *Hub) answer(p *peer, msg domain.Message) {
	r := h.roomOf(p, msg, domain.RoleViewer)
	if r == nil {
		return
	}
	if r.answeredBy != "" {
		h.leave(p, "")
		h.refuse(p, msg, "broadcast already has a viewer")
		return
	}
	r.answeredBy = p.id
	h.deliver(r.broadcaster, domain.AnswerMessage(r.id, msg.SDP.SDP))
	h.metrics.MessageRouted(string(msg.Event))
}

func (h *Hub) candidate(p *peer, msg domain.Message) {
	r := h.roomOf(p, msg, p.role)
	if r == nil {
		return
	}

	out := domain.CandidateMessage(r.id, *msg.Candidate)
	if p.role == domain.RoleBroadcaster {
		r.candidates = append(r.candidates, *msg.Candidate)
		for _, v := range r.viewers {
			h.deliver(v, out)
		}
	} else {
		h.deliver(r.broadcaster, out)
	}
	h.metrics.MessageRouted(string(msg.Event))
}

// roomOf returns the room msg addresses when p is a member with role.
func (h *Hub) roomOf(p *peer, msg domain.Message, role domain.Role) *room {
	if p.room == "" || p.room != msg.BroadcastID || p.role != role {
		h.reject(p, msg, "not a member")
		return nil
	}
	r, ok := h.rooms[p.room]
	if !ok {
		h.reject(p, msg, "no such broadcast")
		return nil
	}
	return r
}

// leave must be called with mu held.
func (h *Hub) leave(p *peer, reason string) {
	r, ok := h.rooms[p.room]
	if !ok {
		return
	}
	if p.role == domain.RoleBroadcaster && r.broadcaster == p {
		h.closeRoom(r, reason)
	} else {
		delete(r.viewers, p.id)
	}
	p.room, p.role = "", 0
}

// closeRoom tells every viewer the broadcast is gone and forgets the room.
func (h *Hub) closeRoom(r *room, reason string) {
	for _, v := range r.viewers {
		h.deliver(v, domain.ErrorMessage(r.id, reason))
		v.room, v.role = "", 0
	}
	delete(h.rooms, r.id)
	h.metrics.RoomClosed()
	logger.Infof("broadcast %s closed: %s", r.id, reason)
}

// refuse answers p with an error event, which ends its session.
func (h *Hub) refuse(p *peer, msg domain.Message, reason string) {
	h.metrics.MessageRejected(string(msg.Event), reason)
	logger.Warnf("client %s: %s %s: %s", p.id, msg.Event, msg.BroadcastID, reason)
	h.deliver(p, domain.ErrorMessage(msg.BroadcastID, reason))
}

func (h *Hub) reject(p *peer, msg domain.Message, reason string) {
	h.metrics.MessageRejected(string(msg.Event), reason)
	logger.Debugf("client %s: dropping %s: %s", p.id, msg.Event, reason)
}

// deliver queues msg for p. A client too slow to drain its queue is dropped.
func (h *Hub) deliver(p *peer, msg domain.Message) {
	if p.closed {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("marshal %s: %v", msg.Event, err)
		return
	}
	select {
	case p.send <- data:
	default:
		logger.Warnf("client %s: send queue full, dropping client", p.id)
		delete(h.peers, p.id)
		h.leave(p, "broadcaster too slow")
		p.closed = true
		close(p.send)
		h.metrics.ClientDisconnected()
	}
}
