// Package inproc is an in-process transport: two endpoints opened from the
// same Network talk through channels instead of sockets. It speaks either
// the peer protocol (discrete messages) or emulates the relay store (full
// state writes echoed to every subscriber).
package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/iamasit07/connect4-remote/internal/domain"
	"github.com/iamasit07/connect4-remote/internal/protocol"
	"github.com/iamasit07/connect4-remote/internal/transport"
)

type Network struct {
	kind transport.Kind

	mu        sync.Mutex
	rooms     map[string]*link
	answers   map[string]*link
	endpoints []*Endpoint
	next      int
	failOpen  error
}

func NewNetwork(kind transport.Kind) *Network {
	return &Network{
		kind:    kind,
		rooms:   make(map[string]*link),
		answers: make(map[string]*link),
	}
}

// Provider returns a transport.Provider whose transports join this network.
func (n *Network) Provider() transport.Provider {
	return provider{n: n}
}

// FailOpen makes every later Open return err.
func (n *Network) FailOpen(err error) {
	n.mu.Lock()
	n.failOpen = err
	n.mu.Unlock()
}

// Endpoints lists every endpoint opened so far, oldest first.
func (n *Network) Endpoints() []*Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Endpoint(nil), n.endpoints...)
}

type provider struct {
	n *Network
}

func (p provider) Kind() transport.Kind { return p.n.kind }
func (p provider) Check() error         { return nil }

func (p provider) Open(h transport.Handler) (transport.Transport, error) {
	n := p.n
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOpen != nil {
		return nil, n.failOpen
	}
	e := &Endpoint{
		net:     n,
		handler: h,
		events:  make(chan func(), 256),
		done:    make(chan struct{}),
	}
	n.endpoints = append(n.endpoints, e)
	go e.pump()
	return e, nil
}

// link joins a host and a guest. In relay mode it also holds the record.
type link struct {
	host, guest *Endpoint
	record      protocol.State
}

type Endpoint struct {
	net     *Network
	handler transport.Handler
	events  chan func()
	done    chan struct{}

	mu        sync.Mutex
	link      *link
	connected bool
	closed    bool
	sent      []protocol.Message
}

func (e *Endpoint) Kind() transport.Kind { return e.net.kind }

func (e *Endpoint) pump() {
	for {
		select {
		case fn := <-e.events:
			fn()
		case <-e.done:
			return
		}
	}
}

func (e *Endpoint) post(fn func()) {
	select {
	case <-e.done:
	case e.events <- fn:
	}
}

func (e *Endpoint) InitiateSession(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transport.Fail("initiate", err)
	}
	n := e.net
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	token := fmt.Sprintf("room-%d", n.next)
	l := &link{host: e, record: protocol.State{Board: domain.NewBoard(), CurrentPlayer: domain.Player1}}
	n.rooms[token] = l

	e.mu.Lock()
	e.link = l
	e.mu.Unlock()
	return token, nil
}

func (e *Endpoint) JoinSession(ctx context.Context, token string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", transport.Fail("join", err)
	}
	n := e.net
	n.mu.Lock()
	l, ok := n.rooms[token]
	if !ok {
		n.mu.Unlock()
		if n.kind == transport.KindRelay {
			return "", transport.Fail("join", transport.ErrSessionNotFound)
		}
		return "", transport.Fail("join", transport.ErrMalformedToken)
	}
	if l.guest != nil {
		n.mu.Unlock()
		return "", transport.Fail("join", transport.ErrSessionFull)
	}
	l.guest = e
	delete(n.rooms, token)
	answer := ""
	if n.kind == transport.KindPeer {
		answer = "answer-" + token
		n.answers[answer] = l
	}
	record := l.record
	n.mu.Unlock()

	e.mu.Lock()
	e.link = l
	e.mu.Unlock()

	if n.kind == transport.KindRelay {
		e.setConnected()
		l.host.setConnected()
		e.post(func() { e.handler.OnMessage(record) })
		e.post(e.handler.OnConnected)
		l.host.post(l.host.handler.OnConnected)
	}
	return answer, nil
}

func (e *Endpoint) CompleteSession(ctx context.Context, reply string) error {
	if e.net.kind != transport.KindPeer {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return transport.Fail("complete", err)
	}
	n := e.net
	n.mu.Lock()
	l, ok := n.answers[reply]
	if ok {
		delete(n.answers, reply)
	}
	n.mu.Unlock()
	if !ok || l.host != e {
		return transport.Fail("complete", transport.ErrMalformedToken)
	}

	for _, side := range []*Endpoint{l.host, l.guest} {
		side := side
		side.setConnected()
		side.post(side.handler.OnConnected)
	}
	return nil
}

func (e *Endpoint) setConnected() {
	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
}

func (e *Endpoint) peer() *Endpoint {
	if e.link == nil {
		return nil
	}
	if e.link.host == e {
		return e.link.guest
	}
	return e.link.host
}

func (e *Endpoint) Send(msg protocol.Message) bool {
	e.mu.Lock()
	if !e.connected || e.closed {
		e.mu.Unlock()
		return false
	}
	other := e.peer()
	l := e.link
	e.mu.Unlock()
	if other == nil {
		return false
	}

	if e.net.kind == transport.KindPeer {
		e.record(msg)
		other.post(func() { other.handler.OnMessage(msg) })
		return true
	}

	// relay: only full writes, echoed to both subscribers
	var st protocol.State
	switch m := msg.(type) {
	case protocol.State:
		st = m
	case protocol.Reset:
		st = protocol.State{Board: domain.NewBoard(), CurrentPlayer: domain.Player1}
	default:
		return false
	}
	e.record(msg)

	e.net.mu.Lock()
	st.Version = l.record.Version + 1
	l.record = st
	e.net.mu.Unlock()

	for _, side := range []*Endpoint{l.host, l.guest} {
		side := side
		side.post(func() { side.handler.OnMessage(st) })
	}
	return true
}

func (e *Endpoint) record(msg protocol.Message) {
	e.mu.Lock()
	e.sent = append(e.sent, msg)
	e.mu.Unlock()
}

// Sent returns every message this endpoint accepted for delivery.
func (e *Endpoint) Sent() []protocol.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]protocol.Message(nil), e.sent...)
}

// Deliver hands msg to this endpoint's handler as if the other side sent it.
func (e *Endpoint) Deliver(msg protocol.Message) {
	e.post(func() { e.handler.OnMessage(msg) })
}

// Drop simulates losing the link: both sides get OnDisconnected.
func (e *Endpoint) Drop() {
	e.mu.Lock()
	other := e.peer()
	e.connected = false
	e.mu.Unlock()

	e.post(e.handler.OnDisconnected)
	if other != nil {
		other.mu.Lock()
		other.connected = false
		other.mu.Unlock()
		other.post(other.handler.OnDisconnected)
	}
}

// Fail reports err to this endpoint's handler.
func (e *Endpoint) Fail(err error) {
	e.post(func() { e.handler.OnError(err) })
}

// Closed reports whether Teardown was called.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) Teardown() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.connected = false
	other := e.peer()
	e.mu.Unlock()
	close(e.done)

	if other != nil && e.net.kind == transport.KindPeer {
		other.mu.Lock()
		wasConnected := other.connected
		other.connected = false
		other.mu.Unlock()
		if wasConnected {
			other.post(other.handler.OnDisconnected)
		}
	}
	return nil
}
