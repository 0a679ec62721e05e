package quicrelay

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
	quic "github.com/quic-go/quic-go"

	"pairing/internal/debuglog"
	"pairing/internal/proto"
)

// Server broadcasts published frames to every subscriber of a topic,
// including a publisher subscribed to its own topic — relay.Client's
// contract explicitly allows echoes, so this never special-cases the
// sender. Connection handling follows the teacher's own
// internal/network.ListenAndServeWithReady accept-loop shape: one
// goroutine per accepted connection, one per accepted stream.
type Server struct {
	listener *quic.Listener

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	writeMu sync.Mutex
	stream  quic.Stream
}

// ListenAndServe starts a Server on addr using a deterministic
// self-signed development certificate and begins accepting
// connections in the background. Cancel ctx or call Close to stop it.
func ListenAndServe(ctx context.Context, addr string) (*Server, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	listener, err := quic.ListenAddr(addr, tlsConf, nil)
	if err != nil {
		return nil, err
	}
	s := &Server{listener: listener, subs: make(map[string]map[*subscriber]struct{})}
	go s.acceptLoop(ctx)
	return s, nil
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// Addr reports the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			glog.V(1).Infof("quicrelay: accept: %v", err)
			return
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		glog.V(1).Infof("quicrelay: accept stream: %v", err)
		return
	}
	sub := &subscriber{stream: stream}
	defer s.removeAll(sub)

	for {
		raw, err := proto.ReadFrame(stream)
		if err != nil {
			return
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			glog.V(1).Infof("quicrelay: decode message: %v", err)
			continue
		}
		switch msg.Op {
		case opSubscribe:
			s.addSub(msg.Topic, sub)
		case opUnsubscribe:
			s.removeSub(msg.Topic, sub)
		case opPublish:
			s.broadcast(msg.Topic, msg.Payload)
		}
	}
}

func (s *Server) addSub(topic string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[topic] == nil {
		s.subs[topic] = make(map[*subscriber]struct{})
	}
	s.subs[topic][sub] = struct{}{}
}

func (s *Server) removeSub(topic string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[topic], sub)
}

func (s *Server) removeAll(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, set := range s.subs {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, topic)
		}
	}
}

func (s *Server) broadcast(topic string, payload []byte) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs[topic]))
	for sub := range s.subs[topic] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	raw, err := encodeMessage(wireMessage{Op: opPublish, Topic: topic, Payload: payload})
	if err != nil {
		glog.Warningf("quicrelay: encode broadcast for topic=%s: %v", topic, err)
		return
	}
	debuglog.RateLimitedf("quicrelay:"+topic, time.Second, "quicrelay: broadcast topic=%s subscribers=%d", topic, len(subs))
	for _, sub := range subs {
		sub.writeMu.Lock()
		if err := proto.WriteFrame(sub.stream, raw); err != nil {
			glog.V(1).Infof("quicrelay: write to subscriber failed, dropping: %v", err)
		}
		sub.writeMu.Unlock()
	}
}
