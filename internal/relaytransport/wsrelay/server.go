package wsrelay

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"pairing/internal/debuglog"
)

// Server broadcasts published frames to every subscriber of a topic,
// the same fan-out contract quicrelay.Server implements over a
// different transport.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// ListenAndServe starts a Server on addr and begins accepting
// WebSocket connections at "/" in the background.
func ListenAndServe(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		subs:     make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	s.httpServer = &http.Server{Handler: mux}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			glog.Warningf("wsrelay: serve: %v", err)
		}
	}()
	return s, nil
}

// Addr reports the address the server is listening on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.httpServer.Shutdown(context.Background())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.V(1).Infof("wsrelay: upgrade: %v", err)
		return
	}
	defer conn.Close()
	sub := &subscriber{conn: conn}
	defer s.removeAll(sub)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			glog.V(1).Infof("wsrelay: decode message: %v", err)
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
		glog.Warningf("wsrelay: encode broadcast for topic=%s: %v", topic, err)
		return
	}
	debuglog.RateLimitedf("wsrelay:"+topic, time.Second, "wsrelay: broadcast topic=%s subscribers=%d", topic, len(subs))
	for _, sub := range subs {
		sub.writeMu.Lock()
		if err := sub.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			glog.V(1).Infof("wsrelay: write to subscriber failed, dropping: %v", err)
		}
		sub.writeMu.Unlock()
	}
}
