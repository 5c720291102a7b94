//go:build !js || !wasm

package devhost

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

type session struct {
	id     string
	server *Server
	ch     transport.Channel
	logger *utils.Logger

	mu      sync.Mutex
	streams map[string]func()
	wg      sync.WaitGroup
}

func newSession(s *Server, ch transport.Channel, remote string) *session {
	id := utils.GenerateID()
	return &session{
		id:      id,
		server:  s,
		ch:      ch,
		logger:  s.logger.With(utils.String("session", utils.ShortID(id)), utils.String("remote", remote)),
		streams: make(map[string]func()),
	}
}

func (s *session) run(ctx context.Context) {
	defer s.wg.Wait()
	defer s.close()

	if err := s.ch.Send(transport.Frame{Type: transport.FrameHello, Version: s.server.version}); err != nil {
		s.logger.Warn("Failed to send hello", utils.Err(err))
		return
	}
	s.logger.Info("Client connected")

	for {
		f, err := s.ch.Receive()
		if errors.Is(err, transport.ErrMalformedFrame) {
			s.sendError("", "", err.Error())
			continue
		}
		if err != nil {
			s.logger.Debug("Client disconnected", utils.Err(err))
			return
		}

		switch f.Type {
		case transport.FrameInvoke:
			if f.Request == nil {
				s.sendError("", "", "invoke frame without request")
				continue
			}
			if f.Request.Stream {
				s.startStream(ctx, *f.Request)
				continue
			}
			s.wg.Add(1)
			go s.respond(ctx, *f.Request)
		case transport.FrameCancel:
			s.stopStream(f.OperationID)
		default:
			s.logger.Debug("Ignoring frame", utils.String("type", f.Type))
		}
	}
}

func (s *session) respond(ctx context.Context, req bridge.Request) {
	defer s.wg.Done()
	defer s.recoverRequest(req)

	payload, err := s.server.responder.Respond(ctx, req)
	if err != nil {
		s.server.failures.Add(1)
		s.sendError(req.Capability, req.OperationID, err.Error())
		return
	}
	s.server.served.Add(1)

	// fire-only requests expect nothing back
	if req.OperationID == "" {
		return
	}
	s.sendResult(req, payload)
}

func (s *session) startStream(ctx context.Context, req bridge.Request) {
	defer s.recoverRequest(req)

	stop, err := s.server.responder.RespondStream(ctx, req, func(payload string) {
		s.sendResult(req, payload)
	})
	if err != nil {
		s.server.failures.Add(1)
		s.sendError(req.Capability, req.OperationID, err.Error())
		return
	}
	s.server.streams.Add(1)

	s.mu.Lock()
	if prev, ok := s.streams[req.OperationID]; ok {
		prev()
	}
	s.streams[req.OperationID] = stop
	s.mu.Unlock()

	s.logger.Debug("Stream started",
		utils.String("capability", req.Capability),
		utils.String("operation_id", req.OperationID))
}

// recoverRequest answers a panicking responder with an error frame so one
// request cannot take the server down.
func (s *session) recoverRequest(req bridge.Request) {
	if r := recover(); r != nil {
		s.server.failures.Add(1)
		s.sendError(req.Capability, req.OperationID, fmt.Sprintf("responder panicked: %v", r))
	}
}

func (s *session) stopStream(id string) {
	s.mu.Lock()
	stop, ok := s.streams[id]
	delete(s.streams, id)
	s.mu.Unlock()

	if ok {
		stop()
		s.logger.Debug("Stream cancelled", utils.String("operation_id", id))
	}
}

func (s *session) sendResult(req bridge.Request, payload string) {
	raw, err := bridge.Envelope{
		OperationID:   req.OperationID,
		ResultTypeTag: req.ResultTypeTag,
		ResultPayload: payload,
	}.Marshal()
	if err != nil {
		s.sendError(req.Capability, req.OperationID, err.Error())
		return
	}
	if err := s.ch.Send(transport.Frame{Type: transport.FrameResult, Envelope: raw}); err != nil {
		s.logger.Debug("Dropping result for closed client", utils.String("operation_id", req.OperationID))
	}
}

func (s *session) sendError(capability, id, msg string) {
	s.logger.Warn("Request failed",
		utils.String("capability", capability),
		utils.String("operation_id", id),
		utils.String("error", msg))
	_ = s.ch.Send(transport.Frame{Type: transport.FrameError, Capability: capability, OperationID: id, Error: msg})
}

// close stops every stream and the connection. Safe to call twice.
func (s *session) close() {
	s.mu.Lock()
	streams := s.streams
	s.streams = make(map[string]func())
	s.mu.Unlock()

	for _, stop := range streams {
		stop()
	}
	_ = s.ch.Close()
}
