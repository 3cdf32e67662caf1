package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"gleipnir/internal/intake"
	"gleipnir/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const defaultNWorkers = 10

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrNotListening       = errors.New("server not listening")
)

// Submitter is where decoded frames go, usually the intake queue.
type Submitter interface {
	Submit(order, peer []byte) error
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id      uuid.UUID
	conn    net.Conn
	records uint64
}

// Server accepts order streams over TCP. Each connection is served by one
// worker of the pool for as long as it stays open, so the number of workers
// bounds the number of clients served at once.
type Server struct {
	address   string
	port      int
	pool      *worker.WorkerPool
	submitter Submitter
	listener  net.Listener

	clientSessions     map[uuid.UUID]*ClientSession
	clientSessionsLock sync.Mutex
}

func New(address string, port, workers int, submitter Submitter) *Server {
	if workers <= 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:        address,
		port:           port,
		pool:           worker.NewWorkerPool(workers),
		submitter:      submitter,
		clientSessions: make(map[uuid.UUID]*ClientSession),
	}
}

// Listen binds the listening socket.
func (s *Server) Listen(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.address, fmt.Sprint(s.port)))
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.listener = listener
	return nil
}

// Addr is the bound address, once Listen succeeded.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(ctx); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections until ctx is done. Open connections are closed on
// the way out.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}
	t, _ := tomb.WithContext(ctx)

	s.pool.Setup(t, s.handleConnection)

	// Unblock Accept and the workers' reads once we are dying.
	t.Go(func() error {
		<-t.Dying()
		log.Info().Msg("server shutting down")
		if err := s.listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeClientSessions()
		return nil
	})

	t.Go(func() error {
		return s.accept(t)
	})

	log.Info().Str("address", s.listener.Addr().String()).Msg("server running")
	err := t.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) accept(t *tomb.Tomb) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !t.Alive() {
				return nil
			}
			return fmt.Errorf("error accepting client: %w", err)
		}

		session := s.addClientSession(conn)
		log.Info().
			Str("session", session.id.String()).
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")

		if err := s.pool.AddTask(t, session); err != nil {
			s.deleteClientSession(session)
			return nil
		}
	}
}

// handleConnection reads frames off a connection and submits them until the
// client leaves, sends something unusable or the intake pushes back.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}
	defer s.deleteClientSession(session)

	logger := log.With().Str("session", session.id.String()).Logger()
	buffer := make([]byte, FrameSize)
	for {
		order, peer, err := ReadFrame(session.conn, buffer)
		if err != nil {
			switch {
			case !t.Alive():
			case errors.Is(err, io.EOF):
				logger.Info().Uint64("records", session.records).Msg("client disconnected")
			default:
				logger.Warn().Err(err).Msg("error reading from connection")
			}
			return nil
		}

		err = s.submitter.Submit(order, peer)
		switch {
		case err == nil:
			session.records++
		case errors.Is(err, intake.ErrIntakeFull):
			logger.Warn().Err(err).Msg("intake full, dropping client")
			return nil
		case errors.Is(err, intake.ErrClosed):
			logger.Info().Msg("intake terminated, dropping client")
			return nil
		default:
			// The record is skipped, the stream stays usable.
			logger.Warn().Err(err).Msg("rejected record")
		}
	}
}

func (s *Server) addClientSession(conn net.Conn) *ClientSession {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	session := &ClientSession{id: uuid.New(), conn: conn}
	s.clientSessions[session.id] = session
	return session
}

// deleteClientSession is an atomic map remove that also closes the connection.
func (s *Server) deleteClientSession(session *ClientSession) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	if _, ok := s.clientSessions[session.id]; !ok {
		return
	}
	delete(s.clientSessions, session.id)
	if err := session.conn.Close(); err != nil {
		log.Error().Str("session", session.id.String()).Err(err).Msg("unable to close connection")
	}
}

func (s *Server) closeClientSessions() {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	for id, session := range s.clientSessions {
		delete(s.clientSessions, id)
		if err := session.conn.Close(); err != nil {
			log.Error().Str("session", id.String()).Err(err).Msg("unable to close connection")
		}
	}
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	return len(s.clientSessions)
}
