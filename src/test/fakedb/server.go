// Package fakedb is an in-process database server speaking the driver's
// wire protocol. Databases, sessions and query answers live in memory.
package fakedb

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	rpc "github.com/mlops-eval/typedb-driver/src/grpc"
	"github.com/mlops-eval/typedb-driver/src/protocol"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// DefaultBatchSize is the number of answers sent before the server asks the
// client to continue, unless the transaction options say otherwise.
const DefaultBatchSize = 50

// Server implements the database service for tests.
type Server struct {
	logger       *logrus.Logger
	grpcServer   *grpc.Server
	healthServer *health.Server
	shutdown     chan struct{} // Signal for graceful shutdown
	stopOnce     sync.Once
	txWg         sync.WaitGroup // Track active transaction streams

	mu        sync.Mutex
	databases map[string]struct{}
	sessions  map[uuid.UUID]string
	answers   map[string][][]byte
	missing   map[string]bool
	received  map[protocol.Kind]int
}

// NewServer creates a server with no databases.
func NewServer(logger *logrus.Logger) *Server {
	s := &Server{
		logger:    logger,
		shutdown:  make(chan struct{}),
		databases: make(map[string]struct{}),
		sessions:  make(map[uuid.UUID]string),
		answers:   make(map[string][][]byte),
		missing:   make(map[string]bool),
		received:  make(map[protocol.Kind]int),
	}

	s.grpcServer = grpc.NewServer(
		grpc.ForceServerCodec(rpc.FrameCodec{}),
		grpc.UnknownServiceHandler(s.handle),
	)

	// Register health service
	s.healthServer = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.healthServer)
	s.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	return s
}

// SetAnswers makes every query whose text is query answer with answers.
func (s *Server) SetAnswers(query string, answers ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[query] = answers
}

// SetMissing makes query answer with an envelope whose payload is not set.
func (s *Server) SetMissing(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing[query] = true
}

// AddDatabase creates a database without going through the client.
func (s *Server) AddDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.databases[name] = struct{}{}
}

// Received returns how many transaction requests of kind have arrived.
func (s *Server) Received(kind protocol.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[kind]
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.WithField("address", lis.Addr().String()).Info("Fake database server started")
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}
	return nil
}

// Stop stops the server, waiting briefly for open transactions to end.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Initiating graceful shutdown")
		close(s.shutdown)
		s.healthServer.Shutdown()

		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			s.grpcServer.Stop()
			<-stopped
		}

		s.txWg.Wait()
		s.logger.Info("Graceful shutdown completed")
	})
}

func (s *Server) handle(_ any, ss grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(ss)
	if !ok {
		return status.Error(codes.Internal, "no method in stream context")
	}

	switch method {
	case rpc.MethodTransaction:
		s.txWg.Add(1)
		defer s.txWg.Done()
		return newServerTransaction(s, ss).serve()
	case rpc.MethodSessionOpen:
		req := &protocol.SessionOpenReq{}
		if err := ss.RecvMsg(req); err != nil {
			return err
		}
		res, err := s.sessionOpen(req)
		if err != nil {
			return err
		}
		return ss.SendMsg(res)
	case rpc.MethodSessionClose:
		req := &protocol.SessionReq{}
		if err := ss.RecvMsg(req); err != nil {
			return err
		}
		s.sessionClose(req.SessionID)
		return ss.SendMsg(&protocol.Empty{})
	case rpc.MethodSessionPulse:
		req := &protocol.SessionReq{}
		if err := ss.RecvMsg(req); err != nil {
			return err
		}
		return ss.SendMsg(&protocol.SessionPulseRes{Alive: s.sessionAlive(req.SessionID)})
	case rpc.MethodDatabaseCreate, rpc.MethodDatabaseContains, rpc.MethodDatabaseDelete:
		req := &protocol.DatabaseReq{}
		if err := ss.RecvMsg(req); err != nil {
			return err
		}
		res, err := s.database(method, req.Name)
		if err != nil {
			return err
		}
		return ss.SendMsg(res)
	case rpc.MethodDatabaseAll:
		if err := ss.RecvMsg(&protocol.Empty{}); err != nil {
			return err
		}
		return ss.SendMsg(&protocol.DatabaseAllRes{Names: s.databaseNames()})
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
}

func (s *Server) sessionOpen(req *protocol.SessionOpenReq) (*protocol.SessionOpenRes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.databases[req.Database]; !ok {
		return nil, status.Errorf(codes.NotFound, "database '%s' does not exist", req.Database)
	}
	id := uuid.New()
	s.sessions[id] = req.Database
	s.logger.WithFields(logrus.Fields{
		"session_id": id.String(),
		"database":   req.Database,
		"type":       req.Type.String(),
	}).Debug("Opened session")
	return &protocol.SessionOpenRes{SessionID: id[:], ServerDurationMillis: 1}, nil
}

func (s *Server) sessionClose(sessionID []byte) {
	id, err := uuid.FromBytes(sessionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) sessionAlive(sessionID []byte) bool {
	id, err := uuid.FromBytes(sessionID)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Server) database(method, name string) (protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.databases[name]
	switch method {
	case rpc.MethodDatabaseCreate:
		if exists {
			return nil, status.Errorf(codes.AlreadyExists, "database '%s' already exists", name)
		}
		s.databases[name] = struct{}{}
		return &protocol.Empty{}, nil
	case rpc.MethodDatabaseDelete:
		if !exists {
			return nil, status.Errorf(codes.NotFound, "database '%s' does not exist", name)
		}
		delete(s.databases, name)
		return &protocol.Empty{}, nil
	default:
		return &protocol.DatabaseContainsRes{Contains: exists}, nil
	}
}

func (s *Server) databaseNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	return names
}

func (s *Server) record(kind protocol.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received[kind]++
}

func (s *Server) lookup(query string) ([][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[query], s.missing[query]
}

// serverTransaction serves one transaction stream. Streamed answers are
// produced by one goroutine per query, which waits for the client's
// continuation after each batch.
type serverTransaction struct {
	server    *Server
	ss        grpc.ServerStream
	batchSize int
	sendMu    sync.Mutex

	mu      sync.Mutex
	waiting map[protocol.RequestID]chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

func newServerTransaction(s *Server, ss grpc.ServerStream) *serverTransaction {
	return &serverTransaction{
		server:    s,
		ss:        ss,
		batchSize: DefaultBatchSize,
		waiting:   make(map[protocol.RequestID]chan struct{}),
		done:      make(chan struct{}),
	}
}

func (t *serverTransaction) serve() error {
	defer t.wg.Wait()
	defer close(t.done)

	for {
		var frame rpc.Frame
		if err := t.ss.RecvMsg(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		reqs, err := protocol.DecodeClient(frame.Data)
		if err != nil {
			return status.Errorf(codes.InvalidArgument, "malformed request batch: %v", err)
		}
		for _, req := range reqs {
			t.server.record(req.Kind)
			if err := t.handle(req); err != nil {
				return err
			}
		}
	}
}

func (t *serverTransaction) handle(req *protocol.TransactionReq) error {
	switch req.Kind {
	case protocol.KindOpen:
		open := &protocol.OpenRequest{}
		if err := open.Unmarshal(req.Body); err != nil {
			return status.Errorf(codes.InvalidArgument, "malformed open request: %v", err)
		}
		if open.Options != nil && open.Options.BatchSize != nil {
			t.batchSize = int(*open.Options.BatchSize)
		}
		return t.send(protocol.Result(req.ReqID, protocol.KindOpen, nil))
	case protocol.KindStream:
		t.mu.Lock()
		ch, ok := t.waiting[req.ReqID]
		delete(t.waiting, req.ReqID)
		t.mu.Unlock()
		if ok {
			close(ch)
		}
		return nil
	case protocol.KindCommit, protocol.KindRollback:
		return t.send(protocol.Result(req.ReqID, req.Kind, nil))
	case protocol.KindConcept:
		return t.send(protocol.Result(req.ReqID, protocol.KindConcept, req.Body))
	case protocol.KindQuery:
		return t.query(req)
	default:
		return t.send(protocol.NotSet(req.ReqID))
	}
}

func (t *serverTransaction) query(req *protocol.TransactionReq) error {
	q := &protocol.QueryRequest{}
	if err := q.Unmarshal(req.Body); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed query request: %v", err)
	}

	answers, missing := t.server.lookup(q.Query)
	if missing {
		return t.send(protocol.NotSet(req.ReqID))
	}

	switch q.Kind {
	case protocol.QueryMatchAggregate:
		res := &protocol.QueryAnswers{}
		if len(answers) > 0 {
			res.Answers = answers[:1]
		}
		body, err := res.Marshal()
		if err != nil {
			return err
		}
		return t.send(protocol.Result(req.ReqID, protocol.KindQuery, body))
	case protocol.QueryDefine, protocol.QueryUndefine, protocol.QueryDelete:
		return t.send(protocol.Result(req.ReqID, protocol.KindQuery, nil))
	}

	batchSize := t.batchSize
	if q.Options != nil && q.Options.BatchSize != nil {
		batchSize = int(*q.Options.BatchSize)
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.streamAnswers(req.ReqID, answers, batchSize); err != nil {
			t.server.logger.WithFields(logrus.Fields{
				"request_id": req.ReqID.String(),
				"error":      err.Error(),
			}).Debug("Stopped streaming answers")
		}
	}()
	return nil
}

func (t *serverTransaction) streamAnswers(id protocol.RequestID, answers [][]byte, batchSize int) error {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	for len(answers) > 0 {
		select {
		case <-t.server.shutdown:
			return errors.New("server shutting down")
		default:
		}

		n := min(batchSize, len(answers))
		body, err := (&protocol.QueryAnswers{Answers: answers[:n]}).Marshal()
		if err != nil {
			return err
		}
		if err := t.send(protocol.Part(id, protocol.KindQuery, body)); err != nil {
			return err
		}
		answers = answers[n:]
		if len(answers) == 0 {
			break
		}

		cont := make(chan struct{})
		t.mu.Lock()
		t.waiting[id] = cont
		t.mu.Unlock()
		if err := t.send(protocol.StreamPart(id, protocol.StreamContinue)); err != nil {
			return err
		}
		select {
		case <-cont:
		case <-t.done:
			return errors.New("transaction ended before continuation")
		case <-t.server.shutdown:
			return errors.New("server shutting down")
		}
	}
	return t.send(protocol.StreamPart(id, protocol.StreamDone))
}

func (t *serverTransaction) send(res protocol.Response) error {
	frame, err := protocol.EncodeServer(res)
	if err != nil {
		return err
	}
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.ss.SendMsg(&rpc.Frame{Data: frame})
}
