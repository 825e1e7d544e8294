package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/matheus3301/showroom/internal/api"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/session"
)

// Server serves the daemon RPC services on the profile's unix socket.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the profile socket and registers the services. The
// socket is owner-only; the profile lock is already held, so a leftover
// socket file belongs to a dead daemon and is removed.
func NewServer(
	p Params,
	logger *zap.Logger,
	sessionSvc *api.SessionService,
	chatSvc *api.ChatService,
	presenceSvc *api.PresenceService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.Profile)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	log := logger.Named("rpc")
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryLogger(log)),
		grpc.ChainStreamInterceptor(streamLogger(log)),
	)
	rpc.RegisterSessionServer(srv, sessionSvc)
	rpc.RegisterChatServer(srv, chatSvc)
	rpc.RegisterPresenceServer(srv, presenceSvc)

	return &Server{
		grpcServer: srv,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("rpc server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop drains in-flight calls, cuts open WatchEvents streams once ctx
// expires, and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("rpc server stopping")
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
		<-done
	}
	_ = os.Remove(s.socketPath)
}

// unaryLogger logs every call at debug level and failures at warn. A
// panicking handler becomes an Internal error instead of killing the daemon.
func unaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				log.Error("handler panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
				err = status.Errorf(codes.Internal, "internal error")
			}
			logCall(log, info.FullMethod, start, err)
		}()
		return handler(ctx, req)
	}
}

func streamLogger(log *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		log.Debug("stream opened", zap.String("method", info.FullMethod))
		defer func() {
			if r := recover(); r != nil {
				log.Error("stream panic", zap.String("method", info.FullMethod), zap.Any("panic", r), zap.Stack("stack"))
				err = status.Errorf(codes.Internal, "internal error")
			}
			logCall(log, info.FullMethod, start, err)
		}()
		return handler(srv, ss)
	}
}

func logCall(log *zap.Logger, method string, start time.Time, err error) {
	fields := []zap.Field{zap.String("method", method), zap.Duration("took", time.Since(start))}
	switch status.Code(err) {
	case codes.OK, codes.Canceled:
		log.Debug("rpc", fields...)
	case codes.InvalidArgument, codes.NotFound, codes.FailedPrecondition, codes.PermissionDenied:
		log.Debug("rpc rejected", append(fields, zap.Error(err))...)
	default:
		log.Warn("rpc failed", append(fields, zap.Error(err))...)
	}
}
