// Package grpctransport is the remote backplane: a server that hosts its
// own registry and in-memory backplane over the wire.TagBus gRPC contract,
// and a client whose Capability implementation groups local subscribers
// behind one server stream per handle.
package grpctransport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dataconnect-io/dataconnect/backplane"
	"github.com/dataconnect-io/dataconnect/backplane/memory"
	"github.com/dataconnect-io/dataconnect/dcerrors"
	"github.com/dataconnect-io/dataconnect/grpctransport/wire"
	"github.com/dataconnect-io/dataconnect/registry"
)

// writerQueueDepth bounds the per-subscriber outbound queue on the server
// side. A slow subscriber fills its own queue and starts losing updates
// (logged) rather than blocking the publisher or other subscribers — the
// back-pressure decision recorded in DESIGN.md's open question (c).
const writerQueueDepth = 64

// Server implements wire.TagBusServer. It owns a registry and a backplane
// capability (typically an in-memory one) so it can run as a standalone
// remote backplane process.
type Server struct {
	log       *zap.SugaredLogger
	reg       *registry.Registry
	bp        backplane.Capability
	authToken string

	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer builds a Server. If reg or bp are nil, fresh instances are
// created. authToken may be empty to disable bearer-token auth (tests and
// trusted-network deployments).
func NewServer(log *zap.SugaredLogger, reg *registry.Registry, bp backplane.Capability, authToken string) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if reg == nil {
		reg = registry.New()
	}
	if bp == nil {
		bp = memory.New(log)
	}
	return &Server{
		log:       log.Named("grpctransport.server"),
		reg:       reg,
		bp:        bp,
		authToken: authToken,
	}
}

// Serve binds addr (host:port) and blocks serving RPCs until ctx is
// cancelled, then performs a graceful stop.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return dcerrors.Wrapf(err, "listen %s", addr)
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(unaryAuthInterceptor(s.authToken)),
		grpc.ChainStreamInterceptor(streamAuthInterceptor(s.authToken)),
	)
	wire.RegisterTagBusServer(s.grpcServer, s)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("serving", "addr", lis.Addr().String())
		errCh <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Addr returns the bound address; valid only after Serve has started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// RegisterTags implements wire.TagBusServer.
func (s *Server) RegisterTags(ctx context.Context, req *wire.RegisterTagsRequest) (*wire.RegisterTagsResponse, error) {
	if req == nil {
		return &wire.RegisterTagsResponse{Success: true}, nil
	}

	items := make([]registry.RegisterItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, registry.RegisterItem{
			Path:           item.Path,
			Role:           domainRoleFromWire(item.Role),
			SourceOverride: item.SourcePluginInstanceID,
		})
	}

	assigned := s.reg.RegisterTags(req.PluginInstanceID, items)
	out := make([]wire.AssignedTag, 0, len(assigned))
	for _, a := range assigned {
		out = append(out, wire.AssignedTag{
			Path:                    a.DisplayPath,
			Role:                    wireRoleFromDomain(a.Role),
			Handle:                  a.Handle,
			SourcePluginInstanceID:  a.Owner,
			ReferencePluginInstance: a.ReferenceOwner,
		})
	}

	return &wire.RegisterTagsResponse{Success: true, Assigned: out}, nil
}

// Publish implements wire.TagBusServer.
func (s *Server) Publish(ctx context.Context, req *wire.PublishRequest) (*wire.PublishResponse, error) {
	if req == nil {
		return &wire.PublishResponse{Success: true}, nil
	}

	publishOne := func(v *wire.TagValue) error {
		return s.bp.Publish(ctx, domainValueFromWire(v))
	}

	if req.Tag != nil {
		if err := publishOne(req.Tag); err != nil {
			return nil, mapError(err)
		}
	}
	if req.Batch != nil {
		for i := range req.Batch.Values {
			if err := publishOne(&req.Batch.Values[i]); err != nil {
				// Per-handle atomicity only: log and continue the batch.
				s.log.Errorw("batch publish item failed", "handle", req.Batch.Values[i].Handle, "error", err)
			}
		}
	}

	return &wire.PublishResponse{Success: true}, nil
}

// GetLastValue implements wire.TagBusServer.
func (s *Server) GetLastValue(ctx context.Context, req *wire.GetRequest) (*wire.GetResponse, error) {
	v, found, err := s.bp.GetLastValue(ctx, req.Handle)
	if err != nil {
		return nil, mapError(err)
	}
	if !found {
		return &wire.GetResponse{Found: false}, nil
	}
	return &wire.GetResponse{Found: true, Value: wireValueFromDomain(v)}, nil
}

// Subscribe implements wire.TagBusServer. It sends one initial Update as an
// implicit ACK if a mirror entry already exists, then streams every future
// publish for the handle until the call is cancelled.
func (s *Server) Subscribe(req *wire.SubscribeRequest, stream wire.TagBus_SubscribeServer) error {
	ctx := stream.Context()

	if v, found, err := s.bp.GetLastValue(ctx, req.Handle); err == nil && found {
		if err := stream.Send(&wire.Update{Tag: wireValueFromDomain(v)}); err != nil {
			return err
		}
	}

	queue := make(chan *wire.Update, writerQueueDepth)
	disposable, err := s.bp.Subscribe(ctx, req.Handle, func(v backplane.TagValue) {
		update := &wire.Update{Tag: wireValueFromDomain(v)}
		select {
		case queue <- update:
		default:
			s.log.Warnw("subscriber queue full, dropping update", "handle", req.Handle, "subscriber", req.SubscriberID)
		}
	})
	if err != nil {
		return mapError(err)
	}
	defer disposable.Dispose()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-queue:
			if err := stream.Send(update); err != nil {
				return err
			}
		}
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if dcerrors.Is(err, dcerrors.ErrDisposed) {
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	if dcerrors.Is(err, dcerrors.ErrNotRegistered) {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Internal, fmt.Sprintf("%v", err))
}

var _ wire.TagBusServer = (*Server)(nil)
