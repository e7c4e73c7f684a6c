// Package rpc exposes the coordination engine over gRPC. Requests and replies
// are google.protobuf.Struct values, so the service descriptor is declared here
// instead of being generated.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"meet-in-the-middle-api/internal/middleware"
	"meet-in-the-middle-api/internal/model"
)

const ServiceName = "meetmiddle.v1.Coordination"

// Full method names, as seen by interceptors.
const (
	MethodFindConflicts = "/" + ServiceName + "/FindConflicts"
	MethodCentroid      = "/" + ServiceName + "/Centroid"
	MethodNearbyPlaces  = "/" + ServiceName + "/NearbyPlaces"
	MethodToggleVote    = "/" + ServiceName + "/ToggleVote"
	MethodFinalize      = "/" + ServiceName + "/Finalize"
)

// Coordinator is the slice of *coord.Engine the service calls.
type Coordinator interface {
	FindConflicts(ctx context.Context, email, meetingID string) ([]model.Conflict, error)
	ComputeCentroid(ctx context.Context, meetingID string) (model.Point, error)
	FindNearbyPlaces(ctx context.Context, meetingID, placeType string) (model.Point, []model.Place, error)
	ToggleVote(ctx context.Context, suggestionID string, voter model.Identity) (*model.SuggestedLocation, error)
	Finalize(ctx context.Context, actor model.Identity, meetingID string) (*model.SuggestedLocation, error)
}

// FinalizeHook runs after a successful Finalize, e.g. to notify participants.
type FinalizeHook func(ctx context.Context, actor model.Identity, meetingID string, w *model.SuggestedLocation)

type Server struct {
	engine     Coordinator
	onFinalize FinalizeHook
	log        *slog.Logger
}

type Option func(*Server)

func WithFinalizeHook(fn FinalizeHook) Option {
	return func(s *Server) { s.onFinalize = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func New(engine Coordinator, opts ...Option) *Server {
	s := &Server{engine: engine, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register attaches the service to g.
func (s *Server) Register(g grpc.ServiceRegistrar) {
	g.RegisterService(&serviceDesc, s)
}

type call func(s *Server, ctx context.Context, in *structpb.Struct) (any, error)

func unary(name string, fn call) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*Server)
			h := func(ctx context.Context, req any) (any, error) {
				out, err := fn(s, ctx, req.(*structpb.Struct))
				if err != nil {
					return nil, s.toStatus(name, err)
				}
				return toStruct(out)
			}
			if ic == nil {
				return h(ctx, in)
			}
			return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}, h)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("FindConflicts", (*Server).findConflicts),
		unary("Centroid", (*Server).centroid),
		unary("NearbyPlaces", (*Server).nearbyPlaces),
		unary("ToggleVote", (*Server).toggleVote),
		unary("Finalize", (*Server).finalize),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "meetmiddle/v1/coordination.proto",
}

func caller(ctx context.Context) (model.Identity, error) {
	id, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		return model.Identity{}, status.Error(codes.Unauthenticated, "no identity")
	}
	return id, nil
}

// field returns a required string field of in.
func field(in *structpb.Struct, name string) (string, error) {
	v, ok := in.GetFields()[name]
	if !ok || v.GetStringValue() == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v.GetStringValue(), nil
}

func (s *Server) findConflicts(ctx context.Context, in *structpb.Struct) (any, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	meetingID, err := field(in, "meetingId")
	if err != nil {
		return nil, err
	}
	cs, err := s.engine.FindConflicts(ctx, id.Email, meetingID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"conflicts": cs}, nil
}

func (s *Server) centroid(ctx context.Context, in *structpb.Struct) (any, error) {
	meetingID, err := field(in, "meetingId")
	if err != nil {
		return nil, err
	}
	p, err := s.engine.ComputeCentroid(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"equidistantPoint": p}, nil
}

func (s *Server) nearbyPlaces(ctx context.Context, in *structpb.Struct) (any, error) {
	meetingID, err := field(in, "meetingId")
	if err != nil {
		return nil, err
	}
	placeType := in.GetFields()["type"].GetStringValue()
	center, places, err := s.engine.FindNearbyPlaces(ctx, meetingID, placeType)
	if err != nil {
		return nil, err
	}
	return map[string]any{"equidistantPoint": center, "places": places}, nil
}

func (s *Server) toggleVote(ctx context.Context, in *structpb.Struct) (any, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	suggestionID, err := field(in, "suggestionId")
	if err != nil {
		return nil, err
	}
	sl, err := s.engine.ToggleVote(ctx, suggestionID, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"suggestion": sl, "voted": sl.HasVoter(id.ID)}, nil
}

func (s *Server) finalize(ctx context.Context, in *structpb.Struct) (any, error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	meetingID, err := field(in, "meetingId")
	if err != nil {
		return nil, err
	}
	w, err := s.engine.Finalize(ctx, id, meetingID)
	if err != nil {
		return nil, err
	}
	if s.onFinalize != nil {
		s.onFinalize(ctx, id, meetingID, w)
	}
	return map[string]any{"suggestion": w}, nil
}

// toStruct renders v through its JSON form so replies use the same field
// names as the REST API.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reply")
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Error(codes.Internal, "encode reply")
	}
	return out, nil
}

func (s *Server) toStatus(method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, model.ErrInsufficientData),
		errors.Is(err, model.ErrNoSuggestions),
		errors.Is(err, model.ErrInvalidInput):
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			s.log.Warn("rpc rejected by database", "method", method, "code", pgErr.Code, "err", err)
			return status.Error(codes.InvalidArgument, model.ErrInvalidInput.Error())
		}
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, model.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, model.ErrExternalService):
		s.log.Warn("places lookup failed", "method", method, "err", err)
		return status.Error(codes.Unavailable, model.ErrExternalService.Error())
	default:
		s.log.Error("rpc failed", "method", method, "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}
