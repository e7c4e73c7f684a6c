package rpc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"meet-in-the-middle-api/internal/auth"
	"meet-in-the-middle-api/internal/coord"
	"meet-in-the-middle-api/internal/coord/coordtest"
	"meet-in-the-middle-api/internal/middleware"
	"meet-in-the-middle-api/internal/model"
	"meet-in-the-middle-api/internal/rpc"
)

const secret = "rpc-secret"

var (
	alice = model.Identity{ID: "u-alice", Email: "alice@example.com"}
	bob   = model.Identity{ID: "u-bob", Email: "bob@example.com"}
)

func ptr(v float64) *float64 { return &v }

type finalized struct {
	actor     model.Identity
	meetingID string
}

type env struct {
	conn   *grpc.ClientConn
	repo   *coordtest.Repo
	places *coordtest.Places
	hooked []finalized
}

func start(t *testing.T, rl *middleware.RateLimiter) *env {
	t.Helper()
	e := &env{repo: coordtest.New(), places: &coordtest.Places{}}
	engine := coord.NewEngine(e.repo, e.places, coord.DefaultOptions())
	svc := rpc.New(engine,
		rpc.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		rpc.WithFinalizeHook(func(_ context.Context, actor model.Identity, meetingID string, _ *model.SuggestedLocation) {
			e.hooked = append(e.hooked, finalized{actor, meetingID})
		}),
	)

	interceptors := []grpc.UnaryServerInterceptor{middleware.UnaryAuth(auth.NewService(secret, nil), nil)}
	if rl != nil {
		interceptors = append([]grpc.UnaryServerInterceptor{
			middleware.UnaryRateLimit(rl, map[string]bool{rpc.MethodToggleVote: true}),
		}, interceptors...)
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	svc.Register(srv)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	e.conn = conn

	begin := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	end := begin.Add(time.Hour)
	e.repo.PutMeeting(model.Meeting{ID: "m1", Title: "Lunch", CreatorID: alice.ID, ScheduledAt: begin, EndsAt: &end})
	e.repo.PutParticipant(model.Participant{ID: "p1", Email: alice.Email, MeetingID: "m1", Status: model.StatusAccepted,
		Location: model.Location{Lat: ptr(10), Lng: ptr(20)}})
	e.repo.PutParticipant(model.Participant{ID: "p2", Email: bob.Email, MeetingID: "m1", Status: model.StatusAccepted,
		Location: model.Location{Lat: ptr(20), Lng: ptr(40)}})
	return e
}

func (e *env) call(t *testing.T, as *model.Identity, method string, in map[string]any) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(in)
	require.NoError(t, err)
	ctx := context.Background()
	if as != nil {
		tok, err := auth.MakeToken(*as, secret)
		require.NoError(t, err)
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	}
	out := new(structpb.Struct)
	err = e.conn.Invoke(ctx, method, req, out)
	return out, err
}

func TestCentroid(t *testing.T) {
	e := start(t, nil)
	out, err := e.call(t, &alice, rpc.MethodCentroid, map[string]any{"meetingId": "m1"})
	require.NoError(t, err)
	p := out.GetFields()["equidistantPoint"].GetStructValue().GetFields()
	assert.InDelta(t, 15.0, p["lat"].GetNumberValue(), 1e-9)
	assert.InDelta(t, 30.0, p["lng"].GetNumberValue(), 1e-9)
}

func TestUnauthenticated(t *testing.T) {
	e := start(t, nil)
	_, err := e.call(t, nil, rpc.MethodCentroid, map[string]any{"meetingId": "m1"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestErrorCodes(t *testing.T) {
	e := start(t, nil)
	tests := []struct {
		name   string
		as     model.Identity
		method string
		in     map[string]any
		code   codes.Code
	}{
		{"missing field", alice, rpc.MethodCentroid, map[string]any{}, codes.InvalidArgument},
		{"unknown meeting", alice, rpc.MethodCentroid, map[string]any{"meetingId": "nope"}, codes.NotFound},
		{"nothing to finalize", alice, rpc.MethodFinalize, map[string]any{"meetingId": "m1"}, codes.InvalidArgument},
		{"not the creator", bob, rpc.MethodFinalize, map[string]any{"meetingId": "m1"}, codes.PermissionDenied},
		{"unknown suggestion", bob, rpc.MethodToggleVote, map[string]any{"suggestionId": "nope"}, codes.NotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.call(t, &tc.as, tc.method, tc.in)
			assert.Equal(t, tc.code, status.Code(err), err)
		})
	}
}

func TestNearbyPlacesUnavailable(t *testing.T) {
	e := start(t, nil)
	e.places.Err = errors.New("connection refused")
	_, err := e.call(t, &alice, rpc.MethodNearbyPlaces, map[string]any{"meetingId": "m1", "type": "cafe"})
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.NotContains(t, status.Convert(err).Message(), "refused")
}

func TestVoteAndFinalize(t *testing.T) {
	e := start(t, nil)
	ctx := context.Background()
	require.NoError(t, e.repo.AddSuggestion(ctx, &model.SuggestedLocation{ID: "s1", MeetingID: "m1", Place: model.Place{Name: "A"}}))
	require.NoError(t, e.repo.AddSuggestion(ctx, &model.SuggestedLocation{ID: "s2", MeetingID: "m1", Place: model.Place{Name: "B"}}))

	out, err := e.call(t, &bob, rpc.MethodToggleVote, map[string]any{"suggestionId": "s2"})
	require.NoError(t, err)
	assert.True(t, out.GetFields()["voted"].GetBoolValue())
	assert.Equal(t, 1.0, out.GetFields()["suggestion"].GetStructValue().GetFields()["voteCount"].GetNumberValue())

	out, err = e.call(t, &alice, rpc.MethodFinalize, map[string]any{"meetingId": "m1"})
	require.NoError(t, err)
	w := out.GetFields()["suggestion"].GetStructValue().GetFields()
	assert.Equal(t, "s2", w["id"].GetStringValue())
	assert.True(t, w["isFinalized"].GetBoolValue())
	assert.Equal(t, []finalized{{alice, "m1"}}, e.hooked)
}

func TestToggleVoteOutsiderDenied(t *testing.T) {
	e := start(t, nil)
	require.NoError(t, e.repo.AddSuggestion(context.Background(), &model.SuggestedLocation{ID: "s1", MeetingID: "m1", Place: model.Place{Name: "A"}}))

	outsider := model.Identity{ID: "u-eve", Email: "eve@example.com"}
	_, err := e.call(t, &outsider, rpc.MethodToggleVote, map[string]any{"suggestionId": "s1"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	s, err := e.repo.GetSuggestion(context.Background(), "s1")
	require.NoError(t, err)
	assert.Zero(t, s.VoteCount)
}

func TestFindConflictsUsesCaller(t *testing.T) {
	e := start(t, nil)
	begin := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	end := begin.Add(time.Hour)
	e.repo.PutMeeting(model.Meeting{ID: "m2", CreatorID: bob.ID, ScheduledAt: begin, EndsAt: &end})
	e.repo.PutParticipant(model.Participant{ID: "p3", Email: bob.Email, MeetingID: "m2", Status: model.StatusPending})

	out, err := e.call(t, &bob, rpc.MethodFindConflicts, map[string]any{"meetingId": "m1"})
	require.NoError(t, err)
	assert.Len(t, out.GetFields()["conflicts"].GetListValue().GetValues(), 1)

	out, err = e.call(t, &alice, rpc.MethodFindConflicts, map[string]any{"meetingId": "m1"})
	require.NoError(t, err)
	assert.Empty(t, out.GetFields()["conflicts"].GetListValue().GetValues())
}

func TestToggleVoteRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(0.001, 1)
	defer rl.Close()
	e := start(t, rl)
	require.NoError(t, e.repo.AddSuggestion(context.Background(), &model.SuggestedLocation{ID: "s1", MeetingID: "m1", Place: model.Place{Name: "A"}}))

	_, err := e.call(t, &bob, rpc.MethodToggleVote, map[string]any{"suggestionId": "s1"})
	require.NoError(t, err)
	_, err = e.call(t, &bob, rpc.MethodToggleVote, map[string]any{"suggestionId": "s1"})
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// other methods are not limited
	_, err = e.call(t, &bob, rpc.MethodCentroid, map[string]any{"meetingId": "m1"})
	assert.NoError(t, err)
}
