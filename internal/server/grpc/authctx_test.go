package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/gleenn/diaspora/internal/api/peoplev1"
)

func TestWithPersonID_And_PersonIDFromCtx(t *testing.T) {
	t.Parallel()

	if id, ok := PersonIDFromCtx(context.Background()); ok || id != uuid.Nil {
		t.Fatalf("expected no person id in empty ctx")
	}

	want := uuid.Must(uuid.NewV4())
	ctx := WithPersonID(context.Background(), want)

	got, ok := PersonIDFromCtx(ctx)
	if !ok {
		t.Fatalf("expected person id in ctx")
	}
	if got != want {
		t.Fatalf("mismatch: got %s, want %s", got, want)
	}

	bad := context.WithValue(context.Background(), personIDKey, "not-uuid")
	if id, ok := PersonIDFromCtx(bad); ok || id != uuid.Nil {
		t.Fatalf("expected miss on wrong typed value")
	}
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	key := []byte("k")
	ic := AuthUnary(key)
	info := &grpc.UnaryServerInfo{FullMethod: peoplev1.UpdateProfileMethod}
	sub := uuid.Must(uuid.NewV4())

	var seen uuid.UUID
	var seenOK bool
	h := func(ctx context.Context, req any) (any, error) {
		seen, seenOK = PersonIDFromCtx(ctx)
		return "ok", nil
	}

	// no token: passes through anonymous
	if _, err := ic(context.Background(), "req", info, h); err != nil {
		t.Fatalf("anonymous call: %v", err)
	}
	if seenOK {
		t.Fatalf("anonymous call must not carry a person id")
	}

	// valid token
	md := metadata.Pairs("authorization", "Bearer "+makeJWT(t, key, sub.String(), time.Minute))
	if _, err := ic(metadata.NewIncomingContext(context.Background(), md), "req", info, h); err != nil {
		t.Fatalf("valid token: %v", err)
	}
	if !seenOK || seen != sub {
		t.Fatalf("person id not stored: %v %s", seenOK, seen)
	}

	// bad token is rejected before the handler runs
	called := false
	h2 := func(ctx context.Context, req any) (any, error) { called = true; return nil, nil }
	md = metadata.Pairs("authorization", "Bearer "+makeJWT(t, []byte("other"), sub.String(), time.Minute))
	_, err := ic(metadata.NewIncomingContext(context.Background(), md), "req", info, h2)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
	if called {
		t.Fatalf("handler must not run on bad token")
	}
}
