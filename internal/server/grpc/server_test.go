package grpcserver

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gleenn/diaspora/internal/api/peoplev1"
	"github.com/gleenn/diaspora/internal/convert"
	"github.com/gleenn/diaspora/internal/errs"
	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
)

type fakePeople struct {
	byHandle map[string]*model.Person
	updated  model.Profile
}

func (f *fakePeople) Resolve(_ context.Context, raw string) (*model.Person, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if h.Host() == "slow.example" {
		return nil, errs.TimedOut(h.String(), context.DeadlineExceeded)
	}
	p, ok := f.byHandle[h.String()]
	if !ok {
		return nil, errs.NotResolved(h.String(), nil)
	}
	return p, nil
}

func (f *fakePeople) ResolveLocal(ctx context.Context, raw string) (*model.Person, error) {
	p, err := f.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !p.Local {
		return nil, errs.NotResolved(p.Handle.String(), nil)
	}
	return p, nil
}

func (f *fakePeople) Export(ctx context.Context, raw string) (*structpb.Struct, error) {
	p, err := f.ResolveLocal(ctx, raw)
	if err != nil {
		return nil, err
	}
	return convert.PersonToDocument(p)
}

func (f *fakePeople) UpdateProfile(_ context.Context, id uuid.UUID, prof model.Profile) (*model.Person, error) {
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	for _, p := range f.byHandle {
		if p.ID == id {
			p.Profile = prof
			f.updated = prof
			return p, nil
		}
	}
	return nil, errs.ErrNotFound
}

type fakeSearch struct{ people []model.Person }

func (f fakeSearch) Search(_ context.Context, q string) ([]model.Person, error) {
	out := []model.Person{}
	for _, p := range f.people {
		if q != "" && strings.Contains(strings.ToLower(p.Profile.FullName()), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeAccounts struct {
	person *model.Person
	token  string
}

func (f *fakeAccounts) Provision(context.Context, string, string, model.Profile) (*model.User, *model.Person, error) {
	return nil, nil, errs.ErrAlreadyExists
}

func (f *fakeAccounts) Login(_ context.Context, h, pw string) (model.Tokens, *model.Person, error) {
	if h != f.person.Handle.String() || pw != "pw" {
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}
	return model.Tokens{AccessToken: f.token, ExpiresAt: time.Now().Add(time.Minute)}, f.person, nil
}

func (f *fakeAccounts) DeleteAccount(context.Context, uuid.UUID) (model.DestroyReport, error) {
	return model.DestroyReport{}, nil
}

const bufSize = 1 << 20

func startBufGRPC(t *testing.T, srv *Server, signKey []byte) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(zaptest.NewLogger(t)),
		AuthUnary(signKey),
	))
	peoplev1.RegisterPeopleServer(gs, srv)
	go func() { _ = gs.Serve(lis) }()
	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return cc
}

type fixture struct {
	cl     *peoplev1.PeopleClient
	people *fakePeople
	key    []byte
	alice  *model.Person
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key := []byte("test-secret")
	alice := &model.Person{
		ID: uuid.Must(uuid.NewV4()), Handle: "alice@pod.example",
		OwnerID: uuid.Must(uuid.NewV4()), Local: true,
		Profile: model.Profile{FirstName: "Alice", LastName: "Smith"},
	}
	bob := &model.Person{
		ID: uuid.Must(uuid.NewV4()), Handle: "bob@other.example",
		Profile: model.Profile{FirstName: "Robert", LastName: "Grimm"},
	}
	people := &fakePeople{byHandle: map[string]*model.Person{
		alice.Handle.String(): alice,
		bob.Handle.String():   bob,
	}}
	search := fakeSearch{people: []model.Person{*alice, *bob}}
	accounts := &fakeAccounts{person: alice, token: makeJWT(t, key, alice.ID.String(), time.Minute)}

	cc := startBufGRPC(t, New(people, search, accounts), key)
	return &fixture{cl: peoplev1.NewPeopleClient(cc), people: people, key: key, alice: alice}
}

func TestServer_ResolveAndExport(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.cl.Resolve(ctx, "  BOB@Other.Example ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	p, err := convert.DocumentToPerson(doc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Handle != "bob@other.example" || p.Profile.LastName != "Grimm" {
		t.Fatalf("unexpected person: %+v", p)
	}

	// remote persons are not exported
	if _, err := f.cl.Export(ctx, "bob@other.example"); status.Code(err) != codes.NotFound {
		t.Fatalf("export remote: want NotFound, got %v", err)
	}
	doc, err = f.cl.Export(ctx, "alice@pod.example")
	if err != nil {
		t.Fatalf("export local: %v", err)
	}
	pd, err := convert.DocumentToProfileData(doc)
	if err != nil || pd.Handle != "alice@pod.example" {
		t.Fatalf("export doc: %+v %v", pd, err)
	}
}

func TestServer_ResolveErrorCodes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		in   string
		want codes.Code
	}{
		{"no-separator", codes.InvalidArgument},
		{"a@b@c", codes.InvalidArgument},
		{"ghost@other.example", codes.NotFound},
		{"who@slow.example", codes.DeadlineExceeded},
	}
	for _, c := range cases {
		if _, err := f.cl.Resolve(ctx, c.in); status.Code(err) != c.want {
			t.Fatalf("%q: want %v, got %v", c.in, c.want, err)
		}
	}
}

func TestServer_Search(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	l, err := f.cl.Search(context.Background(), "gri")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	ps, err := convert.ListToPeople(l)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ps) != 1 || ps[0].Profile.LastName != "Grimm" {
		t.Fatalf("unexpected result: %+v", ps)
	}

	l, err = f.cl.Search(context.Background(), "")
	if err != nil || len(l.GetValues()) != 0 {
		t.Fatalf("empty query: %v %v", l, err)
	}
}

func TestServer_LoginAndUpdateProfile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.cl.Login(ctx, "alice@pod.example", "wrong"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad password: want Unauthenticated, got %v", err)
	}
	if _, err := f.cl.Login(ctx, "", ""); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("empty creds: want InvalidArgument, got %v", err)
	}

	out, err := f.cl.Login(ctx, "alice@pod.example", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tok, err := convert.StructToTokens(out)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	prof, err := convert.ProfileToStruct(model.Profile{FirstName: "Alicia", LastName: "Smith"})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}

	if _, err := f.cl.UpdateProfile(ctx, prof); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("anonymous update: want Unauthenticated, got %v", err)
	}

	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok.AccessToken)
	doc, err := f.cl.UpdateProfile(authed, prof)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err := convert.DocumentToPerson(doc)
	if err != nil || p.Profile.FirstName != "Alicia" {
		t.Fatalf("updated doc: %+v %v", p, err)
	}

	blank, _ := convert.ProfileToStruct(model.Profile{})
	if _, err := f.cl.UpdateProfile(authed, blank); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("invalid profile: want FailedPrecondition, got %v", err)
	}
	if f.people.updated.FirstName != "Alicia" {
		t.Fatalf("invalid profile must not be stored: %+v", f.people.updated)
	}
}

func TestToStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want codes.Code
	}{
		{errs.ErrAlreadyExists, codes.AlreadyExists},
		{context.Canceled, codes.Canceled},
		{status.Error(codes.Unavailable, "x"), codes.Unavailable},
		{errs.NotResolved("a@b", errs.ErrTransport), codes.NotFound},
		{&errs.FieldError{Field: "first_name", Reason: "x"}, codes.FailedPrecondition},
	}
	for _, c := range cases {
		if got := status.Code(toStatus(c.err)); got != c.want {
			t.Fatalf("%v: want %v, got %v", c.err, c.want, got)
		}
	}
	if toStatus(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
}
