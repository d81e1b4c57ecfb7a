// Package grpcserver exposes the People gRPC API handlers.
package grpcserver

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/gleenn/diaspora/internal/api/peoplev1"
	"github.com/gleenn/diaspora/internal/convert"
	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/service"
)

// Searcher answers free-text person queries.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.Person, error)
}

// Server wires services into gRPC handlers.
type Server struct {
	peoplev1.UnimplementedPeopleServer
	people   service.PeopleService
	search   Searcher
	accounts service.AccountService
}

// New constructs a gRPC server with injected services.
func New(people service.PeopleService, search Searcher, accounts service.AccountService) *Server {
	return &Server{people: people, search: search, accounts: accounts}
}

// Resolve returns the document of a local, cached or freshly fetched person.
func (s *Server) Resolve(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	p, err := s.people.Resolve(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	doc, err := convert.PersonToDocument(p)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "render: %v", err)
	}
	return doc, nil
}

// Export returns the document of a local person. Remote persons are never
// re-exported.
func (s *Server) Export(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	doc, err := s.people.Export(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return doc, nil
}

// Search returns matching persons ordered by last name, first name.
func (s *Server) Search(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	ps, err := s.search.Search(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	l, err := convert.PeopleToList(ps)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "render: %v", err)
	}
	return l, nil
}

// Login authenticates a local user by handle and password.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	h := strings.TrimSpace(f["handle"].GetStringValue())
	pw := f["password"].GetStringValue()
	if h == "" || pw == "" {
		return nil, status.Error(codes.InvalidArgument, "empty handle/password")
	}
	tok, p, err := s.accounts.Login(ctx, h, pw)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := convert.TokensToStruct(tok, p)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "render: %v", err)
	}
	return out, nil
}

// UpdateProfile replaces the caller's profile.
func (s *Server) UpdateProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	personID, ok := PersonIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	p, err := s.people.UpdateProfile(ctx, personID, convert.StructToProfile(req))
	if err != nil {
		return nil, toStatus(err)
	}
	doc, err := convert.PersonToDocument(p)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "render: %v", err)
	}
	return doc, nil
}
