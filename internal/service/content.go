package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/repository"
)

// ContentService creates posts and comments and answers ownership questions.
type ContentService interface {
	Post(ctx context.Context, authorID uuid.UUID, text string) (*model.Post, error)
	Comment(ctx context.Context, postID, authorID uuid.UUID, text string) (*model.Comment, error)
	// Owns reports whether personID authored postID.
	Owns(ctx context.Context, personID, postID uuid.UUID) (bool, error)
	CountPosts(ctx context.Context) (int64, error)
	CountComments(ctx context.Context) (int64, error)
}

type ContentServiceImpl struct {
	repo repository.ContentRepository
}

func NewContentService(repo repository.ContentRepository) *ContentServiceImpl {
	return &ContentServiceImpl{repo: repo}
}

func (s *ContentServiceImpl) Post(ctx context.Context, authorID uuid.UUID, text string) (*model.Post, error) {
	if authorID == uuid.Nil || strings.TrimSpace(text) == "" {
		return nil, errors.New("validation: authorID/text")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p := &model.Post{ID: id, AuthorID: authorID, Text: text}
	if err := s.repo.CreatePost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ContentServiceImpl) Comment(ctx context.Context, postID, authorID uuid.UUID, text string) (*model.Comment, error) {
	if postID == uuid.Nil || authorID == uuid.Nil || strings.TrimSpace(text) == "" {
		return nil, errors.New("validation: postID/authorID/text")
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	c := &model.Comment{ID: id, PostID: postID, AuthorID: authorID, Text: text}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ContentServiceImpl) Owns(ctx context.Context, personID, postID uuid.UUID) (bool, error) {
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		return false, err
	}
	return (&model.Person{ID: personID}).Owns(post), nil
}

func (s *ContentServiceImpl) CountPosts(ctx context.Context) (int64, error) {
	return s.repo.CountPosts(ctx)
}

func (s *ContentServiceImpl) CountComments(ctx context.Context) (int64, error) {
	return s.repo.CountComments(ctx)
}

var _ ContentService = (*ContentServiceImpl)(nil)
