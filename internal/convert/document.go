// Package convert maps domain persons to and from the structured person
// document exchanged between pods and returned to clients.
package convert

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
)

// Document keys.
const (
	KeyPerson    = "person"
	KeyID        = "id"
	KeyHandle    = "diaspora_handle"
	KeyLocal     = "local"
	KeyPublicKey = "serialized_public_key"
	KeyProfile   = "profile"
	KeyFirstName = "first_name"
	KeyLastName  = "last_name"
	KeyImageURL  = "image_url"
	KeyUpdatedAt = "updated_at"
	keyToken     = "access_token"
	keyExpiresAt = "expires_at"
)

// ErrBadDocument is returned when a document misses required parts.
var ErrBadDocument = errors.New("bad person document")

// PersonToDocument renders p as
//
//	{"person": {"id", "diaspora_handle", "local", "serialized_public_key", "updated_at",
//	            "profile": {"first_name", "last_name", "image_url"}}}
func PersonToDocument(p *model.Person) (*structpb.Struct, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil person", ErrBadDocument)
	}
	return structpb.NewStruct(map[string]any{KeyPerson: personMap(p)})
}

func personMap(p *model.Person) map[string]any {
	m := map[string]any{
		KeyID:        p.ID.String(),
		KeyHandle:    p.Handle.String(),
		KeyLocal:     p.Local,
		KeyPublicKey: p.SerializedPublicKey,
		KeyProfile: map[string]any{
			KeyFirstName: p.Profile.FirstName,
			KeyLastName:  p.Profile.LastName,
			KeyImageURL:  p.Profile.ImageURL,
		},
	}
	if !p.UpdatedAt.IsZero() {
		m[KeyUpdatedAt] = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return m
}

// PeopleToList renders each person as a document inside a list.
func PeopleToList(ps []model.Person) (*structpb.ListValue, error) {
	vals := make([]any, 0, len(ps))
	for i := range ps {
		vals = append(vals, map[string]any{KeyPerson: personMap(&ps[i])})
	}
	return structpb.NewList(vals)
}

// DocumentToProfileData extracts what a fetch needs from a remote document.
// The handle is normalized; the profile is not validated here.
func DocumentToProfileData(doc *structpb.Struct) (model.ProfileData, error) {
	person, err := personFields(doc)
	if err != nil {
		return model.ProfileData{}, err
	}
	h, err := handle.Normalize(str(person, KeyHandle))
	if err != nil {
		return model.ProfileData{}, fmt.Errorf("%w: %w", ErrBadDocument, err)
	}
	out := model.ProfileData{Handle: h, SerializedPublicKey: str(person, KeyPublicKey)}
	if prof := person[KeyProfile].GetStructValue(); prof != nil {
		out.Profile = profileFrom(prof.GetFields())
	}
	return out, nil
}

// DocumentToPerson is the inverse of PersonToDocument, used by clients.
func DocumentToPerson(doc *structpb.Struct) (*model.Person, error) {
	person, err := personFields(doc)
	if err != nil {
		return nil, err
	}
	p := &model.Person{
		Handle:              handle.Handle(str(person, KeyHandle)),
		Local:               person[KeyLocal].GetBoolValue(),
		SerializedPublicKey: str(person, KeyPublicKey),
	}
	if s := str(person, KeyID); s != "" {
		id, err := uuid.FromString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: id: %w", ErrBadDocument, err)
		}
		p.ID = id
	}
	if s := str(person, KeyUpdatedAt); s != "" {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: updated_at: %w", ErrBadDocument, err)
		}
		p.UpdatedAt = ts
	}
	if prof := person[KeyProfile].GetStructValue(); prof != nil {
		p.Profile = profileFrom(prof.GetFields())
	}
	return p, nil
}

// ListToPeople decodes a list produced by PeopleToList.
func ListToPeople(l *structpb.ListValue) ([]model.Person, error) {
	out := make([]model.Person, 0, len(l.GetValues()))
	for i, v := range l.GetValues() {
		p, err := DocumentToPerson(v.GetStructValue())
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, *p)
	}
	return out, nil
}

// ProfileToStruct renders a bare profile, as sent by UpdateProfile.
func ProfileToStruct(p model.Profile) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		KeyFirstName: p.FirstName,
		KeyLastName:  p.LastName,
		KeyImageURL:  p.ImageURL,
	})
}

// StructToProfile reads a bare profile.
func StructToProfile(s *structpb.Struct) model.Profile {
	return profileFrom(s.GetFields())
}

// TokensToStruct renders a login result.
func TokensToStruct(t model.Tokens, p *model.Person) (*structpb.Struct, error) {
	m := map[string]any{
		keyToken:     t.AccessToken,
		keyExpiresAt: t.ExpiresAt.UTC().Format(time.RFC3339),
	}
	if p != nil {
		m[KeyPerson] = personMap(p)
	}
	return structpb.NewStruct(m)
}

// StructToTokens reads the access token part of a login result.
func StructToTokens(s *structpb.Struct) (model.Tokens, error) {
	f := s.GetFields()
	tok := str(f, keyToken)
	if tok == "" {
		return model.Tokens{}, fmt.Errorf("%w: no access token", ErrBadDocument)
	}
	exp, err := time.Parse(time.RFC3339, str(f, keyExpiresAt))
	if err != nil {
		return model.Tokens{}, fmt.Errorf("%w: expires_at: %w", ErrBadDocument, err)
	}
	return model.Tokens{AccessToken: tok, ExpiresAt: exp}, nil
}

func personFields(doc *structpb.Struct) (map[string]*structpb.Value, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrBadDocument)
	}
	person := doc.GetFields()[KeyPerson].GetStructValue()
	if person == nil {
		return nil, fmt.Errorf("%w: no %q object", ErrBadDocument, KeyPerson)
	}
	return person.GetFields(), nil
}

func profileFrom(f map[string]*structpb.Value) model.Profile {
	return model.Profile{
		FirstName: str(f, KeyFirstName),
		LastName:  str(f, KeyLastName),
		ImageURL:  str(f, KeyImageURL),
	}
}

func str(f map[string]*structpb.Value, key string) string {
	return f[key].GetStringValue()
}
