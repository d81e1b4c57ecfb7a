package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/gleenn/diaspora/internal/api/peoplev1"
	"github.com/gleenn/diaspora/internal/convert"
	"github.com/gleenn/diaspora/internal/model"
)

var errUsage = errors.New("usage")

type output struct {
	w    io.Writer
	json bool
}

// run executes one subcommand against cl.
func run(ctx context.Context, cl *peoplev1.PeopleClient, cmd string, args []string, out output) error {
	switch cmd {
	case "resolve", "export":
		if len(args) != 1 {
			return errUsage
		}
		call := cl.Resolve
		if cmd == "export" {
			call = cl.Export
		}
		doc, err := call(ctx, args[0])
		if err != nil {
			return err
		}
		if out.json {
			return out.message(doc)
		}
		p, err := convert.DocumentToPerson(doc)
		if err != nil {
			return err
		}
		return out.people([]model.Person{*p})

	case "search":
		if len(args) == 0 {
			return errUsage
		}
		l, err := cl.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if out.json {
			return out.message(l)
		}
		ps, err := convert.ListToPeople(l)
		if err != nil {
			return err
		}
		return out.people(ps)

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		h := fs.String("h", "", "handle")
		p := fs.String("p", "", "password")
		if err := fs.Parse(args); err != nil || *h == "" || *p == "" {
			return errUsage
		}
		res, err := cl.Login(ctx, *h, *p)
		if err != nil {
			return err
		}
		tok, err := convert.StructToTokens(res)
		if err != nil {
			return err
		}
		if err := saveToken(tok.AccessToken, tok.ExpiresAt); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out.w, "ok")
		return err

	case "profile":
		fs := flag.NewFlagSet("profile", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		first := fs.String("first", "", "first name")
		last := fs.String("last", "", "last name")
		image := fs.String("image", "", "image url")
		if err := fs.Parse(args); err != nil || *first == "" {
			return errUsage
		}
		prof, err := convert.ProfileToStruct(model.Profile{FirstName: *first, LastName: *last, ImageURL: *image})
		if err != nil {
			return err
		}
		doc, err := cl.UpdateProfile(ctx, prof)
		if err != nil {
			return err
		}
		if out.json {
			return out.message(doc)
		}
		p, err := convert.DocumentToPerson(doc)
		if err != nil {
			return err
		}
		return out.people([]model.Person{*p})

	default:
		return errUsage
	}
}

func (o output) message(m proto.Message) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.w, string(b))
	return err
}

// people prints one row per person: handle, name, local flag.
func (o output) people(ps []model.Person) error {
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tNAME\tLOCAL")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", p.Handle, p.Profile.FullName(), p.Local)
	}
	return tw.Flush()
}
