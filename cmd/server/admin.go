package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/gleenn/diaspora/internal/handle"
	"github.com/gleenn/diaspora/internal/model"
	"github.com/gleenn/diaspora/internal/service"
)

var errUsage = errors.New(`admin commands:
  provision       -u <username> -p <password> -first <name> [-last <name>] [-image <url>]
  delete-account  -user <uuid>
  destroy         -handle <handle> [-force]
  befriend        -user <uuid> -handle <handle> [-aspect <name>]
  unfriend        -user <uuid> -handle <handle>
  prune           -handle <handle>
  post            -handle <handle> -text <text>
  comment         -post <uuid> -handle <handle> -text <text>
  search          <query>
  stats`)

// runAdmin executes one maintenance subcommand and prints its result to w.
func runAdmin(ctx context.Context, a *app, cmd string, args []string, w io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		username = fs.String("u", "", "username")
		password = fs.String("p", "", "password")
		first    = fs.String("first", "", "first name")
		last     = fs.String("last", "", "last name")
		image    = fs.String("image", "", "image url")
		userID   = fs.String("user", "", "user id")
		rawH     = fs.String("handle", "", "person handle")
		force    = fs.Bool("force", false, "sever contact edges and destroy anyway")
		aspect   = fs.String("aspect", service.DefaultAspect, "aspect name")
		text     = fs.String("text", "", "post or comment text")
		postID   = fs.String("post", "", "post id")
	)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	switch cmd {
	case "provision":
		if *username == "" || *password == "" {
			return errUsage
		}
		u, p, err := a.accounts.Provision(ctx, *username, *password, model.Profile{FirstName: *first, LastName: *last, ImageURL: *image})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "user=%s person=%s handle=%s\n", u.ID, p.ID, p.Handle)
		return err

	case "delete-account":
		uid, err := uuid.FromString(*userID)
		if err != nil {
			return errUsage
		}
		rep, err := a.accounts.DeleteAccount(ctx, uid)
		if err != nil {
			return err
		}
		return printReport(w, rep)

	case "destroy":
		p, err := a.lookup(ctx, *rawH)
		if err != nil {
			return err
		}
		rep, err := a.lifecycle.Destroy(ctx, p.ID, service.DestroyOptions{Force: *force})
		if err != nil {
			return err
		}
		return printReport(w, rep)

	case "befriend", "unfriend":
		uid, err := uuid.FromString(*userID)
		if err != nil {
			return errUsage
		}
		if cmd == "unfriend" {
			p, err := a.lookup(ctx, *rawH)
			if err != nil {
				return err
			}
			return a.lifecycle.Unfriend(ctx, uid, p.ID)
		}
		// befriending may pull a remote person into the cache
		p, err := a.people.Resolve(ctx, *rawH)
		if err != nil {
			return err
		}
		if err := a.lifecycle.Befriend(ctx, uid, p.ID, *aspect); err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "person=%s aspect=%s\n", p.ID, *aspect)
		return err

	case "prune":
		p, err := a.lookup(ctx, *rawH)
		if err != nil {
			return err
		}
		removed, err := a.lifecycle.PruneOrphan(ctx, p.ID)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "removed=%t\n", removed)
		return err

	case "post":
		p, err := a.lookup(ctx, *rawH)
		if err != nil {
			return err
		}
		post, err := a.content.Post(ctx, p.ID, *text)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "post=%s\n", post.ID)
		return err

	case "comment":
		pid, err := uuid.FromString(*postID)
		if err != nil {
			return errUsage
		}
		p, err := a.lookup(ctx, *rawH)
		if err != nil {
			return err
		}
		c, err := a.content.Comment(ctx, pid, p.ID, *text)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "comment=%s\n", c.ID)
		return err

	case "search":
		ps, err := a.search.Search(ctx, strings.Join(fs.Args(), " "))
		if err != nil {
			return err
		}
		for _, p := range ps {
			if _, err := fmt.Fprintf(w, "%s\t%s\n", p.Handle, p.Profile.FullName()); err != nil {
				return err
			}
		}
		return nil

	case "stats":
		posts, err := a.content.CountPosts(ctx)
		if err != nil {
			return err
		}
		comments, err := a.content.CountComments(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "posts=%d comments=%d\n", posts, comments)
		return err
	}
	return errUsage
}

// lookup finds any stored person, local or cached, without fetching.
func (a *app) lookup(ctx context.Context, raw string) (*model.Person, error) {
	h, err := handle.Normalize(raw)
	if err != nil {
		return nil, err
	}
	return a.persons.FindByHandle(ctx, h)
}

func printReport(w io.Writer, rep model.DestroyReport) error {
	_, err := fmt.Fprintf(w, "person=%s posts=%d comments_removed=%d comments_kept=%d contacts=%d user_removed=%t retained=%t\n",
		rep.PersonID, rep.PostsRemoved, rep.CommentsRemoved, rep.CommentsKept, rep.ContactsRemoved, rep.UserRemoved, rep.Retained)
	return err
}
