package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/client/client"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

type credentialsFunc func(c *client.GRPCClient, ctx context.Context, email string, password []byte) (*client.User, error)

func (a *App) login(ctx context.Context, args []string) error {
	return a.authenticate(ctx, "login", args, (*client.GRPCClient).Login, "Logged in as")
}

func (a *App) register(ctx context.Context, args []string) error {
	return a.authenticate(ctx, "register", args, (*client.GRPCClient).Register, "Registered")
}

// authenticate reads email and password, runs call and saves the session it
// opened.
func (a *App) authenticate(ctx context.Context, name string, args []string, call credentialsFunc, done string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "email")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email"})); err != nil {
		return err
	}

	if *email == "" {
		var err error
		if *email, err = GetSimpleText(a.reader, "-Enter email", a.out); err != nil {
			return err
		}
	}

	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	c, err := a.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	user, err := call(c, ctx, *email, password)
	if err != nil {
		return err
	}

	if err := a.saveSession(user.Email, c.Tokens()); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s %s (%s)\n", done, user.Email, user.Role)
	return nil
}

// withSession runs fn with a client primed from the saved session and saves
// whatever pair the client holds afterwards; fn may have rotated it.
func (a *App) withSession(ctx context.Context, fn func(ctx context.Context, c *client.GRPCClient) error) error {
	sess, err := client.LoadSession(a.config.SessionFile)
	if err != nil {
		return err
	}

	c, err := a.connect()
	if err != nil {
		return err
	}
	defer c.Close()
	c.SetTokens(client.Tokens{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken})

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	callErr := fn(ctx, c)

	if errors.Is(callErr, client.ErrUnauthorized) {
		// The session is no longer usable.
		return errors.Join(callErr, client.RemoveSession(a.config.SessionFile))
	}

	t := c.Tokens()
	if t.RefreshToken == "" {
		return errors.Join(callErr, client.RemoveSession(a.config.SessionFile))
	}
	if t.AccessToken != sess.AccessToken || t.RefreshToken != sess.RefreshToken {
		return errors.Join(callErr, a.saveSession(sess.Email, t))
	}
	return callErr
}

func (a *App) saveSession(email string, t client.Tokens) error {
	s := &client.Session{Email: email, AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	return s.Save(a.config.SessionFile)
}

func (a *App) refresh(ctx context.Context) error {
	return a.withSession(ctx, func(ctx context.Context, c *client.GRPCClient) error {
		t, err := c.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Tokens rotated, access token valid for %ds\n", t.ExpiresIn)
		return nil
	})
}

func (a *App) me(ctx context.Context) error {
	return a.withSession(ctx, func(ctx context.Context, c *client.GRPCClient) error {
		id, err := c.Me(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "user_id=%s role=%s request_id=%s\n", id.UserID, id.Role, id.RequestID)
		return nil
	})
}

func (a *App) logout(ctx context.Context) error {
	return a.withSession(ctx, func(ctx context.Context, c *client.GRPCClient) error {
		msg, err := c.Logout(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, msg)
		return nil
	})
}

func (a *App) ping(ctx context.Context) error {
	c, err := a.connect()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "OK")
	return nil
}
