package cli

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/server"
)

func (a *App) openStack(ctx context.Context, args []string) (*server.Stack, error) {
	cfg, err := a.loadServerConfig(args)
	if err != nil {
		return nil, err
	}
	return a.newStack(ctx, cfg, a.logger)
}

func (a *App) sweep(ctx context.Context, args []string) error {
	st, err := a.openStack(ctx, args)
	if err != nil {
		return err
	}
	defer st.Close()

	report := st.Cleanup.Sweep(ctx)
	for _, r := range report.Results {
		if r.Err != nil {
			fmt.Fprintf(a.out, "%-20s FAILED: %v\n", r.Table, r.Err)
			continue
		}
		fmt.Fprintf(a.out, "%-20s deleted %d\n", r.Table, r.Deleted)
	}
	if report.Failed() {
		return fmt.Errorf("%w: cleanup sweep failed", common.ErrorInternal)
	}
	return nil
}

func (a *App) seedUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "email")
	role := fs.String("role", "", "role")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-role"})); err != nil {
		return err
	}
	if *email == "" || *role == "" {
		return fmt.Errorf("%w: seed-user needs -email and -role", ErrUsage)
	}

	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	st, err := a.openStack(ctx, args)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.Auth.CreateUser(ctx, *email, string(password), *role)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created user %s (%s) id=%s\n", res.User.Email, res.User.Role, res.User.ID)
	return nil
}
