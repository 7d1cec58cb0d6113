package main

import (
	"context"

	"github.com/mokykla/backend/core"
	"github.com/mokykla/backend/core/user"
)

// addMentor creates an active user holding the mentor role.
func (cli *commandLine) addMentor(uname, email, name, pwd string) error {
	ctx := context.Background()
	nu := user.NewUser{
		Name:            core.CleanString(name),
		Username:        core.CleanString(uname, true /* lower */),
		Email:           core.CleanString(email, true /* lower */),
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           []user.Role{user.RoleMentor},
	}
	if err := nu.Validate(cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(ctx, nu)
	if err != nil {
		return err
	}
	logger.Printf("mentor %q created (id=%d)", usr.Username, usr.ID)
	return nil
}
