package main

import (
	"context"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	usr, err := cli.usrSvc.ResetPassword(context.Background(), uname, pwd)
	if err != nil {
		return err
	}
	logger.Printf("password reset for %q", usr.Username)
	return nil
}
