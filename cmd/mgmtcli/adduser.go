package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wildfly/wildfly-core-sub044/pkg/adduser"
)

func newAddUserCmd() *cobra.Command {
	var (
		user, password, realmName, groups, dir string
	)
	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Add a user to the management or application realm",
		Long: `Adds or updates a user in the realm properties files.

Without --user and --password the command asks for every value
interactively; passwords are read without echo.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			realm, err := adduser.RealmByName(realmName)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if user != "" && password != "" {
				u := adduser.User{Name: user, Password: password, Groups: adduser.ParseGroups(groups)}
				updated, err := adduser.Add(dir, realm, u)
				if err != nil {
					return err
				}
				verb := "Added"
				if updated {
					verb = "Updated"
				}
				fmt.Fprintf(out, "%s user '%s' to file '%s'\n", verb, user, realm.UsersFile)
				return nil
			}

			w := adduser.NewWizard(dir, adduser.NewTermConsole())
			if cmd.Flags().Changed("realm") {
				w.SetRealm(realm)
			}
			if user != "" {
				w.SetUsername(user)
			}
			err = w.Run()
			switch {
			case errors.Is(err, adduser.ErrAborted):
				fmt.Fprintln(os.Stderr, "No user was added.")
				return nil
			case errors.Is(err, io.EOF):
				return fmt.Errorf("add-user: the input ended at the %s step", w.State())
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&user, "user", "u", "", "user name")
	f.StringVarP(&password, "password", "p", "", "password (non-interactive mode)")
	f.StringVarP(&realmName, "realm", "r", "management", "realm: management or application")
	f.StringVarP(&groups, "groups", "g", "", "comma separated groups (application realm)")
	f.StringVar(&dir, "dir", "configuration", "directory holding the realm properties files")
	return cmd
}
