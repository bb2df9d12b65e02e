package adduser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAborted is returned when the user declines to add the user.
var ErrAborted = errors.New("add-user aborted")

// Console is the terminal the wizard talks to.
type Console interface {
	Printf(format string, args ...any)
	ReadLine(prompt string) (string, error)
	// ReadPassword reads a line without echo.
	ReadPassword(prompt string) (string, error)
}

// State is a step of the wizard.
type State int

const (
	StateRealm State = iota
	StateUsername
	StateExisting
	StatePassword
	StateConfirmPassword
	StateGroups
	StateConfirm
	StateWrite
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRealm:
		return "realm"
	case StateUsername:
		return "username"
	case StateExisting:
		return "existing"
	case StatePassword:
		return "password"
	case StateConfirmPassword:
		return "confirm-password"
	case StateGroups:
		return "groups"
	case StateConfirm:
		return "confirm"
	case StateWrite:
		return "write"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Wizard collects a user interactively and writes it to the realm files
// in Dir. Preset fields skip the matching questions.
type Wizard struct {
	Dir     string
	Console Console

	realm    Realm
	realmSet bool
	user     User
	state    State
}

// NewWizard returns a wizard writing to dir.
func NewWizard(dir string, c Console) *Wizard {
	return &Wizard{Dir: dir, Console: c}
}

// SetRealm preselects the realm.
func (w *Wizard) SetRealm(r Realm) {
	w.realm = r
	w.realmSet = true
}

// SetUsername preselects the user name.
func (w *Wizard) SetUsername(name string) {
	w.user.Name = name
}

// State returns the current step.
func (w *Wizard) State() State { return w.state }

// Run walks the wizard to completion. Invalid answers repeat their
// question; a read error ends the wizard.
func (w *Wizard) Run() error {
	w.state = StateRealm
	if w.realmSet {
		w.state = StateUsername
	}
	for w.state != StateDone {
		next, err := w.step()
		if err != nil {
			return err
		}
		w.state = next
	}
	return nil
}

func (w *Wizard) step() (State, error) {
	c := w.Console
	switch w.state {
	case StateRealm:
		c.Printf("What type of user do you wish to add?\n")
		c.Printf(" a) Management User (%s)\n", ManagementRealm.UsersFile)
		c.Printf(" b) Application User (%s)\n", ApplicationRealm.UsersFile)
		answer, err := c.ReadLine("(a): ")
		if err != nil {
			return w.state, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "", "a":
			w.realm = ManagementRealm
		case "b":
			w.realm = ApplicationRealm
		default:
			c.Printf("* Error *\nInvalid option %q\n\n", answer)
			return StateRealm, nil
		}
		return StateUsername, nil

	case StateUsername:
		name := w.user.Name
		if name == "" {
			answer, err := c.ReadLine("Username : ")
			if err != nil {
				return w.state, err
			}
			name = strings.TrimSpace(answer)
		}
		if err := ValidateUsername(name); err != nil {
			c.Printf("* Error *\n%v\n\n", err)
			w.user.Name = ""
			return StateUsername, nil
		}
		w.user.Name = name
		exists, err := Exists(w.Dir, w.realm, name)
		if err != nil {
			return w.state, err
		}
		if exists {
			return StateExisting, nil
		}
		return StatePassword, nil

	case StateExisting:
		ok, err := w.yesNo(fmt.Sprintf("User '%s' already exists in %s, would you like to update it? (yes/no): ", w.user.Name, w.realm.UsersFile))
		if err != nil {
			return w.state, err
		}
		if !ok {
			w.user.Name = ""
			return StateUsername, nil
		}
		return StatePassword, nil

	case StatePassword:
		pw, err := c.ReadPassword("Password : ")
		if err != nil {
			return w.state, err
		}
		if err := ValidatePassword(w.user.Name, pw); err != nil {
			c.Printf("* Error *\n%v\n\n", err)
			return StatePassword, nil
		}
		w.user.Password = pw
		return StateConfirmPassword, nil

	case StateConfirmPassword:
		pw, err := c.ReadPassword("Re-enter Password : ")
		if err != nil {
			return w.state, err
		}
		if pw != w.user.Password {
			c.Printf("* Error *\nThe passwords do not match\n\n")
			w.user.Password = ""
			return StatePassword, nil
		}
		if w.realm.RolesFile != "" {
			return StateGroups, nil
		}
		return StateConfirm, nil

	case StateGroups:
		answer, err := c.ReadLine("What groups do you want this user to belong to? (Please enter a comma separated list, or leave blank for none)[  ]: ")
		if err != nil {
			return w.state, err
		}
		w.user.Groups = ParseGroups(answer)
		return StateConfirm, nil

	case StateConfirm:
		msg := fmt.Sprintf("About to add user '%s' for realm '%s'", w.user.Name, w.realm.Name)
		if len(w.user.Groups) > 0 {
			msg += fmt.Sprintf(" with groups %s", strings.Join(w.user.Groups, ","))
		}
		ok, err := w.yesNo(msg + "\nIs this correct yes/no? ")
		if err != nil {
			return w.state, err
		}
		if !ok {
			return w.state, ErrAborted
		}
		return StateWrite, nil

	case StateWrite:
		updated, err := Add(w.Dir, w.realm, w.user)
		if err != nil {
			return w.state, err
		}
		verb := "Added"
		if updated {
			verb = "Updated"
		}
		c.Printf("%s user '%s' to file '%s'\n", verb, w.user.Name, w.realm.UsersFile)
		if w.realm.RolesFile != "" {
			c.Printf("%s user '%s' with groups %s to file '%s'\n", verb, w.user.Name, strings.Join(w.user.Groups, ","), w.realm.RolesFile)
		}
		return StateDone, nil
	}
	return w.state, fmt.Errorf("add-user: unexpected state %s", w.state)
}

// yesNo asks until the answer is yes or no.
func (w *Wizard) yesNo(prompt string) (bool, error) {
	for {
		answer, err := w.Console.ReadLine(prompt)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		w.Console.Printf("* Error *\nPlease answer yes or no\n\n")
	}
}
