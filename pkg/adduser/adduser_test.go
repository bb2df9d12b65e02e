package adduser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// scripted answers prompts from a fixed list and records the output.
type scripted struct {
	answers []string
	out     strings.Builder
}

func (s *scripted) Printf(format string, args ...any) { fmt.Fprintf(&s.out, format, args...) }

func (s *scripted) ReadLine(prompt string) (string, error) {
	s.out.WriteString(prompt)
	if len(s.answers) == 0 {
		return "", io.EOF
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *scripted) ReadPassword(prompt string) (string, error) { return s.ReadLine(prompt) }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestHash(t *testing.T) {
	got := Hash("admin", "ManagementRealm", "secret1!")
	if len(got) != 32 || strings.ToLower(got) != got {
		t.Fatalf("Hash = %q, want 32 lower-case hex digits", got)
	}
	if Hash("admin", "ApplicationRealm", "secret1!") == got {
		t.Error("the realm does not change the hash")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		want     string
	}{
		{"admin", "differ"},
		{"a1!", "at least 8"},
		{"password!", "digit"},
		{"password1", "non-alphanumeric"},
		{"passw0rd!", ""},
	}
	for _, tt := range tests {
		err := ValidatePassword("admin", tt.password)
		if tt.want == "" {
			if err != nil {
				t.Errorf("ValidatePassword(%q) = %v", tt.password, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ValidatePassword(%q) = %v, want %q", tt.password, err, tt.want)
		}
	}
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"admin", "john.doe", "ops-team_1", "me@example.com"} {
		if err := ValidateUsername(ok); err != nil {
			t.Errorf("ValidateUsername(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a b", "x=y", "q:r"} {
		if err := ValidateUsername(bad); err == nil {
			t.Errorf("ValidateUsername(%q) succeeded", bad)
		}
	}
}

func TestParseGroups(t *testing.T) {
	got := ParseGroups(" admin, ops,,admin ,")
	if diff := cmp.Diff([]string{"admin", "ops"}, got); diff != "" {
		t.Errorf("ParseGroups (-want +got):\n%s", diff)
	}
	if got := ParseGroups(""); got != nil {
		t.Errorf("ParseGroups(\"\") = %v", got)
	}
}

func TestRealmByName(t *testing.T) {
	for name, want := range map[string]Realm{
		"management":       ManagementRealm,
		"ApplicationRealm": ApplicationRealm,
		"app":              ApplicationRealm,
	} {
		got, err := RealmByName(name)
		if err != nil || got != want {
			t.Errorf("RealmByName(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := RealmByName("other"); err == nil {
		t.Error("RealmByName(other) succeeded")
	}
}

func TestAddUpdatesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManagementRealm.UsersFile)
	existing := "# Users\nalice=0123\nbob=4567\n"
	if err := os.WriteFile(path, []byte(existing), 0o600); err != nil {
		t.Fatal(err)
	}

	updated, err := Add(dir, ManagementRealm, User{Name: "alice", Password: "n3w-pass!"})
	if err != nil || !updated {
		t.Fatalf("Add = %v, %v", updated, err)
	}
	updated, err = Add(dir, ManagementRealm, User{Name: "carol", Password: "carol-pw1"})
	if err != nil || updated {
		t.Fatalf("Add = %v, %v", updated, err)
	}

	want := "# Users\nalice=" + Hash("alice", "ManagementRealm", "n3w-pass!") + "\nbob=4567\ncarol=" +
		Hash("carol", "ManagementRealm", "carol-pw1") + "\n"
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("users file (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, ApplicationRealm.RolesFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("management realm wrote a roles file: %v", err)
	}
}

func TestAddErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Add(dir, ManagementRealm, User{Name: "a b", Password: "passw0rd!"}); err == nil {
		t.Error("invalid username accepted")
	}
	if _, err := Add(dir, ManagementRealm, User{Name: "admin", Password: "short"}); err == nil {
		t.Error("weak password accepted")
	}
	_, err := Add(dir, ManagementRealm, User{Name: "admin", Password: "passw0rd!", Groups: []string{"g"}})
	if err == nil || !strings.Contains(err.Error(), "has no groups") {
		t.Errorf("groups in the management realm: %v", err)
	}
}

func TestWizardManagementUser(t *testing.T) {
	dir := t.TempDir()
	con := &scripted{answers: []string{
		"c", "", // an invalid realm, then the default
		"bad user", "admin",
		"admin", "passw0rd!", "different", // equal to the username, then a mismatch
		"passw0rd!", "passw0rd!",
		"maybe", "yes",
	}}
	w := NewWizard(dir, con)
	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v\n%s", err, con.out.String())
	}
	if w.State() != StateDone {
		t.Errorf("state = %s", w.State())
	}
	want := "admin=" + Hash("admin", "ManagementRealm", "passw0rd!") + "\n"
	if diff := cmp.Diff(want, readFile(t, filepath.Join(dir, ManagementRealm.UsersFile))); diff != "" {
		t.Errorf("users file (-want +got):\n%s", diff)
	}
	for _, msg := range []string{"Invalid option", "invalid character", "must differ", "do not match", "yes or no", "Added user 'admin'"} {
		if !strings.Contains(con.out.String(), msg) {
			t.Errorf("output lacks %q", msg)
		}
	}
}

func TestWizardApplicationUserWithGroups(t *testing.T) {
	dir := t.TempDir()
	con := &scripted{answers: []string{"b", "app1", "s3cret-pw", "s3cret-pw", "guests, readers", "y"}}
	if err := NewWizard(dir, con).Run(); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(dir, ApplicationRealm.RolesFile)); got != "app1=guests,readers\n" {
		t.Errorf("roles file = %q", got)
	}
	want := "app1=" + Hash("app1", "ApplicationRealm", "s3cret-pw") + "\n"
	if got := readFile(t, filepath.Join(dir, ApplicationRealm.UsersFile)); got != want {
		t.Errorf("users file = %q", got)
	}
}

func TestWizardExistingUser(t *testing.T) {
	dir := t.TempDir()
	if _, err := Add(dir, ManagementRealm, User{Name: "admin", Password: "first-pw1"}); err != nil {
		t.Fatal(err)
	}
	con := &scripted{answers: []string{"no", "ops", "second-pw1", "second-pw1", "yes"}}
	w := NewWizard(dir, con)
	w.SetRealm(ManagementRealm)
	w.SetUsername("admin")
	if err := w.Run(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(con.out.String(), "already exists") || strings.Contains(con.out.String(), "(a): ") {
		t.Errorf("output = %q", con.out.String())
	}
	got := readFile(t, filepath.Join(dir, ManagementRealm.UsersFile))
	want := "admin=" + Hash("admin", "ManagementRealm", "first-pw1") + "\nops=" + Hash("ops", "ManagementRealm", "second-pw1") + "\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("users file (-want +got):\n%s", diff)
	}
}

func TestWizardAbort(t *testing.T) {
	dir := t.TempDir()
	con := &scripted{answers: []string{"a", "admin", "passw0rd!", "passw0rd!", "no"}}
	if err := NewWizard(dir, con).Run(); !errors.Is(err, ErrAborted) {
		t.Fatalf("Run = %v, want ErrAborted", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ManagementRealm.UsersFile)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("an aborted wizard wrote the users file: %v", err)
	}
}

func TestWizardEndOfInput(t *testing.T) {
	con := &scripted{answers: []string{"a"}}
	if err := NewWizard(t.TempDir(), con).Run(); !errors.Is(err, io.EOF) {
		t.Errorf("Run = %v, want io.EOF", err)
	}
}

func TestReadUsers(t *testing.T) {
	dir := t.TempDir()
	users, err := ReadUsers(dir, ManagementRealm)
	if err != nil || len(users) != 0 {
		t.Fatalf("ReadUsers on an empty dir = %v, %v", users, err)
	}
	existing := "# comment\n! another\nalice = 0123\n\nbob=4567\n"
	if err := os.WriteFile(filepath.Join(dir, ManagementRealm.UsersFile), []byte(existing), 0o600); err != nil {
		t.Fatal(err)
	}
	users, err = ReadUsers(dir, ManagementRealm)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"alice": "0123", "bob": "4567"}, users); diff != "" {
		t.Errorf("ReadUsers (-want +got):\n%s", diff)
	}
}
