// Package adduser adds users to the management and application realms.
//
// Users are kept in properties files as user=HEX(MD5(user:realm:password)).
// Application users may also carry groups, kept in a separate roles file.
package adduser

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
)

// Realm is a security realm backed by properties files.
type Realm struct {
	Name      string
	UsersFile string
	// RolesFile holds the groups of each user; empty when the realm has
	// no groups.
	RolesFile string
}

// The realms users can be added to.
var (
	ManagementRealm  = Realm{Name: "ManagementRealm", UsersFile: "mgmt-users.properties"}
	ApplicationRealm = Realm{Name: "ApplicationRealm", UsersFile: "application-users.properties", RolesFile: "application-roles.properties"}
)

// RealmByName accepts a realm name or the short forms "management" and
// "application".
func RealmByName(name string) (Realm, error) {
	switch strings.ToLower(name) {
	case "management", "mgmt", strings.ToLower(ManagementRealm.Name):
		return ManagementRealm, nil
	case "application", "app", strings.ToLower(ApplicationRealm.Name):
		return ApplicationRealm, nil
	}
	return Realm{}, fmt.Errorf("unknown realm %q, expected management or application", name)
}

// User is a user to add or update.
type User struct {
	Name     string
	Password string
	Groups   []string
}

// ValidateUsername checks the characters of a user name.
func ValidateUsername(name string) error {
	if name == "" {
		return errors.New("the username must not be empty")
	}
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-@", r) {
			continue
		}
		return fmt.Errorf("the username contains the invalid character %q; use letters, digits and ._-@", r)
	}
	return nil
}

// ValidatePassword checks the strength of a password for user.
func ValidatePassword(user, password string) error {
	if password == user {
		return errors.New("the password must differ from the username")
	}
	if len([]rune(password)) < 8 {
		return errors.New("the password must be at least 8 characters long")
	}
	var digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsLetter(r):
			symbol = true
		}
	}
	if !digit {
		return errors.New("the password must contain a digit")
	}
	if !symbol {
		return errors.New("the password must contain a non-alphanumeric character")
	}
	return nil
}

// ParseGroups splits a comma separated group list.
func ParseGroups(text string) []string {
	var groups []string
	for _, g := range strings.Split(text, ",") {
		if g = strings.TrimSpace(g); g != "" && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	return groups
}

// Hash returns HEX(MD5(user:realm:password)).
func Hash(user, realm, password string) string {
	sum := md5.Sum([]byte(user + ":" + realm + ":" + password))
	return hex.EncodeToString(sum[:])
}

// Exists reports whether user is defined in the realm's users file in dir.
func Exists(dir string, realm Realm, user string) (bool, error) {
	props, err := readProperties(filepath.Join(dir, realm.UsersFile))
	if err != nil {
		return false, err
	}
	_, ok := props.get(user)
	return ok, nil
}

// ReadUsers returns the password hashes of the realm's users in dir,
// keyed by user name. A missing file gives an empty map.
func ReadUsers(dir string, realm Realm) (map[string]string, error) {
	props, err := readProperties(filepath.Join(dir, realm.UsersFile))
	if err != nil {
		return nil, err
	}
	users := make(map[string]string)
	for _, line := range props.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
			continue
		}
		if k, v, ok := strings.Cut(trimmed, "="); ok {
			users[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return users, nil
}

// Add validates u and writes it to the realm files in dir. An existing
// user is updated in place.
func Add(dir string, realm Realm, u User) (updated bool, err error) {
	if err := ValidateUsername(u.Name); err != nil {
		return false, err
	}
	if err := ValidatePassword(u.Name, u.Password); err != nil {
		return false, err
	}
	if len(u.Groups) > 0 && realm.RolesFile == "" {
		return false, fmt.Errorf("the %s realm has no groups", realm.Name)
	}

	usersPath := filepath.Join(dir, realm.UsersFile)
	users, err := readProperties(usersPath)
	if err != nil {
		return false, err
	}
	updated = users.set(u.Name, Hash(u.Name, realm.Name, u.Password))
	if err := users.write(usersPath); err != nil {
		return false, err
	}

	if realm.RolesFile != "" {
		rolesPath := filepath.Join(dir, realm.RolesFile)
		roles, err := readProperties(rolesPath)
		if err != nil {
			return false, err
		}
		roles.set(u.Name, strings.Join(u.Groups, ","))
		if err := roles.write(rolesPath); err != nil {
			return false, err
		}
	}
	return updated, nil
}

// properties is a properties file kept line by line so that comments
// and ordering survive an update.
type properties struct {
	lines []string
}

func readProperties(path string) (*properties, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &properties{}, nil
	}
	if err != nil {
		return nil, err
	}
	p := &properties{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		p.lines = append(p.lines, sc.Text())
	}
	return p, sc.Err()
}

// index returns the line defining key, or -1.
func (p *properties) index(key string) int {
	for i, line := range p.lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == '!' {
			continue
		}
		if k, _, ok := strings.Cut(trimmed, "="); ok && strings.TrimSpace(k) == key {
			return i
		}
	}
	return -1
}

func (p *properties) get(key string) (string, bool) {
	i := p.index(key)
	if i < 0 {
		return "", false
	}
	_, v, _ := strings.Cut(p.lines[i], "=")
	return strings.TrimSpace(v), true
}

// set defines key and reports whether it replaced an existing entry.
func (p *properties) set(key, value string) bool {
	line := key + "=" + value
	if i := p.index(key); i >= 0 {
		p.lines[i] = line
		return true
	}
	p.lines = append(p.lines, line)
	return false
}

func (p *properties) write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, line := range p.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
