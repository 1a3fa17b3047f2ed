// Package credentials looks up retrieval-tool accounts from the accounts and
// connections reference documents.
package credentials

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Credentials authenticate against the telemetry appliance.
type Credentials struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type accountsDoc struct {
	Accounts map[string]Credentials `yaml:"accounts"`
}

type connectionsDoc struct {
	// Connections maps database -> environment -> account key.
	Connections map[string]map[string]struct {
		Account string `yaml:"account"`
	} `yaml:"connections"`
}

// Store holds the loaded accounts.
type Store struct {
	accounts    map[string]Credentials
	connections connectionsDoc
}

// Load reads the accounts document and, when connectionsPath is non-empty,
// the connections document.
func Load(accountsPath, connectionsPath string) (*Store, error) {
	var acc accountsDoc
	if err := readYAML(accountsPath, &acc); err != nil {
		return nil, err
	}
	s := &Store{accounts: acc.Accounts}
	if connectionsPath != "" {
		if err := readYAML(connectionsPath, &s.connections); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Key returns the account key used for the appliance in env. A connections
// entry for database overrides the "corvil-<env>" default.
func (s *Store) Key(database, env string) string {
	if byEnv, ok := s.connections.Connections[database]; ok {
		if c, ok := byEnv[env]; ok && c.Account != "" {
			return c.Account
		}
	}
	return "corvil-" + env
}

// Lookup returns the credentials stored under key.
func (s *Store) Lookup(key string) (Credentials, error) {
	c, ok := s.accounts[key]
	if !ok {
		return Credentials{}, eris.Errorf("credentials: no account %q", key)
	}
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return Credentials{}, eris.Errorf("credentials: account %q is missing username or password", key)
	}
	return c, nil
}

// ForEnvironment resolves and looks up the appliance account for env.
func (s *Store) ForEnvironment(database, env string) (Credentials, error) {
	return s.Lookup(s.Key(database, env))
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "credentials: read %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "credentials: parse %s", path)
	}
	return nil
}
