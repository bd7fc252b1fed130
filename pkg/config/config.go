package config

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/pseudomuto/postgit/pkg/consts"
	"github.com/pseudomuto/postgit/pkg/utils"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config file location.
const EnvConfigPath = "POSTGIT_CONFIG"

// ErrInvalidConfig is returned when a loaded configuration cannot be used safely.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// Postgres describes a single PostgreSQL endpoint.
	//
	// Values are resolved once at load time (see Config.Resolve) and never mutated afterwards.
	// Callers needing a variation, like the maintenance database used for CREATE/DROP DATABASE,
	// derive a copy instead.
	Postgres struct {
		// Host is the server host name or address
		Host string `yaml:"host,omitempty" toml:"host"`

		// Port is the server port
		Port uint16 `yaml:"port,omitempty" toml:"port"`

		// User is the role used to connect
		User string `yaml:"user,omitempty" toml:"user"`

		// DBName is the database to connect to
		DBName string `yaml:"dbname,omitempty" toml:"dbname"`

		// Password is optional; most local setups rely on trust auth or ~/.pgpass
		Password string `yaml:"password,omitempty" toml:"password"`
	}

	// Container configures an optional throwaway PostgreSQL server hosting the comparison
	// databases. When enabled, the host/port/user of DiffEngine.Source and DiffEngine.Target
	// are replaced by the container's for the duration of a command.
	Container struct {
		// Enabled turns the throwaway server on
		Enabled bool `yaml:"enabled,omitempty" toml:"enabled"`

		// Image is the PostgreSQL image to run (default: consts.DefaultPostgresImage)
		Image string `yaml:"image,omitempty" toml:"image"`
	}

	// DiffEngine configures the external diff tool and the two comparison databases it reads.
	DiffEngine struct {
		// Command is an optional shell command replacing the default diff tool. It receives the
		// source and target URLs as $1 and $2.
		Command string `yaml:"command,omitempty" toml:"command"`

		// Source is the comparison database holding the current schema
		Source Postgres `yaml:"source" toml:"source"`

		// Target is the comparison database holding the desired schema
		Target Postgres `yaml:"target" toml:"target"`

		// Container optionally moves the comparison databases into a throwaway server
		Container Container `yaml:"container" toml:"container"`
	}

	// Watch configures the watch loop.
	Watch struct {
		// RecreateDBOnFail drops and recreates the target database when applying a migration
		// fails, then retries once from an empty database
		RecreateDBOnFail bool `yaml:"recreate_db_on_fail,omitempty" toml:"recreate_db_on_fail"`

		// Debounce is the quiescence window used to coalesce file events (default: 1s)
		Debounce string `yaml:"debounce,omitempty" toml:"debounce"`
	}

	// Schema configures how schema files are selected from a git tree.
	Schema struct {
		// PrefixMatch selects files with a raw string-prefix test instead of comparing path
		// segments, so "schema" also matches "schema2/...". Off by default.
		PrefixMatch bool `yaml:"prefix_match,omitempty" toml:"prefix_match"`
	}

	// Config represents the postgit configuration.
	Config struct {
		// Target is the real database migrations are applied to
		Target Postgres `yaml:"target" toml:"target"`

		// DiffEngine configures the diff tool and comparison databases
		DiffEngine DiffEngine `yaml:"diff_engine" toml:"diff_engine"`

		// Watch configures the watch loop
		Watch Watch `yaml:"watch" toml:"watch"`

		// Schema configures schema file selection
		Schema Schema `yaml:"schema" toml:"schema"`

		// MaintenanceDB is the administrative database used for CREATE/DROP DATABASE
		MaintenanceDB string `yaml:"maintenance_db,omitempty" toml:"maintenance_db"`
	}

	// Env looks up environment variables. It has the signature of os.LookupEnv.
	Env func(key string) (string, bool)
)

// OSEnv reads the process environment.
var OSEnv = Env(os.LookupEnv)

// MapEnv returns an Env backed by a map, for tests and embedding.
func MapEnv(m map[string]string) Env {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func (e Env) get(key, fallback string) string {
	if e != nil {
		if v, ok := e(key); ok && v != "" {
			return v
		}
	}

	return fallback
}

// URL renders the endpoint as a connection URL, e.g. postgresql://postgres@localhost:5432/app.
func (p Postgres) URL() string {
	u := url.URL{
		Scheme: "postgresql",
		User:   url.User(p.User),
		Host:   p.Server(),
		Path:   "/" + p.DBName,
	}

	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}

	return u.String()
}

// Server returns the host:port pair of the endpoint.
func (p Postgres) Server() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port)))
}

// SameServer reports whether both endpoints point at the same PostgreSQL server.
func (p Postgres) SameServer(o Postgres) bool {
	return strings.EqualFold(p.Host, o.Host) && p.Port == o.Port
}

// Maintenance returns a copy of p connected to the administrative database instead.
func (p Postgres) Maintenance(dbname string) Postgres {
	p.DBName = dbname
	return p
}

func (p Postgres) String() string {
	return fmt.Sprintf("%s@%s/%s", p.User, p.Server(), p.DBName)
}

// Reversed derives the diff spec used by the watch loop: the live target database is the
// current state and the comparison source database holds the desired schema.
func (d DiffEngine) Reversed(target Postgres) DiffEngine {
	return DiffEngine{
		Command:   d.Command,
		Source:    target,
		Target:    d.Source,
		Container: d.Container,
	}
}

// DebounceWindow returns the parsed watch debounce window.
func (w Watch) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(w.Debounce)
	if err != nil || d <= 0 {
		return consts.DefaultDebounce
	}

	return d
}

// Default returns a configuration with every value taken from env or the built-in defaults.
func Default(env Env) *Config {
	cfg := &Config{}
	cfg.Resolve(env)
	return cfg
}

// Resolve fills every empty value from the PG* environment variables in env, falling back to
// the built-in defaults. It is called once by the loaders; the resulting values are passed by
// value from then on.
//
// Resolution rules:
//   - user: PGUSER, then "postgres"
//   - dbname: PGDATABASE, then the user name (comparison databases use postgit_diff_source and
//     postgit_diff_target instead)
//   - host: PGHOST, then "localhost"
//   - port: PGPORT, then 5432
//   - password: PGPASSWORD
func (c *Config) Resolve(env Env) {
	base := Postgres{
		Host:     env.get("PGHOST", consts.DefaultHost),
		Port:     consts.DefaultPort,
		User:     env.get("PGUSER", consts.DefaultUser),
		Password: env.get("PGPASSWORD", ""),
	}
	base.DBName = env.get("PGDATABASE", base.User)

	if raw := env.get("PGPORT", ""); raw != "" {
		if port, err := strconv.ParseUint(raw, 10, 16); err == nil {
			base.Port = uint16(port)
		}
	}

	c.Target = withDefaults(c.Target, base)

	source := base
	source.DBName = consts.DefaultDiffSourceDatabase
	c.DiffEngine.Source = withDefaults(c.DiffEngine.Source, source)

	target := base
	target.DBName = consts.DefaultDiffTargetDatabase
	c.DiffEngine.Target = withDefaults(c.DiffEngine.Target, target)

	if c.DiffEngine.Container.Enabled && c.DiffEngine.Container.Image == "" {
		c.DiffEngine.Container.Image = consts.DefaultPostgresImage
	}

	if c.MaintenanceDB == "" {
		c.MaintenanceDB = consts.DefaultMaintenanceDatabase
	}

	if c.Watch.Debounce == "" {
		c.Watch.Debounce = consts.DefaultDebounce.String()
	}
}

func withDefaults(p, d Postgres) Postgres {
	if p.Host == "" {
		p.Host = d.Host
	}
	if p.Port == 0 {
		p.Port = d.Port
	}
	if p.User == "" {
		p.User = d.User
	}
	if p.DBName == "" {
		p.DBName = d.DBName
	}
	if p.Password == "" {
		p.Password = d.Password
	}

	return p
}

// Validate checks that the resolved configuration cannot destroy data it does not own. The
// comparison databases are dropped and recreated on every run, so they must be valid
// identifiers and must not collide with each other or with the real target.
func (c *Config) Validate() error {
	comparisons := []struct {
		role string
		pg   Postgres
	}{
		{"diff_engine.source", c.DiffEngine.Source},
		{"diff_engine.target", c.DiffEngine.Target},
	}

	for _, cmp := range comparisons {
		if err := utils.ValidateIdentifier(cmp.pg.DBName); err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s.dbname: %v", cmp.role, err)
		}

		if cmp.pg.DBName == c.MaintenanceDB {
			return errors.Wrapf(ErrInvalidConfig, "%s.dbname must not be the maintenance database %q", cmp.role, c.MaintenanceDB)
		}

		if !c.DiffEngine.Container.Enabled && cmp.pg.SameServer(c.Target) && cmp.pg.DBName == c.Target.DBName {
			return errors.Wrapf(ErrInvalidConfig, "%s.dbname %q collides with the target database", cmp.role, cmp.pg.DBName)
		}
	}

	src, tgt := c.DiffEngine.Source, c.DiffEngine.Target
	if src.SameServer(tgt) && src.DBName == tgt.DBName {
		return errors.Wrapf(ErrInvalidConfig, "diff_engine.source and diff_engine.target both use %q", src.DBName)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "watch.debounce: %v", err)
	}

	return nil
}

// LoadConfig parses a YAML configuration from the provided io.Reader, resolves defaults from
// the process environment and validates the result.
//
// An empty document is valid and yields the default configuration.
//
// Example:
//
//	yamlData := `
//	target:
//	  dbname: app
//	diff_engine:
//	  command: my-diff-tool
//	watch:
//	  recreate_db_on_fail: true
//	`
//
//	cfg, err := config.LoadConfig(strings.NewReader(yamlData))
//	if err != nil {
//		panic(err)
//	}
//
//	fmt.Println(cfg.Target.URL())
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return finish(&cfg)
}

// LoadTOML parses a TOML configuration (the postgit.toml format) from the provided io.Reader,
// resolves defaults from the process environment and validates the result.
//
// Example:
//
//	tomlData := `
//	[diff_engine.source]
//	dbname = "diff_source_db"
//
//	[target]
//	dbname = "app"
//	`
//
//	cfg, err := config.LoadTOML(strings.NewReader(tomlData))
func LoadTOML(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Resolve(OSEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFile loads a configuration from the specified file path. Files ending in .toml are
// decoded as TOML, everything else as YAML.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("postgit.yaml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		cfg, err := LoadTOML(f)
		return cfg, errors.Wrapf(err, "failed to load %s", path)
	}

	cfg, err := LoadConfig(f)
	return cfg, errors.Wrapf(err, "failed to load %s", path)
}

// Load finds and loads the configuration for dir. The POSTGIT_CONFIG environment variable takes
// precedence; otherwise postgit.yaml, postgit.yml and postgit.toml are tried in order. When no
// file exists the default configuration is returned.
func Load(dir string) (*Config, error) {
	if path, ok := OSEnv(EnvConfigPath); ok && path != "" {
		return LoadConfigFile(path)
	}

	for _, name := range consts.ConfigFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, errors.Wrapf(err, "failed to stat %s", path)
		}

		return LoadConfigFile(path)
	}

	return finish(&Config{})
}
