package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "TXR"
	DirName   = ".txr"
	FileName  = "config.toml"

	EutilsBaseURLKey        = "eutils.base_url"
	EutilsRequestTimeoutKey = "eutils.request_timeout"
	CacheBackendKey         = "cache.backend"
	CacheSQLitePathKey      = "cache.sqlite_path"
	CacheBadgerDirKey       = "cache.badger_dir"
	JournalPathKey          = "journal.path"
	JournalKeepKey          = "journal.keep"
	LogLevelKey             = "log.level"
	SecretsDirKey           = "secrets.dir"
	APIKeyKey               = "api_key"
	ResolverConcurrencyKey  = "resolver.concurrency"
	DistrustAboveKey        = "consensus.distrust_above"

	BackendSQLite = "sqlite"
	BackendBadger = "badger"

	DefaultEutilsBaseURL  = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	DefaultRequestTimeout = 30 * time.Second
	DefaultJournalKeep    = 20
	DefaultDistrustAbove  = 2

	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

var ErrConfigExists = errors.New("config file already exists")

type Settings struct {
	ConfigFile     string
	EutilsBaseURL  string
	RequestTimeout time.Duration
	CacheBackend   string
	SQLitePath     string
	BadgerDir      string
	JournalPath    string
	JournalKeep    int
	LogLevel       logrus.Level
	SecretsDir     string
	APIKey         string
	Concurrency    int
	DistrustAbove  int
}

// New returns a viper instance carrying the defaults rooted at home, the
// TXR_* environment and, when present, the config file. An explicit file must
// exist; the default one is optional.
func New(home string, explicitFile string) (*viper.Viper, error) {
	if home == "" {
		return nil, errors.New("home directory is empty")
	}

	v := viper.New()
	setDefaults(v, home)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("toml")

	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", explicitFile, err)
		}
		return v, nil
	}

	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.AddConfigPath(Dir(home))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func Dir(home string) string {
	return filepath.Join(home, DirName)
}

func DefaultPath(home string) string {
	return filepath.Join(Dir(home), FileName)
}

func setDefaults(v *viper.Viper, home string) {
	dir := Dir(home)
	v.SetDefault(EutilsBaseURLKey, DefaultEutilsBaseURL)
	v.SetDefault(EutilsRequestTimeoutKey, DefaultRequestTimeout.String())
	v.SetDefault(CacheBackendKey, BackendSQLite)
	v.SetDefault(CacheSQLitePathKey, filepath.Join(dir, "txr.db"))
	v.SetDefault(CacheBadgerDirKey, filepath.Join(dir, "accessions.badger"))
	v.SetDefault(JournalPathKey, filepath.Join(dir, "runs.toml"))
	v.SetDefault(JournalKeepKey, DefaultJournalKeep)
	v.SetDefault(LogLevelKey, logrus.InfoLevel.String())
	v.SetDefault(SecretsDirKey, filepath.Join(dir, "secrets"))
	v.SetDefault(APIKeyKey, "")
	v.SetDefault(ResolverConcurrencyKey, 0)
	v.SetDefault(DistrustAboveKey, DefaultDistrustAbove)
}

// Load validates the values held by v. Paths starting with ~/ are expanded
// against home and rewritten into v so adapters reading v see them too.
func Load(v *viper.Viper, home string) (Settings, error) {
	if v == nil {
		return Settings{}, errors.New("config is nil")
	}

	for _, key := range []string{CacheSQLitePathKey, CacheBadgerDirKey, JournalPathKey, SecretsDirKey} {
		v.Set(key, expandHome(v.GetString(key), home))
	}

	timeout, err := time.ParseDuration(v.GetString(EutilsRequestTimeoutKey))
	if err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", EutilsRequestTimeoutKey, err)
	}
	if timeout <= 0 {
		return Settings{}, fmt.Errorf("%s must be positive", EutilsRequestTimeoutKey)
	}

	level, err := logrus.ParseLevel(v.GetString(LogLevelKey))
	if err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", LogLevelKey, err)
	}

	settings := Settings{
		ConfigFile:     v.ConfigFileUsed(),
		EutilsBaseURL:  v.GetString(EutilsBaseURLKey),
		RequestTimeout: timeout,
		CacheBackend:   strings.ToLower(strings.TrimSpace(v.GetString(CacheBackendKey))),
		SQLitePath:     v.GetString(CacheSQLitePathKey),
		BadgerDir:      v.GetString(CacheBadgerDirKey),
		JournalPath:    v.GetString(JournalPathKey),
		JournalKeep:    v.GetInt(JournalKeepKey),
		LogLevel:       level,
		SecretsDir:     v.GetString(SecretsDirKey),
		APIKey:         strings.TrimSpace(v.GetString(APIKeyKey)),
		Concurrency:    v.GetInt(ResolverConcurrencyKey),
		DistrustAbove:  v.GetInt(DistrustAboveKey),
	}

	switch settings.CacheBackend {
	case BackendSQLite, BackendBadger:
	default:
		return Settings{}, fmt.Errorf("%s must be %q or %q, got %q", CacheBackendKey, BackendSQLite, BackendBadger, settings.CacheBackend)
	}
	if settings.JournalKeep <= 0 {
		return Settings{}, fmt.Errorf("%s must be positive", JournalKeepKey)
	}
	if settings.Concurrency < 0 {
		return Settings{}, fmt.Errorf("%s must not be negative", ResolverConcurrencyKey)
	}
	if settings.DistrustAbove < 0 {
		return Settings{}, fmt.Errorf("%s must not be negative", DistrustAboveKey)
	}
	return settings, nil
}

func expandHome(path string, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

type fileSchema struct {
	Eutils    eutilsSchema    `toml:"eutils"`
	Cache     cacheSchema     `toml:"cache"`
	Journal   journalSchema   `toml:"journal"`
	Log       logSchema       `toml:"log"`
	Secrets   secretsSchema   `toml:"secrets"`
	Resolver  resolverSchema  `toml:"resolver"`
	Consensus consensusSchema `toml:"consensus"`
}

type eutilsSchema struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
}

type cacheSchema struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
	BadgerDir  string `toml:"badger_dir"`
}

type journalSchema struct {
	Path string `toml:"path"`
	Keep int    `toml:"keep"`
}

type logSchema struct {
	Level string `toml:"level"`
}

type secretsSchema struct {
	Dir string `toml:"dir"`
}

type resolverSchema struct {
	Concurrency int `toml:"concurrency"`
}

type consensusSchema struct {
	DistrustAbove int `toml:"distrust_above"`
}

// WriteDefault writes the default settings to path. The API key is never
// written; it belongs in the credential store.
func WriteDefault(path string, force bool) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat config: %w", err)
		}
	}

	payload, err := toml.Marshal(fileSchema{
		Eutils: eutilsSchema{
			BaseURL:        DefaultEutilsBaseURL,
			RequestTimeout: DefaultRequestTimeout.String(),
		},
		Cache: cacheSchema{
			Backend:    BackendSQLite,
			SQLitePath: "~/" + DirName + "/txr.db",
			BadgerDir:  "~/" + DirName + "/accessions.badger",
		},
		Journal:   journalSchema{Path: "~/" + DirName + "/runs.toml", Keep: DefaultJournalKeep},
		Log:       logSchema{Level: logrus.InfoLevel.String()},
		Secrets:   secretsSchema{Dir: "~/" + DirName + "/secrets"},
		Consensus: consensusSchema{DistrustAbove: DefaultDistrustAbove},
	})
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeAtomic(path, payload)
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirMode); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(configFileMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
