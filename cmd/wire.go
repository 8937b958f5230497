package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/bnema/taxon-resolver-cli/internal/adapters/eutils"
	statusadapter "github.com/bnema/taxon-resolver-cli/internal/adapters/render/status"
	tomlrepo "github.com/bnema/taxon-resolver-cli/internal/adapters/repo/toml"
	chainstore "github.com/bnema/taxon-resolver-cli/internal/adapters/secrets/chain"
	"github.com/bnema/taxon-resolver-cli/internal/adapters/store/badgercache"
	sqlitestore "github.com/bnema/taxon-resolver-cli/internal/adapters/store/sqlite"
	"github.com/bnema/taxon-resolver-cli/internal/application"
	"github.com/bnema/taxon-resolver-cli/internal/config"
	"github.com/bnema/taxon-resolver-cli/internal/ports"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	annotationSkipWire       = "txr/skip-wire"
	annotationOptionalConfig = "txr/optional-config"
)

type rootOptions struct {
	configFile string
	verbose    bool
}

type app struct {
	opts           rootOptions
	home           string
	cfg            *viper.Viper
	settings       config.Settings
	log            *logrus.Logger
	credentials    ports.CredentialStore
	journal        ports.RunJournal
	limiter        *eutils.Limiter
	httpClient     *http.Client
	statusRenderer func(application.Status, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
}

func (a *app) wire(cmd *cobra.Command) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	configFile := a.opts.configFile
	if configFile != "" && cmd.Annotations[annotationOptionalConfig] == "true" {
		if _, statErr := os.Stat(configFile); errors.Is(statErr, os.ErrNotExist) {
			configFile = ""
		}
	}

	cfg, err := config.New(home, configFile)
	if err != nil {
		return err
	}
	settings, err := config.Load(cfg, home)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	journal, err := tomlrepo.NewJournal(cfg)
	if err != nil {
		return fmt.Errorf("wire run journal: %w", err)
	}

	credentials, err := chainstore.NewPassWithFileFallback(settings.SecretsDir)
	if err != nil {
		return fmt.Errorf("wire credential store chain: %w", err)
	}

	a.home = home
	a.cfg = cfg
	a.settings = settings
	a.log = newLogger(cmd.ErrOrStderr(), settings.LogLevel, a.opts.verbose)
	a.credentials = credentials
	a.journal = journal
	a.limiter = eutils.NewLimiter()
	a.httpClient = http.DefaultClient
	a.statusRenderer = statusadapter.Render
	a.now = time.Now
	return nil
}

func newLogger(output io.Writer, level logrus.Level, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(output)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(level)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// credentialService serves the commands that only touch the credential store.
func (a *app) credentialService() *application.Service {
	return application.NewService(nil, nil, nil, a.credentials, ports.SystemClock{})
}

// session holds the stores opened for one command.
type session struct {
	app     *app
	cache   ports.AccessionCache
	taxa    *sqlitestore.Taxa
	service *application.Service
	closers []io.Closer
}

func (a *app) open() (*session, error) {
	db, err := sqlitestore.Open(a.settings.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open taxon store: %w", err)
	}

	s := &session{
		app:     a,
		cache:   db.Accessions(),
		taxa:    db.Taxa(),
		closers: []io.Closer{db},
	}

	if a.settings.CacheBackend == config.BackendBadger {
		cache, err := badgercache.Open(a.settings.BadgerDir, a.log.WithField("component", "badger"))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open accession cache: %w", err)
		}
		s.cache = cache
		s.closers = append(s.closers, cache)
	}

	s.service = application.NewService(s.cache, s.taxa, a.journal, a.credentials, ports.SystemClock{})
	return s, nil
}

func (s *session) Close() error {
	var errs []error
	for _, closer := range slices.Backward(s.closers) {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *session) apiKey(ctx context.Context) string {
	if s.app.settings.APIKey != "" {
		return s.app.settings.APIKey
	}

	key, ok, err := s.service.APIKey(ctx)
	if err != nil {
		s.app.log.WithError(err).Warn("api key unavailable, continuing without it")
		return ""
	}
	if !ok {
		return ""
	}
	return key
}

func (s *session) fetcher(ctx context.Context) (eutils.Client, error) {
	client := eutils.Client{
		BaseURL:        s.app.settings.EutilsBaseURL,
		APIKey:         s.apiKey(ctx),
		HTTPClient:     s.app.httpClient,
		RequestTimeout: s.app.settings.RequestTimeout,
		Limiter:        s.app.limiter,
		Log:            s.app.log.WithField("component", "eutils"),
	}

	count, err := s.taxa.Count(ctx)
	if err != nil {
		return eutils.Client{}, fmt.Errorf("count taxa: %w", err)
	}
	if count == 0 {
		s.app.log.Warn("no taxonomy loaded, remote taxa are accepted without merge checks")
		return client, nil
	}
	client.Taxa = s.taxa
	return client, nil
}

func (s *session) resolver(ctx context.Context) (*application.Resolver, error) {
	client, err := s.fetcher(ctx)
	if err != nil {
		return nil, err
	}

	return application.NewResolver(s.cache, client,
		application.WithLogger(s.app.log.WithField("component", "resolver")),
		application.WithConcurrency(s.app.settings.Concurrency),
	), nil
}

func (s *session) consensus() *application.ConsensusEngine {
	return application.NewConsensusEngine(s.taxa, s.app.log.WithField("component", "consensus")).
		WithDistrustAbove(s.app.settings.DistrustAbove)
}

func withSession(a *app, fn func(*session) error) (err error) {
	s, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close stores: %w", closeErr)
		}
	}()
	return fn(s)
}
