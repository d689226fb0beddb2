package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"microsight/dashboard-service/internal/auth"
	"microsight/dashboard-service/internal/guard"
	"microsight/dashboard-service/internal/logging"
	"microsight/dashboard-service/internal/session"
	"microsight/dashboard-service/internal/store/sqlite"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const Version = "0.1.0"

type app struct {
	outputFormat   string
	dbPath         string
	delay          time.Duration
	grace          time.Duration
	googleClientID string
	verbose        bool

	logger   *zap.Logger
	kv       *sqlite.Store
	sessions *session.Persistent
	auth     *auth.Service
	router   *guard.Router
}

// newRootCmd builds the command tree. The returned close func releases the
// storage and must run after Execute, whether or not the command failed.
func newRootCmd() (*cobra.Command, func()) {
	a := &app{}
	root := &cobra.Command{
		Use:   "dashctl",
		Short: "Sign in to the microplastics dashboard from the terminal",
		Long: `dashctl signs in, signs up and checks which dashboard views the
current session may open. The session is kept in a local sqlite file.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	flags.StringVar(&a.dbPath, "db", "", "Storage path (default: ~/.local/share/dashctl/storage.db)")
	flags.DurationVar(&a.delay, "delay", auth.DefaultLatency, "Simulated sign-in latency")
	flags.DurationVar(&a.grace, "grace", guard.DefaultGracePeriod, "Grace period before an access-denied redirect")
	flags.StringVar(&a.googleClientID, "google-client-id", os.Getenv("GOOGLE_CLIENT_ID"), "Google client id")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.loginCmd(),
		a.signupCmd(),
		a.googleCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.openCmd(),
	)
	return root, a.teardown
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || (cmd.HasParent() && cmd.Parent().Name() == "completion") {
		return nil
	}
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}
	a.logger = logger

	path := a.dbPath
	if path == "" {
		path = defaultDBPath()
	}
	a.kv, err = sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	a.sessions = session.NewPersistent(a.kv, logger)
	if err := a.sessions.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	a.auth = auth.New(a.sessions, auth.Options{
		Latency:        a.delay,
		GoogleClientID: a.googleClientID,
		Accounts:       auth.NewAccounts(a.kv),
		Logger:         logger,
	})
	a.router = guard.NewRouter(a.grace)
	return nil
}

func (a *app) teardown() {
	if a.kv != nil {
		_ = a.kv.Close()
		a.kv = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".dashctl", "storage.db")
	}
	return filepath.Join(home, ".local", "share", "dashctl", "storage.db")
}

// emit writes data as JSON or YAML and reports whether it did. Table output
// is left to each command.
func (a *app) emit(w io.Writer, data interface{}) (bool, error) {
	switch a.outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return true, encoder.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return true, err
		}
		_, err = w.Write(out)
		return true, err
	default:
		return false, nil
	}
}
