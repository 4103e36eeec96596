package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/sivanadi/AstroCalc/internal/diag"
	"github.com/sivanadi/AstroCalc/internal/ephemeris"
	"github.com/sivanadi/AstroCalc/internal/model"
	"github.com/sivanadi/AstroCalc/internal/server"
	"github.com/sivanadi/AstroCalc/internal/service"
	"github.com/sivanadi/AstroCalc/internal/store"
)

const banner = `
    _        _              ___      _
   / \   ___| |_ _ __ ___  / __\__ _| | ___
  / _ \ / __| __| '__/ _ \/ /  / _' | |/ __|
 / ___ \\__ \ |_| | | (_) / /__| (_| | | (__
/_/   \_\___/\__|_|  \___/\____/\__,_|_|\___|
`

func newServeCmd() *cobra.Command {
	var (
		port   int
		host   string
		dev    bool
		daemon bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the AstroCalc API server",
		Long:  "Start the HTTP server that computes charts and serves the admin API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if daemon {
				return runServeDaemon()
			}
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")
	cmd.Flags().BoolVarP(&daemon, "daemon", "d", false, "Run in the background, logging to the data directory")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

// runServeDaemon re-executes the current binary detached from the terminal
// and records its PID for 'astrocalc status' and 'astrocalc stop'.
func runServeDaemon() error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve"}
	for _, arg := range os.Args[2:] {
		if arg != "--daemon" && arg != "-d" {
			args = append(args, arg)
		}
	}

	child := exec.Command(os.Args[0], args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start background server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	fmt.Printf("Server started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	return nil
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	logLevel := slog.LevelInfo
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx := context.Background()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	logger.Info("store opened", "dir", resolveDataDir())

	// First run: without an admin the service is unmanageable, so either
	// bootstrap one from configuration or refuse to start.
	hasAdmin, err := st.HasAnyAdmin(ctx)
	if err != nil {
		st.Close()
		return fmt.Errorf("check admin accounts: %w", err)
	}
	if !hasAdmin {
		initialPassword := viper.GetString("auth.initial_admin_password")
		if initialPassword == "" {
			st.Close()
			return fmt.Errorf("no admin account exists; set ASTROCALC_AUTH_INITIAL_ADMIN_PASSWORD or run: astrocalc admin create")
		}
		if err := bootstrapAdmin(ctx, st, initialPassword); err != nil {
			st.Close()
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		logger.Warn("bootstrapped admin account; password change required on first login", "username", "admin")
	}

	recorder := diag.New(st, logger)
	recorder.Start()

	timeout := viper.GetDuration("auth.session_timeout")
	if timeout == 0 {
		timeout = service.DefaultSessionTimeout
	}
	sessions := service.NewSessionManager(st, timeout)

	cfg := server.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	if origins := viper.GetStringSlice("server.cors.allowed_origins"); len(origins) > 0 {
		cfg.CORSOrigins = origins
	}
	if viper.IsSet("rate_limit.global_per_minute") {
		cfg.GlobalRateLimit = viper.GetInt("rate_limit.global_per_minute")
	}
	if viper.IsSet("rate_limit.login_per_minute") {
		cfg.LoginRateLimit = viper.GetInt("rate_limit.login_per_minute")
	}
	cfg.AllowDomainAuth = viper.GetBool("auth.allow_domain_auth")

	srv := server.New(cfg, st, sessions, recorder, ephemeris.NewBuiltin(), logger)

	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ Chart:  http://%s:%d/chart\n", host, port)
	fmt.Printf("→ Health: http://%s:%d/health\n", host, port)
	fmt.Println()

	if err := writePID(os.Getpid()); err != nil {
		logger.Warn("failed to write pid file", "error", err)
	}
	defer removePID()

	return srv.ListenAndServe()
}

// bootstrapAdmin creates the default "admin" account with a forced password
// change on first login.
func bootstrapAdmin(ctx context.Context, st *store.Store, password string) error {
	if err := service.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return st.CreateAdmin(ctx, &model.Admin{
		Username:           "admin",
		PasswordHash:       string(hash),
		IsActive:           true,
		MustChangePassword: true,
		CreatedAt:          time.Now().UTC(),
	})
}
