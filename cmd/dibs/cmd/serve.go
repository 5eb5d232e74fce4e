package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/efortin/gpu-dibs/pkg/kubernetes"
	"github.com/efortin/gpu-dibs/pkg/ledger"
	"github.com/efortin/gpu-dibs/pkg/rbac"
	"github.com/efortin/gpu-dibs/pkg/server"
)

var (
	port           string
	idleTimeout    string
	reapInterval   string
	defaultProfile string
	ledgerDSN      string
	envFile        string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GPU session reservation server",
	Long: `Start the HTTP server that manages GPU session pods.

The server will:
- Reserve GPU nodes by creating session pods with required node affinity
- Track keepalives and release sessions after the idle timeout
- Record reservations in the MySQL ledger when a DSN is configured
- Expose Prometheus metrics and local GPU statistics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
			applyEnvOverrides(cmd)
		}

		config := &server.Config{
			Namespace:      namespace,
			Port:           port,
			IdleTimeout:    idleTimeout,
			ReapInterval:   reapInterval,
			DefaultProfile: defaultProfile,
			LedgerDSN:      ledgerDSN,
		}
		if err := config.Validate(); err != nil {
			return err
		}

		restConfig, err := kubernetes.LoadRESTConfig(kubeconfig)
		if err != nil {
			return fmt.Errorf("failed to load kubernetes config: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		err = rbac.VerifyPermissions(ctx, restConfig, config.Namespace)
		cancel()
		if err != nil {
			return err
		}
		log.Printf("✅ RBAC permissions verified")

		clientset, dynamicClient, err := kubernetes.NewClients(restConfig)
		if err != nil {
			return err
		}
		sessions := kubernetes.NewSessionManager(clientset, config.Namespace)
		profiles := kubernetes.NewProfileClient(dynamicClient)

		// The audit log stays a nil interface unless a DSN is configured,
		// so the server can test for it with a plain nil check.
		var auditLog server.LedgerOps
		if config.LedgerDSN != "" {
			db, err := ledger.Open(config.LedgerDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			err = db.EnsureSchema(ctx)
			cancel()
			if err != nil {
				return err
			}
			auditLog = db
		}

		srv, err := server.NewServer(config, sessions, profiles, auditLog)
		if err != nil {
			return err
		}
		defer srv.Close()

		return srv.Start()
	},
}

// applyEnvOverrides re-resolves environment-backed defaults after an env
// file is loaded. Flags set on the command line always win.
func applyEnvOverrides(cmd *cobra.Command) {
	overrides := []struct {
		flag string
		env  string
		dst  *string
	}{
		{"namespace", "DIBS_NAMESPACE", &namespace},
		{"port", "PORT", &port},
		{"idle-timeout", "IDLE_TIMEOUT", &idleTimeout},
		{"reap-interval", "REAP_INTERVAL", &reapInterval},
		{"default-profile", "DIBS_PROFILE", &defaultProfile},
		{"ledger-dsn", "DIBS_LEDGER_DSN", &ledgerDSN},
	}
	for _, o := range overrides {
		if cmd.Flags().Changed(o.flag) {
			continue
		}
		if value := os.Getenv(o.env); value != "" {
			*o.dst = value
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&port, "port", getEnvOrDefault("PORT", "8080"), "HTTP server port")
	serveCmd.Flags().StringVar(&idleTimeout, "idle-timeout", getEnvOrDefault("IDLE_TIMEOUT", "4h"), "Default idle timeout before sessions are released")
	serveCmd.Flags().StringVar(&reapInterval, "reap-interval", getEnvOrDefault("REAP_INTERVAL", "1m"), "How often the idle reaper runs")
	serveCmd.Flags().StringVar(&defaultProfile, "default-profile", getEnvOrDefault("DIBS_PROFILE", ""), "SessionProfile applied when a request names none")
	serveCmd.Flags().StringVar(&ledgerDSN, "ledger-dsn", getEnvOrDefault("DIBS_LEDGER_DSN", ""), "MySQL DSN for the reservation ledger (disabled when empty)")
	serveCmd.Flags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before starting")
}
