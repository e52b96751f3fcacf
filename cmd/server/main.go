package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/core/services"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/pkg/utils/crypto"
	"github.com/trackdrop/backend/pkg/utils/sshkeygen"
)

func main() {
	loaded := config.LoadEnvFiles()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "trackdrop",
		Short: "Web front-end for downloading music through spotdl",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			if len(loaded) > 0 {
				log.Infow("env_files_loaded", "paths", loaded)
			}

			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			return app.run()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to the YAML config file")

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete downloads older than downloads.max_file_age and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer log.Sync()

			files, err := services.NewFileStore(cfg.Downloads.Dir, cfg.Downloads.MaxFileAge, log)
			if err != nil {
				return err
			}
			removed, err := files.PurgeExpired(cfg.Downloads.MaxFileAge)
			if err != nil {
				return err
			}
			log.Infow("purge_completed", "removed", removed, "dir", files.Root())
			return nil
		},
	}

	var key string
	sealCmd := &cobra.Command{
		Use:   "seal-secret <value>",
		Short: "Encrypt a value for use as an enc: config secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				key = cfg.Security.EncryptionKey
			}
			sealed, err := crypto.SealSecret(args[0], key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
	sealCmd.Flags().StringVarP(&key, "key", "k", "", "Encryption key (default: security.encryption_key)")

	var keyPath string
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the Ed25519 key used to publish downloads over SFTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := sshkeygen.EnsureEd25519KeyPair(keyPath, "trackdrop")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if pair.Created {
				fmt.Fprintf(out, "Generated %s\n", pair.PrivateKeyPath)
			} else {
				fmt.Fprintf(out, "Key %s already exists\n", pair.PrivateKeyPath)
			}
			fmt.Fprintf(out, "Add this line to the remote authorized_keys:\n%s\n", pair.AuthorizedKey)
			return nil
		},
	}
	keygenCmd.Flags().StringVar(&keyPath, "out", "config/keys/trackdrop_ed25519", "Private key path")

	rootCmd.AddCommand(purgeCmd, sealCmd, keygenCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrap(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func defaultConfigPath() string {
	configPath := "config/config.yaml"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "../config/config.yaml"
	}
	return configPath
}
