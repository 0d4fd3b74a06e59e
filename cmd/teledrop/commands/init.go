package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/teledrop/teledrop/pkg/config"
)

var (
	initForce    bool
	initPassword string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a Teledrop configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/teledrop/config.yaml.
Use --config to specify a custom path.

A random JWT secret is generated, and the operator password (given via
--password or generated) is stored only as a bcrypt hash.

Examples:
  # Initialize with default location and a generated operator password
  teledrop init

  # Initialize with a chosen operator password
  teledrop init --password s3cret

  # Force overwrite existing config
  teledrop init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().StringVar(&initPassword, "password", "", "Operator password (generated when omitted)")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()

	secret, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg.Auth.JWTSecret = secret

	password := initPassword
	generated := false
	if password == "" {
		password, err = randomHex(16)
		if err != nil {
			return fmt.Errorf("failed to generate operator password: %w", err)
		}
		generated = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash operator password: %w", err)
	}
	cfg.Auth.OperatorPasswordHash = string(hash)

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	if generated {
		fmt.Printf("\nGenerated operator password (write it down, it is not stored in clear):\n  %s\n", password)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: teledrop start")
	fmt.Printf("  3. Or specify custom config: teledrop start --config %s\n", configPath)

	return nil
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
