package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/teledrop/teledrop/internal/logger"
	"github.com/teledrop/teledrop/pkg/config"
	"github.com/teledrop/teledrop/pkg/models"
	"github.com/teledrop/teledrop/pkg/store"
)

var keygenName string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an API key",
	Long: `Generate an API key for non-interactive clients.

The clear-text key is printed once; only its digest is stored in the
database. Present the key in the X-API-Key request header.

Examples:
  teledrop keygen --name ci-uploader`,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenName, "name", "", "Name for the new API key")
	_ = keygenCmd.MarkFlagRequired("name")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Quiet logger: this command prints the key to stdout and nothing else.
	if err := logger.Init(logger.Config{Level: "ERROR", Format: "text", Output: "stderr"}); err != nil {
		return err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer st.Close()

	clear, digest, err := models.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	key := &models.APIKey{
		ID:        uuid.NewString(),
		Name:      keygenName,
		KeyHash:   digest,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateAPIKey(context.Background(), key); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	fmt.Printf("API key %q created. The key is shown once:\n\n  %s\n", keygenName, clear)
	return nil
}
