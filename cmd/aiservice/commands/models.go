package commands

import (
	"github.com/spf13/cobra"

	"github.com/notflix/aiservice/internal/device"
	"github.com/notflix/aiservice/internal/manager"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage model artifacts",
}

var modelsPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download every model listed under models:",
	Long: `Download every model listed under models: in the config into
storage.models_dir using the Hugging Face CLI (hf). Models whose marker file
matches the configured repo and revision are skipped.

Examples:
  aiservice models pull
  aiservice models pull -c ./configs/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		mgr, err := manager.New(cfg, device.Placement{Kind: device.CPU}, manager.WithLogger(log))
		if err != nil {
			return err
		}
		defer mgr.Close()

		return mgr.Pull(cmd.Context())
	},
}

func init() {
	modelsCmd.AddCommand(modelsPullCmd)
}
