package commands

import (
	"context"
	"fmt"

	"github.com/fastly/pubsub"
	"github.com/fastly/pubsub/admin"
	"github.com/fastly/pubsub/config"
	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Mint a signing key directly against the configured key store",
	Long: `Mints an HMAC signing key the same way POST /admin/keys does, but
without starting a server. Useful for bootstrapping the first key on a
fresh deployment, before any admin credential exists to call the
endpoint with.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeys(cmd.Context())
	},
}

func runKeys(ctx context.Context) error {
	src := config.Source(config.FileSource{Path: configPath})
	if configPath == "" {
		src = config.StaticSource{Value: config.DefaultConfig()}
	}
	cfg, err := src.Config()
	if err != nil {
		return err
	}

	gw, err := pubsub.New(cfg)
	if err != nil {
		return err
	}
	defer gw.Close()

	key, err := admin.GenerateKey(ctx, gw.Keys)
	if err != nil {
		return err
	}
	fmt.Printf("id:    %s\nvalue: %s\n", key.ID, key.Value)
	return nil
}
