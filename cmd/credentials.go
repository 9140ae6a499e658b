package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shono-io/funcship/credentials"
)

func newCredentialsCmd() *cobra.Command {
	var (
		accessKeyID     string
		secretAccessKey string
		path            string
		overwrite       bool
		onNeed          bool
	)

	c := &cobra.Command{
		Use:   "credentials",
		Short: "write the shared AWS credentials file",
		Long: `Writes a credentials file with a single [default] profile. The keys default to
the AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if accessKeyID == "" {
				accessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
			}
			if secretAccessKey == "" {
				secretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
			}

			var (
				written string
				err     error
			)
			if onNeed {
				written, err = credentials.CreateOnNeed(accessKeyID, secretAccessKey)
			} else {
				written, err = credentials.Create(accessKeyID, secretAccessKey, credentials.Options{
					Path:      path,
					Overwrite: overwrite,
				})
			}
			if err != nil {
				return err
			}

			log.Info().Str("path", written).Msg("credentials file ready")
			fmt.Fprintln(cmd.OutOrStdout(), written)
			return nil
		},
	}

	c.Flags().StringVar(&accessKeyID, "access-key-id", "", "AWS access key id")
	c.Flags().StringVar(&secretAccessKey, "secret-access-key", "", "AWS secret access key")
	c.Flags().StringVar(&path, "path", "", "credentials file path (default is $HOME/.aws/credentials)")
	c.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing credentials file")
	c.Flags().BoolVar(&onNeed, "on-need", false, "only write the default credentials file when it is missing")
	c.MarkFlagsMutuallyExclusive("on-need", "overwrite")
	c.MarkFlagsMutuallyExclusive("on-need", "path")

	return c
}
