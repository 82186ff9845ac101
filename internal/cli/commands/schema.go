package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/marmos91/filemq/pkg/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [output]",
	Short: "Print the JSON schema of the configuration file",
	Long: `Print the JSON schema of the configuration file, or write it to output.

Editors use it for completion and validation of config.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := configSchema()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		_, err := cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(args[0], data, 0644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", args[0])
	return nil
}

func configSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true, // engine sections share the file
		DoNotReference:            true,
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "FileMQ Configuration"
	schema.Description = "Configuration schema for the FileMQ server and client"
	schema.Version = version

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
