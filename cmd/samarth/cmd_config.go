package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/samarth/internal/config"
)

var configEffective bool

func init() {
	configListCmd.Flags().BoolVar(&configEffective, "effective", false, "show values after environment overrides")
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Read and change ~/.samarth/config.json using dot-separated keys,
for example backend.base_url or query.max_attempts.`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting and its value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		load := config.Read
		if configEffective {
			load = config.Load
		}
		cfg, err := load(cfgPath)
		if err != nil {
			return err
		}
		return listConfig(os.Stdout, cfg)
	},
}

// listConfig prints every key with its value, secrets masked, and names the
// variable overriding any key whose file value is not in effect.
func listConfig(w io.Writer, cfg *config.Config) error {
	values, err := config.ListValues(cfg, true)
	if err != nil {
		return fmt.Errorf("list config: %w", err)
	}
	for _, k := range config.Keys() {
		line := fmt.Sprintf("%s = %v", k, values[k])
		if env := config.OverriddenBy(k); env != "" {
			line += "  (overridden by " + env + ")"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a setting as stored in the file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		val, err := config.GetValue(cfgPath, key)
		if err != nil {
			return err
		}
		if s, ok := val.(string); ok && config.IsSecretKey(key) {
			val = config.Mask(s)
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a setting in the file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			value = config.Mask(value)
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, value)
		if env := config.OverriddenBy(key); env != "" {
			fmt.Fprintf(os.Stdout, "note: %s is set and takes precedence over the file\n", env)
		}
		return nil
	},
}
