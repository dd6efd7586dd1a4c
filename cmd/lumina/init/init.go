// Package initcmder provides the init command for initializing a local .lumina
// directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/lumina/pkg/cliui"
	"github.com/papercomputeco/lumina/pkg/config"
)

const (
	dirName = ".lumina"
)

const initLongDesc string = `Initialize a new .lumina/ directory in the current working directory.

Creates a local .lumina/ directory that takes precedence over the default
~/.lumina/ directory, and writes a config.toml into it. The config starts
from defaults, or from a sampling preset given with --preset:
  precise     low temperature, short replies
  balanced    moderate temperature
  creative    high temperature, long replies

An existing config.toml is left untouched.

Examples:
  lumina init
  lumina init --preset creative`

const initShortDesc string = "Initialize a local .lumina/ directory"

type initCommander struct {
	preset string
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Sampling preset (precise, balanced, creative)")

	return cmd
}

func (c *initCommander) run(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	cfg := config.NewDefaultConfig()
	if c.preset != "" {
		var err error
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .lumina directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, err = os.Stat(cfger.GetTarget())
	switch {
	case err == nil:
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Initialized .lumina directory: %s\n", cliui.SuccessMark, dir)
	if c.preset != "" {
		fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Preset:"), cliui.ValueStyle.Render(c.preset))
	}
	return nil
}
