package cmd

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/polysweep/polysweep/internal/sweepctl"
)

// initParams loads configuration into params, lowest precedence first:
// defaults shipped next to the executable, the user config file, environment
// variables, and command line flags bound to viper.
func initParams(cmd *cobra.Command, params *sweepctl.Params) error {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		cfgFile = ""
	}
	if err := loadConfigFiles(cfgFile); err != nil {
		return err
	}
	if err := viper.Unmarshal(params); err != nil {
		err = errors.WithMessage(err, "failed to unmarshal configuration")
		return errors.WithStack(err)
	}
	return nil
}

func loadConfigFiles(cfgFile string) error {
	exePath, err := os.Executable()
	if err != nil {
		return errors.WithStack(err)
	}
	viper.SetConfigFile(filepath.Join(filepath.Dir(exePath), "sweepctl-defaults.yaml"))
	if err := viper.ReadInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
		case *os.PathError:
			// No defaults file next to the executable is fine.
		default:
			err = errors.WithMessagef(err, "failed to read config file %s", viper.ConfigFileUsed())
			return errors.WithStack(err)
		}
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.WithStack(err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".sweepctl")
	}

	viper.AutomaticEnv()

	if err := viper.MergeInConfig(); err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// Users don't have to have a config file.
		case *os.PathError:
		default:
			err = errors.WithMessagef(err, "failed to read config file %s", viper.ConfigFileUsed())
			return errors.WithStack(err)
		}
	}
	return nil
}
