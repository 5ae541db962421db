// Package configmap binds a configuration structure to flags, ENVs and a config file.
package configmap

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/price-tracker/internal/pkg/env"
	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const (
	ConfigFileFlag = "config-file"
	HelpFlag       = "help"
)

type BindConfig struct {
	// Args are command line arguments, the first one is the program name.
	Args []string
	Envs *env.Map
	// EnvPrefix of all ENVs, for example "MY_APP_".
	EnvPrefix string
}

// Bind flags, ENVs and the config file to the target structure, the target values are used as defaults.
// Priority: 1. flag, 2. ENV, 3. config file, 4. default value.
func Bind(cfg BindConfig, target any) error {
	if len(cfg.Args) == 0 {
		return errors.New("no command line arguments, expected at least the program name")
	}
	if cfg.Envs == nil {
		cfg.Envs = env.Empty()
	}

	name := cfg.Args[0]
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = true
	fs.Usage = func() {}
	fs.Bool(HelpFlag, false, "Print help.")
	fs.String(ConfigFileFlag, "", "Path to a JSON/YAML configuration file.")
	if err := GenerateFlags(fs, target); err != nil {
		return err
	}

	if err := fs.Parse(cfg.Args[1:]); err != nil {
		return err
	}
	if help, _ := fs.GetBool(HelpFlag); help {
		return newHelpError(name, fs, cfg)
	}

	v := viper.New()
	if err := BindToViper(v, fs, cfg.Envs, cfg.EnvPrefix); err != nil {
		return err
	}

	if err := v.Unmarshal(target); err != nil {
		return errors.PrefixError(err, "cannot decode configuration")
	}
	return nil
}

// BindToViper flags, ENVs and the config file to the Viper configuration registry.
// A default value of a flag is used only if the value is not set by other source.
func BindToViper(v *viper.Viper, fs *pflag.FlagSet, envs *env.Map, envPrefix string) error {
	errs := errors.NewMultiError()

	// Config file
	configFile, _ := fs.GetString(ConfigFileFlag)
	if envValue, found := envs.Lookup(flagToEnv(envPrefix, ConfigFileFlag)); found && !fs.Changed(ConfigFileFlag) {
		configFile = envValue
	}
	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.PrefixErrorf(err, `cannot read config file "%s"`, configFile)
		}
	}

	fs.VisitAll(func(flag *pflag.Flag) {
		if flag.Name == HelpFlag || flag.Name == ConfigFileFlag {
			return
		}

		switch envValue, found := envs.Lookup(flagToEnv(envPrefix, flag.Name)); {
		case flag.Changed:
			v.Set(flag.Name, flagValue(flag))
		case found:
			v.Set(flag.Name, envValue)
		default:
			// Default value, it has the lowest priority
			if err := v.BindPFlag(flag.Name, flag); err != nil {
				errs.Append(err)
			}
		}
	})

	return errs.ErrorOrNil()
}

func flagValue(flag *pflag.Flag) any {
	if v, ok := flag.Value.(pflag.SliceValue); ok {
		return v.GetSlice()
	}
	return flag.Value.String()
}
