package configmap

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

type HelpError struct {
	Help string
}

func (h HelpError) Error() string {
	return "help requested"
}

func newHelpError(name string, flags *pflag.FlagSet, cfg BindConfig) HelpError {
	var b strings.Builder

	b.WriteString(fmt.Sprintf(`Usage of "%s":`, name))
	b.WriteString("\n")
	b.WriteString(flags.FlagUsages())

	b.WriteString("\n")
	b.WriteString("Configuration source priority: 1. flag, 2. ENV, 3. config file\n")

	if cfg.EnvPrefix != "" {
		b.WriteString("\n")
		b.WriteString("Flags can also be defined as ENV variables.\n")
		b.WriteString(fmt.Sprintf("For example, the flag \"--foo-bar\" becomes the \"%s\" ENV.\n", flagToEnv(cfg.EnvPrefix, "foo-bar")))
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Use \"--%s\" flag to specify a JSON/YAML configuration file.\n", ConfigFileFlag))
	b.WriteString("\n")

	return HelpError{Help: b.String()}
}
