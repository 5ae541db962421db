package configmap

import (
	"strings"
)

// flagToEnv converts a flag name to the ENV name, for example "foo-bar" -> "MY_APP_FOO_BAR".
func flagToEnv(prefix, flagName string) string {
	return prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(flagName))
}
