package wasienv

import (
	"fmt"
	"strings"
)

// validateArgs rejects any argument that contains a nul byte. The offending
// argument is preserved in the returned error.
func validateArgs(args []string) error {
	for _, arg := range args {
		if strings.IndexByte(arg, 0) >= 0 {
			return &ArgumentError{Arg: arg}
		}
	}
	return nil
}

// validateEnvs checks every pending environment pair. A key must not contain
// a nul or `=` byte and a value must not contain a nul byte. A value may
// contain `=`.
func validateEnvs(envs []envPair) error {
	for _, p := range envs {
		for i := 0; i < len(p.key); i++ {
			switch p.key[i] {
			case 0:
				return &EnvFormatError{
					Detail: fmt.Sprintf("found nul byte in env var key %q (key=value)", p.key),
				}
			case '=':
				return &EnvFormatError{
					Detail: fmt.Sprintf("found equal sign in env var key %q (key=value)", p.key),
				}
			}
		}
		for _, b := range p.value {
			if b == 0 {
				return &EnvFormatError{
					Detail: fmt.Sprintf("found nul byte in env var value %q (key=value)", p.value),
				}
			}
		}
	}
	return nil
}

// validateMapDirAlias rejects aliases containing a nul byte.
func validateMapDirAlias(alias string) error {
	if strings.IndexByte(alias, 0) >= 0 {
		return &MapDirAliasError{Alias: alias}
	}
	return nil
}
