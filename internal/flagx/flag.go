// Package flagx contains helpers for reading a handful of command-line flags
// without clashing with flags registered elsewhere.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// FilterArgs returns only the allowed flags (and their values) from args.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      -config=conf.json
//
// A value is only consumed if it does not itself start with '-'.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// StringValue returns the value of the flag called name (or its alias) found
// in args. When the flag is repeated the last occurrence wins. An absent flag
// yields "".
func StringValue(args []string, name, alias string) string {
	var value string

	allowed := []string{"-" + name, "--" + name}
	if alias != "" {
		allowed = append(allowed, "-"+alias, "--"+alias)
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&value, name, "", "")
	if alias != "" {
		fs.StringVar(&value, alias, "", "")
	}
	_ = fs.Parse(FilterArgs(args, allowed))

	return value
}

// JsonConfigFlags extracts the config file path given via -c or -config.
func JsonConfigFlags(args []string) string {
	return StringValue(args, "config", "c")
}

// ProfileFlag extracts the configuration profile given via -profile.
func ProfileFlag(args []string) string {
	return StringValue(args, "profile", "")
}
