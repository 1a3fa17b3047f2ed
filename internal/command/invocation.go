package command

import (
	"strings"

	"github.com/rotisserie/eris"
)

const redacted = "****"

// Invocation describes one external process: what to run, never how.
type Invocation struct {
	Program     string   `json:"program"`
	Args        []string `json:"args"`
	Description string   `json:"description"`
	// Secrets are argument values that must not reach logs.
	Secrets []string `json:"-"`
}

// Validate rejects descriptors that cannot be executed safely.
func (i Invocation) Validate() error {
	if strings.TrimSpace(i.Program) == "" {
		return eris.New("command: program is required")
	}
	for n, a := range i.Args {
		if strings.ContainsAny(a, "\x00\n\r") {
			return eris.Errorf("command: argument %d contains a control character", n)
		}
	}
	return nil
}

// Redacted returns program and args with secret values masked.
func (i Invocation) Redacted() []string {
	out := make([]string, 0, len(i.Args)+1)
	out = append(out, i.Program)
	for _, a := range i.Args {
		if i.isSecret(a) {
			out = append(out, redacted)
			continue
		}
		out = append(out, a)
	}
	return out
}

// String is the redacted command line, for logs only.
func (i Invocation) String() string {
	parts := i.Redacted()
	for n, p := range parts {
		if strings.ContainsAny(p, " \t\"'") {
			parts[n] = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
	}
	return strings.Join(parts, " ")
}

func (i Invocation) isSecret(a string) bool {
	for _, s := range i.Secrets {
		if s != "" && a == s {
			return true
		}
	}
	return false
}
