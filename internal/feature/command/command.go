// Package command turns inbound chat text into roster operations: it audits,
// tokenizes and routes each message to a handler, and reports every outcome
// through chat replies.
package command

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Command identifies a handler.
type Command int

const (
	Unknown Command = iota
	Info
	MemberCode
	Register
	GenerateCodes
	SendCode
	AddAdmin
	AddLeader
	RemoveAdmin
	RemoveLeader
	Activate
	Deactivate
	Log
	PurgeLog
	Refresh
	Enabled
	Status
	Help
)

// names holds the canonical keyword of each command.
var names = map[Command]string{
	Info:          "info",
	MemberCode:    "codicesocio",
	Register:      "registrami",
	GenerateCodes: "generacodice",
	SendCode:      "inviacodice",
	AddAdmin:      "aggiungiadmin",
	AddLeader:     "aggiungicapo",
	RemoveAdmin:   "rimuoviadmin",
	RemoveLeader:  "rimuovicapo",
	Activate:      "attiva",
	Deactivate:    "disattiva",
	Log:           "log",
	PurgeLog:      "puliscilog",
	Refresh:       "aggiorna",
	Enabled:       "abilitati",
	Status:        "stato",
	Help:          "help",
}

// aliases maps extra keywords onto commands.
var aliases = map[string]Command{
	"informazioni": Info,
	"autorizzami":  Register,
	"start":        Help,
}

var keywords = buildKeywords()

func buildKeywords() map[string]Command {
	out := make(map[string]Command, len(names)+len(aliases))
	for cmd, name := range names {
		out[name] = cmd
	}
	for alias, cmd := range aliases {
		out[alias] = cmd
	}
	return out
}

// String returns the canonical keyword, or "unknown".
func (c Command) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return "unknown"
}

// Lookup resolves a keyword or alias.
func Lookup(keyword string) (Command, bool) {
	cmd, ok := keywords[keyword]
	return cmd, ok
}

// Tokenize lower-cases and trims text, strips one leading "/" and splits the
// rest with shell quoting rules. A "@botname" suffix on the first token is
// dropped when it names botUsername, or any bot when botUsername is empty.
func Tokenize(text, botUsername string) ([]string, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimPrefix(normalized, "/")

	tokens, err := shlex.Split(normalized)
	if err != nil {
		return nil, fmt.Errorf("tokenize command: %w", err)
	}
	if len(tokens) == 0 {
		return tokens, nil
	}

	if at := strings.Index(tokens[0], "@"); at >= 0 {
		suffix := tokens[0][at+1:]
		if botUsername == "" || strings.EqualFold(suffix, botUsername) {
			tokens[0] = tokens[0][:at]
		}
	}
	return tokens, nil
}
