package commands

import (
	"errors"
	"strings"
	"unicode"
)

var (
	// ErrUsage means a command was missing its arguments.
	ErrUsage = errors.New("usage")
	// ErrUnmatchedQuote means a quoted trigger had no closing quote.
	ErrUnmatchedQuote = errors.New("unmatched quote in trigger")
	// ErrEmptyTrigger means the trigger was given as "".
	ErrEmptyTrigger = errors.New("empty trigger")
)

// ParseFilterArgs splits /filter arguments into trigger and reply text.
//
// A trigger starting with a double quote runs to the next double quote (no escapes) and the
// reply is whatever follows, minus leading whitespace. Otherwise the trigger is the first
// whitespace-delimited token and the reply is the rest, minus leading whitespace.
func ParseFilterArgs(args string) (trigger, reply string, err error) {
	args = strings.TrimLeftFunc(args, unicode.IsSpace)
	if args == "" {
		return "", "", ErrUsage
	}

	if strings.HasPrefix(args, `"`) {
		end := strings.Index(args[1:], `"`)
		if end < 0 {
			return "", "", ErrUnmatchedQuote
		}
		trigger = args[1 : end+1]
		reply = strings.TrimLeftFunc(args[end+2:], unicode.IsSpace)
	} else {
		cut := strings.IndexFunc(args, unicode.IsSpace)
		if cut < 0 {
			trigger = args
		} else {
			trigger = args[:cut]
			reply = strings.TrimLeftFunc(args[cut:], unicode.IsSpace)
		}
	}

	if trigger == "" {
		return "", "", ErrEmptyTrigger
	}
	return trigger, reply, nil
}

// ParseStopArgs extracts the trigger from /stop arguments. A leading quoted section is taken
// verbatim; otherwise surrounding quotes are stripped.
func ParseStopArgs(args string) (string, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", ErrUsage
	}
	if strings.HasPrefix(args, `"`) {
		if end := strings.Index(args[1:], `"`); end >= 0 {
			if trigger := args[1 : end+1]; trigger != "" {
				return trigger, nil
			}
			return "", ErrEmptyTrigger
		}
	}
	trigger := strings.Trim(args, `"`)
	if trigger == "" {
		return "", ErrEmptyTrigger
	}
	return trigger, nil
}
