// Package validation contains the nickname rules and the chat text
// sanitizer enforced by the relay before messages reach a room.
package validation

import (
	"errors"
	"regexp"
	"strings"
)

// Allowed nick characters: ASCII letters, a handful of Latin-diacritic
// letters, Cyrillic, Greek, digits, space, underscore and '!'.
var nickChars = regexp.MustCompile(`^[ _!0-9a-zA-ZåäöüëéèñÅÄÖÜËÉÈÑ\x{0400}-\x{04ff}\x{0391}-\x{03a1}\x{03a4}-\x{03d6}]+$`)

// resourceIDShape matches session tokens; nicks must never look like one.
var resourceIDShape = regexp.MustCompile(`^[0-9]{32}$`)

// reservedNicks are Javascript keywords kept for compatibility with older
// clients that eval message metadata, plus the relay's own sender name.
var reservedNicks = map[string]struct{}{
	"break": {}, "case": {}, "catch": {}, "continue": {}, "debugger": {},
	"default": {}, "delete": {}, "do": {}, "else": {}, "finally": {},
	"for": {}, "function": {}, "if": {}, "in": {}, "instanceof": {},
	"new": {}, "return": {}, "switch": {}, "this": {}, "throw": {},
	"try": {}, "typeof": {}, "var": {}, "void": {}, "while": {},
	"with": {}, "class": {}, "enum": {}, "export": {}, "extends": {},
	"import": {}, "super": {}, "implements": {}, "interface": {},
	"let": {}, "package": {}, "private": {}, "protected": {},
	"public": {}, "static": {}, "yield": {}, "constructor": {},
	"prototype": {}, "Server": {},
}

var (
	ErrNickEmpty      = errors.New("nick is empty")
	ErrNickBadChars   = errors.New("nick contains disallowed characters")
	ErrNickResourceID = errors.New("nick matches the resource id shape")
	ErrNickReserved   = errors.New("nick is a reserved word")
	ErrNickTaken      = errors.New("nick is already in use")
)

// ValidateNick applies the shape rules that do not depend on room state.
func ValidateNick(candidate string) error {
	if strings.TrimSpace(candidate) == "" {
		return ErrNickEmpty
	}
	if !nickChars.MatchString(candidate) {
		return ErrNickBadChars
	}
	if resourceIDShape.MatchString(candidate) {
		return ErrNickResourceID
	}
	if _, reserved := reservedNicks[candidate]; reserved {
		return ErrNickReserved
	}
	return nil
}

// IsResourceID reports whether s has the 32-digit session token shape.
func IsResourceID(s string) bool {
	return resourceIDShape.MatchString(s)
}
