// Package translate formats user-visible strings.
package translate

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// The token has no locale source, so every string renders as en-US.
var printer = message.NewPrinter(language.AmericanEnglish)

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return printer.Sprintf(key, args...)
}
