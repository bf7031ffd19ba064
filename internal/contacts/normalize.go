package contacts

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var emailFolder = cases.Fold()

// foldEmail produces the canonical match form of an email address. Case
// folding rather than plain lowercasing keeps non-ASCII mailbox names stable
// across connectors.
func foldEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// normalizeName collapses whitespace and applies NFC so that visually equal
// names from different connectors compare equal byte-for-byte.
func normalizeName(name string) string {
	return norm.NFC.String(strings.Join(strings.Fields(name), " "))
}
