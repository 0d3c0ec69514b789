// Package i18n holds the console messages printed to users and renders them
// in the configured locale.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	KeyNoBugReports       = "no-bug-reports"
	KeyBugReportWrittenTo = "bug-report-written-to"
	KeyFailedRunsTrashed  = "failed-runs-trashed"
	KeyReportLeftover     = "report-leftover"
)

// Localizer renders the message key with args.
type Localizer func(key string, args ...any) string

// Supported lists the locales with a catalog; the first one is the fallback.
var Supported = []language.Tag{language.English, language.German}

var messages = map[language.Tag]map[string]string{
	language.English: {
		KeyNoBugReports:       "There are no bug reports.",
		KeyBugReportWrittenTo: "Bug report written to %s",
		KeyFailedRunsTrashed:  "Failed runs moved to the trash.",
		KeyReportLeftover:     "%d archived entries could not be removed.",
	},
	language.German: {
		KeyNoBugReports:       "Es gibt keine Fehlerberichte.",
		KeyBugReportWrittenTo: "Fehlerbericht geschrieben nach %s",
		KeyFailedRunsTrashed:  "Fehlgeschlagene Läufe in den Papierkorb verschoben.",
		KeyReportLeftover:     "%d archivierte Einträge konnten nicht entfernt werden.",
	},
}

var (
	builder = newCatalog()
	matcher = language.NewMatcher(Supported)
)

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(Supported[0]))
	for tag, msgs := range messages {
		for key, text := range msgs {
			// Keys and texts are static; SetString only fails on malformed input.
			_ = b.SetString(tag, key, text)
		}
	}
	return b
}

// Match returns the supported tag closest to locale. An empty locale is
// read from the environment.
func Match(locale string) language.Tag {
	if locale == "" {
		locale = EnvLocale()
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return Supported[0]
	}
	_, idx, _ := matcher.Match(tag)
	return Supported[idx]
}

// New returns a localizer for locale.
func New(locale string) Localizer {
	p := message.NewPrinter(Match(locale), message.Catalog(builder))
	return func(key string, args ...any) string {
		return p.Sprintf(key, args...)
	}
}

// EnvLocale reads the POSIX locale variables, e.g. "de_DE.UTF-8" -> "de-DE".
func EnvLocale() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(name)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}
