package privacy

import (
	"fmt"
	"regexp"
)

// Library is an immutable set of matchers for one locale: structural
// patterns, a first-name lookup set, and contextual full-name templates.
type Library struct {
	Locale       string
	Structural   []Rule
	FirstNames   map[string]struct{}
	NameContexts []Rule
	wordPattern  *regexp.Regexp
}

// Structural patterns shared by all locales. Order matters: earlier rules
// win overlap resolution against later ones.
var structuralRules = []Rule{
	{Kind: KindEmail, Pattern: regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{Kind: KindPhoneAT, Pattern: regexp.MustCompile(`(?i)\b(?:\+43|0043|0)\s*\d{1,4}[\s/\-]?\d{3,4}[\s/\-]?\d{3,4}\b`)},
	{Kind: KindPhoneDE, Pattern: regexp.MustCompile(`(?i)\b(?:\+49|0049)\s*\d{2,4}[\s/\-]?\d{3,4}[\s/\-]?\d{3,4}\b`)},
	{Kind: KindIBAN, Pattern: regexp.MustCompile(`(?i)\b[A-Z]{2}\d{2}(?:\s?\d{4}){3,7}\s?\d{1,4}\b`)},
	{Kind: KindIPAddress, Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{Kind: KindCreditCard, Pattern: regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
	{Kind: KindNationalID, Pattern: regexp.MustCompile(`\b\d{4}\s?\d{6}\b`)},
	// Postal code only counts as PII when followed by a capitalized place
	// name. The span is anchored to the digits via the capture group.
	{Kind: KindPostalCode, Pattern: regexp.MustCompile(`\b([1-9]\d{3})\s+[A-ZÄÖÜ][a-zäöüß]`), Group: 1},
}

// Common Austrian/German first names, lowercase.
var firstNamesDE = []string{
	"max", "moritz", "hans", "peter", "paul", "franz", "karl", "thomas", "michael", "stefan",
	"christian", "markus", "andreas", "david", "martin", "florian", "sebastian", "alexander",
	"lukas", "simon", "anna", "maria", "lisa", "julia", "sarah", "laura", "katharina", "eva",
	"sophie", "lena", "emma", "hannah", "nina", "claudia", "andrea", "petra", "monika", "susanne",
	"marie", "guntram", "willi", "günter", "helmut", "gerhard", "walter", "werner",
	"ewald", "alfred", "heinz", "dieter", "reinhard", "jürgen", "manfred", "rainer",
}

var firstNamesEN = []string{
	"james", "john", "robert", "michael", "william", "david", "richard", "joseph", "thomas", "charles",
	"daniel", "matthew", "anthony", "mark", "donald", "steven", "paul", "andrew", "joshua", "kevin",
	"mary", "patricia", "jennifer", "linda", "elizabeth", "barbara", "susan", "jessica", "sarah", "karen",
	"lisa", "nancy", "betty", "margaret", "sandra", "ashley", "emily", "emma", "olivia", "sophia",
}

// Contextual full-name templates. The name span is anchored to capture
// group 1, not the whole matched phrase.
var nameContextsDE = []Rule{
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?:Herr|Frau|Dr\.|Mag\.|DI|Ing\.)\s+([A-ZÄÖÜ][a-zäöüß]+(?:\s+[A-ZÄÖÜ][a-zäöüß]+)*)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?i:ich)\s+(?i:bin|heiße|heiß)\s+([A-ZÄÖÜ][a-zäöüß]+\s+[A-ZÄÖÜ][a-zäöüß]+)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?i:meine?\s+Name\s+ist)\s+([A-ZÄÖÜ][a-zäöüß]+\s+[A-ZÄÖÜ][a-zäöüß]+)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\bLG[,\s]+([A-ZÄÖÜ][a-zäöüß]+(?:\s+[A-ZÄÖÜ][a-zäöüß]+)?)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b([A-ZÄÖÜ][a-zäöüß]+\s+[A-ZÄÖÜ][a-zäöüß]+)\s+hier\b`), Group: 1},
}

var nameContextsEN = []Rule{
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?:Mr\.?|Mrs\.?|Ms\.?|Dr\.?)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?i:my\s+name\s+is)\s+([A-Z][a-z]+\s+[A-Z][a-z]+)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?i:this\s+is)\s+([A-Z][a-z]+\s+[A-Z][a-z]+)\b`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b(?:Regards|Best|Cheers|Sincerely)[,\s]+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`), Group: 1},
	{Kind: KindFullName, Pattern: regexp.MustCompile(`\b([A-Z][a-z]+\s+[A-Z][a-z]+)\s+here\b`), Group: 1},
}

// LibraryForLocale builds the immutable pattern library for a locale.
func LibraryForLocale(locale string) (*Library, error) {
	lib := &Library{
		Locale:     locale,
		Structural: structuralRules,
		FirstNames: make(map[string]struct{}),
	}

	switch locale {
	case "de-AT":
		for _, n := range firstNamesDE {
			lib.FirstNames[n] = struct{}{}
		}
		lib.NameContexts = nameContextsDE
		lib.wordPattern = regexp.MustCompile(`\b([A-ZÄÖÜ][a-zäöüß]{2,})\b`)
	case "en":
		for _, n := range firstNamesEN {
			lib.FirstNames[n] = struct{}{}
		}
		lib.NameContexts = nameContextsEN
		lib.wordPattern = regexp.MustCompile(`\b([A-Z][a-z]{2,})\b`)
	default:
		return nil, fmt.Errorf("unsupported locale: %s", locale)
	}

	return lib, nil
}
