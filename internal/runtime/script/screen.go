package script

import (
	"fmt"
	"regexp"
)

// maxSourceSize bounds the extension source accepted for evaluation.
const maxSourceSize = 1 << 20

// deniedPattern names one construct the screener rejects. Scripts run in
// an embedded interpreter with no module loader, so most of these could
// never resolve anyway; screening turns them into a load-time error that
// names the offending construct instead of a confusing runtime one.
type deniedPattern struct {
	name string
	re   *regexp.Regexp
}

var deniedPatterns = []deniedPattern{
	{"eval", regexp.MustCompile(`\beval\s*\(`)},
	{"Function constructor", regexp.MustCompile(`\bnew\s+Function\b|\bFunction\s*\(`)},
	{"process access", regexp.MustCompile(`\bprocess\s*\.`)},
	{"filesystem require", regexp.MustCompile(`\brequire\s*\(\s*['"](?:fs|path|os)['"]`)},
	{"subprocess require", regexp.MustCompile(`\brequire\s*\(\s*['"]child_process['"]`)},
	{"raw network require", regexp.MustCompile(`\brequire\s*\(\s*['"](?:net|http|https|dgram|tls)['"]`)},
	{"dynamic import", regexp.MustCompile(`\bimport\s*\(`)},
	{"timers", regexp.MustCompile(`\bset(?:Timeout|Interval)\s*\(`)},
}

// screen validates extension source before it is handed to the
// interpreter. Returns an error naming the first rejected construct.
func screen(src []byte) error {
	if len(src) > maxSourceSize {
		return fmt.Errorf("source is %d bytes, limit is %d", len(src), maxSourceSize)
	}
	for _, p := range deniedPatterns {
		if loc := p.re.FindIndex(src); loc != nil {
			return fmt.Errorf("source uses denied construct %q at byte %d", p.name, loc[0])
		}
	}
	return nil
}
