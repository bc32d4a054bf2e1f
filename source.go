package symbiotic

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ayazip/symbiotic/internal/maps"
)

// unknownVariable is the placeholder used when a source line does not match
// the assignment pattern.
const unknownVariable = "--"

// mapLines reads the configured source file once, retaining only the lines
// referenced by collected call sites. Call sites are sparse relative to file
// length, so the retained lines are keyed by line number instead of keeping
// the whole file. The file is only opened if some call site referenced a
// line; every referenced line must exist in it.
func (p *pass) mapLines() error {
	if len(p.lineNums) == 0 {
		return nil
	}

	f, err := os.Open(p.cfg.SourcePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	// Minimized verification tasks occasionally have very long lines.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if _, ok := p.lineNums[n]; ok {
			p.lines[n] = sc.Text()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrSourceUnavailable, p.cfg.SourcePath, err)
	}

	if len(p.lines) != len(p.lineNums) {
		missing := 0
		for _, n := range maps.Keys(p.lineNums) {
			if _, ok := p.lines[n]; !ok && n > missing {
				missing = n
			}
		}
		return fmt.Errorf("%w: %s has no line %d", ErrSourceUnavailable, p.cfg.SourcePath, missing)
	}
	return nil
}

// assignedVariable recovers the name of the variable assigned from a nondet
// stub call on the given source line. The line is split on whitespace; the
// token before the first "=" is the candidate, accepted only if the token
// after the "=" starts with the stub prefix. This is a heuristic, not a
// parser: "c = (int) __VERIFIER_nondet_char();" is not recognized because
// the cast hides the call, and "x=__VERIFIER_nondet_int();" is not
// recognized because "=" is not a separate token.
func (p *pass) assignedVariable(text string) string {
	fields := strings.Fields(text)
	for i, tok := range fields {
		if tok != "=" {
			continue
		}
		if i > 0 && i+1 < len(fields) &&
			strings.HasPrefix(fields[i+1], p.cfg.NondetPrefix) {
			return fields[i-1]
		}
		break
	}
	return unknownVariable
}
