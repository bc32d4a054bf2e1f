// Package symbiotic prepares an LLVM module for symbolic-execution-based
// verification. Calls to nondeterministic-value stubs are replaced by stack
// slots registered with the verification engine as named symbolic objects,
// and heap allocations are additionally registered so that the memory they
// return is treated as unconstrained input. Registered objects are named
// after the assignment found on the originating source line, which makes
// counterexamples from the engine readable.
package symbiotic

import (
	"errors"
	"log"

	"github.com/ayazip/symbiotic/internal/queue"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

func init() {
	log.SetFlags(log.Ltime | log.Lshortfile)
}

// ErrSourceUnavailable reports that the configured source file could not
// supply every line referenced by an instrumented call site. The
// transformation is aborted before any rewrite in that case; degrading to
// made-up names would make verification results misleading.
var ErrSourceUnavailable = errors.New("symbiotic: source file unavailable")

// Defaults for the recognized callee name patterns and the engine-side
// registration function.
const (
	DefaultNondetPrefix     = "__VERIFIER_nondet_"
	DefaultMallocPrefix     = "malloc"
	DefaultCallocPrefix     = "calloc"
	DefaultRegistrationFunc = "klee_make_nondet"
)

type Config struct {
	// Module is the program unit to instrument.
	Module *ir.Module

	// SourcePath is the path of the source file the module was compiled
	// from. It is read once, and only if a matched call site carries a
	// debug location. A missing or truncated file aborts the whole
	// transformation with ErrSourceUnavailable.
	SourcePath string

	// Callee name patterns. Matching is by prefix, not equality: a callee
	// whose name merely starts with one of these is treated as a match,
	// so e.g. "mallocate" matches the malloc family. Empty fields take
	// the Default* values above.
	//
	// NondetPrefix names the nondeterministic-value stubs, MallocPrefix
	// the single-argument (byte count) allocators and CallocPrefix the
	// two-argument (element count, element size) allocators.
	NondetPrefix string
	MallocPrefix string
	CallocPrefix string

	// RegistrationFunc is the name of the engine-side registrar with
	// signature (i8* addr, size_t nbytes, i8* name, i32 identifier).
	// At most one declaration of it is added to the module.
	RegistrationFunc string
}

func (cfg *Config) setDefaults() {
	if cfg.NondetPrefix == "" {
		cfg.NondetPrefix = DefaultNondetPrefix
	}
	if cfg.MallocPrefix == "" {
		cfg.MallocPrefix = DefaultMallocPrefix
	}
	if cfg.CallocPrefix == "" {
		cfg.CallocPrefix = DefaultCallocPrefix
	}
	if cfg.RegistrationFunc == "" {
		cfg.RegistrationFunc = DefaultRegistrationFunc
	}
}

// pass holds the bookkeeping of one Instrument invocation. All of it,
// including the memoized size type and registrar declaration, is discarded
// when the invocation returns; a fresh module gets a fresh pass.
type pass struct {
	m   *ir.Module
	cfg Config
	lay layout

	// Worklists populated by the read-only collection phase and drained
	// by the rewrite phase. Editing call sites while still iterating the
	// module would invalidate the iteration, so the two never overlap.
	replace queue.Queue[site]
	augment queue.Queue[site]

	// Source lines referenced by collected call sites, and their text.
	lineNums map[int]struct{}
	lines    map[int]string

	registrar *ir.Func
	sizeT     *types.IntType

	callIdent  int
	allocIdent int
	nameCount  int

	res Result
}

// Instrument rewrites cfg.Module so that every direct call of a matched
// nondeterministic-value stub declaration is replaced by a registered stack
// slot, and every direct call of a matched allocation declaration is
// followed by a registration of the returned memory. It reports what was
// rewritten, or an error wrapping ErrSourceUnavailable if cfg.SourcePath
// was needed but could not be read in full. On error the module is left
// untouched.
func Instrument(cfg Config) (Result, error) {
	cfg.setDefaults()

	p := &pass{
		m:        cfg.Module,
		cfg:      cfg,
		lay:      layoutOf(cfg.Module),
		lineNums: make(map[int]struct{}),
		lines:    make(map[int]string),
	}

	p.collect()
	if err := p.mapLines(); err != nil {
		return Result{}, err
	}

	for !p.replace.Empty() {
		p.replaceCall(p.replace.Pop())
	}
	for !p.augment.Empty() {
		p.augmentAlloc(p.augment.Pop())
	}

	return p.res, nil
}

// sizeType returns the integer type used for the registrar's byte-count
// argument: i64 on targets with pointers wider than 32 bits, i32 otherwise.
// Computed once per pass.
func (p *pass) sizeType() *types.IntType {
	if p.sizeT == nil {
		if p.lay.ptrBits > 32 {
			p.sizeT = types.I64
		} else {
			p.sizeT = types.I32
		}
	}
	return p.sizeT
}
