package symbiotic

import (
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/metadata"
)

// site is one direct call of a matched declaration, located in the body of
// some defined function.
type site struct {
	fn    *ir.Func
	block *ir.Block
	call  *ir.InstCall
	line  int // 1-based source line, 0 when the call has no debug location
}

// collect walks the whole module once and fills the worklists. Declarations
// (bodyless functions) whose name starts with a recognized prefix anchor the
// scan; the module itself is not touched here.
func (p *pass) collect() {
	for _, f := range p.m.Funcs {
		if len(f.Blocks) > 0 {
			continue
		}

		name := f.Name()
		isAlloc := strings.HasPrefix(name, p.cfg.MallocPrefix) ||
			strings.HasPrefix(name, p.cfg.CallocPrefix)
		if !isAlloc && !strings.HasPrefix(name, p.cfg.NondetPrefix) {
			continue
		}

		p.collectCallsTo(f, isAlloc)
	}
}

// collectCallsTo records every direct call of decl. llir modules carry no
// use lists, so this walks every block of every defined function. A call
// that reaches decl through a function pointer does not name decl as its
// callee and is left alone.
func (p *pass) collectCallsTo(decl *ir.Func, isAlloc bool) {
	for _, f := range p.m.Funcs {
		for _, block := range f.Blocks {
			for i, inst := range block.Insts {
				call, ok := inst.(*ir.InstCall)
				if !ok || call.Callee != decl {
					continue
				}
				if isAlloc && p.alreadyAugmented(block, i, call) {
					continue
				}

				s := site{fn: f, block: block, call: call, line: debugLine(call)}
				if s.line != 0 {
					p.lineNums[s.line] = struct{}{}
				}

				if isAlloc {
					p.augment.Push(s)
				} else {
					p.replace.Push(s)
				}
			}
		}
	}
}

// alreadyAugmented reports whether the allocation call at block.Insts[idx]
// is already followed by a registration of its result, i.e. a call of the
// registrar whose address argument is a byte-pointer cast of this call.
// Without this guard a second run of the pass would register the same
// allocation twice.
func (p *pass) alreadyAugmented(block *ir.Block, idx int, call *ir.InstCall) bool {
	for _, inst := range block.Insts[idx+1:] {
		reg, ok := inst.(*ir.InstCall)
		if !ok {
			continue
		}
		callee, ok := reg.Callee.(*ir.Func)
		if !ok || callee.Name() != p.cfg.RegistrationFunc || len(reg.Args) != 4 {
			continue
		}
		if cast, ok := reg.Args[0].(*ir.InstBitCast); ok && cast.From == call {
			return true
		}
	}
	return false
}

// debugLine extracts the 1-based line of an instruction's !dbg location,
// or 0 when it carries none.
func debugLine(call *ir.InstCall) int {
	for _, att := range call.Metadata {
		if att.Name != "dbg" {
			continue
		}
		if loc, ok := att.Node.(*metadata.DILocation); ok {
			return int(loc.Line)
		}
	}
	return 0
}
