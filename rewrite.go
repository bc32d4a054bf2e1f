package symbiotic

import (
	"fmt"
	"log"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

var i8Ptr = types.NewPointer(types.I8)

// replaceCall rewrites one nondet stub call site. The call producing a
// value of type T becomes
//
//	%slot = alloca T
//	%addr = bitcast T* %slot to i8*
//	call void @<registrar>(i8* %addr, size_t sizeof(T), i8* <name>, i32 <id>)
//	%v = load T, T* %slot
//
// with every use of the original result redirected to the load and the
// original call removed. The load must follow the registration so that it
// observes the content assigned by the engine.
func (p *pass) replaceCall(s site) {
	variable := ""
	if text, ok := p.lines[s.line]; ok {
		variable = p.assignedVariable(text)
	}
	name := fmt.Sprintf("%s:%s:%d", s.fn.Name(), variable, s.line)

	slot := ir.NewAlloca(s.call.Type())
	addr := ir.NewBitCast(slot, i8Ptr)

	p.callIdent++
	reg := ir.NewCall(p.registrarDecl(),
		addr,
		constant.NewInt(p.sizeType(), p.lay.AllocSize(s.call.Type())),
		p.nameConstant(name),
		constant.NewInt(types.I32, int64(p.callIdent)),
	)
	// Carry the compiler-visible facts of the replaced call (zeroext and
	// friends, debug location) over to the registration call.
	reg.Metadata = append(reg.Metadata, s.call.Metadata...)
	reg.CallingConv = s.call.CallingConv
	reg.ReturnAttrs = append(reg.ReturnAttrs, s.call.ReturnAttrs...)
	reg.FuncAttrs = append(reg.FuncAttrs, s.call.FuncAttrs...)

	load := ir.NewLoad(s.call.Type(), slot)
	load.SetName(name)

	i := instIndex(s.block, s.call)
	s.block.Insts = append(s.block.Insts[:i],
		append([]ir.Instruction{slot, addr, reg, load}, s.block.Insts[i+1:]...)...)

	replaceUses(s.fn, s.call, load)

	p.res.Replaced = append(p.res.Replaced, Rewrite{
		Function:   s.fn.Name(),
		Name:       name,
		Line:       s.line,
		Identifier: p.callIdent,
	})
}

// augmentAlloc instruments one allocation call site. The allocation call
// stays in place and keeps all its uses; after it the pass inserts
//
//	[ %n = mul a0, a1 ]           (two-argument, element-count form only)
//	%addr = bitcast T* %p to i8*
//	call void @<registrar>(i8* %addr, size_t <bytes>, i8* <name>, i32 <id>)
//
// where <bytes> is a0 or the inserted product.
func (p *pass) augmentAlloc(s site) {
	name := fmt.Sprintf("%s:dynalloc:%d", s.fn.Name(), s.line)

	cast := ir.NewBitCast(s.call, i8Ptr)

	var inserted []ir.Instruction
	nbytes := value.Value(s.call.Args[0])
	callee := s.call.Callee.(*ir.Func)
	if strings.HasPrefix(callee.Name(), p.cfg.CallocPrefix) && len(s.call.Args) == 2 {
		mul := ir.NewMul(s.call.Args[0], s.call.Args[1])
		inserted = append(inserted, mul)
		nbytes = mul
	}

	p.allocIdent++
	reg := ir.NewCall(p.registrarDecl(),
		cast,
		nbytes,
		p.nameConstant(name),
		constant.NewInt(types.I32, int64(p.allocIdent)),
	)
	inserted = append(inserted, cast, reg)

	i := instIndex(s.block, s.call)
	s.block.Insts = append(s.block.Insts[:i+1],
		append(inserted, s.block.Insts[i+1:]...)...)

	p.res.Augmented = append(p.res.Augmented, Rewrite{
		Function:   s.fn.Name(),
		Name:       name,
		Line:       s.line,
		Identifier: p.allocIdent,
	})
}

// registrarDecl returns the module's declaration of the registration
// function, adding it on first use. At most one declaration is ever
// introduced per pass.
func (p *pass) registrarDecl() *ir.Func {
	if p.registrar != nil {
		return p.registrar
	}

	for _, f := range p.m.Funcs {
		if f.Name() == p.cfg.RegistrationFunc {
			p.registrar = f
			return f
		}
	}

	p.registrar = p.m.NewFunc(p.cfg.RegistrationFunc, types.Void,
		ir.NewParam("addr", i8Ptr),
		ir.NewParam("nbytes", p.sizeType()),
		ir.NewParam("name", i8Ptr),
		ir.NewParam("identifier", types.I32))
	return p.registrar
}

// nameConstant interns the derived name as a private read-only character
// array and returns a byte pointer to its first element.
func (p *pass) nameConstant(name string) constant.Constant {
	p.nameCount++
	g := p.m.NewGlobalDef(fmt.Sprintf(".symbiotic.name.%d", p.nameCount),
		constant.NewCharArrayFromString(name+"\x00"))
	g.Immutable = true
	g.Linkage = enum.LinkagePrivate
	g.UnnamedAddr = enum.UnnamedAddrUnnamedAddr

	zero := constant.NewInt(types.I64, 0)
	return constant.NewGetElementPtr(g.ContentType, g, zero, zero)
}

func instIndex(block *ir.Block, inst ir.Instruction) int {
	for i, cur := range block.Insts {
		if cur == inst {
			return i
		}
	}
	log.Panicf("Instruction %v is not in its recorded block", inst)
	return -1
}

// replaceUses redirects every operand of fn that reads old to new. The
// result of a call is function-local, so walking the enclosing function is
// enough. llir modules keep no use lists; operands are rewritten by an
// explicit switch over the instruction kinds a C module contains.
func replaceUses(fn *ir.Func, old, new value.Value) {
	sub := func(v *value.Value) {
		if *v == old {
			*v = new
		}
	}
	subs := func(vs []value.Value) {
		for i := range vs {
			if vs[i] == old {
				vs[i] = new
			}
		}
	}

	for _, block := range fn.Blocks {
		for _, inst := range block.Insts {
			switch inst := inst.(type) {
			case *ir.InstAdd:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFAdd:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstSub:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFSub:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstMul:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFMul:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstUDiv:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstSDiv:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFDiv:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstURem:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstSRem:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFRem:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstShl:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstLShr:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstAShr:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstAnd:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstOr:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstXor:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFNeg:
				sub(&inst.X)
			case *ir.InstICmp:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFCmp:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstTrunc:
				sub(&inst.From)
			case *ir.InstZExt:
				sub(&inst.From)
			case *ir.InstSExt:
				sub(&inst.From)
			case *ir.InstFPTrunc:
				sub(&inst.From)
			case *ir.InstFPExt:
				sub(&inst.From)
			case *ir.InstFPToUI:
				sub(&inst.From)
			case *ir.InstFPToSI:
				sub(&inst.From)
			case *ir.InstUIToFP:
				sub(&inst.From)
			case *ir.InstSIToFP:
				sub(&inst.From)
			case *ir.InstPtrToInt:
				sub(&inst.From)
			case *ir.InstIntToPtr:
				sub(&inst.From)
			case *ir.InstBitCast:
				sub(&inst.From)
			case *ir.InstAddrSpaceCast:
				sub(&inst.From)
			case *ir.InstAlloca:
				if inst.NElems != nil {
					sub(&inst.NElems)
				}
			case *ir.InstLoad:
				sub(&inst.Src)
			case *ir.InstStore:
				sub(&inst.Src)
				sub(&inst.Dst)
			case *ir.InstGetElementPtr:
				sub(&inst.Src)
				subs(inst.Indices)
			case *ir.InstPhi:
				for _, inc := range inst.Incs {
					sub(&inc.X)
				}
			case *ir.InstSelect:
				sub(&inst.Cond)
				sub(&inst.ValueTrue)
				sub(&inst.ValueFalse)
			case *ir.InstCall:
				sub(&inst.Callee)
				subs(inst.Args)
			case *ir.InstExtractValue:
				sub(&inst.X)
			case *ir.InstInsertValue:
				sub(&inst.X)
				sub(&inst.Elem)
			case *ir.InstExtractElement:
				sub(&inst.X)
				sub(&inst.Index)
			case *ir.InstInsertElement:
				sub(&inst.X)
				sub(&inst.Elem)
				sub(&inst.Index)
			case *ir.InstShuffleVector:
				sub(&inst.X)
				sub(&inst.Y)
			case *ir.InstFreeze:
				sub(&inst.X)
			default:
				log.Panicf("Unhandled instruction kind: %T %v", inst, inst)
			}
		}

		switch term := block.Term.(type) {
		case *ir.TermRet:
			if term.X != nil {
				sub(&term.X)
			}
		case *ir.TermBr, *ir.TermUnreachable, nil:
		case *ir.TermCondBr:
			sub(&term.Cond)
		case *ir.TermSwitch:
			sub(&term.X)
		default:
			log.Panicf("Unhandled terminator kind: %T %v", term, term)
		}
	}
}
