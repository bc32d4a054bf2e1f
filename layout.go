package symbiotic

import (
	"log"
	"strconv"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/types"
)

// layout answers the two questions the pass has about the target: how wide
// a pointer is, and how many bytes a value of a given type occupies on the
// stack. It follows the ABI rules of the common 64- and 32-bit C targets
// (the layouts clang emits); it is not a full data-layout interpreter.
type layout struct {
	ptrBits int
}

func layoutOf(m *ir.Module) layout {
	return layout{ptrBits: pointerBits(m)}
}

// pointerBits returns the pointer width declared by the module's
// data-layout string. Only the address-space-0 pointer specification
// ("p:(size):..." or "p0:...") decides; LLVM defaults to 64-bit pointers
// when the layout does not say otherwise.
func pointerBits(m *ir.Module) int {
	for _, spec := range strings.Split(m.DataLayout, "-") {
		if !strings.HasPrefix(spec, "p") {
			continue
		}
		fields := strings.Split(spec, ":")
		if len(fields) < 2 {
			continue
		}
		if as := fields[0][1:]; as != "" && as != "0" {
			continue
		}
		if bits, err := strconv.Atoi(fields[1]); err == nil {
			return bits
		}
	}
	return 64
}

// AllocSize returns the number of bytes a value of type t occupies in
// memory, including padding: the store size rounded up to the ABI
// alignment. This is the value passed to the registrar as the byte count
// of a replaced nondet result.
func (l layout) AllocSize(t types.Type) int64 {
	switch t := t.(type) {
	case *types.IntType:
		return roundUp((int64(t.BitSize)+7)/8, l.abiAlign(t))
	case *types.FloatType:
		return roundUp(floatStoreSize(t), l.abiAlign(t))
	case *types.PointerType:
		return int64(l.ptrBits) / 8
	case *types.ArrayType:
		return int64(t.Len) * l.AllocSize(t.ElemType)
	case *types.VectorType:
		return roundUp(int64(t.Len)*l.AllocSize(t.ElemType), l.abiAlign(t))
	case *types.StructType:
		return l.structSize(t)
	default:
		log.Panicf("Cannot compute the size of type %v (%T)", t, t)
		return 0
	}
}

func (l layout) structSize(t *types.StructType) int64 {
	if t.Packed {
		var size int64
		for _, ft := range t.Fields {
			size += l.AllocSize(ft)
		}
		return size
	}

	var size, align int64 = 0, 1
	for _, ft := range t.Fields {
		fa := l.abiAlign(ft)
		size = roundUp(size, fa) + l.AllocSize(ft)
		if fa > align {
			align = fa
		}
	}
	return roundUp(size, align)
}

func (l layout) abiAlign(t types.Type) int64 {
	switch t := t.(type) {
	case *types.IntType:
		return pow2Cap((int64(t.BitSize)+7)/8, 16)
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindX86_FP80, types.FloatKindFP128, types.FloatKindPPC_FP128:
			return 16
		default:
			return floatStoreSize(t)
		}
	case *types.PointerType:
		return int64(l.ptrBits) / 8
	case *types.ArrayType:
		return l.abiAlign(t.ElemType)
	case *types.VectorType:
		return pow2Cap(int64(t.Len)*l.AllocSize(t.ElemType), 16)
	case *types.StructType:
		if t.Packed {
			return 1
		}
		var align int64 = 1
		for _, ft := range t.Fields {
			if fa := l.abiAlign(ft); fa > align {
				align = fa
			}
		}
		return align
	default:
		log.Panicf("Cannot compute the alignment of type %v (%T)", t, t)
		return 0
	}
}

func floatStoreSize(t *types.FloatType) int64 {
	switch t.Kind {
	case types.FloatKindHalf:
		return 2
	case types.FloatKindFloat:
		return 4
	case types.FloatKindDouble:
		return 8
	case types.FloatKindX86_FP80:
		return 10
	case types.FloatKindFP128, types.FloatKindPPC_FP128:
		return 16
	default:
		log.Panicf("Unknown float kind %v", t.Kind)
		return 0
	}
}

func roundUp(n, align int64) int64 {
	return (n + align - 1) / align * align
}

// pow2Cap returns the smallest power of two that is >= n, capped at max.
func pow2Cap(n, max int64) int64 {
	var p int64 = 1
	for p < n && p < max {
		p <<= 1
	}
	return p
}
