// Package modutil wraps loading and emitting of LLVM assembly modules.
package modutil

import (
	"fmt"
	"io"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir"
)

// ParseFile parses the LLVM assembly file at path.
func ParseFile(path string) (*ir.Module, error) {
	m, err := asm.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parsing module %s: %w", path, err)
	}
	return m, nil
}

// ParseString parses LLVM assembly held in memory. The path only decorates
// error messages, so tests may pass a made-up one.
func ParseString(path, content string) (*ir.Module, error) {
	m, err := asm.ParseString(path, content)
	if err != nil {
		return nil, fmt.Errorf("parsing module %s: %w", path, err)
	}
	return m, nil
}

// WriteModule prints m as LLVM assembly to w.
func WriteModule(w io.Writer, m *ir.Module) error {
	_, err := io.WriteString(w, m.String())
	return err
}
