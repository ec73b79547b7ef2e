package cpu

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Verify decodes code linearly and checks that every opcode and register
// field is valid, that every jump lands on an instruction boundary, and
// that every entry address is an instruction boundary.
func Verify(code []byte, entries ...uint32) error {
	starts := make(map[uint32]bool)
	var jumps []Instr

	for pc := uint32(0); pc < uint32(len(code)); {
		in, err := Decode(code, pc)
		if err != nil {
			return errors.Wrap(err, "verify")
		}
		starts[pc] = true
		if in.Info().Form == FormTarget {
			jumps = append(jumps, in)
		}
		pc += in.Len
	}

	for _, j := range jumps {
		if j.Imm < 0 || j.Imm > int64(^uint32(0)) || !starts[uint32(j.Imm)] {
			return errors.Errorf("verify: %s at 0x%04X targets 0x%X, not an instruction boundary", j.Info().Name, j.Addr, j.Imm)
		}
	}
	for _, e := range entries {
		if !starts[e] {
			return errors.Errorf("verify: entry 0x%04X is not an instruction boundary", e)
		}
	}
	return nil
}

// Disassemble renders code one instruction per line with its address as a
// trailing comment, so the output assembles back to the same bytes. Names,
// when given, label entry points.
func Disassemble(code []byte, names map[string]uint32) (string, error) {
	labels := make(map[uint32][]string)
	for name, addr := range names {
		labels[addr] = append(labels[addr], name)
	}
	for _, l := range labels {
		sort.Strings(l)
	}

	var sb strings.Builder
	for pc := uint32(0); pc < uint32(len(code)); {
		in, err := Decode(code, pc)
		if err != nil {
			return sb.String(), err
		}
		for _, l := range labels[pc] {
			sb.WriteString(l + ":\n")
		}
		fmt.Fprintf(&sb, "    %-28s ; 0x%04X\n", in.String(), pc)
		pc += in.Len
	}
	return sb.String(), nil
}
