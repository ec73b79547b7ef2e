// Package asm assembles the textual IR emitted by the compiler into a code
// image for the cpu package.
package asm

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"matscript/pkg/cpu"
)

// Image is an assembled program.
type Image struct {
	Code []byte
	// Labels maps every label to its code address.
	Labels map[string]uint32
	// SourceMap maps the address of each instruction to its 1-based line.
	SourceMap map[uint32]int
}

type Assembler struct {
	labels map[string]uint32
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint32),
	}
}

func Assemble(code string) (*Image, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Image, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, err
	}

	img, err := a.pass2(lines)
	if err != nil {
		return nil, err
	}
	img.Labels = make(map[string]uint32, len(a.labels))
	for k, v := range a.labels {
		img.Labels[k] = v
	}
	return img, nil
}

func (a *Assembler) pass1(lines []string) error {
	var address uint64

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return errors.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[lbl] = uint32(address)
		}

		if p.mnemonic == "" {
			continue
		}

		length, ok := instructionLength(p.mnemonic)
		if !ok {
			return errors.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}
		address += uint64(length)
		if address > 0xFFFFFFFF {
			return errors.Errorf("program too large near line %d", lineNo)
		}
	}

	return nil
}

func (a *Assembler) pass2(lines []string) (*Image, error) {
	img := &Image{SourceMap: make(map[uint32]int)}

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, err
		}
		if p.mnemonic == "" {
			continue
		}

		img.SourceMap[uint32(len(img.Code))] = lineNo

		op, ok := cpu.OpcodeByName(p.mnemonic)
		if !ok {
			return nil, errors.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
		}
		regA, regB, imm, err := a.encodeOperands(op, p)
		if err != nil {
			return nil, err
		}
		img.Code = cpu.Encode(img.Code, op, regA, regB, imm)
	}

	return img, nil
}

func (a *Assembler) encodeOperands(op uint8, p parsedLine) (regA, regB uint8, imm int64, err error) {
	info, _ := cpu.Lookup(op)
	ops := p.operands
	lineNo := p.lineNo

	want := 0
	switch info.Form {
	case cpu.FormImm, cpu.FormReg, cpu.FormFReg, cpu.FormTarget:
		want = 1
	case cpu.FormRegImm, cpu.FormFRegImm, cpu.FormRegReg, cpu.FormFRegFReg,
		cpu.FormRegMem, cpu.FormMemReg, cpu.FormFRegMem, cpu.FormMemFReg:
		want = 2
	}
	if len(ops) != want {
		return 0, 0, 0, errors.Errorf("%s expects %d operands on line %d", info.Name, want, lineNo)
	}

	switch info.Form {
	case cpu.FormNone:
	case cpu.FormImm:
		imm, err = a.parseImmediate(ops[0], lineNo)
	case cpu.FormTarget:
		imm, err = a.parseImmediate(ops[0], lineNo)
	case cpu.FormReg:
		regA, err = parseRegister(ops[0], lineNo)
	case cpu.FormFReg:
		regA, err = parseFloatRegister(ops[0], lineNo)
	case cpu.FormRegImm:
		if regA, err = parseRegister(ops[0], lineNo); err == nil {
			imm, err = a.parseImmediate(ops[1], lineNo)
		}
	case cpu.FormFRegImm:
		if regA, err = parseFloatRegister(ops[0], lineNo); err == nil {
			imm, err = parseFloatImmediate(ops[1], lineNo)
		}
	case cpu.FormRegReg:
		if regA, err = parseRegister(ops[0], lineNo); err == nil {
			regB, err = parseRegister(ops[1], lineNo)
		}
	case cpu.FormFRegFReg:
		if regA, err = parseFloatRegister(ops[0], lineNo); err == nil {
			regB, err = parseFloatRegister(ops[1], lineNo)
		}
	case cpu.FormRegMem:
		if regA, err = parseRegister(ops[0], lineNo); err == nil {
			regB, imm, err = parseMemory(ops[1], lineNo)
		}
	case cpu.FormFRegMem:
		if regA, err = parseFloatRegister(ops[0], lineNo); err == nil {
			regB, imm, err = parseMemory(ops[1], lineNo)
		}
	case cpu.FormMemReg:
		if regA, imm, err = parseMemory(ops[0], lineNo); err == nil {
			regB, err = parseRegister(ops[1], lineNo)
		}
	case cpu.FormMemFReg:
		if regA, imm, err = parseMemory(ops[0], lineNo); err == nil {
			regB, err = parseFloatRegister(ops[1], lineNo)
		}
	}
	return regA, regB, imm, err
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t[") {
			break
		}
		if !isIdentifier(beforeColon) {
			return p, errors.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	mnemonic, rest := line, ""
	if sp := strings.IndexAny(line, " \t"); sp >= 0 {
		mnemonic, rest = line[:sp], strings.TrimSpace(line[sp+1:])
	}
	p.mnemonic = strings.ToUpper(mnemonic)

	if rest == "" {
		return p, nil
	}
	for _, op := range strings.Split(rest, ",") {
		op = strings.TrimSpace(op)
		if op == "" {
			return p, errors.Errorf("empty operand on line %d", lineNo)
		}
		p.operands = append(p.operands, op)
	}
	return p, nil
}

func stripComments(line string) string {
	if cut := strings.IndexByte(line, ';'); cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseRegister(token string, lineNo int) (uint8, error) {
	switch strings.ToUpper(token) {
	case "R0":
		return cpu.RegR0, nil
	case "R1":
		return cpu.RegR1, nil
	case "R2":
		return cpu.RegR2, nil
	case "R3":
		return cpu.RegR3, nil
	case "R4":
		return cpu.RegR4, nil
	case "R5":
		return cpu.RegR5, nil
	case "R6":
		return cpu.RegR6, nil
	case "R7":
		return cpu.RegR7, nil
	default:
		return 0, errors.Errorf("invalid register '%s' on line %d", token, lineNo)
	}
}

func parseFloatRegister(token string, lineNo int) (uint8, error) {
	t := strings.ToUpper(token)
	if len(t) == 2 && t[0] == 'F' && t[1] >= '0' && t[1] <= '7' {
		return t[1] - '0', nil
	}
	return 0, errors.Errorf("invalid float register '%s' on line %d", token, lineNo)
}

func parseBaseRegister(token string, lineNo int) (uint8, error) {
	switch strings.ToUpper(token) {
	case "FP":
		return cpu.RegFP, nil
	case "SP":
		return cpu.RegSP, nil
	}
	return parseRegister(token, lineNo)
}

// parseMemory reads [BASE], [BASE+N] or [BASE-N].
func parseMemory(token string, lineNo int) (uint8, int64, error) {
	if len(token) < 3 || token[0] != '[' || token[len(token)-1] != ']' {
		return 0, 0, errors.Errorf("invalid memory operand '%s' on line %d", token, lineNo)
	}
	inner := strings.TrimSpace(token[1 : len(token)-1])

	cut := strings.IndexAny(inner, "+-")
	if cut < 0 {
		base, err := parseBaseRegister(inner, lineNo)
		return base, 0, err
	}
	base, err := parseBaseRegister(strings.TrimSpace(inner[:cut]), lineNo)
	if err != nil {
		return 0, 0, err
	}
	disp, err := strconv.ParseInt(strings.TrimSpace(inner[cut+1:]), 0, 64)
	if err != nil {
		return 0, 0, errors.Errorf("invalid displacement in '%s' on line %d", token, lineNo)
	}
	if inner[cut] == '-' {
		disp = -disp
	}
	return base, disp, nil
}

func (a *Assembler) parseImmediate(token string, lineNo int) (int64, error) {
	if value, err := strconv.ParseInt(token, 0, 64); err == nil {
		return value, nil
	}
	if value, err := strconv.ParseUint(token, 0, 64); err == nil {
		return int64(value), nil
	}

	if addr, ok := a.labels[token]; ok {
		return int64(addr), nil
	}

	if isIdentifier(token) {
		return 0, errors.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, errors.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

func parseFloatImmediate(token string, lineNo int) (int64, error) {
	f, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, errors.Errorf("invalid float immediate '%s' on line %d", token, lineNo)
	}
	return int64(math.Float64bits(f)), nil
}

// instructionLength returns the byte length of an instruction: 4 for the
// instruction word plus 8 when it carries an immediate.
func instructionLength(mnemonic string) (uint32, bool) {
	op, ok := cpu.OpcodeByName(mnemonic)
	if !ok {
		return 0, false
	}
	return cpu.InstructionLength(op)
}

// isIdentifier accepts label names. Compiler-internal labels start with a dot.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}

	return true
}
