// Package loader turns an APEX assembly source file into the linear
// instruction stream the pipeline executes: two passes over the file (a
// label scan, then operand resolution), no macro expansion.
package loader

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sarchlab/m2sim/insts"
)

// baseAddr mirrors the pipeline's fixed program origin (timing/pipeline's
// own baseAddr constant); the loader needs it to resolve a label to an
// absolute address before the program ever reaches the pipeline.
const baseAddr = 4000

var operandSplit = regexp.MustCompile(`\s*,\s*`)

// labelDef matches a line that does nothing but define a jump target,
// e.g. "LOOP:". A label must occupy its own line.
var labelDef = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*):$`)

var mnemonics = map[string]insts.Opcode{
	"MOVC":  insts.MOVC,
	"ADD":   insts.ADD,
	"SUB":   insts.SUB,
	"MUL":   insts.MUL,
	"AND":   insts.AND,
	"OR":    insts.OR,
	"EX-OR": insts.EXOR,
	"LOAD":  insts.LOAD,
	"STORE": insts.STORE,
	"BZ":    insts.BZ,
	"BNZ":   insts.BNZ,
	"JUMP":  insts.JUMP,
	"HALT":  insts.HALT,
}

// field names a position in an instruction's operand list to the
// Instruction struct field it fills.
type field int

const (
	fieldRd field = iota
	fieldRs1
	fieldRs2
	fieldImm
)

// shapes gives, per opcode, the ordered operand fields an assembly line
// supplies. STORE's operand order is data-register, base-register,
// offset — matching §3's "STORE rs1(data), rs2(base), imm".
var shapes = map[insts.Opcode][]field{
	insts.MOVC:  {fieldRd, fieldImm},
	insts.ADD:   {fieldRd, fieldRs1, fieldRs2},
	insts.SUB:   {fieldRd, fieldRs1, fieldRs2},
	insts.MUL:   {fieldRd, fieldRs1, fieldRs2},
	insts.AND:   {fieldRd, fieldRs1, fieldRs2},
	insts.OR:    {fieldRd, fieldRs1, fieldRs2},
	insts.EXOR:  {fieldRd, fieldRs1, fieldRs2},
	insts.LOAD:  {fieldRd, fieldRs1, fieldImm},
	insts.STORE: {fieldRs1, fieldRs2, fieldImm},
	insts.BZ:    {fieldImm},
	insts.BNZ:   {fieldImm},
	insts.JUMP:  {fieldRs1, fieldImm},
	insts.HALT:  {},
}

// sourceLine is one comment-stripped, trimmed line together with its
// 1-based source line number, used across both of Load's passes.
type sourceLine struct {
	lineNo int
	text   string
}

// Load reads path and returns its instructions in program order. Line
// comments start with ';' and run to end of line; blank lines are
// skipped. A line containing only "LABEL:" defines a jump target at the
// address of the next real instruction; BZ/BNZ may name that label in
// place of a literal "#<int>" immediate, resolved to the PC-relative
// offset the branch unit expects.
func Load(path string) ([]insts.Instruction, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}

	labels, addrs := scanLabels(lines)

	var program []insts.Instruction
	for i, l := range lines {
		if l.text == "" || labelDef.MatchString(l.text) {
			continue
		}
		inst, err := parseLine(l.text, labels, addrs[i])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, l.lineNo, err)
		}
		program = append(program, inst)
	}

	return program, nil
}

// readLines reads path, stripping ';' comments and surrounding
// whitespace from every line; the resulting text is empty for a blank
// or comment-only line.
func readLines(path string) ([]sourceLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open instruction stream %s: %w", path, err)
	}
	defer f.Close()

	var lines []sourceLine
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		raw := scanner.Text()
		if idx := strings.IndexByte(raw, ';'); idx >= 0 {
			raw = raw[:idx]
		}
		lines = append(lines, sourceLine{lineNo: lineNo, text: strings.TrimSpace(raw)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read instruction stream %s: %w", path, err)
	}

	return lines, nil
}

// scanLabels walks lines once to assign every would-be instruction its
// address (matching the pipeline's fixed program origin and 4-byte
// instruction stride) and to record each label definition's address,
// without parsing operands yet. addrs[i] is only meaningful for an
// index holding a real instruction line.
func scanLabels(lines []sourceLine) (labels map[string]int32, addrs []int32) {
	labels = map[string]int32{}
	addrs = make([]int32, len(lines))
	addr := int32(baseAddr)

	for i, l := range lines {
		if l.text == "" {
			continue
		}
		if m := labelDef.FindStringSubmatch(l.text); m != nil {
			labels[m[1]] = addr
			continue
		}
		addrs[i] = addr
		addr += 4
	}

	return labels, addrs
}

// parseLine parses one non-blank, non-label assembly line at the given
// address, resolving a BZ/BNZ label operand against labels.
func parseLine(line string, labels map[string]int32, addr int32) (insts.Instruction, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := strings.ToUpper(fields[0])
	op, ok := mnemonics[mnemonic]
	if !ok {
		return insts.Instruction{}, fmt.Errorf("unknown mnemonic %q", fields[0])
	}

	var operands []string
	if len(fields) > 1 {
		for _, f := range operandSplit.Split(strings.TrimSpace(fields[1]), -1) {
			if f != "" {
				operands = append(operands, f)
			}
		}
	}

	shape := shapes[op]
	if len(operands) != len(shape) {
		return insts.Instruction{}, fmt.Errorf("%s expects %d operand(s), got %d", mnemonic, len(shape), len(operands))
	}

	inst := insts.Instruction{Opcode: op}
	for i, kind := range shape {
		switch kind {
		case fieldRd:
			r, err := parseRegister(operands[i])
			if err != nil {
				return insts.Instruction{}, err
			}
			inst.Rd = r
		case fieldRs1:
			r, err := parseRegister(operands[i])
			if err != nil {
				return insts.Instruction{}, err
			}
			inst.Rs1 = r
		case fieldRs2:
			r, err := parseRegister(operands[i])
			if err != nil {
				return insts.Instruction{}, err
			}
			inst.Rs2 = r
		case fieldImm:
			// BZ/BNZ may name a label instead of a literal immediate: the
			// branch unit resolves "target = PC-at-EX + Imm" (stages.go),
			// so a label resolves to the PC-relative offset from this
			// instruction's own address. JUMP's immediate is added to a
			// register value at runtime, not to PC, so it has no fixed
			// meaning at load time and must stay a literal "#<int>".
			if (op == insts.BZ || op == insts.BNZ) && !strings.HasPrefix(operands[i], "#") {
				target, ok := labels[operands[i]]
				if !ok {
					return insts.Instruction{}, fmt.Errorf("undefined label %q", operands[i])
				}
				inst.Imm = target - addr
			} else {
				imm, err := parseImmediate(operands[i])
				if err != nil {
					return insts.Instruction{}, err
				}
				inst.Imm = imm
			}
		}
	}

	return inst, nil
}

func parseRegister(operand string) (uint8, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(operand, "R"), "r")
	n, err := strconv.ParseUint(trimmed, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register operand %q", operand)
	}
	return uint8(n), nil
}

func parseImmediate(operand string) (int32, error) {
	trimmed := strings.TrimPrefix(operand, "#")
	n, err := strconv.ParseInt(trimmed, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate operand %q", operand)
	}
	return int32(n), nil
}
