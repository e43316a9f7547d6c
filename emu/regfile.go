// Package emu provides the APEX architectural state: the integer
// register file, the Z flag, and the linear data memory.
package emu

// NumRegs is the number of architectural integer registers.
const NumRegs = 16

// RegFile represents the APEX integer register file together with its
// per-register scoreboard validity bits and the Z flag. The validity
// bits and ZValid are only meaningful under the scoreboard-stall hazard
// discipline (Variant A); the forwarding discipline (Variant B) never
// reads or writes them.
type RegFile struct {
	// R holds the 16 signed 32-bit general-purpose registers.
	R [NumRegs]int32

	// Valid is the scoreboard: Valid[r] is false while some in-flight
	// instruction will write r and has not yet reached Writeback.
	Valid [NumRegs]bool

	// Z is the zero flag, authoritative after every ADD/SUB/MUL retires.
	Z bool

	// ZValid is the scoreboard bit guarding Z for Variant A.
	ZValid bool
}

// NewRegFile returns a register file with all registers zeroed and all
// validity bits set, matching the original APEX_cpu_init state.
func NewRegFile() *RegFile {
	rf := &RegFile{ZValid: true}
	for i := range rf.Valid {
		rf.Valid[i] = true
	}
	return rf
}

// Read returns the value of register r.
func (rf *RegFile) Read(r uint8) int32 {
	return rf.R[r]
}

// Write stores value into register r.
func (rf *RegFile) Write(r uint8, value int32) {
	rf.R[r] = value
}

// RegInRange reports whether r names an architectural register (0..15).
func RegInRange(r uint8) bool {
	return r < NumRegs
}
