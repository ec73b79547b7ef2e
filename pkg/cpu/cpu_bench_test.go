package cpu

import (
	"testing"
)

// repeat encodes n copies of one instruction followed by HLT.
func repeat(n int, op, a, b uint8, imm int64) []byte {
	code := make([]byte, 0, n*4+4)
	for i := 0; i < n; i++ {
		code = Encode(code, op, a, b, imm)
	}
	return Encode(code, OpHLT, 0, 0, 0)
}

func runBench(b *testing.B, code []byte) {
	b.Helper()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c := NewCPU(code)
		if err := c.Run(); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCPU_NOP measures the raw dispatch overhead of the Step loop by
// running a tight block of NOP instructions followed by HLT.
func BenchmarkCPU_NOP(b *testing.B) {
	runBench(b, repeat(1000, OpNOP, 0, 0, 0))
}

// BenchmarkCPU_ALU_ADD measures ADD instruction throughput.
func BenchmarkCPU_ALU_ADD(b *testing.B) {
	runBench(b, repeat(1000, OpADD, RegR0, RegR1, 0))
}

// BenchmarkCPU_FMUL measures FMUL instruction throughput.
func BenchmarkCPU_FMUL(b *testing.B) {
	runBench(b, repeat(1000, OpFMUL, 0, 1, 0))
}

// BenchmarkCPU_LDF measures the decode cost of instructions that carry an
// immediate.
func BenchmarkCPU_LDF(b *testing.B) {
	runBench(b, repeat(1000, OpLDF, 0, 0, fimm(2.5)))
}

// BenchmarkCPU_ElementLoop allocates 1000 doubles and scales every one, the
// shape of the code generated for an element-wise operation.
func BenchmarkCPU_ElementLoop(b *testing.B) {
	runBench(b, program(
		ins(OpLDI, RegR1, 0, 8000),    // 0
		ins(OpALLOC, RegR0, RegR1, 0), // 12
		ins(OpLDF, 1, 0, fimm(1.5)),   // 16
		ins(OpLDI, RegR2, 0, 0),       // 28
		ins(OpLDI, RegR3, 0, 8),       // 40
		ins(OpMOV, RegR4, RegR0, 0),   // 52
		ins(OpADD, RegR4, RegR2, 0),   // 56
		ins(OpFLD, 0, RegR4, 0),       // 60
		ins(OpFMUL, 0, 1, 0),          // 72
		ins(OpFST, RegR4, 0, 0),       // 76
		ins(OpADD, RegR2, RegR3, 0),   // 88
		ins(OpCMP, RegR2, RegR1, 0),   // 92
		ins(OpJLT, 0, 0, 52),          // 96
		ins(OpHLT, 0, 0, 0),           // 108
	))
}
