package content

import (
	"strings"
	"testing"

	"github.com/georgepadayatti/signflow/pdf/generic"
)

func TestBuilder(t *testing.T) {
	data := NewBuilder().
		SaveState().
		Transform(100, 0, 0, 40, 10.5, 20).
		DrawXObject("SFImg1").
		RestoreState().
		BeginText().
		SetFont("SFHelv", 12).
		TextPosition(2, 10).
		ShowText([]byte("a(b)")).
		EndText().
		Bytes()

	expected := "q\n100 0 0 40 10.5 20 cm\n/SFImg1 Do\nQ\nBT\n/SFHelv 12 Tf\n2 10 Td\n(a\\(b\\)) Tj\nET\n"
	if string(data) != expected {
		t.Errorf("Expected:\n%s\ngot:\n%s", expected, data)
	}
}

func TestParse(t *testing.T) {
	ops, err := Parse([]byte("q 1 0 0 1 5 5 cm /F1 12 Tf (hi) Tj [1 2] 0 d Q"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	if got := strings.Join(names, " "); got != "q cm Tf Tj d Q" {
		t.Errorf("Expected operators 'q cm Tf Tj d Q', got %q", got)
	}
	if len(ops[1].Operands) != 6 {
		t.Errorf("Expected 6 cm operands, got %d", len(ops[1].Operands))
	}
	if n, ok := ops[2].Operands[0].(generic.Name); !ok || n != "F1" {
		t.Errorf("Expected font name F1, got %v", ops[2].Operands[0])
	}
}
