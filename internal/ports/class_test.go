package ports

import (
	"errors"
	"testing"

	hdlerrors "hdlbind/internal/errors"
)

func TestClassify_Thresholds(t *testing.T) {
	for width := 1; width <= 300; width++ {
		got, err := Classify(width-1, 0)
		if err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		var want Class
		switch {
		case width <= 8:
			want = Byte
		case width <= 16:
			want = Half
		case width <= 32:
			want = Word
		case width <= 64:
			want = Quad
		default:
			want = Wide((width + 31) / 32)
		}
		if got != want {
			t.Fatalf("width %d: got %s, want %s", width, got, want)
		}
	}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		msb, lsb int
		want     Class
	}{
		{0, 0, Byte},
		{7, 0, Byte},
		{8, 0, Half},
		{15, 0, Half},
		{16, 0, Word},
		{31, 0, Word},
		{32, 0, Quad},
		{63, 0, Quad},
		{64, 0, Wide(3)},
		{95, 0, Wide(3)},
		{96, 0, Wide(4)},
		{199, 0, Wide(7)},
		{255, 0, Wide(8)},
		{1023, 0, Wide(32)},
		{71, 8, Quad},
		{72, 8, Wide(3)},
	}
	for _, tt := range tests {
		got, err := Classify(tt.msb, tt.lsb)
		if err != nil {
			t.Fatalf("[%d:%d]: %v", tt.msb, tt.lsb, err)
		}
		if got != tt.want {
			t.Errorf("[%d:%d]: got %s, want %s", tt.msb, tt.lsb, got, tt.want)
		}
	}
}

func TestClassify_WordCountMonotonic(t *testing.T) {
	prev := 0
	for width := 1; width <= 4096; width++ {
		words := ClassOfWidth(width).Words()
		if words < prev {
			t.Fatalf("word count decreased at width %d: %d < %d", width, words, prev)
		}
		prev = words
	}
}

func TestClassify_RejectsInvertedRange(t *testing.T) {
	for _, r := range [][2]int{{3, 7}, {0, 1}, {5, -1}} {
		_, err := Classify(r[0], r[1])
		if !errors.Is(err, hdlerrors.ErrPortWidth) {
			t.Fatalf("[%d:%d]: expected port width error, got %v", r[0], r[1], err)
		}
	}
}

func TestClass_Accessors(t *testing.T) {
	if Byte.Bits() != 8 || Half.Bits() != 16 || Word.Bits() != 32 || Quad.Bits() != 64 {
		t.Fatal("unexpected scalar container sizes")
	}
	if Wide(7).Bits() != 224 || Wide(7).Words() != 7 {
		t.Fatalf("Wide(7): bits=%d words=%d", Wide(7).Bits(), Wide(7).Words())
	}
	if Quad.CType() != "uint64_t" || Wide(3).CType() != "uint32_t" {
		t.Fatal("unexpected C types")
	}
	if Wide(5).String() != "Wide(5)" {
		t.Fatalf("String() = %q", Wide(5).String())
	}
	if Wide(3) == Wide(4) {
		t.Fatal("wide classes with different word counts must differ")
	}
	var zero Class
	if zero.IsValid() {
		t.Fatal("zero class must be invalid")
	}
}

func TestMaskTail(t *testing.T) {
	words := []uint32{0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF}
	MaskTail(65, words)
	if words[0] != 0xFFFFFFFF || words[1] != 0xFFFFFFFF || words[2] != 1 {
		t.Fatalf("65-bit mask: %#x", words)
	}

	words = []uint32{0xFFFFFFFF, 0xFFFFFFFF}
	MaskTail(64, words)
	if words[1] != 0xFFFFFFFF {
		t.Fatalf("64-bit mask must keep the full final word: %#x", words)
	}

	words = []uint32{0xDEADBEEF, 0xCAFEBABE, 0xAB}
	MaskTail(68, words)
	if words[2] != 0xB {
		t.Fatalf("68-bit mask: %#x", words[2])
	}
}

func TestMaskScalar(t *testing.T) {
	if got := MaskScalar(5, 0xFF); got != 0x1F {
		t.Fatalf("MaskScalar(5) = %#x", got)
	}
	if got := MaskScalar(64, ^uint64(0)); got != ^uint64(0) {
		t.Fatalf("MaskScalar(64) = %#x", got)
	}
}
