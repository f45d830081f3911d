package tp

import "fmt"

type (
	Type interface {
		Size() int
		String() string
	}

	Unit struct{}

	Bool struct{}

	Int struct {
		Bits int16
	}

	// B256 is a 256-bit value. It is wider than a machine word
	// and only exists in registers as an address of its storage.
	B256 struct{}

	Ptr struct {
		X Type
	}
)

// WordBits is the machine word width. Values wider than this
// cannot live in a single register.
const WordBits = 64

var (
	U8  = Int{Bits: 8}
	U16 = Int{Bits: 16}
	U32 = Int{Bits: 32}
	U64 = Int{Bits: 64}
)

func (Unit) Size() int { return 0 }
func (Bool) Size() int { return 1 }

func (x Int) Size() int {
	return int(x.Bits) / 8
}

func (B256) Size() int { return 32 }

func (Ptr) Size() int { return WordBits / 8 }

func (Unit) String() string { return "unit" }
func (Bool) String() string { return "bool" }

func (x Int) String() string {
	return fmt.Sprintf("u%d", x.Bits)
}

func (B256) String() string { return "b256" }

func (p Ptr) String() string {
	return fmt.Sprintf("ptr %v", p.X)
}
