package token

import (
	"errors"
	"math/big"
	"testing"
)

func TestAmountAddOverflow(t *testing.T) {
	one := NewAmount(1)

	if _, err := MaxAmount.Add(one); !errors.Is(err, ErrOverflow) {
		t.Errorf("MaxAmount+1: got %v, want ErrOverflow", err)
	}
	if _, err := MinAmount.Add(NewAmount(-1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("MinAmount-1: got %v, want ErrOverflow", err)
	}

	// Max + Min = -1 is representable.
	sum, err := MaxAmount.Add(MinAmount)
	if err != nil {
		t.Fatalf("MaxAmount+MinAmount failed: %v", err)
	}
	if sum.Cmp(NewAmount(-1)) != 0 {
		t.Errorf("MaxAmount+MinAmount = %s, want -1", sum)
	}
}

func TestAmountSub(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(40)

	diff, err := a.Sub(b)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	if diff.Cmp(NewAmount(60)) != 0 {
		t.Errorf("100-40 = %s, want 60", diff)
	}

	if _, err := MinAmount.Sub(NewAmount(1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("MinAmount-1: got %v, want ErrOverflow", err)
	}
	if _, err := NewAmount(0).Sub(MinAmount); !errors.Is(err, ErrOverflow) {
		t.Errorf("0-MinAmount: got %v, want ErrOverflow", err)
	}

	// -1 - MinAmount = 2^127 - 1 = MaxAmount.
	diff, err = NewAmount(-1).Sub(MinAmount)
	if err != nil {
		t.Fatalf("-1-MinAmount failed: %v", err)
	}
	if diff != MaxAmount {
		t.Errorf("-1-MinAmount = %s, want MaxAmount", diff)
	}
}

func TestAmountCarryAcrossWords(t *testing.T) {
	// 2^64 - 1 + 1 carries into the high word.
	a, err := ParseAmount("18446744073709551615")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	sum, err := a.Add(NewAmount(1))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if sum.String() != "18446744073709551616" {
		t.Errorf("2^64-1+1 = %s, want 2^64", sum)
	}
}

func TestParseAmountBounds(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"170141183460469231731687303715884105727", false},  // 2^127-1
		{"170141183460469231731687303715884105728", true},   // 2^127
		{"-170141183460469231731687303715884105728", false}, // -2^127
		{"-170141183460469231731687303715884105729", true},  // -2^127-1
		{"0", false},
		{"abc", true},
	}

	for _, tt := range tests {
		a, err := ParseAmount(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q): expected error, got %s", tt.in, a)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) failed: %v", tt.in, err)
			continue
		}
		if a.String() != tt.in {
			t.Errorf("ParseAmount(%q).String() = %s", tt.in, a)
		}
	}
}

func TestAmountBytesRoundtrip(t *testing.T) {
	values := []Amount{
		NewAmount(0),
		NewAmount(1),
		NewAmount(-1),
		NewAmount(1_000_000),
		MaxAmount,
		MinAmount,
	}
	for _, v := range values {
		got := AmountFromBytes(v.Bytes())
		if got != v {
			t.Errorf("roundtrip %s: got %s", v, got)
		}
	}
}

func TestAmountBig(t *testing.T) {
	v := NewAmount(-42)
	if v.Big().Cmp(big.NewInt(-42)) != 0 {
		t.Errorf("Big() = %s, want -42", v.Big())
	}
	if MinAmount.Big().String() != "-170141183460469231731687303715884105728" {
		t.Errorf("MinAmount.Big() = %s", MinAmount.Big())
	}
}
