package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"INR", INR(4950), 4950, "inr", "₹49.50"},
		{"Upper-case currency", New(100, "JPY"), 100, "jpy", "¥100"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
		{"Negative", USD(-250), -250, "usd", "-$2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyMul(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		factor   string
		expected int64
	}{
		{"integer quantity", USD(5000), "2", 10000},
		{"fractional quantity", USD(3333), "1.5", 5000}, // 4999.5 rounds away from zero
		{"ten percent", USD(10000), "0.1", 1000},
		{"half cent down", USD(1), "0.4", 0},
		{"half cent up", USD(1), "0.5", 1},
		{"negative rounds away from zero", USD(-1), "0.5", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.money.Mul(decimal.RequireFromString(tt.factor))
			if got.Amount != tt.expected {
				t.Errorf("Mul(%s): got %d, want %d", tt.factor, got.Amount, tt.expected)
			}
		})
	}
}

func TestParseMajor(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		expected int64
		wantErr  bool
	}{
		{"110.00", "usd", 11000, false},
		{" 0.015 ", "usd", 2, false},
		{"100", "jpy", 100, false},
		{"abc", "usd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMajor(tt.in, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMajor: %v", err)
			}
			if got.Amount != tt.expected {
				t.Errorf("got %d, want %d", got.Amount, tt.expected)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Subtract below zero", func() Money { return USD(100).Subtract(USD(300)) }, USD(-200)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Max", func() Money { return USD(100).Max(USD(50)) }, USD(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(EUR(100))
}

func TestMoneyComparison(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Money
		less    bool
		greater bool
		equal   bool
	}{
		{"Equal", USD(100), USD(100), false, false, true},
		{"Less", USD(50), USD(100), true, false, false},
		{"Greater", USD(200), USD(100), false, true, false},
		{"Zero equal", USD(0), Zero("usd"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.LessThan(tt.b); got != tt.less {
				t.Errorf("LessThan: got %v, want %v", got, tt.less)
			}
			if got := tt.a.GreaterThan(tt.b); got != tt.greater {
				t.Errorf("GreaterThan: got %v, want %v", got, tt.greater)
			}
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal: got %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{USD(4900), "49.00"},
		{USD(1), "0.01"},
		{USD(0), "0.00"},
		{USD(-4900), "-49.00"},
		{New(12345, "jpy"), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":4900,"currency":"usd","display":"$49.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(USD(4900)) {
		t.Errorf("Unmarshal: got %v", back)
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Money
		expected Money
	}{
		{"Empty", nil, Zero("usd")},
		{"Multiple", []Money{USD(100), USD(200), USD(300)}, USD(600)},
		{"With negatives", []Money{USD(100), USD(-50), USD(200)}, USD(250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Sum("usd", tt.values...)
			if !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func BenchmarkMoneyMul(b *testing.B) {
	m := USD(4999)
	q := decimal.RequireFromString("1.75")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Mul(q)
	}
}
