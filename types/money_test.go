package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMoneyDisplay(t *testing.T) {
	tests := []struct {
		name    string
		money   Money
		major   string
		display string
	}{
		{"USD", USD(50000), "500.00", "$500.00"},
		{"EUR cents", EUR(1250), "12.50", "€12.50"},
		{"one cent", USD(1), "0.01", "$0.01"},
		{"negative", USD(-4900), "-49.00", "-$49.00"},
		{"zero", Zero("USD"), "0.00", "$0.00"},
		{"yen has no minor unit", New(12345, "JPY"), "12345", "¥12345"},
		{"unknown currency", New(100, "xyz"), "1.00", "XYZ 1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.major {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.major)
			}
			if got := tt.money.String(); got != tt.display {
				t.Errorf("String: got %s, want %s", got, tt.display)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in       string
		currency string
		want     Money
		wantErr  bool
	}{
		{"500.00", "usd", USD(50000), false},
		{"500", "usd", USD(50000), false},
		{"12.5", "EUR", EUR(1250), false},
		{" 0.01 ", "usd", USD(1), false},
		{"-3.25", "usd", USD(-325), false},
		{"100", "jpy", New(100, "jpy"), false},
		{"0.001", "usd", Money{}, true},
		{"1.5", "jpy", Money{}, true},
		{"abc", "usd", Money{}, true},
		{"", "usd", Money{}, true},
		{"99999999999999999999", "usd", Money{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in+"/"+tt.currency, func(t *testing.T) {
			got, err := ParseMoney(tt.in, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
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
		{"Subtract below zero", func() Money { return USD(100).Subtract(USD(250)) }, USD(-150)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Abs negative", func() Money { return USD(-100).Abs() }, USD(100)},
		{"Mixed case currency", func() Money { return New(100, "USD").Add(USD(1)) }, USD(101)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(EUR(100))
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(50000))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":50000,"currency":"usd","display":"500.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(USD(50000)) {
		t.Errorf("round trip: got %v", back)
	}

	var fromValue Money
	if err := json.Unmarshal([]byte(`{"value":"500.00","currency":"USD"}`), &fromValue); err != nil {
		t.Fatalf("Unmarshal value error: %v", err)
	}
	if !fromValue.Equal(USD(50000)) {
		t.Errorf("value form: got %v", fromValue)
	}

	var bad Money
	if err := json.Unmarshal([]byte(`{"value":"5.001","currency":"usd"}`), &bad); err == nil {
		t.Error("expected error for sub-cent value")
	}
}

func TestEntityTouch(t *testing.T) {
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	e := NewEntity(created)
	if !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Fatalf("new entity: created %v != updated %v", e.CreatedAt, e.UpdatedAt)
	}

	later := created.Add(time.Hour)
	e.Touch(later)
	if !e.UpdatedAt.Equal(later) || !e.CreatedAt.Equal(created) {
		t.Errorf("touch: got created=%v updated=%v", e.CreatedAt, e.UpdatedAt)
	}
}
