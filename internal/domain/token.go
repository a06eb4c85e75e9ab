// Package domain defines the value types shared across the SDK: tokens and
// fixed-point quantities, AMM pools, perp markets and orders, and the parsed
// ledger messages the correlation protocol consumes.
//
// All quantity, price, and reserve arithmetic is arbitrary-precision
// (math/big) on non-negative integers expressed in base units. The only
// float64 crossing the package boundary is the human-facing price ratio on
// executed trades.
package domain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// addressPattern matches a ledger process/transaction address: 43 characters
// of the base64url alphabet.
var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{43}$`)

// decimalPattern matches a non-negative decimal string such as "12" or "12.34".
var decimalPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// IsAddress reports whether s has the 43-char base64url address format.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Token is an immutable descriptor of a token process. Denomination is the
// number of fractional digits separating a human-readable decimal amount
// from its integer base-unit representation (cents vs dollars).
type Token struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Ticker       string `json:"ticker"`
	Denomination int    `json:"denomination"`
	Logo         string `json:"logo,omitempty"`
}

// NewToken validates the token fields and returns the value. The id must be
// a well-formed address and the denomination non-negative; anything else is
// a programming error on the caller's side.
func NewToken(id, name, ticker string, denomination int, logo string) (Token, error) {
	if !IsAddress(id) {
		return Token{}, &ValidationError{Field: "token.id", Reason: "must be a 43-char base64url address"}
	}
	if denomination < 0 {
		return Token{}, &ValidationError{Field: "token.denomination", Reason: "must be non-negative"}
	}
	if logo != "" && !IsAddress(logo) {
		return Token{}, &ValidationError{Field: "token.logo", Reason: "must be a 43-char base64url address"}
	}
	return Token{ID: id, Name: name, Ticker: ticker, Denomination: denomination, Logo: logo}, nil
}

// FromReadable converts a decimal string into a quantity of this token.
func (t Token) FromReadable(s string) (TokenQuantity, error) {
	q, err := UnitsFromReadable(s, t.Denomination)
	if err != nil {
		return TokenQuantity{}, err
	}
	return TokenQuantity{Token: t, Quantity: q}, nil
}

// Units wraps an integer base-unit amount in a quantity of this token.
func (t Token) Units(q *big.Int) TokenQuantity {
	return TokenQuantity{Token: t, Quantity: new(big.Int).Set(q)}
}

// TokenQuantity pairs an integer base-unit amount with the token it is
// denominated in. Arithmetic across mismatched tokens is rejected.
type TokenQuantity struct {
	Token    Token
	Quantity *big.Int
}

// Add returns a new quantity equal to q + other.
func (q TokenQuantity) Add(other TokenQuantity) (TokenQuantity, error) {
	if q.Token.ID != other.Token.ID {
		return TokenQuantity{}, ErrTokenMismatch
	}
	return TokenQuantity{Token: q.Token, Quantity: new(big.Int).Add(q.Quantity, other.Quantity)}, nil
}

// Sub returns a new quantity equal to q - other.
func (q TokenQuantity) Sub(other TokenQuantity) (TokenQuantity, error) {
	if q.Token.ID != other.Token.ID {
		return TokenQuantity{}, ErrTokenMismatch
	}
	return TokenQuantity{Token: q.Token, Quantity: new(big.Int).Sub(q.Quantity, other.Quantity)}, nil
}

// Equal reports whether both quantities have the same token and amount.
func (q TokenQuantity) Equal(other TokenQuantity) bool {
	return q.Token.ID == other.Token.ID && q.Quantity.Cmp(other.Quantity) == 0
}

// Readable renders the quantity as a decimal string using the token's
// denomination.
func (q TokenQuantity) Readable() string {
	return ReadableFromUnits(q.Quantity, q.Token.Denomination)
}

func (q TokenQuantity) String() string {
	return q.Readable() + " " + q.Token.Ticker
}

// UnitsFromReadable parses a decimal string into integer base units at the
// given denomination. Fractional digits beyond the denomination are
// truncated, never rounded: "1.23456" at denomination 4 yields 12345.
func UnitsFromReadable(s string, denomination int) (*big.Int, error) {
	if !decimalPattern.MatchString(s) {
		return nil, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("%q is not a valid decimal string", s)}
	}

	intPart, decPart, _ := strings.Cut(s, ".")
	if len(decPart) > denomination {
		decPart = decPart[:denomination]
	}
	decPart += strings.Repeat("0", denomination-len(decPart))

	q, ok := new(big.Int).SetString(intPart+decPart, 10)
	if !ok {
		return nil, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("%q is not a valid decimal string", s)}
	}
	return q, nil
}

// ReadableFromUnits renders integer base units as a decimal string at the
// given denomination. Trailing fractional zeros are stripped and the decimal
// point is omitted when the fraction is empty, except for sub-unit values
// which keep the full denomination width.
func ReadableFromUnits(v *big.Int, denomination int) string {
	s := v.String()

	if len(s) <= denomination {
		return "0." + strings.Repeat("0", denomination-len(s)) + s
	}

	intPart := s[:len(s)-denomination]
	decPart := strings.TrimRight(s[len(s)-denomination:], "0")
	if decPart == "" {
		return intPart
	}
	return intPart + "." + decPart
}

// RoundToTick rounds v to the nearest multiple of tickSize using the
// half-tick-then-floor-divide sequence: ((v + tick/2) / tick) * tick with
// integer division throughout. Exact halves round up.
func RoundToTick(v, tickSize *big.Int) *big.Int {
	half := new(big.Int).Quo(tickSize, big.NewInt(2))
	r := new(big.Int).Add(v, half)
	r.Quo(r, tickSize)
	return r.Mul(r, tickSize)
}
