package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedID is returned when an identifier cannot be parsed as a SKU id.
var ErrMalformedID = errors.New("malformed SKU id")

// SKUID is the canonical SKU identifier. Every id entering the engine is
// normalized to it at the decoding boundary.
type SKUID int64

// OutletID identifies a retailer outlet.
type OutletID int64

// ParseSKUID parses a decimal SKU id such as "1001".
func ParseSKUID(raw string) (SKUID, error) {
	s := strings.TrimSpace(raw)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedID, raw)
	}
	return SKUID(v), nil
}

func (id SKUID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// RawID is an identifier as it arrives from a plan producer: either a JSON
// string or a JSON number.
type RawID string

// UnmarshalJSON accepts both "1001" and 1001.
func (r *RawID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RawID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*r = RawID(n.String())
	return nil
}
