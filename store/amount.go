package store

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Amount - raw token amount stored as a decimal string. sqlite integers are
// signed 64-bit, so amounts at or above 2^63 do not fit an INTEGER column.
type Amount uint64

// Value implements driver.Valuer
func (a Amount) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(a), 10), nil
}

// Scan implements sql.Scanner
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = 0
	case int64:
		if v < 0 {
			return fmt.Errorf("negative amount %d", v)
		}
		*a = Amount(v)
	case string:
		return a.parse(v)
	case []byte:
		return a.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
	return nil
}

func (a *Amount) parse(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*a = Amount(n)
	return nil
}
