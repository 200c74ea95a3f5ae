package rhi

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// PowerOfTwoError is returned from CheckPow2 if the number being tested is
// not a power of two.
var PowerOfTwoError error = errors.New("number must be a power of two")

// CheckPow2 validates that number is a power of two. Zero fails.
func CheckPow2(number uint64, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the next multiple of alignment, which must be
// a power of two.
func AlignUp(value uint64, alignment uint64) uint64 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// AlignDown rounds value down to the previous multiple of alignment, which
// must be a power of two.
func AlignDown(value uint64, alignment uint64) uint64 {
	return value &^ (alignment - 1)
}
