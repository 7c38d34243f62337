package device

import (
	"fmt"
	"strings"
)

// BoundsCheckMode selects how output allocations are laid out to catch
// out-of-bounds writes.
type BoundsCheckMode int

const (
	// BoundsCheckNone allocates exactly the tensor.
	BoundsCheckNone BoundsCheckMode = iota
	// BoundsCheckNaN surrounds the tensor with sentinel-filled guard elements.
	BoundsCheckNaN
	// BoundsCheckGuardPageBack places the tensor at the end of its allocation,
	// directly before protected memory.
	BoundsCheckGuardPageBack
)

// PageSize is the granularity of guard pages.
const PageSize = 4096

func (m BoundsCheckMode) String() string {
	switch m {
	case BoundsCheckNone:
		return "none"
	case BoundsCheckNaN:
		return "nan"
	case BoundsCheckGuardPageBack:
		return "guard-page-back"
	}
	return fmt.Sprintf("BoundsCheckMode(%d)", int(m))
}

func ParseBoundsCheckMode(s string) (BoundsCheckMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "0":
		return BoundsCheckNone, nil
	case "nan", "1":
		return BoundsCheckNaN, nil
	case "guard-page-back", "guardpageback", "2":
		return BoundsCheckGuardPageBack, nil
	}
	return BoundsCheckNone, fmt.Errorf("unknown bounds check mode %q", s)
}
