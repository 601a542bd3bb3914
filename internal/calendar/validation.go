package calendar

import "fmt"

// Violations накапливает все нарушения вместо выхода на первом.
type Violations []string

func (v *Violations) Add(format string, args ...any) {
	*v = append(*v, fmt.Sprintf(format, args...))
}

func (v Violations) Empty() bool { return len(v) == 0 }
