package monitor

import "fmt"

// FormatRate formats a loop rate as "X.X Hz"
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.1f Hz", rate)
}

// FormatNorm formats a task error norm as "|e|=X"
func FormatNorm(norm float64) string {
	return fmt.Sprintf("|e|=%.4g", norm)
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount formats a counter as "X", "X.Xk" or "X.XM"
func FormatCount(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
