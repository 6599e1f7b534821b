package templates

import (
	"fmt"
	"strconv"

	"github.com/Conceptual-Machines/melody-api/internal/models"
)

func formatDuration(d float64) string {
	return strconv.FormatFloat(d, 'f', -1, 64)
}

func stepsLabel(n int) string {
	if n == 1 {
		return "1 step"
	}
	return fmt.Sprintf("%d steps", n)
}

func summary(data ResultData) string {
	s := fmt.Sprintf("%s, %d notes and rests", stepsLabel(data.Steps), data.Events)
	if data.StopReason == models.StopReasonEndMarker {
		s += ", stopped at the end marker"
	}
	return s
}
