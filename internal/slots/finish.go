package slots

import "edengolf/internal/models"

// Typical round lengths used to estimate when a group comes off the course.
var roundMinutes = map[models.CourseType]int{
	models.CourseNine:     150,
	models.CourseEighteen: 270,
}

// FinishTime estimates the end of a round starting at start. Unknown courses are
// treated as 18 holes; a malformed start yields "--:--".
func FinishTime(start string, ct models.CourseType) string {
	m, err := parseClock(start)
	if err != nil {
		return "--:--"
	}
	d, ok := roundMinutes[ct]
	if !ok {
		d = roundMinutes[models.CourseEighteen]
	}
	return formatClock(m + d)
}
