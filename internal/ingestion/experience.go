package ingestion

import (
	"regexp"
	"strconv"
)

// DefaultExperienceYears is assumed when the resume states no number of years
const DefaultExperienceYears = 2

var yearsPattern = regexp.MustCompile(`(?i)(\d+)\+?\s+years?`)

// ExtractExperienceYears returns the largest "N years" figure mentioned in the resume
func ExtractExperienceYears(resumeText string) int {
	matches := yearsPattern.FindAllStringSubmatch(resumeText, -1)
	if len(matches) == 0 {
		return DefaultExperienceYears
	}

	best := -1
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return DefaultExperienceYears
	}
	return best
}
