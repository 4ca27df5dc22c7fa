package catalog

import "strings"

// Course is one catalog entry as served by the courses endpoint.
type Course struct {
	Title        string    `json:"title"`
	Subject      string    `json:"subject"`
	CourseNumber string    `json:"courseNumber"`
	Sections     []Section `json:"sections"`
}

// Section is one enrollable section of a course.
type Section struct {
	Index      string `json:"index"`
	OpenStatus string `json:"openStatus"`
}

// Open reports seat availability. The upstream field is a string and its
// casing is not stable, so the compare is case-insensitive.
func (s Section) Open() bool {
	return strings.EqualFold(strings.TrimSpace(s.OpenStatus), "TRUE")
}
