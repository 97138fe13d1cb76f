package models

// Section represents a single serial section with metadata
type Section struct {
	// Z is the position of this section in the stack sequence
	Z int

	// Filename is the original filename of the section image
	Filename string

	// Width and Height are the section dimensions in pixels at mip 0
	Width, Height int
}

// Stack represents an ordered serial-section stack
type Stack struct {
	// Sections are ordered by Z, consecutive and gap-free
	Sections []Section

	// Width and Height are the shared section dimensions in pixels
	Width, Height int
}

// ZStart returns the first section index of the stack.
func (s *Stack) ZStart() int {
	if len(s.Sections) == 0 {
		return 0
	}
	return s.Sections[0].Z
}

// ZStop returns one past the last section index of the stack.
func (s *Stack) ZStop() int {
	return s.ZStart() + len(s.Sections)
}
