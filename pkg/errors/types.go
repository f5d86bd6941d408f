package errors

import (
	"fmt"
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// ProjectNotFound represents when a named remote project doesn't exist.
type ProjectNotFound struct {
	Name string
}

func (err ProjectNotFound) Error() string {
	return fmt.Sprintf("there is no project with the name %q", err.Name)
}
