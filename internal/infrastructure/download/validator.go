package download

import (
	"fmt"
	"io"
	"os"
)

// FileValidator checks finished offline files
type FileValidator struct{}

// NewFileValidator creates a new file validator
func NewFileValidator() *FileValidator {
	return &FileValidator{}
}

// ValidateFile checks that path is a readable, non-empty regular file and
// returns its size
func (v *FileValidator) ValidateFile(path string) (int64, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("file does not exist: %w", err)
	}

	if stat.IsDir() {
		return 0, fmt.Errorf("path is a directory, not a file")
	}

	if stat.Size() == 0 {
		return 0, fmt.Errorf("file is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("file is not readable: %w", err)
	}
	defer file.Close()

	if _, err := file.Read(make([]byte, 1)); err != nil && err != io.EOF {
		return 0, fmt.Errorf("file is not readable: %w", err)
	}

	return stat.Size(), nil
}
