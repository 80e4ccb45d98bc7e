package inference

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LabelsPath returns the labels file next to a model: the model path with
// its extension replaced by suffix.
func LabelsPath(modelPath, suffix string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + suffix
}

// ReadLabels reads one class name per line. Blank lines are skipped.
// Lines of the form "0: person" or "0 person" are accepted.
func ReadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		labels = append(labels, stripIndex(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", path)
	}
	return labels, nil
}

func stripIndex(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i == len(line) {
		return line
	}
	rest := line[i:]
	if rest[0] != ':' && rest[0] != ' ' && rest[0] != '\t' {
		return line
	}
	return strings.TrimSpace(strings.TrimPrefix(rest, ":"))
}
