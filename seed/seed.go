// Package seed loads product URL seed lists from plain-text files.
//
// A seed file contains one URL per line. Blank lines and lines starting
// with '#' are ignored. Lines starting with '/' are treated as paths
// relative to the configured base URL.
package seed

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Loader reads seed URL lists from files matched by glob patterns.
type Loader struct {
	baseURL  string
	patterns []string
}

// NewLoader creates a seed loader. baseURL is prepended to relative lines
// and patterns are doublestar globs resolved against the working directory.
func NewLoader(baseURL string, patterns []string) *Loader {
	return &Loader{
		baseURL:  strings.TrimRight(baseURL, "/"),
		patterns: patterns,
	}
}

// LoadFile reads URLs from a single seed file.
func (l *Loader) LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "/") {
			urls = append(urls, l.baseURL+line)
		} else {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	return urls, nil
}

// Files returns the seed files matched by the configured glob patterns,
// sorted and deduplicated.
func (l *Loader) Files() ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range l.patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(m)
			if err != nil {
				abs = m
			}
			if !seen[abs] {
				seen[abs] = true
				files = append(files, abs)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// Load reads all matched seed files and returns the combined URL list,
// order-preserving within each file, deduplicated across files.
func (l *Loader) Load() ([]string, error) {
	files, err := l.Files()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var urls []string
	for _, file := range files {
		fileURLs, err := l.LoadFile(file)
		if err != nil {
			return nil, err
		}
		for _, u := range fileURLs {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}

	return urls, nil
}
