package validation

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CodeMetricsResult holds the computed code metrics.
type CodeMetricsResult struct {
	Score         float64 // 0.0-1.0 composite metric score
	FileCount     int     // Number of non-test source files
	TotalLOC      int     // Total lines of code (non-empty, non-comment)
	MaxFileLOC    int     // LOC of the largest file
	MaxFileName   string  // Name of the largest file
	AvgFileLOC    int
	TestFileCount int
}

var sourceExts = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rs": true, ".java": true, ".kt": true, ".rb": true,
	".c": true, ".h": true, ".cc": true, ".cpp": true, ".cs": true,
}

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "target": true,
	"dist": true, "build": true, "__pycache__": true, ".venv": true,
}

// RunCodeMetrics walks the workspace looking for structural quality signals:
// how the code is split across files, whether any file is a monolith, and
// whether tests were written.
func RunCodeMetrics(workDir string) (*CodeMetricsResult, error) {
	result := &CodeMetricsResult{}
	err := walkSources(workDir, func(path, rel string) {
		if isTestFile(rel) {
			result.TestFileCount++
			return
		}
		loc := countLOC(path)
		result.FileCount++
		result.TotalLOC += loc
		if loc > result.MaxFileLOC {
			result.MaxFileLOC = loc
			result.MaxFileName = rel
		}
	})
	if err != nil {
		return result, err
	}
	if result.FileCount > 0 {
		result.AvgFileLOC = result.TotalLOC / result.FileCount
	}
	result.Score = computeMetricsScore(result)
	return result, nil
}

func walkSources(workDir string, visit func(path, rel string)) error {
	return filepath.WalkDir(workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			if path != workDir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, _ := filepath.Rel(workDir, path)
		visit(path, rel)
		return nil
	})
}

func isTestFile(rel string) bool {
	base := filepath.Base(rel)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		strings.HasPrefix(base, "test_"),
		strings.HasSuffix(strings.TrimSuffix(base, filepath.Ext(base)), "_test"):
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if part == "__tests__" || part == "tests" || part == "test" {
			return true
		}
	}
	return false
}

func computeMetricsScore(m *CodeMetricsResult) float64 {
	score := 0.0

	// File organization: multiple files preferred over monolith (0-0.4)
	if m.FileCount >= 3 {
		score += 0.4
	} else if m.FileCount == 2 {
		score += 0.3
	} else if m.FileCount == 1 {
		score += 0.1
	}

	// No monolithic files (0-0.3)
	if m.FileCount > 0 {
		if m.MaxFileLOC <= 200 {
			score += 0.3
		} else if m.MaxFileLOC <= 500 {
			score += 0.2
		} else if m.MaxFileLOC <= 800 {
			score += 0.1
		}
	}

	// Tests present (0-0.3)
	if m.TestFileCount >= 3 {
		score += 0.3
	} else if m.TestFileCount >= 1 {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// countLOC counts non-empty, non-comment lines in a file.
func countLOC(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	count := 0
	inBlockComment := false
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if inBlockComment {
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
			}
			continue
		}
		if strings.HasPrefix(trimmed, "/*") {
			inBlockComment = !strings.Contains(trimmed, "*/")
			continue
		}
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		count++
	}
	return count
}
