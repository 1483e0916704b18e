package corpus

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mvp-joe/project-codex/internal/model"
)

// DataDir is the workspace directory holding the index; it is never scanned.
const DataDir = ".codex"

// Default patterns used when none are configured.
var (
	DefaultSourcePatterns = []string{"**/*.bible", "**/*.source"}
	DefaultTargetPatterns = []string{"**/*.codex"}
	DefaultIgnorePatterns = []string{".git/**", "node_modules/**"}
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Discovery finds corpus files with glob patterns and ignore rules, and
// classifies individual paths by side.
type Discovery struct {
	rootDir        string
	sourcePatterns []compiledPattern
	targetPatterns []compiledPattern
	ignorePatterns []compiledPattern
}

// NewDiscovery compiles the given patterns relative to rootDir.
func NewDiscovery(rootDir string, sourcePatterns, targetPatterns, ignorePatterns []string) (*Discovery, error) {
	d := &Discovery{rootDir: rootDir}

	var err error
	if d.sourcePatterns, err = compilePatterns(sourcePatterns); err != nil {
		return nil, err
	}
	if d.targetPatterns, err = compilePatterns(targetPatterns); err != nil {
		return nil, err
	}
	if d.ignorePatterns, err = compilePatterns(ignorePatterns); err != nil {
		return nil, err
	}
	return d, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, compiledPattern{pattern: pattern, glob: g})
	}
	return out, nil
}

// RootDir returns the directory patterns are relative to.
func (d *Discovery) RootDir() string {
	return d.rootDir
}

// Discover walks the tree and returns source and target files.
func (d *Discovery) Discover() (sourceFiles []string, targetFiles []string, err error) {
	sourceFiles = []string{}
	targetFiles = []string{}

	err = filepath.Walk(d.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != d.rootDir && d.shouldIgnore(d.rel(path)) {
				return filepath.SkipDir
			}
			return nil
		}

		switch side, ok := d.Classify(path); {
		case !ok:
		case side == model.SideSource:
			sourceFiles = append(sourceFiles, path)
		default:
			targetFiles = append(targetFiles, path)
		}
		return nil
	})
	return sourceFiles, targetFiles, err
}

// Classify reports which side a path belongs to. Paths outside the root,
// ignored paths and unmatched paths report false.
func (d *Discovery) Classify(path string) (model.Side, bool) {
	relPath := d.rel(path)
	if relPath == "" || strings.HasPrefix(relPath, "../") || d.shouldIgnore(relPath) {
		return "", false
	}
	if d.matchesAnyPattern(relPath, d.sourcePatterns) {
		return model.SideSource, true
	}
	if d.matchesAnyPattern(relPath, d.targetPatterns) {
		return model.SideTarget, true
	}
	return "", false
}

// Ignored reports whether path is excluded by the ignore patterns or lies
// outside the root. The root itself is never ignored.
func (d *Discovery) Ignored(path string) bool {
	relPath := d.rel(path)
	if relPath == "." {
		return false
	}
	return relPath == "" || strings.HasPrefix(relPath, "../") || d.shouldIgnore(relPath)
}

// rel returns path relative to the root with forward slashes.
func (d *Discovery) rel(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.rootDir, path)
	}
	relPath, err := filepath.Rel(d.rootDir, path)
	if err != nil {
		return ""
	}
	return filepath.ToSlash(relPath)
}

func (d *Discovery) shouldIgnore(relPath string) bool {
	if strings.HasPrefix(relPath, DataDir+"/") || relPath == DataDir {
		return true
	}
	if d.matchesAnyPattern(relPath, d.ignorePatterns) {
		return true
	}
	// "node_modules" should match pattern "node_modules/**"
	return d.matchesAnyPattern(relPath+"/**", d.ignorePatterns)
}

// matchesAnyPattern also lets "**/x" patterns match files at the root.
func (d *Discovery) matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if !strings.HasPrefix(cp.pattern, "**/") {
				continue
			}
			if g, err := glob.Compile(strings.TrimPrefix(cp.pattern, "**/"), '/'); err == nil && g.Match(path) {
				return true
			}
		}
	}
	return false
}
