// Package ignore decides which local paths stay out of uploads. Exclusions
// come from the configured file name regex and from .ddsignore files, whose
// glob patterns apply to the directory holding the file and everything
// below it.
package ignore

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// FileName is the name of the per-directory ignore file.
const FileName = ".ddsignore"

type rule struct {
	// dir is the path of the directory the rule came from, relative to the
	// scanned root ("" for the root itself).
	dir     string
	pattern glob.Glob
}

// Matcher reports whether local paths should be included in a transfer.
type Matcher struct {
	excludeName *regexp.Regexp
	rules       []rule
}

// NewMatcher builds a matcher that excludes base names matching
// excludeRegex. Ignore file rules are added with Scan.
func NewMatcher(excludeRegex string) (*Matcher, error) {
	re, err := regexp.Compile(excludeRegex)
	if err != nil {
		return nil, errors.WithContext(err, "compile file exclude regex")
	}
	return &Matcher{excludeName: re}, nil
}

// Scan walks dirPath collecting .ddsignore files. Each file's patterns are
// scoped to its directory's subtree. Patterns use shell globbing; blank
// lines and lines starting with # are skipped.
func (m *Matcher) Scan(appFs afero.Fs, dirPath string) error {
	return m.scanDir(appFs, dirPath, "")
}

func (m *Matcher) scanDir(appFs afero.Fs, dirPath, relPath string) error {
	entries, err := afero.ReadDir(appFs, dirPath)
	if err != nil {
		return errors.WithContext(err, "scan for ignore files")
	}
	for _, entry := range entries {
		if entry.IsDir() {
			err := m.scanDir(appFs, dirPath+"/"+entry.Name(), joinRel(relPath, entry.Name()))
			if err != nil {
				return err
			}
		} else if entry.Name() == FileName {
			if err := m.loadFile(appFs, dirPath+"/"+entry.Name(), relPath); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Matcher) loadFile(appFs afero.Fs, filePath, relPath string) error {
	contents, err := afero.ReadFile(appFs, filePath)
	if err != nil {
		return errors.WithContext(err, "read ignore file")
	}

	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern, err := glob.Compile(line)
		if err != nil {
			return errors.WithContext(err, "compile pattern "+line+" from "+filePath)
		}
		m.rules = append(m.rules, rule{dir: relPath, pattern: pattern})
	}
	return nil
}

// Include reports whether the path belongs in the transfer. relPath is
// relative to the scanned root, using forward slashes. The signature
// matches what local tree building expects.
func (m *Matcher) Include(relPath, name string, isDir bool) bool {
	if name == FileName {
		return false
	}
	if !isDir && m.excludeName.MatchString(name) {
		return false
	}
	for _, r := range m.rules {
		sub, ok := subtreePath(r.dir, relPath)
		if !ok {
			continue
		}
		if r.pattern.Match(sub) || r.pattern.Match(name) {
			return false
		}
	}
	return true
}

// subtreePath rewrites relPath relative to dir when relPath is inside
// dir's subtree.
func subtreePath(dir, relPath string) (string, bool) {
	if dir == "" {
		return relPath, true
	}
	if strings.HasPrefix(relPath, dir+"/") {
		return relPath[len(dir)+1:], true
	}
	return "", false
}

func joinRel(relPath, name string) string {
	if relPath == "" {
		return name
	}
	return relPath + "/" + name
}
