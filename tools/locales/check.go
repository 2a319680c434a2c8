package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	// utils.T(ctx, "key") and utils.T(ctx, "key", data)
	translateCall = regexp.MustCompile(`utils\.T\(\s*[^,]+,\s*"([^"]+)"`)
	// message ids declared as constants: messageFoo = "error.foo"
	messageConst = regexp.MustCompile(`\bmessage[A-Z]\w*\s*=\s*"([a-z_]+(?:\.[a-z_]+)+)"`)
)

var skipDirs = map[string]bool{
	".git":         true,
	"_examples":    true,
	"vendor":       true,
	"node_modules": true,
}

func runCheck(rootPath, buildDir string, removeUnused bool) error {
	used, err := findTranslationKeys(rootPath)
	if err != nil {
		return fmt.Errorf("scan code: %w", err)
	}
	fmt.Printf("Found %d translation keys in the code\n", len(used))

	usedSet := make(map[string]bool, len(used))
	for _, key := range used {
		usedSet[key] = true
	}

	var missing []string
	for _, lang := range languages {
		path := filepath.Join(buildDir, lang+".json")
		m, err := loadJSON(path)
		if err != nil {
			return err
		}

		for _, key := range used {
			if !hasKey(m, key) {
				missing = append(missing, fmt.Sprintf("%s: %s", lang, key))
			}
		}

		var unused []string
		for _, key := range allKeys(m, "") {
			if !usedSet[key] {
				unused = append(unused, key)
			}
		}
		if len(unused) == 0 {
			continue
		}

		fmt.Printf("\nUnused keys in %s:\n", path)
		for _, key := range unused {
			fmt.Println("  -", key)
		}
		if removeUnused {
			for _, key := range unused {
				removeKey(m, key)
			}
			if err := saveJSON(path, m); err != nil {
				return err
			}
			fmt.Printf("Removed %d unused keys from %s\n", len(unused), path)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing translations:\n  - %s", strings.Join(missing, "\n  - "))
	}

	fmt.Println("\nAll keys are translated!")
	return nil
}

// findTranslationKeys returns the sorted message ids referenced by Go files
// under rootPath. Test files and commented lines are ignored.
func findTranslationKeys(rootPath string) ([]string, error) {
	keys := make(map[string]bool)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] || strings.HasSuffix(filepath.ToSlash(path), "tools/locales") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		for _, line := range strings.Split(string(content), "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "//") {
				continue
			}
			for _, re := range []*regexp.Regexp{translateCall, messageConst} {
				for _, match := range re.FindAllStringSubmatch(line, -1) {
					keys[match[1]] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(keys))
	for key := range keys {
		result = append(result, key)
	}
	sort.Strings(result)
	return result, nil
}
