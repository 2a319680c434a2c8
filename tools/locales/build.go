package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// LocaleMap is a nested translation file: "error.user.exists" is stored as
// {"error": {"user": {"exists": "..."}}}
type LocaleMap map[string]any

func runBuild(localesDir string) error {
	buildDir := filepath.Join(localesDir, "build")

	for _, lang := range languages {
		files, err := filepath.Glob(filepath.Join(localesDir, "*_"+lang+".json"))
		if err != nil {
			return err
		}
		sort.Strings(files)

		merged, err := buildLocale(files)
		if err != nil {
			return fmt.Errorf("build %s locale: %w", lang, err)
		}

		out := filepath.Join(buildDir, lang+".json")
		if err := saveJSON(out, merged); err != nil {
			return err
		}
		fmt.Printf("Saved %s (%d keys from %d files)\n", out, len(allKeys(merged, "")), len(files))
	}

	return checkPairs(localesDir)
}

// buildLocale merges files into one map. The same key defined twice is an error.
func buildLocale(files []string) (LocaleMap, error) {
	var result *multierror.Error
	merged := make(LocaleMap)

	for _, file := range files {
		m, err := loadJSON(file)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		mergeLocaleMap(merged, m, "", file, &result)
	}

	return merged, result.ErrorOrNil()
}

func mergeLocaleMap(target, source LocaleMap, prefix, file string, result **multierror.Error) {
	for key, value := range source {
		existing, exists := target[key]
		if !exists {
			target[key] = copyValue(value)
			continue
		}

		existingMap, ok1 := existing.(map[string]any)
		sourceMap, ok2 := value.(map[string]any)
		if ok1 && ok2 {
			mergeLocaleMap(existingMap, sourceMap, prefix+key+".", file, result)
			continue
		}

		*result = multierror.Append(*result, fmt.Errorf("key %q already exists (source: %s)", prefix+key, file))
	}
}

func copyValue(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, nested := range m {
		out[k] = copyValue(nested)
	}
	return out
}

// checkPairs warns about sources that exist in one language only
func checkPairs(localesDir string) error {
	seen := make(map[string][]string)
	for _, lang := range languages {
		files, err := filepath.Glob(filepath.Join(localesDir, "*_"+lang+".json"))
		if err != nil {
			return err
		}
		for _, f := range files {
			base := strings.TrimSuffix(filepath.Base(f), "_"+lang+".json")
			seen[base] = append(seen[base], lang)
		}
	}

	for base, langs := range seen {
		if len(langs) != len(languages) {
			fmt.Printf("Warning: %s is only translated to %s\n", base, strings.Join(langs, ", "))
		}
	}
	return nil
}

func loadJSON(path string) (LocaleMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m LocaleMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse JSON in %s: %w", path, err)
	}
	return m, nil
}

// saveJSON writes m indented with a trailing newline. encoding/json sorts
// map keys.
func saveJSON(path string, m LocaleMap) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// allKeys returns the dotted ids of every leaf in m
func allKeys(m map[string]any, prefix string) []string {
	var keys []string
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			keys = append(keys, allKeys(nested, prefix+k+".")...)
			continue
		}
		keys = append(keys, prefix+k)
	}
	sort.Strings(keys)
	return keys
}

func hasKey(m map[string]any, key string) bool {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		v, ok := m[part]
		if !ok {
			return false
		}
		if i == len(parts)-1 {
			_, nested := v.(map[string]any)
			return !nested
		}
		if m, ok = v.(map[string]any); !ok {
			return false
		}
	}
	return false
}

// removeKey deletes key and the maps it leaves empty
func removeKey(m map[string]any, key string) {
	head, rest, nested := strings.Cut(key, ".")
	if !nested {
		delete(m, head)
		return
	}
	child, ok := m[head].(map[string]any)
	if !ok {
		return
	}
	removeKey(child, rest)
	if len(child) == 0 {
		delete(m, head)
	}
}
