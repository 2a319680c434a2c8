// Command locales builds locales/build/{en,ru}.json from the per-area
// locales/*_en.json and *_ru.json sources and checks that every message id
// used in the code is translated.
//
//	go run ./tools/locales build
//	go run ./tools/locales check [-remove-unused]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

var languages = []string{"en", "ru"}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: locales build|check [flags]")
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	rootPath := fs.String("path", ".", "Project root path")
	removeUnused := fs.Bool("remove-unused", false, "Remove unused keys from built locale files")
	_ = fs.Parse(os.Args[2:])

	localesDir := filepath.Join(*rootPath, "locales")

	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(localesDir)
	case "check":
		err = runCheck(*rootPath, filepath.Join(localesDir, "build"), *removeUnused)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "\nERROR: %v\n", err)
		os.Exit(1)
	}
}
