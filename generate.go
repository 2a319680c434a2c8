package main

//go:generate go fmt ./...
//go:generate go run ./tools/locales build
//go:generate go run ./tools/locales check --remove-unused
