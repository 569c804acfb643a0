//go:build !darwin || !cgo

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "testapp requires macOS with cgo enabled (WKWebView host)")
	os.Exit(1)
}
