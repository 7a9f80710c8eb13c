//go:build !rp2040

package main

import "os"

func newConsole() *os.File { return os.Stderr }
