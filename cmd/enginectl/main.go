package main

import (
	"os"
	"runtime"
)

// The engine's main thread is the process's initial OS thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	os.Exit(execute(os.Args[1:]))
}
