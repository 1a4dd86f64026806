package main

import "os"

func main() {
	if err := NewApp(os.Stdin, os.Stdout, os.Stderr).Command().Execute(); err != nil {
		os.Exit(1)
	}
}
