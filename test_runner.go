//go:build ignore

// test_runner runs the shortlinks test suite with the race detector, since
// the link store and the preview queue are exercised concurrently, and then
// the code generation and queue benchmarks.
//
//	go run test_runner.go [-short] [-bench=false]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
)

// Packages that carry benchmarks.
var benchPackages = []string{
	"./internal/shortener",
	"./internal/links",
	"./internal/renderer",
}

func run(args ...string) error {
	fmt.Printf("$ go %v\n", args)
	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func main() {
	short := flag.Bool("short", false, "skip the race detector")
	bench := flag.Bool("bench", true, "run benchmarks after the tests")
	flag.Parse()

	testArgs := []string{"test", "-cover", "-count=1"}
	if !*short {
		testArgs = append(testArgs, "-race")
	}
	if err := run(append(testArgs, "./...")...); err != nil {
		fmt.Printf("Tests failed: %v\n", err)
		os.Exit(1)
	}

	if !*bench {
		return
	}
	benchArgs := append([]string{"test", "-run=^$", "-bench=.", "-benchmem"}, benchPackages...)
	if err := run(benchArgs...); err != nil {
		fmt.Printf("Benchmarks failed: %v\n", err)
	}
}
