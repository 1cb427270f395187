package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptInputs reads paths one per line until a blank line, end of input or
// a "no" to "add another". Paths for which exists returns false are reported
// and dropped.
func promptInputs(r *bufio.Reader, w io.Writer, exists func(string) bool) []string {
	var files []string
	for {
		fmt.Fprint(w, "Enter path to .playscore file (blank to finish): ")
		line, err := r.ReadString('\n')
		path := strings.TrimSpace(line)
		if path == "" {
			return files
		}
		if exists(path) {
			files = append(files, path)
		} else {
			fmt.Fprintf(w, "Not a file, ignoring: %s\n", path)
		}
		if err != nil {
			return files
		}
		if !askYesNo(r, w, "Add another file?") {
			return files
		}
	}
}

// askYesNo prints question with a [y/N] suffix; anything but y or yes,
// including end of input, is a no.
func askYesNo(r *bufio.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", question)
	line, _ := r.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
