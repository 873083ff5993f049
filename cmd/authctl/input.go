package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	// test seams for the terminal
	isTerminal       = term.IsTerminal
	readTermPassword = term.ReadPassword
)

// passwordReader reads one password per call. On a terminal the input is not
// echoed; otherwise a single line is read from in, so passwords can be piped.
func passwordReader(in *os.File, prompt io.Writer) func() (string, error) {
	lines := bufio.NewReader(in)
	return func() (string, error) {
		if isTerminal(int(in.Fd())) {
			fmt.Fprint(prompt, "Password: ")
			pw, err := readTermPassword(int(in.Fd()))
			fmt.Fprintln(prompt)
			if err != nil {
				return "", fmt.Errorf("read password: %w", err)
			}
			return string(pw), nil
		}
		return readLine(lines)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
