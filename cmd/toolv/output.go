package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// confirm asks a yes/no question and defaults to no.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// shellExport renders an export statement safe to eval in POSIX shells.
func shellExport(key, value string) string {
	return fmt.Sprintf("export %s='%s'", key, strings.ReplaceAll(value, "'", `'\''`))
}

func printRow(cols ...string) {
	fmt.Println(strings.Join(cols, "\t"))
}
