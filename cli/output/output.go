package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// ANSI color codes
const (
	reset = "\033[0m"
	bold  = "\033[1m"

	red    = "\033[31m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	green  = "\033[32m"
	grey   = "\033[90m"
)

// core printer; os.Stdout is looked up per call so tests can swap it
func printMessage(title, color, message string) {
	fmt.Fprintf(os.Stdout, "%s%s[%s]%s %s%s%s\n",
		color, bold, title, reset, color, message, reset,
	)
}

func Info(msg string) {
	printMessage("INFO", blue, msg)
}

func Warn(msg string) {
	printMessage("WARN", yellow, msg)
}

func Error(msg string) {
	printMessage("ERROR", red, msg)
}

func Success(msg string) {
	printMessage("SUCCESS", green, msg)
}

func Dim(msg string) {
	fmt.Fprintf(os.Stdout, "%s%s%s\n", grey, msg, reset)
}

// Field prints an aligned "name: value" line with a grey label
func Field(name string, value interface{}) {
	fmt.Fprintf(os.Stdout, "  %s%-10s%s %v\n", grey, name+":", reset, value)
}

// JSON pretty-prints v, falling back to Error if it cannot be encoded
func JSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		Error(fmt.Sprintf("Cannot encode output: %v", err))
		return
	}
	fmt.Fprintln(os.Stdout, string(data))
}
