// Command chibi-plugin-echo is a reference plugin exercising the exec
// contract end-to-end: schema discovery via a single CLI argument, then
// tool invocation via stdin/stdout with CHIBI_TOOL_NAME set in the
// environment. It registers one tool, "echo", which prefixes and returns
// its input message.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const toolName = "echo"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--chibi-describe" {
		describe()
		return
	}

	if os.Getenv("CHIBI_TOOL_NAME") != toolName {
		fmt.Fprintf(os.Stderr, "chibi-plugin-echo: unexpected CHIBI_TOOL_NAME %q\n", os.Getenv("CHIBI_TOOL_NAME"))
		os.Exit(1)
	}

	if err := runEcho(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func describe() {
	manifest := map[string]interface{}{
		"name":        toolName,
		"description": "Echoes a message with an optional prefix",
		"parameters": map[string]interface{}{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"message"},
			"properties": map[string]interface{}{
				"message": map[string]string{"type": "string"},
				"prefix":  map[string]string{"type": "string"},
			},
		},
	}
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(manifest); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runEcho() error {
	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	var input struct {
		Message string `json:"message"`
		Prefix  string `json:"prefix"`
	}
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}

	result := map[string]string{"content": input.Prefix + input.Message}
	return json.NewEncoder(os.Stdout).Encode(result)
}
