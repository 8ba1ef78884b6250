package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigilhq/sigil/internal/signature"
)

var (
	compileBlocksFile  string
	compileContextFile string
	compileAt          string
	compileOutput      string
	compileCheck       bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a signature locally",
	Long:  `Compile signature blocks against a render context without a running server.`,
	RunE:  runCompile,
}

var validateCmd = &cobra.Command{
	Use:   "validate <html-file>",
	Short: "Check compiled HTML for email client compatibility",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	compileCmd.Flags().StringVar(&compileBlocksFile, "blocks", "", "JSON file with signature blocks (required)")
	compileCmd.Flags().StringVar(&compileContextFile, "context", "", "JSON file with the render context")
	compileCmd.Flags().StringVar(&compileAt, "at", "", "Reference time for banner windows (RFC 3339)")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "Write HTML to file instead of stdout")
	compileCmd.Flags().BoolVar(&compileCheck, "check", false, "Run the email-safety check on the result")
	compileCmd.MarkFlagRequired("blocks")

	rootCmd.AddCommand(compileCmd, validateCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(compileBlocksFile)
	if err != nil {
		return fmt.Errorf("failed to read blocks file: %w", err)
	}

	var blocks []signature.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("failed to parse blocks: %w", err)
	}

	var renderCtx signature.RenderContext
	if compileContextFile != "" {
		data, err := os.ReadFile(compileContextFile)
		if err != nil {
			return fmt.Errorf("failed to read context file: %w", err)
		}
		if err := json.Unmarshal(data, &renderCtx); err != nil {
			return fmt.Errorf("failed to parse context: %w", err)
		}
	}

	var result signature.Result
	if compileAt != "" {
		ref, err := time.Parse(time.RFC3339, compileAt)
		if err != nil {
			return fmt.Errorf("invalid --at value: %w", err)
		}
		result = signature.CompileAt(blocks, renderCtx, ref)
	} else {
		result = signature.Compile(blocks, renderCtx)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	if compileCheck {
		v := signature.Validate(result.HTML)
		for _, warning := range v.Warnings {
			fmt.Fprintf(os.Stderr, "check: %s\n", warning)
		}
	}

	if compileOutput != "" {
		if err := os.WriteFile(compileOutput, []byte(result.HTML), 0644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", compileOutput)
		return nil
	}

	fmt.Println(result.HTML)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	v := signature.Validate(string(data))
	if v.Valid {
		fmt.Println("OK: no risky constructs found")
		return nil
	}

	for _, warning := range v.Warnings {
		fmt.Printf("warning: %s\n", warning)
	}
	return fmt.Errorf("%d issue(s) found", len(v.Warnings))
}
