// cmd/server/validate.go
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Corphon/StoryEngine/internal/schema"
)

// errValidationFailed 已打印详细信息，只用于设置退出码
var errValidationFailed = errors.New("validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate <story|home|about> <file>",
	Short: "Validate a content document",
	Long: `Checks a story, home or about document against the content schema and
prints every violated field. Exits with status 1 when the document is invalid.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"story", "home", "about"},
	RunE:      runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	kind, path := args[0], args[1]

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	switch kind {
	case "story":
		_, err = schema.ParseStory(raw)
	case "home":
		_, err = schema.ParseHome(raw)
	case "about":
		_, err = schema.ParseAbout(raw)
	default:
		return fmt.Errorf("unknown document kind %q (want story, home or about)", kind)
	}

	if err == nil {
		cmd.Printf("%s: valid %s document\n", path, kind)
		return nil
	}

	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		cmd.Printf("%s: %d problem(s)\n", path, len(verr.Fields))
		for _, field := range verr.Fields {
			cmd.Printf("  %s: %s\n", field.Path, field.Message)
		}
		return errValidationFailed
	}

	cmd.Printf("%s: %v\n", path, err)
	return errValidationFailed
}
