package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acrell/mnemo/internal/conflict"
)

// resolve compares two texts offline: it runs the lexical contradiction
// detector and word-overlap similarity without touching the semantic store.
var resolveCmd = &cobra.Command{
	Use:   "resolve [new content] -- [existing content]",
	Short: "Check two texts for contradiction and similarity",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sep := cmd.ArgsLenAtDash()
		var newContent, existingContent string
		if sep > 0 && sep < len(args) {
			newContent = strings.Join(args[:sep], " ")
			existingContent = strings.Join(args[sep:], " ")
		} else if len(args) == 2 {
			newContent, existingContent = args[0], args[1]
		} else {
			return fmt.Errorf("separate the two texts with -- or pass exactly two arguments")
		}

		sim := conflict.Similarity(newContent, existingContent)
		fmt.Printf("similarity: %.2f\n", sim)

		c := conflict.LexicalDetector{}.Detect(newContent, existingContent)
		if c.Contradicts {
			fmt.Printf("contradiction: %s (confidence %.2f)\n", c.Kind, c.Confidence)
			fmt.Println(c.Explanation)
		} else {
			fmt.Println("no contradiction detected")
		}
		return nil
	},
}
