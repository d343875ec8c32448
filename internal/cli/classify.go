package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acrell/mnemo/internal/memtype"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [content]",
	Short: "Classify content into a persistence category",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		content := strings.Join(args, " ")
		category := memtype.Classify(content)
		fmt.Printf("%s (half-life %.0f days)\n", category, category.HalfLifeDays())
	},
}
