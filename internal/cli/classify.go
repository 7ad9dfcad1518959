package cli

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/resilience/classify"
)

var (
	classifyCode   string
	classifyLocale string
	classifyOp     string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [message]",
	Short: "Classify an error code or message",
	Example: `  docsync classify --code unavailable "backend went away"
  docsync classify "INTERNAL ASSERTION FAILED: Unexpected state (ID: ca9)"`,
	Args: cobra.ArbitraryArgs,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyCode, "code", "", "vendor error code")
	classifyCmd.Flags().StringVar(&classifyLocale, "locale", classify.DefaultLocale, "user message locale")
	classifyCmd.Flags().StringVar(&classifyOp, "operation", "", "operation label")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	message := strings.Join(args, " ")
	if message == "" && classifyCode == "" {
		return errors.New("provide a message, a --code, or both")
	}

	var err error
	if classifyCode != "" {
		err = docstore.NewError(classifyCode, message)
	} else {
		err = errors.New(message)
	}

	c := classify.New(classify.WithLocale(classifyLocale))
	details := c.Classify(err, classify.Context{Operation: classifyOp})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(details)
}
