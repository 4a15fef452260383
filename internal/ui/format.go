package ui

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/olekukonko/tablewriter"

	"kcidb/pkg/errors"
	"kcidb/pkg/models"
)

var (
	// Check if output supports colors
	supportsColor = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Color functions
	ColorSuccess = colorFunc(ansi.Green)
	ColorError   = colorFunc(ansi.Red)
	ColorWarning = colorFunc(ansi.Yellow)
	ColorInfo    = colorFunc(ansi.Cyan)
	ColorBold    = colorFunc("default+b")
	ColorDim     = colorFunc("default+h")
)

// colorFunc returns a function that colors text if supported
func colorFunc(style string) func(string) string {
	return func(text string) string {
		if supportsColor {
			return ansi.Color(text, style)
		}
		return text
	}
}

// ShowError writes a formatted error. Structured errors are printed with
// their code, context and suggestions.
func ShowError(w io.Writer, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		fmt.Fprintf(w, "%s %s\n", ColorError("ERROR:"), err.Error())
		if suggestion := getSuggestion(err.Error()); suggestion != "" {
			fmt.Fprintf(w, "  %s %s\n", ColorInfo("TIP:"), suggestion)
		}
		return
	}

	lines := strings.Split(appErr.Message, "\n")
	fmt.Fprintf(w, "%s [%s] %s\n", ColorError("ERROR:"), appErr.Code, lines[0])
	for _, line := range lines[1:] {
		fmt.Fprintf(w, "  %s\n", ColorDim(line))
	}

	for _, key := range appErr.ContextKeys() {
		switch value := appErr.Context[key].(type) {
		case []string:
			if len(value) > 0 && strings.Contains(appErr.Message, value[0]) {
				continue
			}
			for _, item := range value {
				fmt.Fprintf(w, "  %s\n", ColorDim(item))
			}
		default:
			fmt.Fprintf(w, "  %s %v\n", ColorDim(key+":"), value)
		}
	}

	if appErr.Cause != nil {
		fmt.Fprintf(w, "  %s %v\n", ColorDim("cause:"), appErr.Cause)
	}

	suggestions := appErr.Suggestions
	if len(suggestions) == 0 {
		if s := getSuggestion(err.Error()); s != "" {
			suggestions = []string{s}
		}
	}
	for _, s := range suggestions {
		fmt.Fprintf(w, "  %s %s\n", ColorInfo("TIP:"), s)
	}
}

// ShowSuccess writes a success message
func ShowSuccess(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorSuccess("SUCCESS:"), message)
}

// ShowWarning writes a warning message
func ShowWarning(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorWarning("WARNING:"), ColorWarning(message))
}

// ShowInfo writes an info message
func ShowInfo(w io.Writer, message string) {
	fmt.Fprintf(w, "%s %s\n", ColorInfo("INFO:"), message)
}

// RenderSummary writes a table of record counts per kind, in submission
// order, followed by a total row
func RenderSummary(w io.Writer, dataset string, counts map[string]int) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Dataset", "Table", "Records"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	total := 0
	for _, kind := range models.Kinds {
		n := counts[kind]
		total += n

		count := strconv.Itoa(n)
		if supportsColor && n == 0 {
			count = color.YellowString(count)
		}
		table.Append([]string{dataset, kind, count})
	}

	footer := strconv.Itoa(total)
	if supportsColor {
		footer = color.New(color.Bold).Sprint(footer)
	}
	table.SetFooter([]string{"", "Total", footer})
	table.Render()
}

// getSuggestion returns helpful suggestions based on error messages
func getSuggestion(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "authentication failed") || strings.Contains(lower, "incorrect username or password"):
		return "Check the Snowflake user and password in the credentials file"
	case strings.Contains(lower, "connection refused"):
		return "Verify your Snowflake account URL and network connectivity"
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "insufficient privileges"):
		return "Ensure your role has the necessary privileges"
	case strings.Contains(lower, "does not exist"):
		return "Run 'kcidb init' to create the dataset tables"
	case strings.Contains(lower, "already exists"):
		return "Run 'kcidb cleanup' to drop the dataset tables first"
	default:
		return ""
	}
}
