package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/telekom/azauth/pkg/authflow"
)

// WriteAttemptTable prints one row per attempt of result.
func WriteAttemptTable(w io.Writer, result *authflow.Result) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FLOW\tSUCCESS\tDURATION\tERRORS\tCORRELATION_ID")
	if result != nil {
		for _, a := range result.Attempts {
			_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", a.Name, a.Success(), formatDuration(a.Duration), formatErrors(a.Errors), dash(a.CorrelationID))
		}
	}
	_ = tw.Flush()
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

// formatErrors shows the error count and the type of the last error.
func formatErrors(errs []error) string {
	if len(errs) == 0 {
		return "-"
	}
	last := strings.TrimPrefix(fmt.Sprintf("%T", errs[len(errs)-1]), "*")
	return fmt.Sprintf("%d (%s)", len(errs), last)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
