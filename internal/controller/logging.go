package controller

import (
	"fmt"
	"strings"
	"time"
)

// CloudLogger receives a copy of every run log line. *gcp.CloudLogger
// implements it.
type CloudLogger interface {
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// logInfo logs at INFO level to both local logger and cloud logger
func (c *Controller) logInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("%s", msg)
	if c.cloudLogger != nil {
		c.cloudLogger.Info(msg)
	}
}

// logWarning logs at WARNING level to both local logger and cloud logger
func (c *Controller) logWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("Warning: %s", msg)
	if c.cloudLogger != nil {
		c.cloudLogger.Warning(msg)
	}
}

// logError logs at ERROR level to both local logger and cloud logger
func (c *Controller) logError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Printf("Error: %s", msg)
	if c.cloudLogger != nil {
		c.cloudLogger.Error(msg)
	}
}

// logBlock logs a multi-line text such as a model reply, one line per call
// so the cloud copy keeps line boundaries.
func (c *Controller) logBlock(title, text string) {
	c.logInfo("---- %s ----", title)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		c.logInfo("%s", line)
	}
}

// logIterationSummary prints the per-iteration timing block.
func (c *Controller) logIterationSummary(rec IterationRecord) {
	status := string(rec.Verdict)
	if status == "" {
		status = "INCOMPLETE"
	}
	feedback := rec.FeedbackStatus
	if feedback == "" {
		feedback = "No feedback yet"
	}

	c.logInfo("--------------------------------------------------------------")
	c.logInfo("Iteration Summary:")
	c.logInfo(" Feedback round:         %d", rec.Round)
	c.logInfo(" Code iteration:         %d", rec.Index)
	c.logInfo(" Pass/fail status:       %s", status)
	c.logInfo(" User feedback status:   %s", feedback)
	if rec.Reused {
		c.logInfo(" (Used code from the previous judgment reply; no generation call.)")
	}
	c.logInfo("   Code Generation time: %s", seconds(rec.Timings.Generation))
	c.logInfo("   Code Execution time:  %s", seconds(rec.Timings.Execution))
	c.logInfo("   Judgment Step time:   %s", seconds(rec.Timings.Judgment))
	c.logInfo("   User Feedback time:   %s", seconds(rec.Timings.Feedback))
	c.logInfo(" Total iteration time:   %s", seconds(rec.Timings.Total))
	c.logInfo("--------------------------------------------------------------")
}

// logFinalSummary prints the PASS/FAIL tally.
func (c *Controller) logFinalSummary(s RunSummary) {
	c.logInfo("===================== FINAL SUMMARY =====================")
	c.logInfo("Run ID: %s", s.RunID)
	c.logInfo("Final state: %s", s.State)
	for _, r := range s.Rounds {
		c.logInfo(" Feedback round %d: %d iteration(s), %s", r.Index, len(r.Iterations), seconds(r.Duration()))
	}
	c.logInfo("Total PASS statements: %d", s.Passes)
	c.logInfo("Total FAIL statements: %d", s.Fails)
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2f s", d.Seconds())
}
