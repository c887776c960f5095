package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"fara-hq/governor/pkg/action"
)

// maxReasonLen bounds the output excerpt carried in an action's reason.
const maxReasonLen = 512

// Shell runs the action's "cmd" param through the system shell. It exists
// as a reference executor for demos and tests; production deployments
// should register purpose-built executors instead.
type Shell struct{}

// Execute runs params["cmd"] under /bin/sh with the context deadline
// applied to the whole process tree.
func (Shell) Execute(ctx context.Context, a *action.Action) Result {
	cmd, _ := a.Params["cmd"].(string)
	if cmd == "" {
		return Result{Success: false, Reason: "missing cmd", Err: "missing cmd"}
	}

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if ctx.Err() == context.DeadlineExceeded {
		// The registry rewrites this into a timeout result; return a
		// placeholder that is correct even if it ever surfaces.
		return Result{Success: false, Reason: "timed out", Err: "timeout", TimedOut: true}
	}
	if err != nil {
		msg := excerpt(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exit: %v", err)
		}
		return Result{Success: false, Reason: msg, Err: msg}
	}

	out := excerpt(stdout.String())
	if out == "" {
		out = "ok"
	}
	return Result{Success: true, Reason: out}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxReasonLen {
		return s[:maxReasonLen]
	}
	return s
}
