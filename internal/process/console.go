package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/core/display"
)

const consoleHelp = `commands:
  join <match_id>                       follow a match
  leave                                 stop following
  pick <dot|1|2|3|4|6|wicket>           select an outcome for the open ball
  boost                                 toggle confidence boost
  submit                                submit the selection
  over <innings> <over> <runs>          predict runs in an over
  milestone <type> <yes|no> <player>    batter_50, batter_100, bowler_3w, bowler_5w, team_200
  winner <team>                         predict the match winner
  status                                print the scoreboard
  inbox                                 recent notifications
  quit`

// Console is a line-oriented command reader over an Engine.
type Console struct {
	e   *Engine
	out io.Writer
}

func NewConsole(e *Engine, out io.Writer) *Console {
	return &Console{e: e, out: out}
}

// Run reads commands until quit, end of input or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !c.Exec(ctx, sc.Text()) {
			return
		}
	}
}

// Exec runs one command line. It returns false on quit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cmd {
	case "quit", "exit":
		return false
	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	case "join":
		if len(args) != 1 {
			c.usage("join <match_id>")
			return true
		}
		if _, err := c.e.Room.Subscribe(reqCtx, args[0]); err != nil {
			c.fail(err)
		}
	case "leave":
		c.e.Room.Unsubscribe()
	case "pick":
		if len(args) != 1 {
			c.usage("pick <outcome>")
			return true
		}
		if err := c.e.Window.Select(args[0]); err != nil {
			c.fail(err)
			return true
		}
		fmt.Fprintf(c.out, "selected %s\n", args[0])
	case "boost":
		on, err := c.e.Window.ToggleBoost()
		if err != nil {
			c.fail(err)
			return true
		}
		fmt.Fprintf(c.out, "boost %t\n", on)
	case "submit":
		p, err := c.e.Submitter.SubmitBall(reqCtx)
		if err != nil {
			c.fail(err)
			return true
		}
		fmt.Fprintf(c.out, "submitted %s for %s\n", p.Prediction, p.BallKey)
	case "over":
		nums, ok := atois(args, 3)
		if !ok {
			c.usage("over <innings> <over> <runs>")
			return true
		}
		c.report(c.e.Submitter.SubmitOver(reqCtx, nums[0], nums[1], nums[2]))
	case "milestone":
		if len(args) < 3 || (args[1] != "yes" && args[1] != "no") {
			c.usage("milestone <type> <yes|no> <player>")
			return true
		}
		kind := matchapi.MilestoneType(args[0])
		c.report(c.e.Submitter.SubmitMilestone(reqCtx, kind, strings.Join(args[2:], " "), args[1] == "yes"))
	case "winner":
		if len(args) == 0 {
			c.usage("winner <team>")
			return true
		}
		c.report(c.e.Submitter.SubmitMatchWinner(reqCtx, strings.Join(args, " ")))
	case "status":
		snap := c.e.Store.Snapshot()
		if snap.Match == nil {
			fmt.Fprintln(c.out, "not following a match")
			return true
		}
		display.PrintMatch(c.out, c.e.Display.BuildFrame("STATUS", snap))
	case "inbox":
		notes := c.e.Inbox.Recent()
		if len(notes) == 0 {
			fmt.Fprintln(c.out, "(no notifications)")
		}
		for _, n := range notes {
			fmt.Fprintf(c.out, "%s  %-18s %s  %s\n", n.Received.Format("15:04:05"), n.Notification.Type, n.Notification.Title, n.Notification.Body)
		}
	default:
		fmt.Fprintf(c.out, "unknown command %q, type 'help'\n", cmd)
	}
	return true
}

func (c *Console) report(p *matchapi.Prediction, err error) {
	if err != nil {
		c.fail(err)
		return
	}
	fmt.Fprintf(c.out, "submitted %s prediction %s\n", p.Type, p.ID)
}

func (c *Console) fail(err error) {
	fmt.Fprintf(c.out, "error: %v\n", err)
}

func (c *Console) usage(u string) {
	fmt.Fprintf(c.out, "usage: %s\n", u)
}

func atois(args []string, n int) ([]int, bool) {
	if len(args) != n {
		return nil, false
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
