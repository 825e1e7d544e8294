package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/showroom/internal/chat"
	"github.com/matheus3301/showroom/internal/devserver"
	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/session"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	yesFlag := flag.Bool("yes", false, "confirm moderation commands without asking")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	// token talks to no daemon.
	if args[0] == "token" {
		cmdToken(args[1:])
		return
	}

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fatal(err)
	}

	socketPath := session.SocketPath(profile)
	c, err := rpc.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profile, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "channels":
		cmdChannels(ctx, c, *jsonFlag)
	case "open":
		need(args, 2, "open <target>")
		cmdOpen(ctx, c, args[1], *jsonFlag)
	case "send":
		need(args, 3, "send <target> <text...>")
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *yesFlag, *jsonFlag)
	case "retry":
		need(args, 2, "retry <temp-id>")
		cmdRetry(ctx, c, args[1], *jsonFlag)
	case "roster":
		cmdRoster(ctx, c, *jsonFlag)
	case "presence":
		need(args, 2, "presence <online|idle|dnd|invisible|offline>")
		if err := c.SetStatus(ctx, args[1]); err != nil {
			fatal(err)
		}
	case "attach":
		need(args, 2, "attach <file...>")
		cmdAttach(ctx, c, args[1:], *jsonFlag)
	case "search":
		need(args, 2, "search <query...>")
		cmdSearch(ctx, c, strings.Join(args[1:], " "), *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: showroomctl [--profile <name>] [--json] [--yes] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                  Show daemon and stream status")
	fmt.Fprintln(os.Stderr, "  channels                List channels and their permissions")
	fmt.Fprintln(os.Stderr, "  open <target>           Switch to #channel or email and print history")
	fmt.Fprintln(os.Stderr, "  send <target> <text>    Send a message or /command to a target")
	fmt.Fprintln(os.Stderr, "  retry <temp-id>         Re-send a failed message")
	fmt.Fprintln(os.Stderr, "  roster                  Show who is around")
	fmt.Fprintln(os.Stderr, "  presence <status>       Set your own presence")
	fmt.Fprintln(os.Stderr, "  attach <file...>        Upload files to the attachment tray")
	fmt.Fprintln(os.Stderr, "  search <query>          Search cached messages")
	fmt.Fprintln(os.Stderr, "  watch [namespace...]    Stream daemon events")
	fmt.Fprintln(os.Stderr, "  token [flags]           Mint a devserver token")
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, "usage: showroomctl "+usage)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *rpc.Client, jsonOut bool) {
	resp, err := c.GetStatus(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile:  %s\n", resp.Profile)
	fmt.Printf("Identity: %s (%s)\n", resp.Identity.Email, resp.Identity.Role)
	fmt.Printf("State:    %s since %s\n", resp.State, resp.StateSince.Local().Format(time.TimeOnly))
	if resp.Failures > 0 {
		fmt.Printf("Failures: %d\n", resp.Failures)
	}
	fmt.Printf("Target:   %s\n", orDash(resp.Target))
	fmt.Printf("Presence: %s\n", resp.Presence)
	fmt.Printf("Cached:   %d targets, %d messages\n", resp.TargetCount, resp.MessageCount)
	fmt.Printf("Uptime:   %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
}

func cmdChannels(ctx context.Context, c *rpc.Client, jsonOut bool) {
	resp, err := c.ListChannels(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Stale {
		fmt.Fprintln(os.Stderr, "warning: server unreachable, showing cached channels")
	}
	for _, ch := range resp.Channels {
		lock := ""
		if ch.IsLocked(time.Now()) {
			lock = "locked"
		}
		fmt.Printf("#%-20s %-24s role=%-6s plan=%-6s %s\n", ch.Slug, ch.Title, orDash(ch.ReadRole), orDash(ch.ReadPlan), lock)
	}
}

func cmdOpen(ctx context.Context, c *rpc.Client, target string, jsonOut bool) {
	view, err := c.SwitchTarget(ctx, target)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(view)
		return
	}
	if view.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", view.Warning)
	}
	fmt.Printf("%s (%d messages)\n", view.Target, len(view.Messages))
	if !view.CanSend {
		fmt.Printf("read only: %s\n", view.Reason)
	}
	for _, m := range view.Messages {
		printMessage(m, view.URLs)
	}
}

func cmdSend(ctx context.Context, c *rpc.Client, target, text string, yes, jsonOut bool) {
	if _, err := c.SwitchTarget(ctx, target); err != nil {
		fatal(err)
	}
	resp, err := c.SendText(ctx, text, false)
	if err != nil {
		fatal(err)
	}
	if cmd := resp.Command; cmd != nil && cmd.NeedsConfirm {
		if !yes {
			fmt.Fprintf(os.Stderr, "%s\nre-run with --yes to confirm\n", cmd.Message)
			os.Exit(1)
		}
		if resp, err = c.SendText(ctx, text, true); err != nil {
			fatal(err)
		}
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	switch {
	case resp.Command != nil && resp.Command.Error != "":
		fatal(fmt.Errorf("/%s: %s", resp.Command.Command, resp.Command.Error))
	case resp.Command != nil:
		fmt.Println(resp.Command.Message)
	case resp.Message != nil:
		fmt.Printf("queued %s\n", resp.Message.TempID)
	}
}

func cmdRetry(ctx context.Context, c *rpc.Client, tempID string, jsonOut bool) {
	resp, err := c.Retry(ctx, tempID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("requeued %s\n", resp.Message.TempID)
}

func cmdRoster(ctx context.Context, c *rpc.Client, jsonOut bool) {
	resp, err := c.ListRoster(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("you: %s\n", resp.Self)
	for _, e := range resp.Entries {
		fmt.Printf("%-32s %-20s %s\n", e.Email, e.Name, e.Status)
	}
}

func cmdAttach(ctx context.Context, c *rpc.Client, paths []string, jsonOut bool) {
	files := make([]rpc.AttachmentFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fatal(err)
		}
		files = append(files, rpc.AttachmentFile{Name: filepath.Base(p), Data: data})
	}
	resp, err := c.AddAttachments(ctx, files)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	for _, r := range resp.Results {
		if r.Error != "" {
			fmt.Printf("%-24s rejected: %s\n", r.Name, r.Error)
			continue
		}
		fmt.Printf("%-24s %s\n", r.Name, r.Key)
	}
}

func cmdSearch(ctx context.Context, c *rpc.Client, query string, jsonOut bool) {
	resp, err := c.Search(ctx, &rpc.SearchRequest{Query: query, Limit: 50})
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Hits) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, h := range resp.Hits {
		fmt.Printf("%-24s %s  %s\n", h.Target, h.Message.CreatedAt.Local().Format(time.DateTime), h.Snippet)
	}
}

func cmdWatch(c *rpc.Client, namespaces []string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := c.WatchEvents(ctx, namespaces...)
	if err != nil {
		fatal(err)
	}
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fatal(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		at := time.UnixMilli(evt.OccurredAtMs).Local().Format(time.TimeOnly)
		fmt.Printf("%s %-24s %s\n", at, evt.Kind, evt.Payload)
	}
}

func cmdToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	secret := fs.String("secret", os.Getenv("SHOWROOM_DEV_SECRET"), "devserver signing secret")
	email := fs.String("email", "", "identity email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "member", "admin or member")
	plan := fs.String("plan", "", "plan name")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime (0 never expires)")
	_ = fs.Parse(args)

	if *secret == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "usage: showroomctl token --secret <s> --email <e> [--role r] [--plan p] [--ttl d]")
		os.Exit(1)
	}
	tok, err := devserver.MintToken([]byte(*secret), chat.Identity{
		Email: strings.ToLower(*email),
		Name:  *name,
		Role:  *role,
		Plan:  *plan,
	}, *ttl)
	if err != nil {
		fatal(err)
	}
	fmt.Println(tok)
}

func printMessage(m chat.Message, urls map[string]string) {
	from := m.UserName
	if from == "" {
		from = m.UserEmail
	}
	status := ""
	if m.Status != "" && m.Status != chat.StatusSent {
		status = " [" + string(m.Status) + "]"
	}
	fmt.Printf("%s %s: %s%s\n", m.CreatedAt.Local().Format(time.TimeOnly), from, m.Text, status)
	for _, a := range m.Attachments {
		if u, ok := urls[a]; ok {
			fmt.Printf("    %s\n", u)
		} else {
			fmt.Printf("    %s\n", a)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
