package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/showroom/internal/rpc"
	"github.com/matheus3301/showroom/internal/tui/keys"
	"github.com/matheus3301/showroom/internal/tui/model"
	"github.com/matheus3301/showroom/internal/tui/ui"
	"github.com/matheus3301/showroom/internal/tui/views"
)

const (
	pageTargets = "targets"
	pageThread  = "thread"
	pageRoster  = "roster"
	pageSearch  = "search"
	pageHelp    = "help"
	pageInfo    = "details"
)

// Daemon is the backend plus the event stream. *rpc.Client implements it.
type Daemon interface {
	model.Backend
	WatchEvents(ctx context.Context, namespaces ...string) (*rpc.EventStream, error)
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	daemon   Daemon
	vm       *model.ViewModel
	registry *keys.Registry
	theme    *ui.Theme
	profile  string

	root        *tview.Flex
	pages       *ui.Pages
	profileInfo *ui.ProfileInfo
	menu        *ui.Menu
	logo        *ui.Logo
	crumbs      *ui.Crumbs
	prompt      *ui.Prompt
	flashBar    *ui.FlashBar
	statusBar   *views.StatusBar

	targets *views.TargetList
	thread  *views.Thread
	roster  *views.Roster
	search  *views.SearchView
	help    *views.HelpView
	info    *views.TargetInfo

	components map[string]ui.Component
	focused    bool
	confirming string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(d Daemon, profile string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:         tview.NewApplication(),
		daemon:      d,
		vm:          model.NewViewModel(d),
		registry:    keys.NewRegistry(),
		theme:       theme,
		profile:     profile,
		pages:       ui.NewPages(),
		profileInfo: ui.NewProfileInfo(theme),
		menu:        ui.NewMenu(theme),
		logo:        ui.NewLogo(theme),
		crumbs:      ui.NewCrumbs(theme),
		prompt:      ui.NewPrompt(theme),
		flashBar:    ui.NewFlashBar(theme),
		statusBar:   views.NewStatusBar(theme),
		targets:     views.NewTargetList(theme),
		thread:      views.NewThread(theme),
		roster:      views.NewRoster(theme),
		search:      views.NewSearchView(theme),
		help:        views.NewHelpView(theme),
		info:        views.NewTargetInfo(theme),
		ctx:         ctx,
		cancel:      cancel,
	}
	a.components = map[string]ui.Component{
		pageTargets: a.targets,
		pageThread:  a.thread,
		pageRoster:  a.roster,
		pageSearch:  a.search,
		pageHelp:    a.help,
		pageInfo:    a.info,
	}

	a.statusBar.SetProfile(profile)
	a.crumbs.Label = func(page string) string {
		if c, ok := a.components[page]; ok {
			return c.Name()
		}
		return page
	}
	a.prompt.SetCommands(commandNames)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune, Label: "q",
		Description: "Quit/Back", Visible: true,
		Handler: func() {
			if len(a.pages.Stack()) > 1 {
				a.back()
				return
			}
			a.Stop()
		},
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune, Label: ":",
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune, Label: "?",
		Description: "Help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})

	a.registry.AddView(pageTargets, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune, Label: "/",
		Description: "Filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageTargets, "clear", &keys.Action{
		Rune: '0', Key: tcell.KeyRune, Label: "0",
		Description: "Clear filter",
		Handler:     func() { a.targets.ClearFilter() },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(pageTargets, fmt.Sprintf("jump-%d", n), &keys.Action{
			Rune: rune('0' + n), Key: tcell.KeyRune,
			Handler: func() {
				if t, ok := a.targets.ByIndex(n); ok {
					a.open(t.Key())
				}
			},
		})
	}
	a.registry.AddView(pageTargets, "roster", &keys.Action{
		Rune: 'p', Key: tcell.KeyRune, Label: "p",
		Description: "Roster", Visible: true,
		Handler: func() { a.showRoster() },
	})

	a.registry.AddView(pageThread, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune, Label: "i",
		Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, "retry", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune, Label: "r",
		Description: "Retry failed", Visible: true,
		Handler: func() {
			a.async(func() error { return a.vm.RetryLast(a.ctx) })
		},
	})
	a.registry.AddView(pageThread, "attach", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune, Label: "a",
		Description: "Attach", Visible: true,
		Handler: func() {
			a.showPrompt(ui.PromptCommand)
			a.prompt.SetText("attach ")
		},
	})
	a.registry.AddView(pageThread, "details", &keys.Action{
		Rune: 'd', Key: tcell.KeyRune, Label: "d",
		Description: "Details", Visible: true,
		Handler: func() { a.push(pageInfo) },
	})
}

func (a *App) setupCallbacks() {
	a.targets.SetSelectedFunc(func(row, col int) {
		if t, ok := a.targets.Selected(); ok {
			a.open(t.Key())
		}
	})
	a.roster.SetSelectedFunc(func(row, col int) {
		if email := a.roster.Selected(); email != "" {
			a.open(email)
		}
	})
	a.search.Results().SetSelectedFunc(func(row, col int) {
		if t := a.search.SelectedTarget(); t != "" {
			a.open(t)
		}
	})
	a.search.SetOnQuery(a.runSearch)
	a.thread.SetOnSend(func(text string) { a.send(text, false) })

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptFilter:
			a.targets.SetFilter(text)
		case ui.PromptConfirm:
			pending := a.confirming
			a.confirming = ""
			if ui.Confirmed(text) {
				a.send(pending, true)
			} else {
				a.vm.Flash.Info("cancelled")
				a.renderFlash()
			}
		}
	})
	a.prompt.SetOnCancel(func() {
		a.confirming = ""
		a.hidePrompt()
	})

	a.pages.SetOnChange(func(stack []string) {
		a.crumbs.Update(stack)
		current := a.pages.Current()
		a.menu.Update(a.hints(current))
		a.setFocused(current == pageThread)
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c.(tview.Primitive), true, false)
	}

	header := tview.NewFlex().
		AddItem(a.profileInfo, 0, 1, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, 16, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
	a.pages.Reset(pageTargets)
	a.app.SetFocus(a.targets)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		a.Stop()
		return nil
	}

	// Let text input widgets handle all keys normally.
	focused := a.app.GetFocus()
	if focused == tview.Primitive(a.prompt) {
		return event
	}
	if _, ok := focused.(*tview.InputField); ok {
		if event.Key() == tcell.KeyEscape {
			if focused == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
			} else {
				a.back()
			}
			return nil
		}
		return event
	}

	if event.Key() == tcell.KeyEscape {
		a.back()
		return nil
	}
	if a.registry.HandleEvent(a.pages.Current(), event) {
		return nil
	}
	return event
}

// hints merges key bindings with the page's own hints, bindings first.
func (a *App) hints(page string) []ui.MenuHint {
	hints := a.registry.Hints(page)
	seen := make(map[string]bool, len(hints))
	for _, h := range hints {
		seen[h.Key] = true
	}
	if c, ok := a.components[page]; ok {
		for _, h := range c.Hints() {
			if !seen[h.Key] {
				hints = append(hints, h)
			}
		}
	}
	return hints
}

func (a *App) push(page string) {
	a.pages.Push(page)
	a.focusPage(page)
}

func (a *App) back() {
	if len(a.pages.Stack()) <= 1 {
		return
	}
	a.pages.Pop()
	a.focusPage(a.pages.Current())
}

func (a *App) focusPage(page string) {
	switch page {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	default:
		if c, ok := a.components[page]; ok {
			a.app.SetFocus(c.(tview.Primitive))
		}
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) ask(question string) {
	a.prompt.Ask(question)
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusPage(a.pages.Current())
}

// setFocused reports thread visibility to the daemon, which uses it to
// decide whether incoming messages notify.
func (a *App) setFocused(v bool) {
	if a.focused == v {
		return
	}
	a.focused = v
	go func() {
		if err := a.vm.SetFocus(a.ctx, v); err != nil {
			a.flashErr(err)
		}
	}()
}

// async runs fn off the UI goroutine and redraws when it finishes.
func (a *App) async(fn func() error) {
	go func() {
		if err := fn(); err != nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
	}()
}

func (a *App) flashErr(err error) {
	a.vm.Flash.Err(err)
	a.app.QueueUpdateDraw(a.renderFlash)
}

func (a *App) open(target string) {
	go func() {
		if _, err := a.vm.Open(a.ctx, target); err != nil {
			a.flashErr(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.render()
			a.push(pageThread)
		})
	}()
}

func (a *App) send(text string, confirmed bool) {
	go func() {
		resp, err := a.vm.Send(a.ctx, text, confirmed)
		if err != nil {
			a.flashErr(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			if cmd := resp.Command; cmd != nil && cmd.NeedsConfirm {
				question, _, _ := strings.Cut(cmd.Message, "?")
				a.confirming = text
				a.ask(question + "?")
				return
			}
			a.render()
		})
	}()
}

func (a *App) runSearch(query string) {
	go func() {
		hits, err := a.vm.Search(a.ctx, query)
		if err != nil {
			a.flashErr(err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.search.Update(hits)
			a.app.SetFocus(a.search.Results())
		})
	}()
}

func (a *App) showRoster() {
	a.push(pageRoster)
	a.async(func() error { return a.vm.LoadRoster(a.ctx) })
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "open", "dm":
		if cmd.Args == "" {
			a.vm.Flash.Warn(":" + cmd.Name + " needs a target")
			break
		}
		a.open(cmd.Args)
	case "search":
		a.push(pageSearch)
		a.search.SetQuery(cmd.Args)
		if cmd.Args != "" {
			a.runSearch(cmd.Args)
		}
	case "attach":
		files, err := readFiles(cmd.Fields())
		if err != nil {
			a.vm.Flash.Err(err)
			break
		}
		a.async(func() error { return a.vm.Attach(a.ctx, files) })
	case "toggle", "retry":
		n, err := cmd.Index()
		if err != nil {
			a.vm.Flash.Err(err)
			break
		}
		if cmd.Name == "toggle" {
			a.async(func() error { return a.vm.ToggleAttachment(a.ctx, n) })
		} else {
			a.async(func() error { return a.vm.RetryAttachment(a.ctx, n) })
		}
	case "status":
		a.async(func() error { return a.vm.SetPresence(a.ctx, cmd.Args) })
	case "roster":
		a.showRoster()
	case "info":
		if a.vm.Active().IsZero() {
			a.vm.Flash.Warn("no target open")
			break
		}
		a.push(pageInfo)
	case "help":
		a.push(pageHelp)
	case "quit":
		a.Stop()
	default:
		a.vm.Flash.Warn("unknown command: " + cmd.Name)
	}
	a.renderFlash()
}

func readFiles(paths []string) ([]rpc.AttachmentFile, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf(":attach needs at least one path")
	}
	files := make([]rpc.AttachmentFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, rpc.AttachmentFile{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// render refreshes every view from the model. Must run on the UI goroutine.
func (a *App) render() {
	st := a.vm.Status()
	var self string
	if st != nil {
		self = st.Identity.Email
	}

	a.targets.Update(a.vm.Targets(), a.vm.Stale())
	if view := a.vm.Thread(); view != nil {
		a.thread.Update(view, self)
		a.info.Update(view)
	}
	a.thread.UpdateTray(a.vm.Attachments())
	entries, me := a.vm.Roster()
	a.roster.Update(entries, me)
	a.renderHeader(st)
	a.renderFlash()
}

func (a *App) renderHeader(st *rpc.StatusResponse) {
	if st == nil {
		a.profileInfo.Update(&ui.ProfileData{Profile: a.profile, State: "DISCONNECTED"})
		a.statusBar.SetState("DISCONNECTED")
		a.logo.SetState("DISCONNECTED")
		return
	}
	a.profileInfo.Update(&ui.ProfileData{
		Profile:  st.Profile,
		Email:    st.Identity.Email,
		Role:     st.Identity.Role,
		State:    st.State,
		Target:   st.Target,
		Targets:  st.TargetCount,
		Messages: st.MessageCount,
		Uptime:   time.Duration(st.UptimeMs) * time.Millisecond,
	})
	a.statusBar.SetState(st.State)
	a.statusBar.SetTarget(st.Target)
	a.logo.SetState(st.State)
}

func (a *App) renderFlash() {
	a.flashBar.Update(a.vm.Flash.GetMessage())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		if err := a.vm.Refresh(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
		go a.watchEvents()
		a.tick()
	}()
	return a.app.Run()
}

// watchEvents folds daemon events into the model, resubscribing and
// resyncing after the stream drops.
func (a *App) watchEvents() {
	for a.ctx.Err() == nil {
		stream, err := a.daemon.WatchEvents(a.ctx)
		if err == nil {
			for {
				evt, err := stream.Recv()
				if err != nil {
					break
				}
				if a.vm.Apply(evt) {
					a.app.QueueUpdateDraw(a.render)
				}
			}
		}
		if a.ctx.Err() != nil {
			return
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
		if err := a.vm.Refresh(a.ctx); err != nil {
			a.vm.Flash.Err(err)
		}
		a.app.QueueUpdateDraw(a.render)
	}
}

// tick redraws the header clock and expires flash messages.
func (a *App) tick() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	status := time.NewTicker(10 * time.Second)
	defer status.Stop()
	flashes := a.vm.Flash.Watch()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-flashes:
			a.app.QueueUpdateDraw(a.renderFlash)
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.renderFlash)
		case <-status.C:
			_ = a.vm.LoadStatus(a.ctx)
			a.app.QueueUpdateDraw(func() { a.renderHeader(a.vm.Status()) })
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
