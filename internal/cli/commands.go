// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/llmbridge/internal/config"
	"github.com/jeranaias/llmbridge/internal/storage"
	"github.com/jeranaias/llmbridge/internal/tasks"
)

// maxPending bounds unresolved /async rounds.
const maxPending = tasks.DefaultTrackerSize

// command is one slash command.
type command struct {
	name    string
	aliases []string
	usage   string
	summary string
	quit    bool
	run     func(ctx context.Context, s *Session, args string) error
}

var commands []*command

func init() {
	commands = []*command{
		{name: "/help", aliases: []string{"/h", "/?"}, summary: "Show this help", run: cmdHelp},
		{name: "/provider", usage: "[name]", summary: "Show or switch the active provider", run: cmdProvider},
		{name: "/key", usage: "<api-key>", summary: "Set the active provider's API key", run: cmdKey},
		{name: "/model", aliases: []string{"/m"}, usage: "[name]", summary: "Show or switch the active model", run: cmdModel},
		{name: "/set", usage: "<key> <value>", summary: "Set one configuration key", run: cmdSet},
		{name: "/load", usage: "<path>", summary: "Load a key=value config file", run: cmdLoad},
		{name: "/models-file", usage: "<path>", summary: "Load TOML or YAML model overrides", run: cmdModelsFile},
		{name: "/async", usage: "<message>", summary: "Start a chat round without waiting", run: cmdAsync},
		{name: "/resolve", usage: "[n|all] [seconds]", summary: "Wait for an /async round", run: cmdResolve},
		{name: "/tasks", summary: "List unresolved /async rounds", run: cmdTasks},
		{name: "/choose", usage: "<prompt> | <a> | <b> ...", summary: "Ask the model to pick one option", run: cmdChoose},
		{name: "/system", usage: "<text>", summary: "Prepend a system message to the history", run: cmdSystem},
		{name: "/history", summary: "Show the current caller's history", run: cmdHistory},
		{name: "/clear", aliases: []string{"/c"}, summary: "Clear the current caller's history", run: cmdClear},
		{name: "/forget", summary: "Drop the current caller entirely", run: cmdForget},
		{name: "/reset", summary: "Drop every caller's history", run: cmdReset},
		{name: "/caller", usage: "[label]", summary: "Show callers or switch to one", run: cmdCaller},
		{name: "/providers", usage: "[--all]", summary: "List ready (or all) providers", run: cmdProviders},
		{name: "/status", aliases: []string{"/s"}, summary: "Check readiness of every provider", run: cmdStatus},
		{name: "/help-provider", usage: "<name>", summary: "Show setup help for a provider", run: cmdHelpProvider},
		{name: "/models", summary: "List models for the active provider", run: cmdModels},
		{name: "/active", summary: "Show the active provider and model", run: cmdActive},
		{name: "/config", summary: "Show the configuration, secrets masked", run: cmdConfig},
		{name: "/transcripts", usage: "[n] | search <text> | mine | count", summary: "Browse recorded rounds", run: cmdTranscripts},
		{name: "/quit", aliases: []string{"/q", "/exit"}, summary: "Exit", quit: true},
	}
}

func lookupCommand(name string) *command {
	for _, c := range commands {
		if c.name == name || slices.Contains(c.aliases, name) {
			return c
		}
	}
	return nil
}

func commandNames() []string {
	var names []string
	for _, c := range commands {
		names = append(names, c.name)
		names = append(names, c.aliases...)
	}
	return names
}

// =============================================================================
// CHAT
// =============================================================================

func (s *Session) chat(ctx context.Context, text string) error {
	reply, err := s.engine.Chat(ctx, s.caller, text)
	if err != nil {
		return err
	}
	s.rounds++
	s.printReply(reply)
	return nil
}

func cmdAsync(_ context.Context, s *Session, args string) error {
	if args == "" {
		return errors.New("usage: /async <message>")
	}
	if s.pending.Len() >= maxPending {
		return fmt.Errorf("%d rounds are unresolved; /resolve some first", maxPending)
	}
	h, err := s.engine.ChatAsync(s.caller, args)
	if err != nil {
		return err
	}
	n, err := s.pending.Add(asyncRound{handle: h, caller: s.caller})
	if err != nil {
		return err
	}
	s.println(Paint(DimStyle, fmt.Sprintf("#%d started (%s)", n, h.Summary())))
	return nil
}

func cmdResolve(_ context.Context, s *Session, args string) error {
	p := NewArgParser(strings.Fields(args))
	timeout := s.ResolveTimeout
	if v := p.Positional(1); v != "" {
		d, err := ParseSeconds(v)
		if err != nil {
			return err
		}
		timeout = d
	}

	numbers := s.pending.Numbers()
	if len(numbers) == 0 {
		return errors.New("no unresolved rounds")
	}

	var targets []int
	switch which := p.Positional(0); which {
	case "":
		targets = numbers[:1]
	case "all":
		targets = numbers
	default:
		n, err := strconv.Atoi(strings.TrimPrefix(which, "#"))
		if err != nil {
			return fmt.Errorf("invalid round number %q", which)
		}
		targets = []int{n}
	}

	var errs []error
	for _, n := range targets {
		r, ok := s.pending.Take(n)
		if !ok {
			errs = append(errs, fmt.Errorf("no unresolved round #%d", n))
			continue
		}
		reply, err := r.handle.Resolve(timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("#%d: %w", n, err))
			continue
		}
		s.rounds++
		s.println(Paint(DimStyle, fmt.Sprintf("#%d [%s]", n, r.caller.Label())))
		s.printReply(reply)
	}
	return errors.Join(errs...)
}

func cmdTasks(_ context.Context, s *Session, _ string) error {
	numbers := s.pending.Numbers()
	if len(numbers) == 0 {
		s.println(Paint(DimStyle, "No unresolved rounds."))
		return nil
	}
	for _, n := range numbers {
		r, ok := s.pending.Get(n)
		if !ok {
			continue
		}
		s.printf("#%-3d %-9s %s\n", n, r.handle.Status(), Truncate(r.handle.Summary(), GetTerminalWidth()-16))
	}
	return nil
}

// parseChoose splits "prompt | a | b" into the prompt and its choices.
func parseChoose(args string) (string, []string, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 2 {
		return "", nil, errors.New("usage: /choose <prompt> | <a> | <b> ...")
	}
	prompt := strings.TrimSpace(parts[0])
	var choices []string
	for _, c := range parts[1:] {
		if c = strings.TrimSpace(c); c != "" {
			choices = append(choices, c)
		}
	}
	if len(choices) == 0 {
		return "", nil, errors.New("/choose needs at least one non-empty choice")
	}
	return prompt, choices, nil
}

func cmdChoose(ctx context.Context, s *Session, args string) error {
	prompt, choices, err := parseChoose(args)
	if err != nil {
		return err
	}
	pick, err := s.engine.Choose(ctx, s.caller, prompt, choices)
	if err != nil {
		return err
	}
	s.rounds++
	s.println(Paint(SuccessStyle, "=> ") + pick)
	return nil
}

// =============================================================================
// HISTORY AND CALLERS
// =============================================================================

func cmdSystem(_ context.Context, s *Session, args string) error {
	if args == "" {
		return errors.New("usage: /system <text>")
	}
	pairs := append([][]string{{"system", args}}, s.engine.History(s.caller)...)
	return s.engine.SetHistory(s.caller, pairs)
}

func cmdHistory(_ context.Context, s *Session, _ string) error {
	pairs := s.engine.History(s.caller)
	if len(pairs) == 0 {
		s.println(Paint(DimStyle, "No history for "+s.caller.Label()+"."))
		return nil
	}
	for _, p := range pairs {
		role, content := p[0], p[1]
		style := DimStyle
		switch role {
		case "user":
			style = PromptStyle
		case "assistant":
			style = ReplyStyle
		}
		s.println(Paint(style, PadRight(role+":", 11)) + WrapText(content, GetTerminalWidth()-11))
	}
	return nil
}

func cmdClear(_ context.Context, s *Session, _ string) error {
	s.engine.ClearHistory(s.caller)
	s.println(Paint(DimStyle, "History cleared for "+s.caller.Label()+"."))
	return nil
}

func cmdForget(_ context.Context, s *Session, _ string) error {
	label := s.caller.Label()
	s.engine.Forget(s.caller)
	delete(s.callers, label)
	s.caller = s.callerFor(label)
	s.println(Paint(DimStyle, "Forgot "+label+"."))
	return nil
}

func cmdReset(_ context.Context, s *Session, _ string) error {
	s.engine.Reset()
	s.println(Paint(DimStyle, "Every caller's history was dropped."))
	return nil
}

func cmdCaller(_ context.Context, s *Session, args string) error {
	if args == "" {
		labels := make([]string, 0, len(s.callers))
		for l := range s.callers {
			labels = append(labels, l)
		}
		slices.Sort(labels)
		for _, l := range labels {
			marker := "  "
			if l == s.caller.Label() {
				marker = "* "
			}
			s.printf("%s%s (%d messages)\n", marker, PadRight(l, 16), len(s.engine.History(s.callers[l])))
		}
		return nil
	}
	if strings.ContainsAny(args, " \t") {
		return errors.New("caller labels are a single word")
	}
	s.caller = s.callerFor(args)
	return nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func cmdProvider(ctx context.Context, s *Session, args string) error {
	if args == "" {
		return cmdActive(ctx, s, "")
	}
	if err := s.engine.SetProvider(ctx, args); err != nil {
		return err
	}
	p, m := s.engine.Active()
	s.println(Paint(SuccessStyle, "Provider set to "+p) + Paint(DimStyle, " (model "+m+")"))
	return nil
}

func cmdKey(_ context.Context, s *Session, args string) error {
	if args == "" {
		return errors.New("usage: /key <api-key>")
	}
	if err := s.engine.SetAPIKey(args); err != nil {
		return err
	}
	s.println(Paint(SuccessStyle, "API key set ") + Paint(DimStyle, config.Mask(args)))
	return nil
}

func cmdModel(ctx context.Context, s *Session, args string) error {
	if args == "" {
		_, m := s.engine.Active()
		s.println(m)
		return nil
	}
	if err := s.engine.SetModel(ctx, args); err != nil {
		return err
	}
	s.println(Paint(SuccessStyle, "Model set to "+args))
	return nil
}

func cmdSet(_ context.Context, s *Session, args string) error {
	key, value, ok := strings.Cut(args, " ")
	if !ok || strings.TrimSpace(value) == "" {
		return errors.New("usage: /set <key> <value>")
	}
	if err := s.engine.Set(key, strings.TrimSpace(value)); err != nil {
		return err
	}
	s.println(Paint(SuccessStyle, "Set "+config.NormalizeKey(key)))
	return nil
}

func cmdLoad(ctx context.Context, s *Session, args string) error {
	if args == "" {
		return errors.New("usage: /load <path>")
	}
	if err := s.engine.LoadConfig(ctx, args); err != nil {
		return err
	}
	p, m := s.engine.Active()
	s.println(Paint(SuccessStyle, "Loaded "+s.engine.ConfigPath()) + Paint(DimStyle, " ("+p+", "+m+")"))
	return nil
}

func cmdModelsFile(_ context.Context, s *Session, args string) error {
	if args == "" {
		return errors.New("usage: /models-file <path>")
	}
	if err := s.engine.LoadModelOverrides(args); err != nil {
		return err
	}
	s.println(Paint(SuccessStyle, "Model overrides loaded from "+args))
	return nil
}

// =============================================================================
// DISCOVERY
// =============================================================================

func cmdProviders(ctx context.Context, s *Session, args string) error {
	var names []string
	if NewArgParser(strings.Fields(args)).BoolFlag("all") {
		names = s.engine.ProvidersAll()
	} else {
		names = s.engine.Providers(ctx)
	}
	if len(names) == 0 {
		s.println(Paint(WarningStyle, "No provider is ready. Try /status and /help-provider <name>."))
		return nil
	}
	s.println(strings.Join(names, "\n"))
	return nil
}

func cmdStatus(ctx context.Context, s *Session, _ string) error {
	active, _ := s.engine.Active()
	for _, st := range s.engine.ProviderStatus(ctx) {
		marker := "  "
		if string(st.Name) == active {
			marker = "* "
		}
		detail := st.Model
		if !st.Ready {
			detail = st.Reason
		}
		s.printf("%s%s %s %s\n", marker, RenderStatus(st.Ready), PadRight(string(st.Name), 10),
			Truncate(detail, GetTerminalWidth()-22))
	}
	return nil
}

func cmdHelpProvider(_ context.Context, s *Session, args string) error {
	if args == "" {
		active, _ := s.engine.Active()
		args = active
	}
	text, err := s.engine.ProviderHelp(args)
	if err != nil {
		return err
	}
	s.printf("%s", text)
	return nil
}

func cmdModels(ctx context.Context, s *Session, _ string) error {
	models, err := s.engine.Models(ctx)
	if err != nil {
		return err
	}
	_, active := s.engine.Active()
	for _, m := range models {
		if m == active {
			s.println(Paint(SuccessStyle, "* "+m))
			continue
		}
		s.println("  " + m)
	}
	return nil
}

func cmdActive(_ context.Context, s *Session, _ string) error {
	p, m := s.engine.Active()
	s.printField("Provider", p)
	s.printField("Model", m)
	s.printField("Caller", s.caller.Label())
	if path := s.engine.ConfigPath(); path != "" {
		s.printField("Config", path)
	}
	return nil
}

func cmdConfig(_ context.Context, s *Session, _ string) error {
	s.println(s.engine.ConfigSummary())
	return nil
}

// =============================================================================
// TRANSCRIPTS
// =============================================================================

func cmdTranscripts(ctx context.Context, s *Session, args string) error {
	if s.transcripts == nil {
		return errors.New("transcripts are off; start with --transcripts")
	}
	p := NewArgParser(strings.Fields(args))
	limit := p.FlagIntOrDefault("limit", 10)

	var (
		rounds []storage.Round
		err    error
	)
	switch sub := p.Positional(0); sub {
	case "count":
		n, err := s.transcripts.Count(ctx)
		if err != nil {
			return err
		}
		s.printf("%d rounds recorded in %s\n", n, s.transcripts.Path())
		return nil
	case "search":
		text := strings.Join(p.PositionalFrom(1), " ")
		if text == "" {
			return errors.New("usage: /transcripts search <text>")
		}
		rounds, err = s.transcripts.Search(ctx, text, limit)
	case "mine":
		rounds, err = s.transcripts.ForCaller(ctx, s.caller.ID(), limit)
	case "":
		rounds, err = s.transcripts.Recent(ctx, limit)
	default:
		n, convErr := strconv.Atoi(sub)
		if convErr != nil {
			return fmt.Errorf("unknown /transcripts argument %q", sub)
		}
		rounds, err = s.transcripts.Recent(ctx, n)
	}
	if err != nil {
		return err
	}
	if len(rounds) == 0 {
		s.println(Paint(DimStyle, "No rounds recorded."))
		return nil
	}
	for _, r := range rounds {
		s.println(formatRound(r, GetTerminalWidth()))
	}
	return nil
}

// formatRound renders one transcript row within width cells.
func formatRound(r storage.Round, width int) string {
	head := fmt.Sprintf("%s %s %s %s/%s %s ",
		r.CreatedAt.Format(time.DateTime),
		PadRight(r.CallerLabel, 8),
		PadRight(string(r.Kind), 6),
		r.Provider, r.Model,
		r.Duration.Round(time.Millisecond),
	)
	body := r.Prompt + " -> " + r.Reply
	if r.Failed() {
		body = r.Prompt + " !! " + r.Error
	}
	room := max(width-len(head), 20)
	line := head + Truncate(body, room)
	if r.Failed() {
		return Paint(ErrorStyle, line)
	}
	return line
}

// =============================================================================
// HELP
// =============================================================================

func cmdHelp(_ context.Context, s *Session, args string) error {
	if args != "" {
		name := args
		if !strings.HasPrefix(name, "/") {
			name = "/" + name
		}
		c := lookupCommand(name)
		if c == nil {
			return fmt.Errorf("unknown command %s", name)
		}
		s.printf("%s %s\n  %s\n", c.name, c.usage, c.summary)
		return nil
	}

	s.println(Paint(TitleStyle, "Commands"))
	for _, c := range commands {
		left := strings.TrimSpace(c.name + " " + c.usage)
		s.printf("  %s %s\n", Paint(CommandStyle, PadRight(left, 34)), c.summary)
	}
	s.println(Paint(DimStyle, "  Anything else is sent as a chat message. Ctrl+C cancels a running request."))
	return nil
}
