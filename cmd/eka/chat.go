package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fwojciec/eka"
	bt "github.com/fwojciec/eka/bubbletea"
	"github.com/fwojciec/eka/chat"
	"github.com/spf13/cobra"
)

func newChatCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), env)
		},
	}
}

func runChat(ctx context.Context, env *environment) error {
	f, err := env.logFile()
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	log, err := newLogger(f, env.cfg.LogLevel)
	if err != nil {
		return err
	}

	ctrl, closeCtrl, err := env.openController(log)
	if err != nil {
		return err
	}
	defer closeCtrl()

	m := bt.New(ctrl, eka.DefaultTheme(), bt.WithClock(env.now))
	if err := bt.Run(ctx, m); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	return nil
}

type askFlags struct {
	newConversation bool
	conversationID  string
	noStream        bool
}

func newAskCmd(env *environment) *cobra.Command {
	var flags askFlags
	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask one question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), env, flags, strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVarP(&flags.newConversation, "new", "n", false, "ask in a new conversation")
	cmd.Flags().StringVar(&flags.conversationID, "conversation", "", "ask in the conversation with this ID")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "wait for the whole answer; nothing is saved")
	return cmd
}

func runAsk(ctx context.Context, env *environment, flags askFlags, question string) error {
	if flags.noStream {
		return runAskOnce(ctx, env, question)
	}
	ctrl, closeCtrl, err := env.openController(env.log)
	if err != nil {
		return err
	}
	defer closeCtrl()

	id := flags.conversationID
	switch {
	case id != "":
		if err := ctrl.SetActive(id); err != nil {
			return fmt.Errorf("conversation %s: %w", id, err)
		}
	case flags.newConversation || ctrl.ActiveID() == "":
		id = ctrl.NewConversation().ID
	default:
		id = ctrl.ActiveID()
	}

	p := &answerPrinter{w: env.stdout}
	res, err := ctrl.Send(ctx, id, question, chat.WithUpdateHandler(p.update))
	if err != nil {
		return err
	}
	p.finish()

	conv, _ := ctrl.Conversation(id)
	if msg, ok := conv.Message(res.MessageID); ok {
		printSources(env.stdout, msg.Citations)
	}

	switch res.State {
	case eka.TurnFailed:
		return fmt.Errorf("answer failed: %w", res.Err)
	case eka.TurnCanceled:
		return res.Err
	}
	if !res.Done {
		env.log.Warn().Msg("answer ended before the server finished")
	}
	return nil
}

// runAskOnce asks through the non-streaming endpoint. The exchange is not
// added to any conversation.
func runAskOnce(ctx context.Context, env *environment, question string) error {
	q := strings.TrimSpace(question)
	if q == "" {
		return eka.ErrEmptyQuestion
	}
	ans, err := env.client.Chat(ctx, eka.ChatRequest{Question: q, Mode: env.cfg.Mode})
	if err != nil {
		return err
	}
	fmt.Fprintln(env.stdout, strings.TrimRight(ans.Answer, "\n"))
	printSources(env.stdout, ans.Citations)
	return nil
}

func printSources(w io.Writer, citations []eka.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for _, c := range citations {
		fmt.Fprintf(w, "  [%d] %s%s\n", c.Ref, c.Label(), citationSuffix(c))
	}
}

// answerPrinter writes the growing answer to w. When content is replaced
// rather than extended, as on failure, the new content is printed whole.
type answerPrinter struct {
	w       io.Writer
	msgID   string
	printed string
}

func (p *answerPrinter) update(conv eka.Conversation) {
	if len(conv.Messages) == 0 {
		return
	}
	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != eka.RoleAssistant {
		return
	}
	if p.msgID != last.ID {
		p.msgID, p.printed = last.ID, ""
	}
	switch {
	case strings.HasPrefix(last.Content, p.printed):
		fmt.Fprint(p.w, last.Content[len(p.printed):])
	default:
		fmt.Fprint(p.w, "\n"+last.Content)
	}
	p.printed = last.Content
}

func (p *answerPrinter) finish() {
	if p.printed != "" && !strings.HasSuffix(p.printed, "\n") {
		fmt.Fprintln(p.w)
	}
}

func citationSuffix(c eka.Citation) string {
	var parts []string
	if c.Page != nil {
		parts = append(parts, fmt.Sprintf("p. %d", *c.Page))
	}
	if len(c.HeadingPath) > 0 {
		parts = append(parts, strings.Join(c.HeadingPath, " > "))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
