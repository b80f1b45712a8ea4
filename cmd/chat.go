// Copyright (c) 2025 Taproom
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taproom/cli/internal/pipeline"
	"taproom/cli/internal/terminal"
)

var chatRows int

const chatPrompt = "taproom> "

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask follow-up questions in an interactive session",
	Long: `The chat command keeps a conversation history so follow-up questions can refer
to earlier answers ("now split that by server"). Only turns that completed are
remembered.

Typing a new question while one is running, or pressing Ctrl-C, abandons the
running turn. Ctrl-C at an empty prompt exits.

Commands: :history lists remembered questions, :clear forgets them, :quit exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx, true)
		if err != nil {
			return err
		}
		defer s.Close()

		printConnection(s)
		coord := s.coordinator(nil)
		sess := pipeline.NewSession(coord, nil)
		interactive := terminal.Interactive()

		lines := make(chan string)
		go func() {
			defer close(lines)
			sc := bufio.NewScanner(os.Stdin)
			for sc.Scan() {
				lines <- sc.Text()
			}
		}()
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)

		type turnResult struct {
			id  int
			out *pipeline.Outcome
			err error
		}
		results := make(chan turnResult, 4)
		var (
			seq, current int
			view         *progressView
			prompted     bool
		)
		stopView := func() {
			if view != nil {
				view.Stop()
				view = nil
			}
		}
		defer stopView()

		for {
			if current == 0 && !prompted {
				pterm.Print(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint(chatPrompt))
				prompted = true
			}
			select {
			case <-ctx.Done():
				return nil

			case line, ok := <-lines:
				if !ok {
					for current != 0 {
						if r := <-results; r.id == current {
							stopView()
							renderOutcome(r.out, chatRows)
							current = 0
						}
					}
					return nil
				}
				text := strings.TrimSpace(line)
				prompted = false
				switch text {
				case "":
					continue
				case ":quit", ":exit", ":q":
					sess.Cancel()
					return nil
				case ":clear":
					sess.History().Clear()
					pterm.Println("History cleared.")
					continue
				case ":history":
					printHistory(sess.History())
					continue
				}
				if interactive {
					terminal.ClearPreviousLines(len(chatPrompt) + len(text))
					pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("? ") + text)
				}
				stopView()
				seq++
				current = seq
				view = startProgress(coord.Progress())
				go func(id int, text string) {
					out, err := sess.Submit(ctx, text)
					results <- turnResult{id: id, out: out, err: err}
				}(current, text)

			case r := <-results:
				if r.id != current || errors.Is(r.err, pipeline.ErrSuperseded) {
					logger.Debug("dropping superseded turn", zap.Int("turn", r.id))
					continue
				}
				stopView()
				current = 0
				renderOutcome(r.out, chatRows)

			case <-sigs:
				if current == 0 {
					pterm.Println()
					return nil
				}
				sess.Cancel()
				stopView()
				current = 0
				pterm.Println(pterm.NewStyle(pterm.FgYellow).Sprint("Turn cancelled."))
			}
		}
	},
}

func printHistory(h *pipeline.History) {
	turns := h.Turns()
	if len(turns) == 0 {
		pterm.Println("No questions remembered yet.")
		return
	}
	for i, t := range turns {
		pterm.Println(fmt.Sprintf("%d. %s (%d queries, %d rows)", i+1, t.UserText, len(t.Queries), t.RowCount))
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().IntVar(&chatRows, "rows", 10, "Rows shown per result (0 shows all)")
}
