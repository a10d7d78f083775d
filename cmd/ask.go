package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/chat"
	"github.com/miskibin/sejmofil-sub001/internal/llm"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/stream"
)

// tokenEnvVar holds the API token used by ask --server when --token is unset.
const tokenEnvVar = "SEJMOFIL_TOKEN"

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question and stream the grounded answer",
	Long: `Runs one chat turn and prints the answer as it streams, followed by its
numbered sources. By default the pipeline runs in-process; with --server the
question is sent to a running sejmofil server instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("server", "", "base URL of a running sejmofil server, e.g. http://localhost:8080")
	askCmd.Flags().String("token", "", "API token for --server (default $"+tokenEnvVar+")")
	askCmd.Flags().String("conversation", "", "conversation ID to record the turn under (--server only)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	conversationID, _ := cmd.Flags().GetString("conversation")

	req := chat.ChatRequest{
		Messages:       []chat.ChatMessage{{Role: llm.RoleUser, Content: args[0]}},
		ConversationID: conversationID,
	}
	printer := &terminalPrinter{out: cmd.OutOrStdout(), status: cmd.ErrOrStderr()}

	if serverURL != "" {
		if token == "" {
			token = os.Getenv(tokenEnvVar)
		}
		return askRemote(cmd, serverURL, token, req, printer)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	c, err := buildComponents(cmd.Context(), cfg, logger, nil, true)
	if err != nil {
		return err
	}
	pipeline := chat.NewPipeline(c.retriever, newAssembler(cfg, logger), c.provider, pipelineConfig(cfg),
		chat.WithLogger(logger),
	).ForEndpoint(observability.EndpointCLI)

	if err := pipeline.Run(cmd.Context(), auth.Identity{UserID: "cli"}, req, printer); err != nil {
		return err
	}
	return printer.err()
}

// askRemote posts req to the server's SSE endpoint and prints events as
// their frames arrive.
func askRemote(cmd *cobra.Command, baseURL, token string, req chat.ChatRequest, printer *terminalPrinter) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := stream.ScanFrames(resp.Body, printer.Send); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return printer.err()
}

// errIncompleteStream reports a stream that ended before its done event.
var errIncompleteStream = errors.New("stream ended before the answer was complete")

// terminalPrinter renders chat events for a terminal. Status lines go to
// status so the answer on out can be piped.
type terminalPrinter struct {
	out     io.Writer
	status  io.Writer
	failure string
	done    bool
}

func (p *terminalPrinter) Send(e stream.Event) error {
	switch ev := e.(type) {
	case stream.Status:
		fmt.Fprintln(p.status, ev.Message)
	case stream.Content:
		fmt.Fprint(p.out, ev.Delta)
	case stream.References:
		fmt.Fprintln(p.out)
		if len(ev.Items) > 0 {
			fmt.Fprintln(p.out, "\nŹródła:")
		}
		for i, r := range ev.Items {
			line := fmt.Sprintf("[%d] %s", i+1, r.Title)
			if r.URL != "" {
				line += " " + r.URL
			}
			fmt.Fprintln(p.out, line)
		}
	case stream.Error:
		p.failure = ev.Message
	case stream.Done:
		p.done = true
	}
	return nil
}

func (p *terminalPrinter) err() error {
	if p.failure != "" {
		return errors.New(p.failure)
	}
	if !p.done {
		return errIncompleteStream
	}
	return nil
}
