package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"wharf/pkg/dockersource"
	"wharf/pkg/logmatch"
	"wharf/pkg/logstream"
	"wharf/pkg/pstree"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	timeout   time.Duration
	matches   []string
	patterns  []string
	unordered bool
	stdout    bool
	stderr    bool
	tailCount string
	websocket bool
	host      string
)

var rootCmd = &cobra.Command{
	Use:   "wharf",
	Short: "Wharf - container log inspection for tests",
	Long:  `Wharf streams and matches container logs with strict timeouts, for debugging the assertions test suites make against containers.`,
}

func newSource(containerID string) (logstream.Source, *dockersource.ContainerSource, error) {
	cli, err := dockersource.NewClient()
	if err != nil {
		return nil, nil, err
	}
	container := dockersource.NewContainerSource(cli, containerID)
	if websocket {
		wsHost := host
		if wsHost == "" {
			wsHost = os.Getenv("DOCKER_HOST")
		}
		if wsHost == "" {
			return nil, nil, fmt.Errorf("websocket attach needs --host or DOCKER_HOST")
		}
		ws := dockersource.NewWebSocketSource(cli, wsHost, containerID)
		return ws, container, nil
	}
	return container, container, nil
}

func buildMatcher() (logmatch.Matcher, error) {
	var matchers []logmatch.Matcher
	for _, m := range matches {
		matchers = append(matchers, logmatch.Equals(m))
	}
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("invalid --pattern %q: %w", p, err)
		}
		matchers = append(matchers, logmatch.Regex(p))
	}
	if len(matchers) == 0 {
		return nil, fmt.Errorf("at least one --match or --pattern is required")
	}
	if unordered {
		return logmatch.Unordered(matchers...), nil
	}
	return logmatch.Ordered(matchers...), nil
}

var waitCmd = &cobra.Command{
	Use:           "wait CONTAINER",
	Short:         "Wait until the container logs match",
	Long:          `Stream the container's logs until every --match and --pattern has matched a line, or the timeout expires.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		matcher, err := buildMatcher()
		if err != nil {
			return err
		}
		source, _, err := newSource(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		slog.Info("waiting for logs", "container", args[0], "matcher", matcher.String(), "timeout", timeout)
		line, err := logstream.WaitForLogsMatching(ctx, source, matcher, logstream.WaitOptions{
			Timeout: timeout,
			Stdout:  stdout,
			Stderr:  stderr,
			Tail:    tailCount,
		})
		if err != nil {
			return err
		}
		fmt.Println(line)
		return nil
	},
}

var tailCmd = &cobra.Command{
	Use:           "tail CONTAINER",
	Short:         "Print the container's logs",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, container, err := newSource(args[0])
		if err != nil {
			return err
		}

		output, err := container.Tail(cmd.Context(), logstream.TailOptions{
			Stdout: stdout,
			Stderr: stderr,
			Tail:   tailCount,
		})
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(output)
		return err
	},
}

var followCmd = &cobra.Command{
	Use:           "follow CONTAINER",
	Short:         "Stream the container's logs until the timeout expires",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _, err := newSource(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stream, err := logstream.Open(ctx, source, logstream.Options{
			Timeout: timeout,
			Stdout:  stdout,
			Stderr:  stderr,
			Tail:    tailCount,
		})
		if err != nil {
			return err
		}
		defer stream.Close()

		for {
			line, err := stream.NextLine()
			if errors.Is(err, io.EOF) {
				return nil
			}
			var timeoutErr *logstream.TimeoutError
			if errors.As(err, &timeoutErr) {
				slog.Info("log stream timed out", "timeout", timeoutErr.Timeout)
				return nil
			}
			if err != nil {
				return err
			}
			os.Stdout.Write(line)
		}
	},
}

var psCmd = &cobra.Command{
	Use:           "ps CONTAINER",
	Short:         "Show the container's process tree",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, container, err := newSource(args[0])
		if err != nil {
			return err
		}

		rows, err := pstree.ListContainerProcesses(cmd.Context(), container)
		if err != nil {
			return err
		}
		tree, err := pstree.BuildTree(rows)
		if err != nil {
			return err
		}
		printTree(os.Stdout, tree, 0)
		return nil
	},
}

func printTree(w io.Writer, node *pstree.PsTree, depth int) {
	for i := 0; i < depth; i++ {
		fmt.Fprint(w, "  ")
	}
	fmt.Fprintf(w, "%d %s %s\n", node.Row.PID, node.Row.RUser, node.Row.Args)
	for _, child := range node.Children {
		printTree(w, child, depth+1)
	}
}

func addStreamFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&stdout, "stdout", true, "Include the container's stdout")
	cmd.Flags().BoolVar(&stderr, "stderr", true, "Include the container's stderr")
	cmd.Flags().StringVarP(&tailCount, "tail", "n", "", "Number of historical log lines to include ('all' for everything)")
	cmd.Flags().BoolVar(&websocket, "websocket", false, "Attach over the engine's websocket endpoint instead of the logs API")
	cmd.Flags().StringVar(&host, "host", "", "Docker engine host for websocket attach (default: $DOCKER_HOST)")
}

func init() {
	waitCmd.Flags().DurationVarP(&timeout, "timeout", "t", logstream.DefaultTimeout, "How long to wait for matching logs")
	waitCmd.Flags().StringArrayVarP(&matches, "match", "m", nil, "Wait for a log line equal to this string (repeatable)")
	waitCmd.Flags().StringArrayVarP(&patterns, "pattern", "p", nil, "Wait for a log line matching this regular expression (repeatable)")
	waitCmd.Flags().BoolVar(&unordered, "unordered", false, "Allow matches in any order")
	addStreamFlags(waitCmd)

	addStreamFlags(tailCmd)

	followCmd.Flags().DurationVarP(&timeout, "timeout", "t", logstream.DefaultTimeout, "How long to stream logs for")
	addStreamFlags(followCmd)

	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(psCmd)
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env file failed", "error", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
