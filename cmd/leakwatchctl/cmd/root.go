package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

// globals holds the persistent flags after environment and context fallback.
type globals struct {
	apiURL  string
	token   string
	context string
	output  string
	verbose bool
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// SetVersion sets the CLI version from build flags.
func SetVersion(v string) {
	version = v
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:   "leakwatchctl",
		Short: "Leakwatch gateway operator CLI",
		Long: `leakwatchctl is a kubectl-style CLI for the leakwatch gateway.

It lists and controls collection jobs, manages scheduled jobs,
follows live job progress and predicts cron firings locally.

Use "leakwatchctl config set-context" to configure your connection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			g.resolve()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.apiURL, "api-url", "", "Override gateway URL (env: LEAKWATCH_API_URL)")
	pf.StringVar(&g.token, "token", "", "Override bearer token (env: LEAKWATCH_TOKEN)")
	pf.StringVarP(&g.context, "context", "c", "", "Use specific context (env: LEAKWATCH_CONTEXT)")
	pf.StringVarP(&g.output, "output", "o", "table", "Output format: table, json, yaml")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")

	root.AddCommand(
		newVersionCmd(),
		newConfigCmd(g),
		newGetCmd(g),
		newDescribeCmd(g),
		newCancelCmd(g),
		newPauseCmd(g),
		newResumeCmd(g),
		newDeleteCmd(g),
		newRunCmd(g),
		newWatchCmd(g),
		newPredictCmd(g),
		newTokenCmd(g),
	)
	return root
}

func (g *globals) resolve() {
	if g.apiURL == "" {
		g.apiURL = os.Getenv("LEAKWATCH_API_URL")
	}
	if g.token == "" {
		g.token = os.Getenv("LEAKWATCH_TOKEN")
	}
	if g.apiURL != "" && g.token != "" {
		return
	}

	u, t := g.fromConfigFile()
	if g.apiURL == "" {
		g.apiURL = u
	}
	if g.token == "" {
		g.token = t
	}
}

func (g *globals) fromConfigFile() (string, string) {
	name := g.context
	if name == "" {
		name = os.Getenv("LEAKWATCH_CONTEXT")
	}

	cfg, err := loadConfig()
	if err != nil {
		return "", ""
	}
	if name == "" {
		name = cfg.CurrentContext
	}

	ctx := cfg.GetContext(name)
	if ctx == nil {
		return "", ""
	}

	token := ctx.Context.Token
	if token == "" && ctx.Context.TokenFile != "" {
		data, err := os.ReadFile(expandPath(ctx.Context.TokenFile))
		if err == nil {
			token = strings.TrimSpace(string(data))
		}
	}
	return ctx.Context.APIURL, token
}

func (g *globals) client() (*Client, error) {
	if g.apiURL == "" {
		return nil, errors.New("gateway URL not configured. Use --api-url, LEAKWATCH_API_URL, or 'leakwatchctl config set-context'")
	}
	if g.token == "" {
		return nil, errors.New("token not configured. Use --token, LEAKWATCH_TOKEN, or 'leakwatchctl config set-context'")
	}
	return NewClient(g.apiURL, g.token, g.verbose), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "leakwatchctl version %s\n", version)
			fmt.Fprintf(w, "  Go:       %s\n", runtime.Version())
			fmt.Fprintf(w, "  OS/Arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
